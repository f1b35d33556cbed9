package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	// ErrWriteBack marks a loaded value that could not be stored. The value
	// returned alongside it is still usable.
	ErrWriteBack = errors.New("cache: write back failed")
)

// Service is the key-value surface shared by the memory and Redis backends.
// Values are stored as JSON; strings are stored verbatim.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// GetOrLoad reads key into a T, calling load and storing its result on a miss.
// Backend read errors fall through to load. A failed store returns the loaded
// value with an error wrapping ErrWriteBack.
func GetOrLoad[T any](ctx context.Context, c Service, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	if err := c.Get(ctx, key, &v); err == nil {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return v, fmt.Errorf("%w: %s: %w", ErrWriteBack, key, err)
	}
	return v, nil
}
