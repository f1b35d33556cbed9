package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func TestAllowHonorsBurstPerKey(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	l := New(1, 2, withNow(func() time.Time { return now }))

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two events within burst should pass")
	}
	if l.Allow("a") {
		t.Fatal("third event should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("separate key must have its own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatal("token should refill after one second")
	}
}

func TestIdleBucketsEvicted(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	l := New(5, 5, WithIdleTTL(time.Minute), withNow(func() time.Time { return now }))
	for i := 0; i <= 1024; i++ {
		l.Allow("ip-" + strconv.Itoa(i))
	}
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")
	if got := l.Len(); got != 1 {
		t.Fatalf("len = %d, want 1 after eviction", got)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	l := New(0.001, 1)
	l.Allow("k")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k"); err == nil {
		t.Fatal("expected wait to fail once the bucket is empty")
	}
}
