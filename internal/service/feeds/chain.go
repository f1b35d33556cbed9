package feeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
)

// Chain asks each provider in order and returns the first non-empty answer.
// An error from one provider is kept only if every later one also fails.
type Chain struct {
	providers []domrepo.MarketDataProvider
}

func NewChain(providers ...domrepo.MarketDataProvider) *Chain {
	var ps []domrepo.MarketDataProvider
	for _, p := range providers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &Chain{providers: ps}
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}

func first[T any](ctx context.Context, c *Chain, op string, call func(domrepo.MarketDataProvider) (T, error), empty func(T) bool) (T, error) {
	var zero T
	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := call(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", p.Name(), op, err))
			continue
		}
		if !empty(v) {
			return v, nil
		}
	}
	return zero, errors.Join(errs...)
}

func (c *Chain) Quote(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	return first(ctx, c, "quote", func(p domrepo.MarketDataProvider) (*models.PriceRecord, error) {
		return p.Quote(ctx, symbol)
	}, func(v *models.PriceRecord) bool { return v == nil })
}

func (c *Chain) History(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceRecord, error) {
	return first(ctx, c, "history", func(p domrepo.MarketDataProvider) ([]models.PriceRecord, error) {
		return p.History(ctx, symbol, from, to)
	}, func(v []models.PriceRecord) bool { return len(v) == 0 })
}

func (c *Chain) News(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	return first(ctx, c, "news", func(p domrepo.MarketDataProvider) ([]models.NewsItem, error) {
		return p.News(ctx, symbol, from, to)
	}, func(v []models.NewsItem) bool { return len(v) == 0 })
}

func (c *Chain) InsiderTrades(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTrade, error) {
	return first(ctx, c, "insider", func(p domrepo.MarketDataProvider) ([]models.InsiderTrade, error) {
		return p.InsiderTrades(ctx, symbol, from, to)
	}, func(v []models.InsiderTrade) bool { return len(v) == 0 })
}

func (c *Chain) Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	return first(ctx, c, "fundamentals", func(p domrepo.MarketDataProvider) (*models.Fundamentals, error) {
		return p.Fundamentals(ctx, symbol)
	}, func(v *models.Fundamentals) bool { return v == nil })
}
