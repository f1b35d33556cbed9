package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
)

// Lookback bounds the news and history windows of a snapshot, in hours.
type Lookback struct {
	NewsHours    int
	HistoryHours int
}

var DefaultLookback = Lookback{NewsHours: 24, HistoryHours: 72}

// SignalAggregator assembles a SignalSnapshot from the storage collaborator.
// The five reads run concurrently and each is bounded by its own timeout; a
// failed or empty read leaves its field absent.
type SignalAggregator struct {
	reader       domrepo.MarketReader
	fetchTimeout time.Duration
	lookback     Lookback
	clock        domsvc.Clock
}

type AggregatorOption func(*SignalAggregator)

func WithFetchTimeout(d time.Duration) AggregatorOption {
	return func(a *SignalAggregator) {
		if d > 0 {
			a.fetchTimeout = d
		}
	}
}

func WithLookback(lb Lookback) AggregatorOption {
	return func(a *SignalAggregator) {
		if lb.NewsHours > 0 {
			a.lookback.NewsHours = lb.NewsHours
		}
		if lb.HistoryHours > 0 {
			a.lookback.HistoryHours = lb.HistoryHours
		}
	}
}

func WithAggregatorClock(c domsvc.Clock) AggregatorOption {
	return func(a *SignalAggregator) {
		if c != nil {
			a.clock = c
		}
	}
}

func NewSignalAggregator(reader domrepo.MarketReader, opts ...AggregatorOption) *SignalAggregator {
	a := &SignalAggregator{
		reader:       reader,
		fetchTimeout: 5 * time.Second,
		lookback:     DefaultLookback,
		clock:        domsvc.SystemClock,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *SignalAggregator) Snapshot(ctx context.Context, symbol string) (*models.SignalSnapshot, error) {
	return a.SnapshotWithLookback(ctx, symbol, a.lookback)
}

func (a *SignalAggregator) SnapshotWithLookback(ctx context.Context, symbol string, lb Lookback) (*models.SignalSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New("symbol required")
	}
	if lb.NewsHours <= 0 {
		lb.NewsHours = a.lookback.NewsHours
	}
	if lb.HistoryHours <= 0 {
		lb.HistoryHours = a.lookback.HistoryHours
	}

	snap := &models.SignalSnapshot{
		Symbol:    symbol,
		Timestamp: a.clock.Now(),
		Errors:    map[string]string{},
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 5)
	var wg sync.WaitGroup

	fetch := func(name string, fn func(ctx context.Context) (interface{}, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.bounded(ctx, fn)
			ch <- item{name, v, err}
		}()
	}

	fetch("price", func(ctx context.Context) (interface{}, error) {
		return a.reader.GetLatestPrice(ctx, symbol)
	})
	fetch("indicators", func(ctx context.Context) (interface{}, error) {
		return a.reader.GetLatestTechnicalIndicators(ctx, symbol)
	})
	fetch("fundamentals", func(ctx context.Context) (interface{}, error) {
		return a.reader.GetLatestFundamentals(ctx, symbol)
	})
	fetch("news", func(ctx context.Context) (interface{}, error) {
		return a.reader.GetRecentNews(ctx, symbol, lb.NewsHours)
	})
	fetch("history", func(ctx context.Context) (interface{}, error) {
		return a.reader.GetPriceHistory(ctx, symbol, lb.HistoryHours)
	})

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			snap.Errors[it.name] = it.err.Error()
			continue
		}
		switch v := it.val.(type) {
		case *models.PriceRecord:
			snap.Price = v
		case *models.Indicators:
			snap.Indicators = v
		case *models.Fundamentals:
			snap.Fundamentals = v
		case []models.NewsItem:
			snap.News = v
		case []models.PriceRecord:
			snap.History = v
		}
	}

	if len(snap.Errors) == 0 {
		snap.Errors = nil
	}
	return snap, nil
}

// bounded runs fn under the per-fetch timeout and gives up on it when the
// deadline passes even if fn ignores its context.
func (a *SignalAggregator) bounded(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	type result struct {
		v   interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
