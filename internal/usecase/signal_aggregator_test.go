package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/repository"
)

var testNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

func testClock() domsvc.Clock { return domsvc.ClockFunc(func() time.Time { return testNow }) }

// stallingReader blocks on indicators until the test ends and fails fundamentals.
type stallingReader struct {
	*repository.MemoryMarketStore
	release chan struct{}
}

func (r *stallingReader) GetLatestTechnicalIndicators(ctx context.Context, symbol string) (*models.Indicators, error) {
	<-r.release
	return nil, nil
}

func (r *stallingReader) GetLatestFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	return nil, errors.New("fundamentals backend down")
}

func seedStore(t *testing.T) *repository.MemoryMarketStore {
	t.Helper()
	store := repository.NewMemoryMarketStore(testClock())
	ctx := context.Background()
	var prices []models.PriceRecord
	for i := 0; i < 10; i++ {
		prices = append(prices, models.PriceRecord{
			Symbol:    "AAPL",
			Price:     100 + float64(i),
			Volume:    1000,
			Timestamp: testNow.Add(time.Duration(i-10) * time.Hour),
		})
	}
	if err := store.InsertPrices(ctx, prices); err != nil {
		t.Fatalf("insert prices: %v", err)
	}
	err := store.InsertNews(ctx, []models.NewsItem{
		{ID: "n1", Symbol: "AAPL", Headline: "fresh", Sentiment: 0.5, Relevance: 8, PublishedAt: testNow.Add(-2 * time.Hour)},
		{ID: "n2", Symbol: "AAPL", Headline: "old", Sentiment: -0.5, Relevance: 8, PublishedAt: testNow.Add(-48 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("insert news: %v", err)
	}
	return store
}

func TestSnapshotCollectsAvailableSignals(t *testing.T) {
	store := seedStore(t)
	agg := NewSignalAggregator(store, WithAggregatorClock(testClock()))

	snap, err := agg.Snapshot(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Symbol != "AAPL" {
		t.Errorf("symbol = %q", snap.Symbol)
	}
	if snap.Price == nil || snap.Price.Price != 109 {
		t.Fatalf("price = %+v, want latest 109", snap.Price)
	}
	if len(snap.History) != 10 {
		t.Errorf("history len = %d, want 10", len(snap.History))
	}
	if len(snap.News) != 1 || snap.News[0].ID != "n1" {
		t.Errorf("news = %+v, want only the item inside 24h", snap.News)
	}
	if snap.Indicators != nil || snap.Fundamentals != nil {
		t.Errorf("absent signals should stay nil")
	}
	if snap.Errors != nil {
		t.Errorf("errors = %v, want none", snap.Errors)
	}
}

func TestSnapshotLookbackOverride(t *testing.T) {
	store := seedStore(t)
	agg := NewSignalAggregator(store, WithAggregatorClock(testClock()))

	snap, err := agg.SnapshotWithLookback(context.Background(), "AAPL", Lookback{NewsHours: 72, HistoryHours: 3})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.News) != 2 {
		t.Errorf("news len = %d, want 2", len(snap.News))
	}
	if len(snap.History) != 3 {
		t.Errorf("history len = %d, want 3", len(snap.History))
	}
}

func TestSnapshotBoundsSlowAndFailingReads(t *testing.T) {
	reader := &stallingReader{MemoryMarketStore: seedStore(t), release: make(chan struct{})}
	defer close(reader.release)
	agg := NewSignalAggregator(reader, WithAggregatorClock(testClock()), WithFetchTimeout(50*time.Millisecond))

	start := time.Now()
	snap, err := agg.Snapshot(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("snapshot took %v, fetch timeout not honored", elapsed)
	}
	if snap.Price == nil {
		t.Fatal("price should survive other failures")
	}
	if _, ok := snap.Errors["indicators"]; !ok {
		t.Errorf("expected indicators timeout in %v", snap.Errors)
	}
	if _, ok := snap.Errors["fundamentals"]; !ok {
		t.Errorf("expected fundamentals error in %v", snap.Errors)
	}
}

func TestSnapshotRejectsBlankSymbol(t *testing.T) {
	agg := NewSignalAggregator(repository.NewMemoryMarketStore(testClock()))
	if _, err := agg.Snapshot(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank symbol")
	}
}
