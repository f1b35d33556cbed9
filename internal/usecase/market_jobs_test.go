package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/repository"
	"StockPulse/internal/service/cache"
	"StockPulse/internal/service/mockfeed"
	"StockPulse/internal/services/analytics"
	"StockPulse/internal/services/markethours"
)

type recordingPublisher struct {
	mu          sync.Mutex
	predictions []models.PredictionRecord
	anomalies   []models.MarketAnomaly
}

func (p *recordingPublisher) PublishPrediction(_ context.Context, rec models.PredictionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predictions = append(p.predictions, rec)
	return nil
}

func (p *recordingPublisher) PublishAnomalies(_ context.Context, a []models.MarketAnomaly) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anomalies = append(p.anomalies, a...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type downProvider struct{ *mockfeed.Provider }

func (downProvider) Name() string { return "down" }

func (downProvider) Quote(context.Context, string) (*models.PriceRecord, error) {
	return nil, errors.New("connection refused")
}

type jobsFixture struct {
	store     *repository.MemoryMarketStore
	cache     *cache.PredictionCache
	publisher *recordingPublisher
	jobs      *MarketJobs
}

func newJobsFixture(t *testing.T, provider domrepo.MarketDataProvider, symbols ...string) *jobsFixture {
	t.Helper()
	clock := testClock()
	hours := markethours.New()
	store := repository.NewMemoryMarketStore(clock)
	agg := NewSignalAggregator(store, WithAggregatorClock(clock))
	engine := NewPredictionEngine(
		agg,
		analytics.NewDirectionalScorer(),
		analytics.NewRangePredictor(analytics.WithRangeClock(clock)),
		analytics.NewComprehensiveAnalyzer(hours, analytics.WithAnalyzerClock(clock)),
	)
	pc := cache.NewPredictionCache(engine.Comprehensive, hours, cache.WithClock(clock))
	pub := &recordingPublisher{}
	jobs := NewMarketJobs(
		JobsConfig{Symbols: symbols},
		provider,
		store,
		engine,
		pc,
		analytics.NewZScoreDetector(30, 3),
		analytics.NewLexiconSentiment(nil),
		nil,
		WithPublisher(pub),
		WithJobsClock(clock),
	)
	return &jobsFixture{store: store, cache: pc, publisher: pub, jobs: jobs}
}

func mockProvider() *mockfeed.Provider {
	return mockfeed.New(11, mockfeed.WithBasePrice("AAPL", 180), mockfeed.WithNow(func() time.Time { return testNow }))
}

func countModel(recs []models.PredictionRecord, model string) int {
	n := 0
	for _, r := range recs {
		if r.ModelUsed == model {
			n++
		}
	}
	return n
}

func TestLoadInitialPopulatesStore(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "aapl")
	ctx := context.Background()

	if err := f.jobs.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}

	if p, _ := f.store.GetLatestPrice(ctx, "AAPL"); p == nil {
		t.Fatal("no price stored")
	}
	if ind, _ := f.store.GetLatestTechnicalIndicators(ctx, "AAPL"); ind == nil || ind.SMA50 == 0 {
		t.Fatalf("indicators = %+v, want SMA-50 from backfill", ind)
	}
	if fu, _ := f.store.GetLatestFundamentals(ctx, "AAPL"); fu == nil {
		t.Fatal("no fundamentals stored")
	}
	news, _ := f.store.GetRecentNews(ctx, "AAPL", 24)
	if len(news) == 0 {
		t.Fatal("no news stored")
	}
	for _, n := range news {
		if n.Relevance == 0 {
			t.Errorf("news %q was not scored", n.Headline)
		}
	}
	if trades, _ := f.store.GetRecentInsiderTrades(ctx, "AAPL", 10); len(trades) == 0 {
		t.Fatal("no insider trades stored")
	}

	preds := f.store.Predictions("AAPL")
	if countModel(preds, models.ModelComprehensive) != 1 || countModel(preds, models.ModelTightRange) != 1 {
		t.Fatalf("predictions = %+v, want one per model", preds)
	}
	if len(f.publisher.predictions) != 2 {
		t.Errorf("published %d predictions, want 2", len(f.publisher.predictions))
	}
	if len(f.store.APICalls()) == 0 {
		t.Error("provider calls were not logged")
	}
}

func TestGeneratePredictionsRespectsCache(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "AAPL")
	ctx := context.Background()
	if err := f.jobs.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}

	if err := f.jobs.GeneratePredictions(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	preds := f.store.Predictions("AAPL")
	if got := countModel(preds, models.ModelComprehensive); got != 1 {
		t.Errorf("comprehensive records = %d, want 1 while the entry is valid", got)
	}
	if got := countModel(preds, models.ModelTightRange); got != 2 {
		t.Errorf("tight-range records = %d, want 2", got)
	}

	if err := f.jobs.RefreshSymbol(ctx, " aapl "); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := countModel(f.store.Predictions("AAPL"), models.ModelComprehensive); got != 2 {
		t.Errorf("comprehensive records after refresh = %d, want 2", got)
	}
}

func TestGeneratePredictionsWithoutPriceIsSkipped(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "NOPE")
	if err := f.jobs.GeneratePredictions(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if preds := f.store.Predictions("NOPE"); len(preds) != 0 {
		t.Fatalf("stored %d predictions without a price", len(preds))
	}
	if _, ok := f.cache.Peek("NOPE"); ok {
		t.Fatal("cache entry created without a price")
	}
}

func TestProviderFailureIsLoggedAndReturned(t *testing.T) {
	f := newJobsFixture(t, downProvider{mockProvider()}, "AAPL", "MSFT")
	err := f.jobs.RefreshPrices(context.Background())
	if err == nil {
		t.Fatal("expected joined provider error")
	}
	calls := f.store.APICalls()
	if len(calls) != 2 {
		t.Fatalf("api calls = %d, want one per symbol", len(calls))
	}
	for _, c := range calls {
		if c.Success || c.Provider != "down" || c.Endpoint != "quote" || c.Error == "" {
			t.Errorf("unexpected call log %+v", c)
		}
	}
}

func TestScanAnomaliesStoresAndPublishes(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "AAPL")
	ctx := context.Background()

	var bars []models.PriceRecord
	for i := 0; i < 42; i++ {
		p := 100.0
		if i%2 == 1 {
			p = 100.1
		}
		if i == 41 {
			p = 108
		}
		bars = append(bars, models.PriceRecord{
			Symbol:    "AAPL",
			Price:     p,
			Volume:    1000,
			Timestamp: testNow.Add(time.Duration(i-41) * time.Hour),
		})
	}
	if err := f.store.InsertPrices(ctx, bars); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := f.jobs.ScanAnomalies(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	stored := f.store.Anomalies("AAPL")
	if len(stored) == 0 || stored[0].Type != "shock_up" {
		t.Fatalf("anomalies = %+v, want shock_up", stored)
	}
	if len(f.publisher.anomalies) != len(stored) {
		t.Errorf("published %d anomalies, stored %d", len(f.publisher.anomalies), len(stored))
	}
}
