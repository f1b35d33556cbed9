package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/markethours"
	pkgcache "StockPulse/pkg/cache"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/queue"
)

func TestDashboardSnapshotReadsStoredState(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "AAPL")
	ctx := context.Background()
	if err := f.jobs.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}
	before := len(f.store.Predictions("AAPL"))

	snaps := pkgcache.NewMemoryCache()
	defer snaps.Close()
	d := NewDashboardService(f.store, f.cache, markethours.New(), nil, nil,
		WithSnapshotCache(snaps, time.Minute), WithDashboardClock(testClock()))

	snap, err := d.Snapshot(ctx, "aapl")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.CurrentPrice == nil || snap.Indicators == nil || snap.Fundamentals == nil {
		t.Fatalf("snapshot missing stored fields: %+v", snap)
	}
	if snap.LatestPrediction == nil || snap.LatestPrediction.ModelUsed != models.ModelComprehensive {
		t.Fatalf("latest prediction = %+v, want the cached weighted record", snap.LatestPrediction)
	}
	if len(snap.RecentInsiderTrades) == 0 || len(snap.RecentInsiderTrades) > 10 {
		t.Errorf("insider trades = %d, want 1..10", len(snap.RecentInsiderTrades))
	}
	if !snap.Market.IsOpen {
		t.Error("market should be open at the fixture instant")
	}
	if after := len(f.store.Predictions("AAPL")); after != before {
		t.Errorf("snapshot produced %d new predictions", after-before)
	}

	var cached models.DashboardSnapshot
	if err := snaps.Get(ctx, DashboardKey("AAPL"), &cached); err != nil {
		t.Fatalf("snapshot was not memoized: %v", err)
	}
}

type unwritableCache struct{ *pkgcache.MemoryCache }

func (unwritableCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("redis: connection refused")
}

func TestDashboardServesSnapshotWhenCacheWriteFails(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "AAPL")
	ctx := context.Background()
	if err := f.jobs.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()

	d := NewDashboardService(f.store, f.cache, markethours.New(), nil, xlogger.Nop(),
		WithSnapshotCache(unwritableCache{mc}, time.Minute), WithDashboardClock(testClock()))
	snap, err := d.Snapshot(ctx, "AAPL")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.CurrentPrice == nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestDashboardFallsBackToStoredPrediction(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "AAPL")
	ctx := context.Background()
	if err := f.jobs.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}
	f.cache.Clear(ctx)

	d := NewDashboardService(f.store, f.cache, markethours.New(), nil, nil, WithDashboardClock(testClock()))
	snap, err := d.Snapshot(ctx, "AAPL")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.LatestPrediction == nil || snap.LatestPrediction.ModelUsed != models.ModelComprehensive {
		t.Fatalf("latest prediction = %+v", snap.LatestPrediction)
	}
}

func TestDashboardUnknownSymbol(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "AAPL")
	d := NewDashboardService(f.store, f.cache, markethours.New(), nil, nil)
	_, err := d.Snapshot(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("err = %v, want ErrSymbolNotFound", err)
	}
}

func TestManualRefreshRunsAsynchronously(t *testing.T) {
	f := newJobsFixture(t, mockProvider(), "AAPL")
	ctx := context.Background()
	if err := f.jobs.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}

	q := queue.NewLocalQueue(xlogger.Nop(), queue.Config{Workers: 1, RetryLimit: 0})
	q.RegisterJob(NewRefreshJob(f.jobs, nil, nil))
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	d := NewDashboardService(f.store, f.cache, markethours.New(), q, nil, WithDashboardClock(testClock()))
	ack, err := d.TriggerManualRefresh(ctx, " aapl")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !ack.Queued || ack.Symbol != "AAPL" || ack.RequestID == "" {
		t.Fatalf("ack = %+v", ack)
	}

	deadline := time.Now().Add(5 * time.Second)
	for countModel(f.store.Predictions("AAPL"), models.ModelComprehensive) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("refresh never produced a new weighted prediction")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManualRefreshRequiresSymbol(t *testing.T) {
	d := NewDashboardService(nil, nil, markethours.New(), nil, nil)
	if _, err := d.TriggerManualRefresh(context.Background(), " "); err == nil {
		t.Fatal("expected error")
	}
}
