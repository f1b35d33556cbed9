package cache

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	pkgcache "StockPulse/pkg/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type toggleHours struct{ open atomic.Bool }

func (h *toggleHours) Window(time.Time) models.MarketWindow {
	return models.MarketWindow{IsOpen: h.open.Load()}
}

type scriptedCompute struct {
	mu    sync.Mutex
	calls int
	confs []float64
	err   error
	clock domsvc.Clock
}

func (s *scriptedCompute) Compute(_ context.Context, symbol string) (models.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return models.PredictionRecord{}, s.err
	}
	conf := s.confs[0]
	if len(s.confs) > 1 {
		s.confs = s.confs[1:]
	}
	return models.PredictionRecord{
		ID:         symbol + "-" + strconv.Itoa(s.calls),
		Symbol:     symbol,
		Confidence: conf,
		Reasoning:  []string{"scripted"},
		CreatedAt:  s.clock.Now(),
	}, nil
}

func (s *scriptedCompute) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func setup(confs ...float64) (*PredictionCache, *scriptedCompute, *fakeClock, *toggleHours) {
	clock := &fakeClock{now: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)}
	hours := &toggleHours{}
	hours.open.Store(true)
	sc := &scriptedCompute{confs: confs, clock: clock}
	pc := NewPredictionCache(sc.Compute, hours, WithClock(clock))
	return pc, sc, clock, hours
}

func TestGetOrComputeIsIdempotentWithinTTL(t *testing.T) {
	pc, sc, clock, _ := setup(80)
	ctx := context.Background()

	first, outcome, err := pc.GetOrCompute(ctx, "aapl")
	if err != nil || outcome != OutcomeComputed {
		t.Fatalf("first call: outcome=%s err=%v", outcome, err)
	}
	clock.Advance(29 * time.Minute)
	second, outcome, err := pc.GetOrCompute(ctx, "AAPL")
	if err != nil || outcome != OutcomeHit {
		t.Fatalf("second call: outcome=%s err=%v", outcome, err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("records differ:\n%+v\n%+v", first, second)
	}
	if sc.Calls() != 1 {
		t.Fatalf("compute calls = %d, want 1", sc.Calls())
	}
}

func TestTTLFollowsMarketState(t *testing.T) {
	pc, _, clock, hours := setup(80)
	now := clock.Now()

	if got := pc.TTL(now); got != 30*time.Minute {
		t.Fatalf("open ttl = %v", got)
	}
	hours.open.Store(false)
	if got := pc.TTL(now); got != 60*time.Minute {
		t.Fatalf("closed ttl = %v", got)
	}

	if _, _, err := pc.GetOrCompute(context.Background(), "AAPL"); err != nil {
		t.Fatalf("compute: %v", err)
	}
	e, ok := pc.Peek("AAPL")
	if !ok || e.ExpiresAt.Sub(e.CreatedAt) != 60*time.Minute {
		t.Fatalf("entry lifetime = %v", e.ExpiresAt.Sub(e.CreatedAt))
	}
}

func TestAcceptanceGateKeepsHigherConfidenceEntry(t *testing.T) {
	pc, sc, clock, _ := setup(80, 55)
	ctx := context.Background()

	accepted, _, err := pc.GetOrCompute(ctx, "AAPL")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	clock.Advance(31 * time.Minute)

	got, outcome, err := pc.GetOrCompute(ctx, "AAPL")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if outcome != OutcomeStale {
		t.Fatalf("outcome = %s, want stale", outcome)
	}
	if !reflect.DeepEqual(got, accepted) {
		t.Fatalf("served %+v, want previous entry", got)
	}
	if e, _ := pc.Peek("AAPL"); e.Record.Confidence != 80 {
		t.Fatalf("entry confidence = %v, want 80", e.Record.Confidence)
	}
	if sc.Calls() != 2 {
		t.Fatalf("compute calls = %d", sc.Calls())
	}
}

func TestLowConfidenceWithoutEntryIsReturnedUncached(t *testing.T) {
	pc, sc, _, _ := setup(40, 40)
	ctx := context.Background()

	rec, outcome, err := pc.GetOrCompute(ctx, "AAPL")
	if err != nil || outcome != OutcomeUncached || rec.Confidence != 40 {
		t.Fatalf("rec=%+v outcome=%s err=%v", rec, outcome, err)
	}
	if _, ok := pc.Peek("AAPL"); ok {
		t.Fatalf("low-confidence result was cached")
	}
	if _, _, err := pc.GetOrCompute(ctx, "AAPL"); err != nil {
		t.Fatalf("second: %v", err)
	}
	if sc.Calls() != 2 {
		t.Fatalf("compute calls = %d, want 2", sc.Calls())
	}
}

func TestComputeFailureFallsBackToPreviousEntry(t *testing.T) {
	pc, sc, clock, _ := setup(70)
	ctx := context.Background()

	if _, _, err := pc.GetOrCompute(ctx, "MSFT"); err != nil {
		t.Fatalf("first: %v", err)
	}
	boom := errors.New("feed down")
	sc.mu.Lock()
	sc.err = boom
	sc.mu.Unlock()

	clock.Advance(2 * time.Hour)
	rec, outcome, err := pc.GetOrCompute(ctx, "MSFT")
	if err != nil || outcome != OutcomeStale || rec.Confidence != 70 {
		t.Fatalf("rec=%+v outcome=%s err=%v", rec, outcome, err)
	}

	if _, _, err := pc.GetOrCompute(ctx, "TSLA"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped feed error", err)
	}
}

func TestPanickingComputeReleasesSymbol(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)}
	hours := &toggleHours{}
	hours.open.Store(true)
	var calls atomic.Int32
	compute := func(_ context.Context, symbol string) (models.PredictionRecord, error) {
		if calls.Add(1) == 1 {
			panic("feed exploded")
		}
		return models.PredictionRecord{ID: "ok", Symbol: symbol, Confidence: 80}, nil
	}
	pc := NewPredictionCache(compute, hours, WithClock(clock))

	_, _, err := pc.GetOrCompute(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error from panicking compute")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	rec, outcome, err := pc.GetOrCompute(ctx, "AAPL")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if outcome != OutcomeComputed || rec.ID != "ok" || calls.Load() != 2 {
		t.Errorf("outcome=%s id=%s calls=%d", outcome, rec.ID, calls.Load())
	}
}

func TestClear(t *testing.T) {
	pc, sc, _, _ := setup(90)
	ctx := context.Background()
	for _, s := range []string{"AAPL", "MSFT", "TSLA"} {
		if _, _, err := pc.GetOrCompute(ctx, s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}

	if n := pc.Clear(ctx, "aapl"); n != 1 {
		t.Fatalf("cleared %d, want 1", n)
	}
	if _, ok := pc.Peek("AAPL"); ok {
		t.Fatalf("AAPL still cached")
	}
	if _, _, err := pc.GetOrCompute(ctx, "AAPL"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if sc.Calls() != 4 {
		t.Fatalf("compute calls = %d, want 4", sc.Calls())
	}

	if n := pc.Clear(ctx); n != 3 {
		t.Fatalf("cleared %d, want 3", n)
	}
	if _, ok := pc.Peek("MSFT"); ok {
		t.Fatalf("MSFT still cached")
	}
}

func TestConcurrentCallersShareOneCompute(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)}
	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(ctx context.Context, symbol string) (models.PredictionRecord, error) {
		calls.Add(1)
		<-release
		return models.PredictionRecord{Symbol: symbol, Confidence: 75}, nil
	}
	pc := NewPredictionCache(compute, &toggleHours{}, WithClock(clock))

	var wg sync.WaitGroup
	var accepted atomic.Int32
	results := make(chan models.PredictionRecord, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, outcome, err := pc.GetOrCompute(context.Background(), "AAPL")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if outcome == OutcomeComputed {
				accepted.Add(1)
			}
			results <- rec
		}()
	}
	// let the callers pile up on the in-flight compute
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if calls.Load() != 1 {
		t.Fatalf("compute calls = %d, want 1", calls.Load())
	}
	if accepted.Load() != 1 {
		t.Fatalf("computed outcomes = %d, want exactly 1", accepted.Load())
	}
	for rec := range results {
		if rec.Confidence != 75 {
			t.Fatalf("unexpected record %+v", rec)
		}
	}
}

func TestMirrorSharesAcceptedEntries(t *testing.T) {
	mirror := pkgcache.NewMemoryCache()
	defer mirror.Close()

	clock := &fakeClock{now: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)}
	hours := &toggleHours{}
	first := &scriptedCompute{confs: []float64{85}, clock: clock}
	second := &scriptedCompute{confs: []float64{65}, clock: clock}

	a := NewPredictionCache(first.Compute, hours, WithClock(clock), WithMirror(mirror))
	b := NewPredictionCache(second.Compute, hours, WithClock(clock), WithMirror(mirror))

	want, _, err := a.GetOrCompute(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	got, outcome, err := b.GetOrCompute(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if outcome != OutcomeHit || got.ID != want.ID {
		t.Fatalf("outcome=%s got=%+v", outcome, got)
	}
	if second.Calls() != 0 {
		t.Fatalf("replica recomputed")
	}

	a.Clear(context.Background(), "AAPL")
	b.Clear(context.Background(), "AAPL")
	if _, _, err := b.GetOrCompute(context.Background(), "AAPL"); err != nil {
		t.Fatalf("b after clear: %v", err)
	}
	if second.Calls() != 1 {
		t.Fatalf("replica calls = %d, want 1", second.Calls())
	}
}

func TestRefreshBypassesTTLButKeepsGate(t *testing.T) {
	pc, sc, _, _ := setup(80, 50, 90)
	ctx := context.Background()

	if _, _, err := pc.GetOrCompute(ctx, "AAPL"); err != nil {
		t.Fatalf("first: %v", err)
	}
	rec, outcome, err := pc.Refresh(ctx, "AAPL")
	if err != nil || outcome != OutcomeStale || rec.Confidence != 80 {
		t.Fatalf("weak refresh: rec=%+v outcome=%s err=%v", rec, outcome, err)
	}
	rec, outcome, err = pc.Refresh(ctx, "AAPL")
	if err != nil || outcome != OutcomeComputed || rec.Confidence != 90 {
		t.Fatalf("strong refresh: rec=%+v outcome=%s err=%v", rec, outcome, err)
	}
	if sc.Calls() != 3 {
		t.Fatalf("compute calls = %d, want 3", sc.Calls())
	}
}
