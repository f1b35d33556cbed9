package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/repository"
	pkgcache "StockPulse/pkg/cache"
)

type staticHours struct{ open atomic.Bool }

func (h *staticHours) Window(time.Time) models.MarketWindow {
	return models.MarketWindow{IsOpen: h.open.Load()}
}

// manualTriggers hands each interval its own channel so tests fire ticks by hand.
type manualTriggers struct {
	mu sync.Mutex
	ch map[time.Duration]chan time.Time
}

func newManualTriggers() *manualTriggers {
	return &manualTriggers{ch: map[time.Duration]chan time.Time{}}
}

func (m *manualTriggers) get(d time.Duration) chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.ch[d]
	if !ok {
		c = make(chan time.Time)
		m.ch[d] = c
	}
	return c
}

func (m *manualTriggers) Func(d time.Duration) (<-chan time.Time, func()) {
	return m.get(d), func() {}
}

func (m *manualTriggers) fire(d time.Duration) { m.get(d) <- time.Now() }

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a task result")
		return Result{}
	}
}

func newTestScheduler(t *testing.T, hours domsvc.MarketHours, tasks []Task, opts ...Option) (*Scheduler, *manualTriggers, chan Result) {
	t.Helper()
	trig := newManualTriggers()
	results := make(chan Result, 64)
	opts = append([]Option{
		WithTrigger(trig.Func),
		WithResultHook(func(r Result) { results <- r }),
	}, opts...)
	s, err := New(hours, tasks, opts...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, trig, results
}

func TestBusyTaskSkipsOverlappingTick(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	task := Task{Name: "slow", Interval: time.Minute, Run: func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}}
	_, trig, results := newTestScheduler(t, nil, []Task{task})

	trig.fire(time.Minute)
	// wait until the first run is underway before the second tick
	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	trig.fire(time.Minute)
	if r := waitResult(t, results); !r.Skipped || r.Reason != "previous run busy" {
		t.Fatalf("second tick = %+v, want busy skip", r)
	}

	close(release)
	if r := waitResult(t, results); r.Skipped || r.Err != nil {
		t.Fatalf("first run = %+v, want success", r)
	}
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", runs.Load())
	}
}

func TestMarketWindowGatesTicks(t *testing.T) {
	hours := &staticHours{}
	var marketRuns, alwaysRuns atomic.Int32
	tasks := []Task{
		{Name: "market", Interval: time.Minute, Window: MarketHours, Run: func(context.Context) error { marketRuns.Add(1); return nil }},
		{Name: "always", Interval: time.Hour, Window: Always, Run: func(context.Context) error { alwaysRuns.Add(1); return nil }},
	}
	_, trig, results := newTestScheduler(t, hours, tasks)

	trig.fire(time.Minute)
	if r := waitResult(t, results); !r.Skipped || r.Task != "market" {
		t.Fatalf("closed-market tick = %+v, want skip", r)
	}
	trig.fire(time.Hour)
	if r := waitResult(t, results); r.Skipped || r.Task != "always" {
		t.Fatalf("always tick = %+v, want run", r)
	}

	hours.open.Store(true)
	trig.fire(time.Minute)
	if r := waitResult(t, results); r.Skipped || r.Task != "market" {
		t.Fatalf("open-market tick = %+v, want run", r)
	}
	if marketRuns.Load() != 1 || alwaysRuns.Load() != 1 {
		t.Fatalf("runs market=%d always=%d", marketRuns.Load(), alwaysRuns.Load())
	}
}

func TestFailuresAndPanicsAreContained(t *testing.T) {
	var calls atomic.Int32
	task := Task{Name: "flaky", Interval: time.Minute, Run: func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("provider down")
		}
		return nil
	}}
	store := repository.NewMemoryMarketStore(nil)
	_, trig, results := newTestScheduler(t, nil, []Task{task}, WithCallLog(store))

	for i := 0; i < 3; i++ {
		trig.fire(time.Minute)
		r := waitResult(t, results)
		if (i < 2) != (r.Err != nil) {
			t.Fatalf("run %d: err = %v", i, r.Err)
		}
	}

	logs := store.APICalls()
	if len(logs) != 3 {
		t.Fatalf("call log entries = %d, want 3", len(logs))
	}
	if logs[0].Success || logs[0].Provider != "scheduler" || logs[0].Endpoint != "flaky" {
		t.Errorf("first log = %+v", logs[0])
	}
	if !logs[2].Success {
		t.Errorf("third log should record success: %+v", logs[2])
	}
}

func TestInitialLoadRunsBeforeLoops(t *testing.T) {
	var order []string
	var mu sync.Mutex
	note := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	task := Task{Name: "tick", Interval: time.Minute, Run: func(context.Context) error { note("tick"); return nil }}
	_, trig, results := newTestScheduler(t, nil, []Task{task},
		WithInitialLoad(func(context.Context) error { note("initial"); return nil }))

	if r := waitResult(t, results); r.Task != "initial_load" {
		t.Fatalf("first result = %+v, want initial_load", r)
	}
	trig.fire(time.Minute)
	waitResult(t, results)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "initial" || order[1] != "tick" {
		t.Fatalf("order = %v", order)
	}
}

func TestRunNowIgnoresWindow(t *testing.T) {
	hours := &staticHours{}
	done := make(chan struct{}, 1)
	task := Task{Name: "prices", Interval: time.Minute, Window: MarketHours, Run: func(context.Context) error {
		done <- struct{}{}
		return nil
	}}
	s, _, results := newTestScheduler(t, hours, []Task{task})

	if _, err := s.RunNow("missing"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("err = %v, want ErrUnknownTask", err)
	}
	started, err := s.RunNow("prices")
	if err != nil || !started {
		t.Fatalf("run now: started=%v err=%v", started, err)
	}
	<-done
	if r := waitResult(t, results); r.Err != nil || r.Skipped {
		t.Fatalf("result = %+v", r)
	}
}

func TestDistributedLockHeldElsewhere(t *testing.T) {
	locks := pkgcache.NewMemoryCache()
	defer locks.Close()
	if ok, _ := locks.TryLock(context.Background(), pkgcache.GenerateKey("scheduler", "predictions"), time.Minute); !ok {
		t.Fatal("could not pre-acquire lock")
	}
	var runs atomic.Int32
	task := Task{Name: "predictions", Interval: time.Minute, Run: func(context.Context) error { runs.Add(1); return nil }}
	_, trig, results := newTestScheduler(t, nil, []Task{task}, WithDistributedLock(locks, time.Minute))

	trig.fire(time.Minute)
	if r := waitResult(t, results); !r.Skipped || r.Reason != "held by another replica" {
		t.Fatalf("result = %+v, want lock skip", r)
	}
	if runs.Load() != 0 {
		t.Fatal("task ran without the lock")
	}
}

func TestNewRejectsBadTasks(t *testing.T) {
	run := func(context.Context) error { return nil }
	if _, err := New(nil, []Task{{Name: "", Interval: time.Minute, Run: run}}); err == nil {
		t.Error("blank name accepted")
	}
	if _, err := New(nil, []Task{{Name: "a", Interval: time.Minute, Run: run}, {Name: "a", Interval: time.Minute, Run: run}}); err == nil {
		t.Error("duplicate accepted")
	}
}

type nopJobs struct{}

func (nopJobs) RefreshPrices(context.Context) error       { return nil }
func (nopJobs) RecomputeIndicators(context.Context) error { return nil }
func (nopJobs) GeneratePredictions(context.Context) error { return nil }
func (nopJobs) IngestInsiders(context.Context) error      { return nil }
func (nopJobs) IngestNews(context.Context) error          { return nil }
func (nopJobs) ScanAnomalies(context.Context) error       { return nil }

func TestDefaultTasksCadences(t *testing.T) {
	want := map[string]struct {
		every  time.Duration
		window Window
	}{
		TaskPriceRefresh: {time.Minute, MarketHours},
		TaskIndicators:   {15 * time.Minute, MarketHours},
		TaskPredictions:  {15 * time.Minute, Always},
		TaskInsider:      {24 * time.Hour, Always},
		TaskNews:         {time.Hour, Always},
		TaskAnomalies:    {5 * time.Minute, MarketHours},
	}
	tasks := DefaultTasks(nopJobs{}, Cadences{News: 0})
	if len(tasks) != len(want) {
		t.Fatalf("tasks = %d, want %d", len(tasks), len(want))
	}
	for _, task := range tasks {
		w, ok := want[task.Name]
		if !ok {
			t.Fatalf("unexpected task %q", task.Name)
		}
		if task.Interval != w.every || task.Window != w.window {
			t.Errorf("%s: interval=%v window=%v, want %v %v", task.Name, task.Interval, task.Window, w.every, w.window)
		}
	}
}
