package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	pkgcache "StockPulse/pkg/cache"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/metrics"
)

// Window restricts when a task's ticks are honored.
type Window int

const (
	Always Window = iota
	MarketHours
)

func (w Window) String() string {
	if w == MarketHours {
		return "market_hours"
	}
	return "always"
}

// Task is one independently cadenced job.
type Task struct {
	Name     string
	Interval time.Duration
	Window   Window
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// TriggerFunc produces the tick channel for a task and a function that
// releases it.
type TriggerFunc func(interval time.Duration) (<-chan time.Time, func())

func TickerTrigger(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Result describes one finished or skipped execution.
type Result struct {
	Task     string
	Skipped  bool
	Reason   string
	Err      error
	Duration time.Duration
}

var ErrUnknownTask = errors.New("unknown task")

type taskState struct {
	Task
	busy atomic.Bool
}

// Scheduler runs every task on its own loop. A task never overlaps itself;
// a tick arriving while the previous run is still busy is skipped. Failures
// and panics are recorded and never stop the loop.
type Scheduler struct {
	tasks   map[string]*taskState
	order   []string
	hours   domsvc.MarketHours
	clock   domsvc.Clock
	trigger TriggerFunc
	initial func(ctx context.Context) error

	locks   pkgcache.Service
	lockTTL time.Duration

	calls    domrepo.APICallLogger
	metrics  domrepo.Metrics
	logger   *xlogger.Logger
	onResult func(Result)

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type Option func(*Scheduler)

func WithTrigger(fn TriggerFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.trigger = fn
		}
	}
}

func WithClock(c domsvc.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithInitialLoad runs fn once on Start before any loop begins.
func WithInitialLoad(fn func(ctx context.Context) error) Option {
	return func(s *Scheduler) { s.initial = fn }
}

// WithDistributedLock makes each run take a lock in svc so that only one
// replica executes a given task at a time.
func WithDistributedLock(svc pkgcache.Service, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locks = svc
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithCallLog(l domrepo.APICallLogger) Option {
	return func(s *Scheduler) { s.calls = l }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *xlogger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithResultHook observes every execution; tests use it to synchronize.
func WithResultHook(fn func(Result)) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

func New(hours domsvc.MarketHours, tasks []Task, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		tasks:   make(map[string]*taskState, len(tasks)),
		hours:   hours,
		clock:   domsvc.SystemClock,
		trigger: TickerTrigger,
		lockTTL: 10 * time.Minute,
		metrics: metrics.Nop{},
		logger:  xlogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range tasks {
		if t.Name == "" || t.Run == nil || t.Interval <= 0 {
			return nil, fmt.Errorf("invalid task %q", t.Name)
		}
		if _, dup := s.tasks[t.Name]; dup {
			return nil, fmt.Errorf("duplicate task %q", t.Name)
		}
		s.tasks[t.Name] = &taskState{Task: t}
		s.order = append(s.order, t.Name)
	}
	s.logger = s.logger.With(xlogger.String("component", "scheduler"))
	return s, nil
}

func (s *Scheduler) Tasks() []string { return append([]string(nil), s.order...) }

// Start runs the initial load and then launches one loop per task. It
// returns once the loops are running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	if s.initial != nil {
		start := time.Now()
		err := s.safeRun(runCtx, "initial_load", s.initial)
		s.finish("initial_load", start, err)
	}

	for _, name := range s.order {
		t := s.tasks[name]
		s.wg.Add(1)
		go s.loop(runCtx, t)
	}
	s.logger.Info("scheduler started", xlogger.Strings("tasks", s.order))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t *taskState) {
	defer s.wg.Done()
	ticks, stop := s.trigger(t.Interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			if t.Window == MarketHours && s.hours != nil && !s.hours.Window(s.clock.Now()).IsOpen {
				s.skip(t, "market closed")
				continue
			}
			s.dispatch(ctx, t)
		}
	}
}

// dispatch starts the task unless its previous run is still in progress.
func (s *Scheduler) dispatch(ctx context.Context, t *taskState) bool {
	if !t.busy.CompareAndSwap(false, true) {
		s.skip(t, "previous run busy")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.busy.Store(false)
		s.execute(ctx, t)
	}()
	return true
}

func (s *Scheduler) execute(ctx context.Context, t *taskState) {
	if s.locks != nil {
		key := pkgcache.GenerateKey("scheduler", t.Name)
		ok, err := s.locks.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			s.logger.Warn("task lock failed", xlogger.String("task", t.Name), xlogger.Error(err))
		}
		if !ok {
			s.skip(t, "held by another replica")
			return
		}
		defer func() {
			if err := s.locks.Unlock(context.Background(), key); err != nil {
				s.logger.Warn("task unlock failed", xlogger.String("task", t.Name), xlogger.Error(err))
			}
		}()
	}

	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := s.safeRun(runCtx, t.Name, t.Run)
	s.finish(t.Name, start, err)
}

func (s *Scheduler) safeRun(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
			s.logger.Error("task panicked",
				xlogger.String("task", name),
				xlogger.Any("panic", r),
				xlogger.String("stack", string(debug.Stack())))
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) finish(name string, start time.Time, err error) {
	elapsed := time.Since(start)
	s.metrics.RecordJobRun(name, err == nil, elapsed.Seconds())
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		s.metrics.RecordError("job_" + name)
		s.logger.Error("task failed", xlogger.String("task", name), xlogger.Duration("elapsed", elapsed), xlogger.Error(err))
	} else {
		s.logger.Debug("task done", xlogger.String("task", name), xlogger.Duration("elapsed", elapsed))
	}
	if s.calls != nil {
		if logErr := s.calls.InsertAPICallLog(context.Background(), "scheduler", name, err == nil, elapsed.Milliseconds(), errMsg); logErr != nil {
			s.logger.Warn("job log failed", xlogger.String("task", name), xlogger.Error(logErr))
		}
	}
	if s.onResult != nil {
		s.onResult(Result{Task: name, Err: err, Duration: elapsed})
	}
}

func (s *Scheduler) skip(t *taskState, reason string) {
	s.metrics.RecordJobSkipped(t.Name)
	s.logger.Debug("task tick skipped", xlogger.String("task", t.Name), xlogger.String("reason", reason))
	if s.onResult != nil {
		s.onResult(Result{Task: t.Name, Skipped: true, Reason: reason})
	}
}

// RunNow fires one execution of the named task in the background, ignoring
// its market-hours window. It reports false when the task is already busy.
func (s *Scheduler) RunNow(name string) (bool, error) {
	t, ok := s.tasks[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.dispatch(ctx, t), nil
}

// Stop cancels the loops and waits for in-flight runs up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
