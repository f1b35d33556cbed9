package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	pkgcache "StockPulse/pkg/cache"
	xlogger "StockPulse/pkg/logger"
)

const (
	DefaultMinConfidence = 60.0
	DefaultOpenTTL       = 30 * time.Minute
	DefaultClosedTTL     = 60 * time.Minute

	mirrorPrefix = "prediction"
)

// Outcome describes how a GetOrCompute call was served.
type Outcome string

const (
	OutcomeHit      Outcome = "hit"      // valid entry, nothing computed
	OutcomeComputed Outcome = "computed" // fresh result accepted and cached
	OutcomeStale    Outcome = "stale"    // fresh result rejected or failed, previous entry served
	OutcomeUncached Outcome = "uncached" // fresh result below the gate and nothing to fall back to
)

// ComputeFunc produces a fresh prediction for a symbol.
type ComputeFunc func(ctx context.Context, symbol string) (models.PredictionRecord, error)

// Entry wraps an accepted record with its lifetime.
type Entry struct {
	Record    models.PredictionRecord `json:"record"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt time.Time               `json:"expires_at"`
	version   uint64
}

func (e *Entry) validAt(t time.Time) bool {
	return e != nil && t.Before(e.ExpiresAt)
}

type flight struct {
	done    chan struct{}
	rec     models.PredictionRecord
	outcome Outcome
	err     error
}

// PredictionCache holds the latest accepted prediction per symbol and
// suppresses recomputation until its TTL lapses. A fresh result replaces the
// entry only when it clears the confidence gate.
type PredictionCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	flights map[string]*flight
	version uint64

	compute       ComputeFunc
	hours         domsvc.MarketHours
	clock         domsvc.Clock
	minConfidence float64
	openTTL       time.Duration
	closedTTL     time.Duration

	mirror  pkgcache.Service
	metrics domrepo.Metrics
	logger  *xlogger.Logger
}

type Option func(*PredictionCache)

func WithClock(c domsvc.Clock) Option {
	return func(pc *PredictionCache) {
		if c != nil {
			pc.clock = c
		}
	}
}

func WithMinConfidence(v float64) Option {
	return func(pc *PredictionCache) { pc.minConfidence = v }
}

func WithTTLs(open, closed time.Duration) Option {
	return func(pc *PredictionCache) {
		if open > 0 {
			pc.openTTL = open
		}
		if closed > 0 {
			pc.closedTTL = closed
		}
	}
}

// WithMirror writes accepted entries through to a shared cache so other
// replicas can serve them, and reads it before computing on a local miss.
func WithMirror(svc pkgcache.Service) Option {
	return func(pc *PredictionCache) { pc.mirror = svc }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(pc *PredictionCache) { pc.metrics = m }
}

func WithLogger(l *xlogger.Logger) Option {
	return func(pc *PredictionCache) {
		if l != nil {
			pc.logger = l
		}
	}
}

func NewPredictionCache(compute ComputeFunc, hours domsvc.MarketHours, opts ...Option) *PredictionCache {
	pc := &PredictionCache{
		entries:       make(map[string]*Entry),
		flights:       make(map[string]*flight),
		compute:       compute,
		hours:         hours,
		clock:         domsvc.SystemClock,
		minConfidence: DefaultMinConfidence,
		openTTL:       DefaultOpenTTL,
		closedTTL:     DefaultClosedTTL,
		logger:        xlogger.Nop(),
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// TTL is the lifetime given to an entry created at now.
func (pc *PredictionCache) TTL(now time.Time) time.Duration {
	if pc.hours != nil && pc.hours.Window(now).IsOpen {
		return pc.openTTL
	}
	return pc.closedTTL
}

// GetOrCompute serves the cached prediction while it is valid and otherwise
// computes a new one. Concurrent calls for one symbol share a single compute.
func (pc *PredictionCache) GetOrCompute(ctx context.Context, symbol string) (models.PredictionRecord, Outcome, error) {
	return pc.getOrCompute(ctx, symbol, false)
}

// Refresh computes regardless of the current entry's TTL. The acceptance
// gate still applies, so a weak result never displaces the cached one.
func (pc *PredictionCache) Refresh(ctx context.Context, symbol string) (models.PredictionRecord, Outcome, error) {
	return pc.getOrCompute(ctx, symbol, true)
}

func (pc *PredictionCache) getOrCompute(ctx context.Context, symbol string, force bool) (models.PredictionRecord, Outcome, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return models.PredictionRecord{}, "", errors.New("symbol required")
	}

	pc.mu.Lock()
	if e := pc.entries[symbol]; !force && e.validAt(pc.clock.Now()) {
		rec := e.Record
		pc.mu.Unlock()
		pc.record(OutcomeHit)
		return rec, OutcomeHit, nil
	}
	if f, ok := pc.flights[symbol]; ok {
		pc.mu.Unlock()
		select {
		case <-f.done:
			// only the flight owner reports the acceptance
			if f.outcome == OutcomeComputed {
				return f.rec, OutcomeHit, f.err
			}
			return f.rec, f.outcome, f.err
		case <-ctx.Done():
			return models.PredictionRecord{}, "", ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	pc.flights[symbol] = f
	seen := pc.version
	pc.mu.Unlock()

	pc.fly(ctx, symbol, f, seen, force)
	if f.err == nil {
		pc.record(f.outcome)
	}
	return f.rec, f.outcome, f.err
}

// fly runs the compute for f and always releases the flight. A panicking
// compute is reported to every waiter as an error.
func (pc *PredictionCache) fly(ctx context.Context, symbol string, f *flight, seen uint64, force bool) {
	defer func() {
		if r := recover(); r != nil {
			f.rec, f.outcome = models.PredictionRecord{}, ""
			f.err = fmt.Errorf("compute %s: panic: %v", symbol, r)
			pc.logger.Error("prediction compute panicked", xlogger.Symbol(symbol), xlogger.String("panic", fmt.Sprint(r)))
		}
		pc.mu.Lock()
		delete(pc.flights, symbol)
		pc.mu.Unlock()
		close(f.done)
	}()
	f.rec, f.outcome, f.err = pc.computeEntry(ctx, symbol, seen, force)
}

func (pc *PredictionCache) computeEntry(ctx context.Context, symbol string, seen uint64, force bool) (models.PredictionRecord, Outcome, error) {
	if !force {
		if e, ok := pc.loadMirror(ctx, symbol); ok && pc.offer(symbol, e, seen) {
			return e.Record, OutcomeHit, nil
		}
	}

	rec, err := pc.compute(ctx, symbol)
	if err != nil {
		if stale, ok := pc.Peek(symbol); ok {
			pc.logger.Warn("prediction compute failed, serving previous entry",
				xlogger.Symbol(symbol), xlogger.Error(err))
			return stale.Record, OutcomeStale, nil
		}
		return models.PredictionRecord{}, "", fmt.Errorf("compute %s: %w", symbol, err)
	}

	if rec.Confidence < pc.minConfidence {
		if stale, ok := pc.Peek(symbol); ok {
			pc.logger.Info("prediction below acceptance gate, keeping previous entry",
				xlogger.Symbol(symbol),
				xlogger.Float64("confidence", rec.Confidence),
				xlogger.Float64("kept_confidence", stale.Record.Confidence))
			return stale.Record, OutcomeStale, nil
		}
		return rec, OutcomeUncached, nil
	}

	now := pc.clock.Now()
	e := &Entry{Record: rec, CreatedAt: now, ExpiresAt: now.Add(pc.TTL(now))}
	if !pc.offer(symbol, e, seen) {
		cur, _ := pc.Peek(symbol)
		return cur.Record, OutcomeStale, nil
	}
	pc.storeMirror(ctx, symbol, e)
	return rec, OutcomeComputed, nil
}

// offer installs e unless another writer stored a higher-confidence entry
// after version seen was observed.
func (pc *PredictionCache) offer(symbol string, e *Entry, seen uint64) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if cur := pc.entries[symbol]; cur != nil && cur.version > seen &&
		cur.validAt(pc.clock.Now()) && cur.Record.Confidence > e.Record.Confidence {
		return false
	}
	pc.version++
	e.version = pc.version
	pc.entries[symbol] = e
	return true
}

// Peek returns the current entry for symbol, valid or not.
func (pc *PredictionCache) Peek(symbol string) (Entry, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	e, ok := pc.entries[normalize(symbol)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Clear invalidates the given symbols, or every entry when none are given,
// and reports how many entries were dropped.
func (pc *PredictionCache) Clear(ctx context.Context, symbols ...string) int {
	pc.mu.Lock()
	var keys []string
	removed := 0
	if len(symbols) == 0 {
		for sym := range pc.entries {
			keys = append(keys, sym)
		}
		removed = len(pc.entries)
		pc.entries = make(map[string]*Entry)
	} else {
		for _, s := range symbols {
			s = normalize(s)
			if _, ok := pc.entries[s]; ok {
				removed++
			}
			delete(pc.entries, s)
			keys = append(keys, s)
		}
	}
	pc.version++
	pc.mu.Unlock()

	if pc.mirror != nil && len(keys) > 0 {
		mk := make([]string, len(keys))
		for i, k := range keys {
			mk[i] = pkgcache.GenerateKey(mirrorPrefix, k)
		}
		if err := pc.mirror.Delete(ctx, mk...); err != nil {
			pc.logger.Warn("prediction mirror delete failed", xlogger.Error(err))
		}
	}
	return removed
}

func (pc *PredictionCache) loadMirror(ctx context.Context, symbol string) (*Entry, bool) {
	if pc.mirror == nil {
		return nil, false
	}
	var e Entry
	if err := pc.mirror.Get(ctx, pkgcache.GenerateKey(mirrorPrefix, symbol), &e); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			pc.logger.Warn("prediction mirror read failed", xlogger.Symbol(symbol), xlogger.Error(err))
		}
		return nil, false
	}
	if !e.validAt(pc.clock.Now()) || e.Record.Confidence < pc.minConfidence {
		return nil, false
	}
	return &e, true
}

func (pc *PredictionCache) storeMirror(ctx context.Context, symbol string, e *Entry) {
	if pc.mirror == nil {
		return
	}
	ttl := e.ExpiresAt.Sub(e.CreatedAt)
	if err := pc.mirror.Set(ctx, pkgcache.GenerateKey(mirrorPrefix, symbol), e, ttl); err != nil {
		pc.logger.Warn("prediction mirror write failed", xlogger.Symbol(symbol), xlogger.Error(err))
	}
}

func (pc *PredictionCache) record(o Outcome) {
	if pc.metrics != nil {
		pc.metrics.RecordCacheResult(string(o))
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
