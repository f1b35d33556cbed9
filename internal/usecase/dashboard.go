package usecase

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
	"StockPulse/internal/service/cache"
	pkgcache "StockPulse/pkg/cache"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/queue"

	"github.com/google/uuid"
)

// ErrSymbolNotFound is returned when no price has ever been stored for a symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

const (
	RefreshJobType    = "prediction.refresh"
	dashboardKeyspace = "dashboard"
)

func DashboardKey(symbol string) string {
	return pkgcache.GenerateKey(dashboardKeyspace, strings.ToUpper(strings.TrimSpace(symbol)))
}

// RefreshPayload is the queued body of a manual refresh.
type RefreshPayload struct {
	Symbol    string    `json:"symbol"`
	RequestID string    `json:"request_id"`
	Requested time.Time `json:"requested_at"`
}

// DashboardService serves the read-only dashboard view and accepts manual
// refresh requests. Snapshot never computes a prediction.
type DashboardService struct {
	reader       domrepo.MarketReader
	predictions  *cache.PredictionCache
	hours        domsvc.MarketHours
	queue        queue.Enqueuer
	snapshots    pkgcache.Service
	snapshotTTL  time.Duration
	newsHours    int
	insiderLimit int
	clock        domsvc.Clock
	logger       *xlogger.Logger
}

type DashboardOption func(*DashboardService)

// WithSnapshotCache memoizes assembled snapshots for ttl.
func WithSnapshotCache(svc pkgcache.Service, ttl time.Duration) DashboardOption {
	return func(d *DashboardService) {
		d.snapshots = svc
		if ttl > 0 {
			d.snapshotTTL = ttl
		}
	}
}

func WithDashboardClock(c domsvc.Clock) DashboardOption {
	return func(d *DashboardService) {
		if c != nil {
			d.clock = c
		}
	}
}

func NewDashboardService(
	reader domrepo.MarketReader,
	predictions *cache.PredictionCache,
	hours domsvc.MarketHours,
	q queue.Enqueuer,
	lgr *xlogger.Logger,
	opts ...DashboardOption,
) *DashboardService {
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	d := &DashboardService{
		reader:       reader,
		predictions:  predictions,
		hours:        hours,
		queue:        q,
		snapshotTTL:  15 * time.Second,
		newsHours:    24,
		insiderLimit: 10,
		clock:        domsvc.SystemClock,
		logger:       lgr.With(xlogger.String("component", "dashboard")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DashboardService) Snapshot(ctx context.Context, symbol string) (*models.DashboardSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New("symbol required")
	}
	if d.snapshots == nil {
		return d.assemble(ctx, symbol)
	}
	snap, err := pkgcache.GetOrLoad(ctx, d.snapshots, DashboardKey(symbol), d.snapshotTTL,
		func(ctx context.Context) (*models.DashboardSnapshot, error) {
			return d.assemble(ctx, symbol)
		})
	if errors.Is(err, pkgcache.ErrWriteBack) {
		d.logger.Warn("dashboard snapshot cache write failed", xlogger.Symbol(symbol), xlogger.Error(err))
		err = nil
	}
	if err != nil {
		return nil, err
	}
	snap.Market = d.hours.Window(d.clock.Now())
	return snap, nil
}

func (d *DashboardService) assemble(ctx context.Context, symbol string) (*models.DashboardSnapshot, error) {
	out := &models.DashboardSnapshot{Symbol: symbol}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	run("price", func() (err error) {
		out.CurrentPrice, err = d.reader.GetLatestPrice(ctx, symbol)
		return err
	})
	run("indicators", func() (err error) {
		out.Indicators, err = d.reader.GetLatestTechnicalIndicators(ctx, symbol)
		return err
	})
	run("fundamentals", func() (err error) {
		out.Fundamentals, err = d.reader.GetLatestFundamentals(ctx, symbol)
		return err
	})
	run("insider", func() (err error) {
		out.RecentInsiderTrades, err = d.reader.GetRecentInsiderTrades(ctx, symbol, d.insiderLimit)
		return err
	})
	run("news", func() (err error) {
		out.RecentNews, err = d.reader.GetRecentNews(ctx, symbol, d.newsHours)
		return err
	})
	run("prediction", func() error {
		rec, err := d.latestPrediction(ctx, symbol)
		out.LatestPrediction = rec
		return err
	})
	wg.Wait()

	if out.CurrentPrice == nil {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	for _, err := range errs {
		d.logger.Warn("dashboard read failed", xlogger.Symbol(symbol), xlogger.Error(err))
	}
	out.Market = d.hours.Window(d.clock.Now())
	return out, nil
}

// latestPrediction prefers the cached weighted prediction and falls back to
// the newest stored record of the same model.
func (d *DashboardService) latestPrediction(ctx context.Context, symbol string) (*models.PredictionRecord, error) {
	if d.predictions != nil {
		if e, ok := d.predictions.Peek(symbol); ok {
			rec := e.Record
			return &rec, nil
		}
	}
	return d.reader.GetLatestPrediction(ctx, symbol, models.ModelComprehensive)
}

// TriggerManualRefresh queues a refresh and returns at once.
func (d *DashboardService) TriggerManualRefresh(ctx context.Context, symbol string) (models.RefreshAck, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return models.RefreshAck{}, errors.New("symbol required")
	}
	reqID := uuid.NewString()
	payload := RefreshPayload{Symbol: symbol, RequestID: reqID, Requested: d.clock.Now().UTC()}
	if _, err := d.queue.Enqueue(ctx, RefreshJobType, payload); err != nil {
		return models.RefreshAck{Symbol: symbol, RequestID: reqID}, fmt.Errorf("enqueue refresh: %w", err)
	}
	d.logger.Info("manual refresh queued", xlogger.Symbol(symbol), xlogger.String("request_id", reqID))
	return models.RefreshAck{Symbol: symbol, RequestID: reqID, Queued: true}, nil
}
