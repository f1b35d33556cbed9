package usecase

import (
	"context"
	"encoding/json"
	"time"

	pkgcache "StockPulse/pkg/cache"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/queue"
)

// RefreshJob handles queued manual refresh requests.
type RefreshJob struct {
	jobs      *MarketJobs
	snapshots pkgcache.Service
	logger    *xlogger.Logger
}

var _ queue.Job = (*RefreshJob)(nil)

func NewRefreshJob(jobs *MarketJobs, snapshots pkgcache.Service, lgr *xlogger.Logger) *RefreshJob {
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	return &RefreshJob{jobs: jobs, snapshots: snapshots, logger: lgr}
}

func (j *RefreshJob) Name() string { return "manual_refresh" }

func (j *RefreshJob) Type() string { return RefreshJobType }

func (j *RefreshJob) Handle(ctx context.Context, raw json.RawMessage) error {
	p, err := queue.Decode[RefreshPayload](raw)
	if err != nil {
		return err
	}
	start := time.Now()
	err = j.jobs.RefreshSymbol(ctx, p.Symbol)
	if j.snapshots != nil {
		if delErr := j.snapshots.Delete(ctx, DashboardKey(p.Symbol)); delErr != nil {
			j.logger.Warn("dashboard invalidation failed", xlogger.Symbol(p.Symbol), xlogger.Error(delErr))
		}
	}
	j.logger.Info("manual refresh done",
		xlogger.Symbol(p.Symbol),
		xlogger.String("request_id", p.RequestID),
		xlogger.Duration("elapsed", time.Since(start)),
		xlogger.Bool("ok", err == nil),
	)
	return err
}
