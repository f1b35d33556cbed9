package usecase

import (
	"context"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/middleware"
	xlogger "StockPulse/pkg/logger"
)

// TickCollector pumps a live tick stream through the pipeline until shut down.
type TickCollector struct {
	stream  domrepo.TickStream
	pipe    *middleware.TickPipeline
	metrics domrepo.Metrics
	logger  *xlogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTickCollector(stream domrepo.TickStream, pipe *middleware.TickPipeline, metrics domrepo.Metrics, lgr *xlogger.Logger) *TickCollector {
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	return &TickCollector{stream: stream, pipe: pipe, metrics: metrics, logger: lgr}
}

func (c *TickCollector) IsConnected() bool { return c.stream.IsConnected() }

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.pipe.Start(ctx)
	ticks, errs := c.stream.Read(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, ticks, errs)
	}()
	return nil
}

func (c *TickCollector) consume(ctx context.Context, ticks <-chan *models.Tick, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.metrics.RecordError("stream")
			c.logger.Warn("tick stream error, reconnecting", xlogger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.logger.Error("tick stream reconnect failed", xlogger.Error(rerr))
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return
				}
			}
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if err := c.pipe.Process(ctx, t); err != nil {
				c.logger.Debug("tick not written", xlogger.Error(err))
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.pipe.Stop()
	return c.stream.Close()
}
