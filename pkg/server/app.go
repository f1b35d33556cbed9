package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	xlogger "StockPulse/pkg/logger"
)

// Component is one piece of the running process. Start must not block;
// long-running work belongs in goroutines the component owns.
type Component struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// App starts components in order and stops them in reverse.
type App struct {
	logger          *xlogger.Logger
	components      []Component
	shutdownTimeout time.Duration
	started         []Component
}

func New(lgr *xlogger.Logger, shutdownTimeout time.Duration, components ...Component) *App {
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &App{logger: lgr, components: components, shutdownTimeout: shutdownTimeout}
}

// Add appends a component after construction.
func (a *App) Add(c Component) { a.components = append(a.components, c) }

// Run starts every component and blocks until ctx is cancelled, then shuts
// down. A start failure stops what already started and is returned.
func (a *App) Run(ctx context.Context) error {
	for _, c := range a.components {
		if c.Start != nil {
			if err := c.Start(ctx); err != nil {
				a.logger.Error("component start failed", xlogger.String("component", c.Name), xlogger.Error(err))
				return errors.Join(fmt.Errorf("start %s: %w", c.Name, err), a.shutdown())
			}
		}
		a.started = append(a.started, c)
		a.logger.Info("component started", xlogger.String("component", c.Name))
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.started) - 1; i >= 0; i-- {
		c := a.started[i]
		if c.Stop == nil {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			a.logger.Warn("component stop failed", xlogger.String("component", c.Name), xlogger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", c.Name, err))
		}
	}
	a.started = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
