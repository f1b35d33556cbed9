package scheduler

import (
	"context"
	"time"
)

const (
	TaskPriceRefresh = "price_refresh"
	TaskIndicators   = "indicators"
	TaskPredictions  = "predictions"
	TaskInsider      = "insider_trades"
	TaskNews         = "news"
	TaskAnomalies    = "anomaly_scan"
)

// Jobs is the work the default task set drives.
type Jobs interface {
	RefreshPrices(ctx context.Context) error
	RecomputeIndicators(ctx context.Context) error
	GeneratePredictions(ctx context.Context) error
	IngestInsiders(ctx context.Context) error
	IngestNews(ctx context.Context) error
	ScanAnomalies(ctx context.Context) error
}

type Cadences struct {
	PriceRefresh time.Duration `yaml:"price_refresh" default:"1m"`
	Indicators   time.Duration `yaml:"indicators" default:"15m"`
	Predictions  time.Duration `yaml:"predictions" default:"15m"`
	Insider      time.Duration `yaml:"insider" default:"24h"`
	News         time.Duration `yaml:"news" default:"1h"`
	Anomalies    time.Duration `yaml:"anomalies" default:"5m"`
	TaskTimeout  time.Duration `yaml:"task_timeout" default:"5m"`
}

func DefaultCadences() Cadences {
	return Cadences{
		PriceRefresh: time.Minute,
		Indicators:   15 * time.Minute,
		Predictions:  15 * time.Minute,
		Insider:      24 * time.Hour,
		News:         time.Hour,
		Anomalies:    5 * time.Minute,
		TaskTimeout:  5 * time.Minute,
	}
}

func (c Cadences) withDefaults() Cadences {
	d := DefaultCadences()
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	return Cadences{
		PriceRefresh: pick(c.PriceRefresh, d.PriceRefresh),
		Indicators:   pick(c.Indicators, d.Indicators),
		Predictions:  pick(c.Predictions, d.Predictions),
		Insider:      pick(c.Insider, d.Insider),
		News:         pick(c.News, d.News),
		Anomalies:    pick(c.Anomalies, d.Anomalies),
		TaskTimeout:  pick(c.TaskTimeout, d.TaskTimeout),
	}
}

// DefaultTasks wires jobs to their cadences. Price, indicator and anomaly
// work only runs while the market is open; the rest always runs.
func DefaultTasks(jobs Jobs, c Cadences) []Task {
	c = c.withDefaults()
	return []Task{
		{Name: TaskPriceRefresh, Interval: c.PriceRefresh, Window: MarketHours, Timeout: c.TaskTimeout, Run: jobs.RefreshPrices},
		{Name: TaskIndicators, Interval: c.Indicators, Window: MarketHours, Timeout: c.TaskTimeout, Run: jobs.RecomputeIndicators},
		{Name: TaskPredictions, Interval: c.Predictions, Window: Always, Timeout: c.TaskTimeout, Run: jobs.GeneratePredictions},
		{Name: TaskInsider, Interval: c.Insider, Window: Always, Timeout: c.TaskTimeout, Run: jobs.IngestInsiders},
		{Name: TaskNews, Interval: c.News, Window: Always, Timeout: c.TaskTimeout, Run: jobs.IngestNews},
		{Name: TaskAnomalies, Interval: c.Anomalies, Window: MarketHours, Timeout: c.TaskTimeout, Run: jobs.ScanAnomalies},
	}
}
