package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/service/cache"
	"StockPulse/internal/services/features"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/metrics"
)

// JobsConfig holds the lookback windows the ingestion jobs work over.
type JobsConfig struct {
	Symbols         []string      `yaml:"symbols" validate:"required,min=1,dive,ticker"`
	Backfill        time.Duration `yaml:"backfill" default:"240h"`
	IndicatorHours  int           `yaml:"indicator_hours" default:"336"`
	AnomalyHours    int           `yaml:"anomaly_hours" default:"168"`
	NewsLookback    time.Duration `yaml:"news_lookback" default:"24h"`
	InsiderLookback time.Duration `yaml:"insider_lookback" default:"2160h"`
}

func (c *JobsConfig) applyDefaults() {
	if c.Backfill <= 0 {
		c.Backfill = 10 * 24 * time.Hour
	}
	if c.IndicatorHours <= 0 {
		c.IndicatorHours = 14 * 24
	}
	if c.AnomalyHours <= 0 {
		c.AnomalyHours = 7 * 24
	}
	if c.NewsLookback <= 0 {
		c.NewsLookback = 24 * time.Hour
	}
	if c.InsiderLookback <= 0 {
		c.InsiderLookback = 90 * 24 * time.Hour
	}
}

// MarketJobs implements the scheduled work: ingesting each feed into the
// store and producing predictions. Every method processes all tracked
// symbols independently; one symbol failing does not stop the others.
type MarketJobs struct {
	cfg       JobsConfig
	provider  domrepo.MarketDataProvider
	store     domrepo.MarketStore
	engine    *PredictionEngine
	cache     *cache.PredictionCache
	detector  domsvc.AnomalyDetector
	sentiment domsvc.SentimentScorer
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	clock     domsvc.Clock
	logger    *xlogger.Logger
}

type JobsOption func(*MarketJobs)

func WithPublisher(p domrepo.EventPublisher) JobsOption {
	return func(j *MarketJobs) { j.publisher = p }
}

func WithJobsMetrics(m domrepo.Metrics) JobsOption {
	return func(j *MarketJobs) {
		if m != nil {
			j.metrics = m
		}
	}
}

func WithJobsClock(c domsvc.Clock) JobsOption {
	return func(j *MarketJobs) {
		if c != nil {
			j.clock = c
		}
	}
}

func NewMarketJobs(
	cfg JobsConfig,
	provider domrepo.MarketDataProvider,
	store domrepo.MarketStore,
	engine *PredictionEngine,
	predictions *cache.PredictionCache,
	detector domsvc.AnomalyDetector,
	sentiment domsvc.SentimentScorer,
	lgr *xlogger.Logger,
	opts ...JobsOption,
) *MarketJobs {
	cfg.applyDefaults()
	if lgr == nil {
		lgr = xlogger.Nop()
	}
	j := &MarketJobs{
		cfg:       cfg,
		provider:  provider,
		store:     store,
		engine:    engine,
		cache:     predictions,
		detector:  detector,
		sentiment: sentiment,
		metrics:   metrics.Nop{},
		clock:     domsvc.SystemClock,
		logger:    lgr.With(xlogger.String("component", "market_jobs")),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *MarketJobs) Symbols() []string { return j.cfg.Symbols }

// eachSymbol runs fn for every tracked symbol and joins the failures.
func (j *MarketJobs) eachSymbol(ctx context.Context, fn func(ctx context.Context, symbol string) error) error {
	var errs []error
	for _, s := range j.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		s = strings.ToUpper(strings.TrimSpace(s))
		if err := fn(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// track times one provider call and reports it to the api-call log and metrics.
func (j *MarketJobs) track(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	name := j.provider.Name()
	j.metrics.RecordProviderCall(name, endpoint, err == nil, elapsed.Seconds())
	if logErr := j.store.InsertAPICallLog(ctx, name, endpoint, err == nil, elapsed.Milliseconds(), errMsg); logErr != nil {
		j.logger.Warn("api call log failed", xlogger.String("endpoint", endpoint), xlogger.Error(logErr))
	}
	return err
}

// LoadInitial backfills history and runs every ingestion job once, then
// produces a first prediction so consumers have something to read.
func (j *MarketJobs) LoadInitial(ctx context.Context) error {
	now := j.clock.Now()
	backfill := j.eachSymbol(ctx, func(ctx context.Context, symbol string) error {
		var hist []models.PriceRecord
		err := j.track(ctx, "history", func(ctx context.Context) error {
			var err error
			hist, err = j.provider.History(ctx, symbol, now.Add(-j.cfg.Backfill), now)
			return err
		})
		if err != nil {
			return err
		}
		if len(hist) == 0 {
			return nil
		}
		j.logger.Info("history backfilled", xlogger.Symbol(symbol), xlogger.Int("bars", len(hist)))
		return j.store.InsertPrices(ctx, hist)
	})

	return errors.Join(
		backfill,
		j.RefreshPrices(ctx),
		j.RecomputeIndicators(ctx),
		j.IngestNews(ctx),
		j.IngestInsiders(ctx),
		j.GeneratePredictions(ctx),
	)
}

func (j *MarketJobs) RefreshPrices(ctx context.Context) error {
	return j.eachSymbol(ctx, j.refreshPrice)
}

func (j *MarketJobs) refreshPrice(ctx context.Context, symbol string) error {
	var q *models.PriceRecord
	err := j.track(ctx, "quote", func(ctx context.Context) error {
		var err error
		q, err = j.provider.Quote(ctx, symbol)
		return err
	})
	if err != nil {
		return err
	}
	if q == nil {
		j.logger.Debug("no quote available", xlogger.Symbol(symbol))
		return nil
	}
	if err := j.store.InsertPrices(ctx, []models.PriceRecord{*q}); err != nil {
		return fmt.Errorf("store price: %w", err)
	}
	j.metrics.RecordLastPrice(symbol, q.Price)
	return nil
}

func (j *MarketJobs) RecomputeIndicators(ctx context.Context) error {
	return j.eachSymbol(ctx, j.recomputeIndicators)
}

func (j *MarketJobs) recomputeIndicators(ctx context.Context, symbol string) error {
	hist, err := j.store.GetPriceHistory(ctx, symbol, j.cfg.IndicatorHours)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	ind, ok := features.ComputeIndicators(symbol, hist, j.clock.Now())
	if !ok {
		j.logger.Debug("insufficient history for indicators", xlogger.Symbol(symbol), xlogger.Int("bars", len(hist)))
		return nil
	}
	if err := j.store.InsertIndicators(ctx, ind); err != nil {
		return fmt.Errorf("store indicators: %w", err)
	}
	return nil
}

func (j *MarketJobs) IngestNews(ctx context.Context) error {
	return j.eachSymbol(ctx, j.ingestNews)
}

func (j *MarketJobs) ingestNews(ctx context.Context, symbol string) error {
	now := j.clock.Now()
	var items []models.NewsItem
	err := j.track(ctx, "news", func(ctx context.Context) error {
		var err error
		items, err = j.provider.News(ctx, symbol, now.Add(-j.cfg.NewsLookback), now)
		return err
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if j.sentiment != nil && items[i].Sentiment == 0 && items[i].Relevance == 0 {
			items[i].Sentiment, items[i].Relevance = j.sentiment.Score(symbol, items[i].Headline, items[i].Summary)
		}
	}
	if err := j.store.InsertNews(ctx, items); err != nil {
		return fmt.Errorf("store news: %w", err)
	}
	return nil
}

// IngestInsiders pulls insider filings and refreshes fundamentals, both of
// which change at most daily.
func (j *MarketJobs) IngestInsiders(ctx context.Context) error {
	return j.eachSymbol(ctx, j.ingestInsiders)
}

func (j *MarketJobs) ingestInsiders(ctx context.Context, symbol string) error {
	now := j.clock.Now()
	var trades []models.InsiderTrade
	insiderErr := j.track(ctx, "insider", func(ctx context.Context) error {
		var err error
		trades, err = j.provider.InsiderTrades(ctx, symbol, now.Add(-j.cfg.InsiderLookback), now)
		return err
	})
	if insiderErr == nil && len(trades) > 0 {
		insiderErr = j.store.InsertInsiderTrades(ctx, trades)
	}

	var f *models.Fundamentals
	fundErr := j.track(ctx, "fundamentals", func(ctx context.Context) error {
		var err error
		f, err = j.provider.Fundamentals(ctx, symbol)
		return err
	})
	if fundErr == nil && f != nil {
		fundErr = j.store.InsertFundamentals(ctx, *f)
	}
	return errors.Join(insiderErr, fundErr)
}

func (j *MarketJobs) ScanAnomalies(ctx context.Context) error {
	if j.detector == nil {
		return nil
	}
	return j.eachSymbol(ctx, j.scanAnomalies)
}

func (j *MarketJobs) scanAnomalies(ctx context.Context, symbol string) error {
	hist, err := j.store.GetPriceHistory(ctx, symbol, j.cfg.AnomalyHours)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	found, err := j.detector.Detect(ctx, symbol, hist)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	if len(found) == 0 {
		return nil
	}
	j.logger.Info("anomalies detected", xlogger.Symbol(symbol), xlogger.Int("count", len(found)), xlogger.String("type", found[0].Type))
	if err := j.store.InsertAnomalies(ctx, found); err != nil {
		return fmt.Errorf("store anomalies: %w", err)
	}
	if j.publisher != nil {
		if err := j.publisher.PublishAnomalies(ctx, found); err != nil {
			j.metrics.RecordError("publish_anomaly")
			j.logger.Warn("publish anomalies failed", xlogger.Symbol(symbol), xlogger.Error(err))
		}
	}
	return nil
}

// GeneratePredictions runs one prediction cycle per symbol. The weighted
// model goes through the stability cache and is persisted only when the
// cache accepts a fresh result; the tight-range model is persisted as a
// parallel output under its own tag.
func (j *MarketJobs) GeneratePredictions(ctx context.Context) error {
	return j.eachSymbol(ctx, func(ctx context.Context, symbol string) error {
		return errors.Join(
			j.predictCached(ctx, symbol, false),
			j.predictFast(ctx, symbol),
		)
	})
}

func (j *MarketJobs) predictCached(ctx context.Context, symbol string, force bool) error {
	var (
		rec     models.PredictionRecord
		outcome cache.Outcome
		err     error
	)
	if force {
		rec, outcome, err = j.cache.Refresh(ctx, symbol)
	} else {
		rec, outcome, err = j.cache.GetOrCompute(ctx, symbol)
	}
	if errors.Is(err, ErrNoCurrentPrice) {
		j.logger.Warn("prediction skipped, no current price", xlogger.Symbol(symbol))
		return nil
	}
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	j.logger.Debug("prediction cycle",
		xlogger.Symbol(symbol),
		xlogger.String("outcome", string(outcome)),
		xlogger.String("recommendation", string(rec.Recommendation)),
		xlogger.Float64("confidence", rec.Confidence),
	)
	if outcome != cache.OutcomeComputed {
		return nil
	}
	return j.persist(ctx, rec)
}

func (j *MarketJobs) predictFast(ctx context.Context, symbol string) error {
	rec, err := j.engine.Fast(ctx, symbol, Lookback{})
	if errors.Is(err, ErrNoCurrentPrice) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fast predict: %w", err)
	}
	return j.persist(ctx, rec)
}

func (j *MarketJobs) persist(ctx context.Context, rec models.PredictionRecord) error {
	saved, err := j.store.InsertPredictionRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("store prediction: %w", err)
	}
	j.metrics.RecordPrediction(saved.Symbol, saved.ModelUsed, saved.Recommendation, saved.Confidence)
	j.logger.Info("prediction stored",
		xlogger.Symbol(saved.Symbol),
		xlogger.String("model", saved.ModelUsed),
		xlogger.String("recommendation", string(saved.Recommendation)),
		xlogger.Float64("confidence", saved.Confidence),
		xlogger.String("range", saved.PredictedPrice),
	)
	if j.publisher != nil {
		if err := j.publisher.PublishPrediction(ctx, saved); err != nil {
			j.metrics.RecordError("publish_prediction")
			j.logger.Warn("publish prediction failed", xlogger.Symbol(saved.Symbol), xlogger.Error(err))
		}
	}
	return nil
}

// RefreshSymbol pulls fresh inputs for one symbol and forces a prediction
// cycle. It backs manual refresh requests.
func (j *MarketJobs) RefreshSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errors.New("symbol required")
	}
	return errors.Join(
		j.refreshPrice(ctx, symbol),
		j.recomputeIndicators(ctx, symbol),
		j.ingestNews(ctx, symbol),
		j.predictCached(ctx, symbol, true),
	)
}
