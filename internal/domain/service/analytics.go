package service

import (
	"context"
	"time"

	"StockPulse/internal/domain/models"
)

// Clock supplies the current instant; tests inject a fixed one.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// MarketHours answers whether the exchange is trading at an instant.
type MarketHours interface {
	Window(now time.Time) models.MarketWindow
}

// Analyzer turns a signal snapshot into a prediction record.
type Analyzer interface {
	Analyze(snap *models.SignalSnapshot) (models.PredictionRecord, error)
}

// SnapshotSource assembles signal snapshots for a symbol.
type SnapshotSource interface {
	Snapshot(ctx context.Context, symbol string) (*models.SignalSnapshot, error)
}

// AnomalyDetector flags outliers in a returns series.
type AnomalyDetector interface {
	Detect(ctx context.Context, symbol string, history []models.PriceRecord) ([]models.MarketAnomaly, error)
}

// SentimentScorer assigns a polarity in [-1,1] and relevance in [0,10] to a headline.
type SentimentScorer interface {
	Score(symbol, headline, summary string) (sentiment, relevance float64)
}

// DirectionalScorer accumulates bullish and bearish evidence from a snapshot.
type DirectionalScorer interface {
	Score(snap *models.SignalSnapshot) models.DirectionalScore
}

// RangePredictor maps a directional score to a bounded price range.
type RangePredictor interface {
	Predict(symbol string, currentPrice float64, score models.DirectionalScore) models.PredictionRecord
}
