package usecase

import (
	"context"
	"fmt"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/services/analytics"
)

// ErrNoCurrentPrice is returned when a cycle cannot find a reference price.
var ErrNoCurrentPrice = analytics.ErrNoCurrentPrice

// PredictionEngine runs both scoring variants over a fresh snapshot.
// Neither result is persisted here.
type PredictionEngine struct {
	aggregator *SignalAggregator
	scorer     domsvc.DirectionalScorer
	ranger     domsvc.RangePredictor
	analyzer   domsvc.Analyzer
}

func NewPredictionEngine(agg *SignalAggregator, scorer domsvc.DirectionalScorer, ranger domsvc.RangePredictor, analyzer domsvc.Analyzer) *PredictionEngine {
	return &PredictionEngine{aggregator: agg, scorer: scorer, ranger: ranger, analyzer: analyzer}
}

// Fast produces the lightweight tight-range prediction.
func (e *PredictionEngine) Fast(ctx context.Context, symbol string, lb Lookback) (models.PredictionRecord, error) {
	snap, err := e.aggregator.SnapshotWithLookback(ctx, symbol, lb)
	if err != nil {
		return models.PredictionRecord{}, err
	}
	price, ok := snap.CurrentPrice()
	if !ok {
		return models.PredictionRecord{}, fmt.Errorf("%s: %w", snap.Symbol, ErrNoCurrentPrice)
	}
	return e.ranger.Predict(snap.Symbol, price, e.scorer.Score(snap)), nil
}

// Comprehensive produces the weighted analyzer's prediction. It is the
// compute function behind the prediction cache.
func (e *PredictionEngine) Comprehensive(ctx context.Context, symbol string) (models.PredictionRecord, error) {
	snap, err := e.aggregator.Snapshot(ctx, symbol)
	if err != nil {
		return models.PredictionRecord{}, err
	}
	rec, err := e.analyzer.Analyze(snap)
	if err != nil {
		return models.PredictionRecord{}, fmt.Errorf("%s: %w", snap.Symbol, err)
	}
	return rec, nil
}
