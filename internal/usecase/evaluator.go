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
	"StockPulse/internal/services/features"
)

var ErrInsufficientHistory = errors.New("insufficient history to evaluate")

// EvaluationReport summarizes a replay of the lightweight model over history.
type EvaluationReport struct {
	Symbol        string        `json:"symbol"`
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
	Bars          int           `json:"bars"`
	Steps         int           `json:"steps"`
	Calls         int           `json:"calls"` // buy or sell calls
	Hits          int           `json:"hits"`
	Holds         int           `json:"holds"`
	Contained     int           `json:"contained"`
	AvgConfidence float64       `json:"avg_confidence"`
	AvgWidthPct   float64       `json:"avg_width_pct"`
	Horizon       time.Duration `json:"horizon"`
}

// HitRate is the share of buy or sell calls whose direction matched the
// next observed move.
func (r EvaluationReport) HitRate() float64 {
	if r.Calls == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Calls)
}

// Containment is the share of steps whose realized price fell inside the
// predicted range.
func (r EvaluationReport) Containment() float64 {
	if r.Steps == 0 {
		return 0
	}
	return float64(r.Contained) / float64(r.Steps)
}

// Evaluator replays provider history bar by bar and scores each step with
// the directional scorer and range predictor against the bar that follows.
// It sits outside the decision path and writes nothing.
type Evaluator struct {
	provider    domrepo.MarketDataProvider
	scorer      domsvc.DirectionalScorer
	ranger      domsvc.RangePredictor
	warmup      int
	horizon     int
	historyBars int
	clock       domsvc.Clock
}

type EvaluatorOption func(*Evaluator)

// WithWarmup sets how many bars are consumed before the first scored step.
func WithWarmup(bars int) EvaluatorOption {
	return func(e *Evaluator) {
		if bars > 0 {
			e.warmup = bars
		}
	}
}

// WithHorizon sets how many bars ahead a prediction is checked.
func WithHorizon(bars int) EvaluatorOption {
	return func(e *Evaluator) {
		if bars > 0 {
			e.horizon = bars
		}
	}
}

func WithEvaluatorClock(c domsvc.Clock) EvaluatorOption {
	return func(e *Evaluator) {
		if c != nil {
			e.clock = c
		}
	}
}

func NewEvaluator(provider domrepo.MarketDataProvider, scorer domsvc.DirectionalScorer, ranger domsvc.RangePredictor, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		provider:    provider,
		scorer:      scorer,
		ranger:      ranger,
		warmup:      50,
		horizon:     1,
		historyBars: DefaultLookback.HistoryHours,
		clock:       domsvc.SystemClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate replays the last window of history for symbol.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string, window time.Duration) (EvaluationReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	to := e.clock.Now()
	from := to.Add(-window)

	bars, err := e.provider.History(ctx, symbol, from, to)
	if err != nil {
		return EvaluationReport{}, fmt.Errorf("history %s: %w", symbol, err)
	}
	report := EvaluationReport{Symbol: symbol, From: from, To: to, Bars: len(bars)}
	if len(bars) < e.warmup+e.horizon+1 {
		return report, fmt.Errorf("%s: %d bars: %w", symbol, len(bars), ErrInsufficientHistory)
	}
	report.Horizon = features.MedianInterval(bars) * time.Duration(e.horizon)

	var confSum, widthSum float64
	for i := e.warmup; i+e.horizon < len(bars); i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cur := bars[i]
		if cur.Price <= 0 {
			continue
		}
		snap := e.snapshotAt(symbol, bars, i)
		rec := e.ranger.Predict(symbol, cur.Price, e.scorer.Score(snap))
		next := bars[i+e.horizon].Price

		report.Steps++
		confSum += rec.Confidence
		widthSum += (rec.PriceRangeHigh - rec.PriceRangeLow) / cur.Price * 100
		if next >= rec.PriceRangeLow && next <= rec.PriceRangeHigh {
			report.Contained++
		}
		switch rec.Recommendation {
		case models.Buy, models.StrongBuy:
			report.Calls++
			if next > cur.Price {
				report.Hits++
			}
		case models.Sell, models.StrongSell:
			report.Calls++
			if next < cur.Price {
				report.Hits++
			}
		default:
			report.Holds++
		}
	}
	if report.Steps > 0 {
		report.AvgConfidence = confSum / float64(report.Steps)
		report.AvgWidthPct = widthSum / float64(report.Steps)
	}
	return report, nil
}

// snapshotAt builds the snapshot a live cycle would have seen at bar i.
func (e *Evaluator) snapshotAt(symbol string, bars []models.PriceRecord, i int) *models.SignalSnapshot {
	start := 0
	if i+1 > e.historyBars {
		start = i + 1 - e.historyBars
	}
	cur := bars[i]
	snap := &models.SignalSnapshot{
		Symbol:    symbol,
		Timestamp: cur.Timestamp,
		Price:     &cur,
		History:   bars[start : i+1],
	}
	if ind, ok := features.ComputeIndicators(symbol, bars[:i+1], cur.Timestamp); ok {
		snap.Indicators = &ind
	}
	return snap
}
