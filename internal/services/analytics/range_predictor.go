package analytics

import (
	"fmt"
	"math"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	directionalThreshold = 20.0
	strongThreshold      = 35.0
	rangeOffset          = 0.012

	neutralConfidence = 75.0
)

// RangePredictor turns a directional score into a narrow actionable band.
// Stronger conviction yields a tighter band.
type RangePredictor struct {
	clock domsvc.Clock
	newID func() string
}

type RangeOption func(*RangePredictor)

func WithRangeClock(c domsvc.Clock) RangeOption {
	return func(p *RangePredictor) {
		if c != nil {
			p.clock = c
		}
	}
}

func WithRangeIDs(fn func() string) RangeOption {
	return func(p *RangePredictor) {
		if fn != nil {
			p.newID = fn
		}
	}
}

func NewRangePredictor(opts ...RangeOption) *RangePredictor {
	p := &RangePredictor{clock: domsvc.SystemClock, newID: uuid.NewString}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RangeWidth is the absolute band width for a net signal.
func RangeWidth(net float64) float64 {
	switch a := math.Abs(net); {
	case a >= strongThreshold:
		return 1.25
	case a >= directionalThreshold:
		return 1.75
	default:
		return 2.25
	}
}

// RecommendationFor maps a net signal to its recommendation class.
func RecommendationFor(net float64) models.Recommendation {
	switch {
	case net >= strongThreshold:
		return models.StrongBuy
	case net >= directionalThreshold:
		return models.Buy
	case net <= -strongThreshold:
		return models.StrongSell
	case net <= -directionalThreshold:
		return models.Sell
	default:
		return models.Hold
	}
}

func riskForSignal(net float64) models.RiskLevel {
	switch a := math.Abs(net); {
	case a >= 30:
		return models.RiskLow
	case a >= 15:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// confidenceForSignal scales with conviction once a direction is taken;
// a neutral call keeps the base confidence.
func confidenceForSignal(net float64) float64 {
	if math.Abs(net) < directionalThreshold {
		return neutralConfidence
	}
	return models.Clamp(neutralConfidence+0.5*math.Abs(net), 70, 92)
}

func (p *RangePredictor) Predict(symbol string, currentPrice float64, score models.DirectionalScore) models.PredictionRecord {
	net := score.Net()
	if currentPrice < 0 || math.IsNaN(currentPrice) {
		currentPrice = 0
	}

	center := currentPrice
	direction := "neutral"
	switch {
	case net >= directionalThreshold:
		center = currentPrice * (1 + rangeOffset)
		direction = "bullish"
	case net <= -directionalThreshold:
		center = currentPrice * (1 - rangeOffset)
		direction = "bearish"
	}

	width := RangeWidth(net)
	low := math.Max(0, center-width/2)
	high := center + width/2
	if high < low {
		high = low
	}

	reasons := make([]string, 0, len(score.Reasons)+1)
	reasons = append(reasons, score.Reasons...)
	reasons = append(reasons, fmt.Sprintf("%s bias, net signal %+.0f, band width %.2f", direction, net, width))

	return models.PredictionRecord{
		ID:             p.newID(),
		Symbol:         symbol,
		CurrentPrice:   currentPrice,
		PredictedPrice: FormatRange(low, high),
		PriceRangeLow:  low,
		PriceRangeHigh: high,
		TargetPrice:    center,
		HorizonDays:    1,
		Confidence:     models.ClampScore(confidenceForSignal(net)),
		Rating:         int(math.Round(models.ClampScore(50 + net))),
		Recommendation: RecommendationFor(net),
		RiskLevel:      riskForSignal(net),
		Reasoning:      reasons,
		ModelUsed:      models.ModelTightRange,
		CreatedAt:      p.clock.Now(),
	}
}

// FormatRange renders "low-high" keeping sub-cent precision, e.g. "98.875-101.125".
func FormatRange(low, high float64) string {
	return FormatPrice(low) + "-" + FormatPrice(high)
}

func FormatPrice(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String()
}
