package models

import (
	"math"
	"strings"
	"time"
)

type Recommendation string

const (
	StrongBuy  Recommendation = "strong_buy"
	Buy        Recommendation = "buy"
	Hold       Recommendation = "hold"
	Sell       Recommendation = "sell"
	StrongSell Recommendation = "strong_sell"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	ModelTightRange    = "tight_range_v1"
	ModelComprehensive = "comprehensive_v1"
)

// PredictionRecord is append-only: once persisted it is never mutated.
type PredictionRecord struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	CurrentPrice   float64        `json:"current_price"`
	PredictedPrice string         `json:"predicted_price"` // "low-high" or a single price
	PriceRangeLow  float64        `json:"price_range_low"`
	PriceRangeHigh float64        `json:"price_range_high"`
	TargetPrice    float64        `json:"target_price"`
	HorizonDays    int            `json:"horizon_days"`
	Confidence     float64        `json:"confidence"`
	Rating         int            `json:"rating"`
	Recommendation Recommendation `json:"recommendation"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Reasoning      []string       `json:"reasoning"`
	ModelUsed      string         `json:"model_used"`
	StabilityScore float64        `json:"stability_score"`
	DataQuality    float64        `json:"data_quality"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ReasoningText joins the reasoning lines the way they are persisted.
func (p PredictionRecord) ReasoningText() string {
	return strings.Join(p.Reasoning, "; ")
}

// Clamp bounds v to [lo, hi]. NaN collapses to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampScore bounds a confidence or rating to [0, 100].
func ClampScore(v float64) float64 { return Clamp(v, 0, 100) }

// MarketWindow is derived from the clock and never stored.
type MarketWindow struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}
