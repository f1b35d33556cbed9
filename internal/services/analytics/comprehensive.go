package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"

	"github.com/google/uuid"
)

// ErrNoCurrentPrice means a cycle had no reference price to predict from.
var ErrNoCurrentPrice = errors.New("no current price")

const (
	baseScore      = 50.0
	baseConfidence = 70.0
	maxConfidence  = 95.0

	momentumPoints     = 10
	heavyVolume        = 50_000_000
	nearCloseWindow    = 2 * time.Hour
	nearCloseDampening = 0.95
	actionThreshold    = 1.5 // expected return, percent
	actionConfidence   = 70.0
)

// ComprehensiveAnalyzer blends technical, momentum, sentiment and
// market-structure factors into a single price target.
type ComprehensiveAnalyzer struct {
	hours    domsvc.MarketHours
	clock    domsvc.Clock
	seasonal func(time.Time) float64
	newID    func() string
}

type AnalyzerOption func(*ComprehensiveAnalyzer)

func WithAnalyzerClock(c domsvc.Clock) AnalyzerOption {
	return func(a *ComprehensiveAnalyzer) {
		if c != nil {
			a.clock = c
		}
	}
}

func WithAnalyzerIDs(fn func() string) AnalyzerOption {
	return func(a *ComprehensiveAnalyzer) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// WithSeasonality replaces the calendar overlay; pass a zero func to disable it.
func WithSeasonality(fn func(time.Time) float64) AnalyzerOption {
	return func(a *ComprehensiveAnalyzer) {
		if fn == nil {
			fn = func(time.Time) float64 { return 0 }
		}
		a.seasonal = fn
	}
}

func NewComprehensiveAnalyzer(hours domsvc.MarketHours, opts ...AnalyzerOption) *ComprehensiveAnalyzer {
	a := &ComprehensiveAnalyzer{
		hours:    hours,
		clock:    domsvc.SystemClock,
		seasonal: SeasonalAdjustment,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *ComprehensiveAnalyzer) Analyze(snap *models.SignalSnapshot) (models.PredictionRecord, error) {
	price, ok := snap.CurrentPrice()
	if !ok {
		return models.PredictionRecord{}, ErrNoCurrentPrice
	}
	now := a.clock.Now()

	score := baseScore
	confidence := baseConfidence
	quality := 0.0
	var reasons []string

	if ind := snap.Indicators; ind != nil {
		quality += 25
		switch {
		case ind.RSI > 70:
			score -= 8
			reasons = append(reasons, fmt.Sprintf("RSI %.1f overbought", ind.RSI))
		case ind.RSI < 30:
			score += 8
			reasons = append(reasons, fmt.Sprintf("RSI %.1f oversold", ind.RSI))
		case ind.RSI >= 45 && ind.RSI <= 65:
			score += 3
			reasons = append(reasons, fmt.Sprintf("RSI %.1f in healthy range", ind.RSI))
		}
		if ind.SMA20 > 0 && ind.SMA50 > 0 {
			switch {
			case price > ind.SMA20 && price > ind.SMA50:
				score += 6
				reasons = append(reasons, "price above SMA-20 and SMA-50")
			case price < ind.SMA20 && price < ind.SMA50:
				score -= 6
				reasons = append(reasons, "price below SMA-20 and SMA-50")
			}
		}
		if ind.MACD > 0 {
			score += 4
			reasons = append(reasons, "MACD positive")
		} else {
			score -= 3
			reasons = append(reasons, "MACD non-positive")
		}
	}

	if h := snap.History; len(h) >= momentumPoints {
		quality += 20
		recent := h[len(h)-5:]
		prior := h[len(h)-10 : len(h)-5]
		recentMean := meanPrice(recent)
		priorMean := meanPrice(prior)
		if priorMean > 0 {
			change := (recentMean - priorMean) / priorMean * 100
			switch {
			case change > 1.5:
				score += 7
				reasons = append(reasons, fmt.Sprintf("momentum %+.2f%% over last 10 points", change))
			case change < -1.5:
				score -= 7
				reasons = append(reasons, fmt.Sprintf("momentum %+.2f%% over last 10 points", change))
			default:
				score += 2
				reasons = append(reasons, "price stable over last 10 points")
			}
		}
		if meanVolume(recent) > heavyVolume {
			confidence += 5
			reasons = append(reasons, "heavy recent volume")
		}
	}

	if len(snap.News) > 0 {
		quality += 25
		total, valid := 0.0, 0
		for _, n := range snap.News {
			if math.IsNaN(n.Sentiment) || n.Sentiment < -1 || n.Sentiment > 1 {
				continue
			}
			total += n.Sentiment
			valid++
		}
		if valid > 0 {
			avg := total / float64(valid)
			switch {
			case avg > 0.3:
				score += 6
				reasons = append(reasons, fmt.Sprintf("positive news sentiment %.2f", avg))
			case avg < -0.3:
				score -= 6
				reasons = append(reasons, fmt.Sprintf("negative news sentiment %.2f", avg))
			default:
				score++
				reasons = append(reasons, fmt.Sprintf("neutral news sentiment %.2f", avg))
			}
			confidence += math.Min(10, 2*float64(valid))
		}
	}

	if a.hours != nil {
		w := a.hours.Window(now)
		switch {
		case w.IsOpen && w.NextClose.Sub(now) <= nearCloseWindow:
			// pull toward neutral ahead of the close
			score = baseScore + (score-baseScore)*nearCloseDampening
			reasons = append(reasons, "within two hours of close, signal dampened")
		case !w.IsOpen:
			confidence -= 5
			reasons = append(reasons, "market closed")
		}
	}

	changePct := (score - baseScore) * 0.8
	predicted := price * (1 + changePct/100)
	if adj := a.seasonal(now); adj != 0 {
		predicted *= 1 + adj
		reasons = append(reasons, fmt.Sprintf("calendar overlay %+.2f%%", adj*100))
	}
	if predicted < 0 {
		predicted = 0
	}

	confidence = models.ClampScore(math.Min(maxConfidence, confidence))
	expected := 0.0
	if price > 0 {
		expected = (predicted - price) / price * 100
	}

	rec := models.Hold
	if confidence > actionConfidence {
		switch {
		case expected > actionThreshold:
			rec = models.Buy
		case expected < -actionThreshold:
			rec = models.Sell
		}
	}

	return models.PredictionRecord{
		ID:             a.newID(),
		Symbol:         snap.Symbol,
		CurrentPrice:   price,
		PredictedPrice: FormatPrice(predicted),
		PriceRangeLow:  math.Min(price, predicted),
		PriceRangeHigh: math.Max(price, predicted),
		TargetPrice:    predicted,
		HorizonDays:    1,
		Confidence:     confidence,
		Rating:         int(math.Round(models.ClampScore(score))),
		Recommendation: rec,
		RiskLevel:      riskForQuality(quality),
		Reasoning:      reasons,
		ModelUsed:      models.ModelComprehensive,
		StabilityScore: math.Min(100, confidence+0.3*quality),
		DataQuality:    quality,
		CreatedAt:      now,
	}, nil
}

func riskForQuality(q float64) models.RiskLevel {
	switch {
	case q >= 60:
		return models.RiskLow
	case q >= 35:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func meanPrice(xs []models.PriceRecord) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x.Price
	}
	return total / float64(len(xs))
}

func meanVolume(xs []models.PriceRecord) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x.Volume
	}
	return total / float64(len(xs))
}
