package analytics

import (
	"fmt"

	"StockPulse/internal/domain/models"
)

// DirectionalScorer is the lightweight rule engine. Bullish and bearish
// evidence accumulate independently; absent inputs simply do not fire.
type DirectionalScorer struct{}

func NewDirectionalScorer() *DirectionalScorer { return &DirectionalScorer{} }

func (s *DirectionalScorer) Score(snap *models.SignalSnapshot) models.DirectionalScore {
	var out models.DirectionalScore
	if snap == nil {
		return out
	}

	if ind := snap.Indicators; ind != nil {
		rsi := ind.RSI
		switch {
		case rsi > 75:
			out.Bearish += 25
			out.Reasons = append(out.Reasons, fmt.Sprintf("RSI %.1f strongly overbought", rsi))
		case rsi > 65:
			out.Bearish += 10
			out.Reasons = append(out.Reasons, fmt.Sprintf("RSI %.1f overbought", rsi))
		case rsi < 25:
			out.Bullish += 25
			out.Reasons = append(out.Reasons, fmt.Sprintf("RSI %.1f strongly oversold", rsi))
		case rsi < 35:
			out.Bullish += 10
			out.Reasons = append(out.Reasons, fmt.Sprintf("RSI %.1f oversold", rsi))
		}
	}

	if change, ok := shortMomentum(snap.History); ok {
		switch {
		case change > 1.5:
			out.Bullish += 15
			out.Reasons = append(out.Reasons, fmt.Sprintf("short-term momentum %+.2f%%", change))
		case change < -1.5:
			out.Bearish += 15
			out.Reasons = append(out.Reasons, fmt.Sprintf("short-term momentum %+.2f%%", change))
		}
	}

	if len(snap.News) > 0 {
		total := 0.0
		for _, n := range snap.News {
			total += n.Sentiment
		}
		avg := total / float64(len(snap.News))
		switch {
		case avg > 0.3:
			out.Bullish += 10
			out.Reasons = append(out.Reasons, fmt.Sprintf("positive news sentiment %.2f across %d articles", avg, len(snap.News)))
		case avg < -0.3:
			out.Bearish += 10
			out.Reasons = append(out.Reasons, fmt.Sprintf("negative news sentiment %.2f across %d articles", avg, len(snap.News)))
		}
	}

	return out
}

// shortMomentum is the percent change across the three most recent points.
func shortMomentum(history []models.PriceRecord) (float64, bool) {
	n := len(history)
	if n < 3 {
		return 0, false
	}
	oldest := history[n-3].Price
	newest := history[n-1].Price
	if oldest <= 0 {
		return 0, false
	}
	return (newest - oldest) / oldest * 100, true
}
