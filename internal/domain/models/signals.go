package models

import "time"

// SignalSnapshot is assembled fresh for every prediction cycle.
// Any field may be absent; scorers skip the factors they cannot see.
type SignalSnapshot struct {
	Symbol       string
	Timestamp    time.Time
	Price        *PriceRecord
	Indicators   *Indicators
	Fundamentals *Fundamentals
	News         []NewsItem
	History      []PriceRecord // ascending by Timestamp
	Errors       map[string]string
}

// CurrentPrice returns the latest observed price, falling back to the last
// history point when no quote is available.
func (s *SignalSnapshot) CurrentPrice() (float64, bool) {
	if s == nil {
		return 0, false
	}
	if s.Price != nil && s.Price.Price > 0 {
		return s.Price.Price, true
	}
	if n := len(s.History); n > 0 && s.History[n-1].Price > 0 {
		return s.History[n-1].Price, true
	}
	return 0, false
}

// DirectionalScore is the output of the lightweight rule engine.
type DirectionalScore struct {
	Bullish float64
	Bearish float64
	Reasons []string
}

func (d DirectionalScore) Net() float64 { return d.Bullish - d.Bearish }
