package analytics

import "time"

const maxSeasonalAdjustment = 0.002

// SeasonalAdjustment is a qualitative calendar overlay, not a fitted effect.
// It returns a fractional price adjustment bounded to +/-0.2%.
func SeasonalAdjustment(t time.Time) float64 {
	adj := 0.0
	switch t.Weekday() {
	case time.Monday:
		adj -= 0.001
	case time.Friday:
		adj += 0.001
	}
	switch t.Month() {
	case time.January, time.November, time.December:
		adj += 0.001
	case time.September:
		adj -= 0.001
	}
	if adj > maxSeasonalAdjustment {
		return maxSeasonalAdjustment
	}
	if adj < -maxSeasonalAdjustment {
		return -maxSeasonalAdjustment
	}
	return adj
}
