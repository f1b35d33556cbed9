package features

import (
	"math"
	"time"

	"StockPulse/internal/domain/models"
)

// ComputeLogReturns computes r_t = ln(P_t / P_{t-1}) over an ascending price series.
// Non-positive prices yield a zero return for that step.
func ComputeLogReturns(prices []models.PriceRecord) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1].Price
		cur := prices[i].Price
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample standard deviation of the last
// window returns.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	_, std := MeanStd(logReturns[len(logReturns)-window:])
	return std * math.Sqrt(barsPerYear)
}

// MeanStd returns the mean and sample standard deviation of xs.
func MeanStd(xs []float64) (float64, float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	sum, sum2 := 0.0, 0.0
	for _, x := range xs {
		sum += x
		sum2 += x * x
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// BarsPerYear approximates how many bars of the given spacing fit into a
// trading year of 252 sessions of 6.5 hours.
func BarsPerYear(interval time.Duration) float64 {
	const sessionMinutes = 390
	const sessions = 252
	switch {
	case interval <= 0:
		return sessions * sessionMinutes
	case interval >= 24*time.Hour:
		return sessions
	}
	perSession := float64(sessionMinutes*time.Minute) / float64(interval)
	if perSession < 1 {
		perSession = 1
	}
	return sessions * perSession
}

// MedianInterval estimates the bar spacing of an ascending series.
func MedianInterval(prices []models.PriceRecord) time.Duration {
	if len(prices) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if d := prices[i].Timestamp.Sub(prices[i-1].Timestamp); d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	// insertion sort; history windows are small
	for i := 1; i < len(gaps); i++ {
		for j := i; j > 0 && gaps[j] < gaps[j-1]; j-- {
			gaps[j], gaps[j-1] = gaps[j-1], gaps[j]
		}
	}
	return gaps[len(gaps)/2]
}

// Closes extracts the price column.
func Closes(prices []models.PriceRecord) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p.Price
	}
	return out
}
