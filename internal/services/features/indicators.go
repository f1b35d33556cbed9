package features

import (
	"time"

	"StockPulse/internal/domain/models"
)

const (
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// SMA is the mean of the last period values, ok=false when the series is too short.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	total := 0.0
	for _, v := range values[len(values)-period:] {
		total += v
	}
	return total / float64(period), true
}

// EMASeries seeds with the SMA of the first period values and returns one
// value per input starting at index period-1.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / (float64(period) + 1.0)
	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	ema := seed / float64(period)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// RSI uses Wilder smoothing over period changes.
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD returns the latest MACD line and its signal line.
func MACD(values []float64) (macd, signal float64, ok bool) {
	fast := EMASeries(values, macdFast)
	slow := EMASeries(values, macdSlow)
	if len(slow) == 0 {
		return 0, 0, false
	}
	// fast[i+offset] and slow[i] refer to the same input index
	offset := macdSlow - macdFast
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}
	sig := EMASeries(line, macdSignal)
	if len(sig) == 0 {
		return line[len(line)-1], 0, true
	}
	return line[len(line)-1], sig[len(sig)-1], true
}

// ComputeIndicators derives the indicator set from an ascending price history.
// Indicators that need more history than is available are left at zero;
// ok is false when not even RSI can be computed.
func ComputeIndicators(symbol string, history []models.PriceRecord, now time.Time) (models.Indicators, bool) {
	closes := Closes(history)
	ind := models.Indicators{Symbol: symbol, Timestamp: now}

	rsi, ok := RSI(closes, rsiPeriod)
	if !ok {
		return ind, false
	}
	ind.RSI = rsi
	if v, ok := SMA(closes, 20); ok {
		ind.SMA20 = v
	}
	if v, ok := SMA(closes, 50); ok {
		ind.SMA50 = v
	}
	if s := EMASeries(closes, macdFast); len(s) > 0 {
		ind.EMA12 = s[len(s)-1]
	}
	if s := EMASeries(closes, macdSlow); len(s) > 0 {
		ind.EMA26 = s[len(s)-1]
	}
	if m, sig, ok := MACD(closes); ok {
		ind.MACD = m
		ind.MACDSignal = sig
	}
	return ind, true
}
