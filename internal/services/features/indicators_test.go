package features

import (
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
)

func series(values ...float64) []models.PriceRecord {
	start := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
	out := make([]models.PriceRecord, len(values))
	for i, v := range values {
		out[i] = models.PriceRecord{Symbol: "AAPL", Price: v, Timestamp: start.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestSMA(t *testing.T) {
	got, ok := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !ok || got != 4 {
		t.Fatalf("SMA = %v, %v", got, ok)
	}
	if _, ok := SMA([]float64{1, 2}, 3); ok {
		t.Fatalf("expected short series to fail")
	}
}

func TestEMASeriesConstantInput(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 10
	}
	s := EMASeries(vals, 12)
	if len(s) != 19 {
		t.Fatalf("len = %d, want 19", len(s))
	}
	for _, v := range s {
		if math.Abs(v-10) > 1e-9 {
			t.Fatalf("ema drifted: %v", v)
		}
	}
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 20)
	down := make([]float64, 20)
	flat := make([]float64, 20)
	for i := range up {
		up[i] = float64(100 + i)
		down[i] = float64(100 - i)
		flat[i] = 100
	}
	if v, _ := RSI(up, 14); v != 100 {
		t.Fatalf("rising RSI = %v, want 100", v)
	}
	if v, _ := RSI(down, 14); v != 0 {
		t.Fatalf("falling RSI = %v, want 0", v)
	}
	if v, _ := RSI(flat, 14); v != 50 {
		t.Fatalf("flat RSI = %v, want 50", v)
	}
	if _, ok := RSI(up[:14], 14); ok {
		t.Fatalf("expected insufficient data")
	}
}

func TestMACDSignOnTrend(t *testing.T) {
	vals := make([]float64, 60)
	for i := range vals {
		vals[i] = 100 + float64(i)*0.5
	}
	m, _, ok := MACD(vals)
	if !ok {
		t.Fatalf("expected MACD")
	}
	if m <= 0 {
		t.Fatalf("uptrend MACD = %v, want > 0", m)
	}
}

func TestComputeIndicators(t *testing.T) {
	vals := make([]float64, 60)
	for i := range vals {
		vals[i] = 100 + math.Sin(float64(i)/3)
	}
	ind, ok := ComputeIndicators("AAPL", series(vals...), time.Now())
	if !ok {
		t.Fatalf("expected indicators")
	}
	if ind.SMA20 == 0 || ind.SMA50 == 0 {
		t.Fatalf("expected both SMAs, got %+v", ind)
	}
	if ind.RSI < 0 || ind.RSI > 100 {
		t.Fatalf("RSI out of range: %v", ind.RSI)
	}

	if _, ok := ComputeIndicators("AAPL", series(1, 2, 3), time.Now()); ok {
		t.Fatalf("expected short history to be rejected")
	}
}

func TestLogReturnsAndVolatility(t *testing.T) {
	rets := ComputeLogReturns(series(100, 110, 0, 121))
	if len(rets) != 3 {
		t.Fatalf("len = %d", len(rets))
	}
	if math.Abs(rets[0]-math.Log(1.1)) > 1e-12 || rets[1] != 0 || rets[2] != 0 {
		t.Fatalf("returns = %v", rets)
	}
	if RealizedVolatility([]float64{0.01}, 2, 252) != 0 {
		t.Fatalf("expected zero vol for short window")
	}
	if MedianInterval(series(1, 2, 3, 4)) != time.Minute {
		t.Fatalf("median interval mismatch")
	}
	if BarsPerYear(24*time.Hour) != 252 {
		t.Fatalf("daily bars per year mismatch")
	}
}
