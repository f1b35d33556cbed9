package analytics

import (
	"context"
	"math"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
)

// ZScoreDetector flags the latest bar when its return, short-horizon
// volatility or volume sits far outside the trailing window.
type ZScoreDetector struct {
	window    int
	threshold float64
	volRatio  float64
}

func NewZScoreDetector(window int, threshold float64) *ZScoreDetector {
	if window < 10 {
		window = 30
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &ZScoreDetector{window: window, threshold: threshold, volRatio: 2}
}

func (d *ZScoreDetector) Detect(ctx context.Context, symbol string, history []models.PriceRecord) ([]models.MarketAnomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rets := features.ComputeLogReturns(history)
	if len(rets) < d.window+1 {
		return nil, nil
	}

	last := history[len(history)-1]
	latest := rets[len(rets)-1]
	trailing := rets[len(rets)-1-d.window : len(rets)-1]
	bpy := features.BarsPerYear(features.MedianInterval(history))
	mean, std := features.MeanStd(trailing)
	sigma := std * math.Sqrt(bpy)

	var out []models.MarketAnomaly
	if std > 0 {
		if z := (latest - mean) / std; math.Abs(z) >= d.threshold {
			kind := "shock_up"
			if z < 0 {
				kind = "shock_down"
			}
			out = append(out, models.MarketAnomaly{
				Symbol: symbol, Timestamp: last.Timestamp, Type: kind,
				Severity: math.Abs(z), Return: latest, Volatility: sigma,
			})
		}
	}

	short := features.RealizedVolatility(rets, 5, bpy)
	if sigma > 0 && short/sigma >= d.volRatio {
		out = append(out, models.MarketAnomaly{
			Symbol: symbol, Timestamp: last.Timestamp, Type: "vol_spike",
			Severity: short / sigma, Return: latest, Volatility: short,
		})
	}

	vols := make([]float64, 0, d.window)
	for _, p := range history[len(history)-1-d.window : len(history)-1] {
		vols = append(vols, p.Volume)
	}
	if vm, vs := features.MeanStd(vols); vs > 0 {
		if z := (last.Volume - vm) / vs; z >= d.threshold {
			out = append(out, models.MarketAnomaly{
				Symbol: symbol, Timestamp: last.Timestamp, Type: "volume_spike",
				Severity: z, Return: latest, Volatility: sigma,
			})
		}
	}
	return out, nil
}
