package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
)

var fixedNow = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC) // Wednesday

type fixedHours models.MarketWindow

func (f fixedHours) Window(time.Time) models.MarketWindow { return models.MarketWindow(f) }

func fixedClock() domsvc.Clock { return domsvc.ClockFunc(func() time.Time { return fixedNow }) }

func history(prices ...float64) []models.PriceRecord {
	out := make([]models.PriceRecord, len(prices))
	for i, p := range prices {
		out[i] = models.PriceRecord{Symbol: "AAPL", Price: p, Timestamp: fixedNow.Add(time.Duration(i-len(prices)) * time.Minute)}
	}
	return out
}

func newTestPredictor() *RangePredictor {
	return NewRangePredictor(WithRangeClock(fixedClock()), WithRangeIDs(func() string { return "id-1" }))
}

func TestOverboughtWithMomentumStaysNeutral(t *testing.T) {
	snap := &models.SignalSnapshot{
		Symbol:     "AAPL",
		Price:      &models.PriceRecord{Price: 100},
		Indicators: &models.Indicators{RSI: 80},
		History:    history(100, 101, 102),
		News:       []models.NewsItem{{Sentiment: 0.2}, {Sentiment: -0.2}},
	}

	score := NewDirectionalScorer().Score(snap)
	if score.Bullish != 15 || score.Bearish != 25 {
		t.Fatalf("bullish=%v bearish=%v, want 15/25", score.Bullish, score.Bearish)
	}
	if score.Net() != -10 {
		t.Fatalf("net = %v, want -10", score.Net())
	}

	rec := newTestPredictor().Predict("AAPL", 100, score)
	if rec.Recommendation != models.Hold {
		t.Fatalf("recommendation = %s, want hold", rec.Recommendation)
	}
	if rec.PriceRangeLow != 98.875 || rec.PriceRangeHigh != 101.125 {
		t.Fatalf("range = %v-%v, want 98.875-101.125", rec.PriceRangeLow, rec.PriceRangeHigh)
	}
	if rec.PredictedPrice != "98.875-101.125" {
		t.Fatalf("predicted price = %q", rec.PredictedPrice)
	}
	if rec.Confidence != 75 {
		t.Fatalf("confidence = %v, want 75", rec.Confidence)
	}
	if rec.RiskLevel != models.RiskHigh {
		t.Fatalf("risk = %s, want high", rec.RiskLevel)
	}
	if rec.ModelUsed != models.ModelTightRange || rec.ID != "id-1" || !rec.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected metadata: %+v", rec)
	}
	// RSI rule first, momentum second, direction summary last
	if len(rec.Reasoning) != 3 {
		t.Fatalf("reasoning = %v", rec.Reasoning)
	}
}

func TestRecommendationThresholds(t *testing.T) {
	tests := []struct {
		net  float64
		want models.Recommendation
	}{
		{100, models.StrongBuy},
		{35, models.StrongBuy},
		{34.9, models.Buy},
		{20, models.Buy},
		{19.9, models.Hold},
		{0, models.Hold},
		{-19.9, models.Hold},
		{-20, models.Sell},
		{-34.9, models.Sell},
		{-35, models.StrongSell},
		{-100, models.StrongSell},
	}
	p := newTestPredictor()
	for _, tt := range tests {
		score := models.DirectionalScore{}
		if tt.net > 0 {
			score.Bullish = tt.net
		} else {
			score.Bearish = -tt.net
		}
		if got := p.Predict("AAPL", 100, score).Recommendation; got != tt.want {
			t.Errorf("net %v: got %s, want %s", tt.net, got, tt.want)
		}
	}
}

func TestRangeWidthTightensWithConviction(t *testing.T) {
	prev := math.Inf(1)
	for net := 0.0; net <= 60; net += 5 {
		w := RangeWidth(net)
		if w > prev {
			t.Fatalf("width grew at net %v: %v > %v", net, w, prev)
		}
		if RangeWidth(-net) != w {
			t.Fatalf("width not symmetric at %v", net)
		}
		prev = w
	}
	if RangeWidth(35) != 1.25 || RangeWidth(20) != 1.75 || RangeWidth(10) != 2.25 {
		t.Fatalf("unexpected tier widths")
	}
}

func TestRangeBoundsAndClamping(t *testing.T) {
	p := newTestPredictor()
	scores := []models.DirectionalScore{
		{},
		{Bullish: 50},
		{Bearish: 50},
		{Bullish: 1e9},
		{Bearish: 1e9},
	}
	for _, price := range []float64{0, 0.2, 0.9, 1, 100, 1e6} {
		for _, s := range scores {
			rec := p.Predict("X", price, s)
			if rec.PriceRangeLow < 0 || rec.PriceRangeLow > rec.PriceRangeHigh {
				t.Fatalf("price %v net %v: bad range %v-%v", price, s.Net(), rec.PriceRangeLow, rec.PriceRangeHigh)
			}
			if rec.Confidence < 0 || rec.Confidence > 100 || rec.Rating < 0 || rec.Rating > 100 {
				t.Fatalf("price %v net %v: confidence %v rating %d out of range", price, s.Net(), rec.Confidence, rec.Rating)
			}
		}
	}

	strong := p.Predict("X", 100, models.DirectionalScore{Bullish: 1e9})
	if strong.Confidence != 92 {
		t.Fatalf("confidence cap = %v, want 92", strong.Confidence)
	}
	if strong.PriceRangeLow <= 100 {
		t.Fatalf("bullish band should sit above price, got low %v", strong.PriceRangeLow)
	}
	if strong.RiskLevel != models.RiskLow {
		t.Fatalf("risk = %s", strong.RiskLevel)
	}
}

func TestDirectionalScorerSkipsMissingInputs(t *testing.T) {
	s := NewDirectionalScorer()
	if got := s.Score(nil); got.Net() != 0 || len(got.Reasons) != 0 {
		t.Fatalf("nil snapshot scored %+v", got)
	}
	got := s.Score(&models.SignalSnapshot{Price: &models.PriceRecord{Price: 50}, History: history(50, 51)})
	if got.Net() != 0 || len(got.Reasons) != 0 {
		t.Fatalf("sparse snapshot scored %+v", got)
	}

	bear := s.Score(&models.SignalSnapshot{
		Indicators: &models.Indicators{RSI: 70},
		History:    history(100, 99, 98),
		News:       []models.NewsItem{{Sentiment: -0.8}, {Sentiment: -0.4}},
	})
	if bear.Bearish != 35 || bear.Bullish != 0 {
		t.Fatalf("bearish = %v bullish = %v, want 35/0", bear.Bearish, bear.Bullish)
	}
}

func newTestAnalyzer(w models.MarketWindow) *ComprehensiveAnalyzer {
	return NewComprehensiveAnalyzer(fixedHours(w),
		WithAnalyzerClock(fixedClock()),
		WithAnalyzerIDs(func() string { return "c-1" }),
		WithSeasonality(nil),
	)
}

func TestComprehensivePriceOnlyIsNeutral(t *testing.T) {
	a := newTestAnalyzer(models.MarketWindow{IsOpen: false})
	rec, err := a.Analyze(&models.SignalSnapshot{Symbol: "AAPL", Price: &models.PriceRecord{Price: 50}})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Recommendation != models.Hold {
		t.Fatalf("recommendation = %s, want hold", rec.Recommendation)
	}
	if rec.DataQuality != 0 || rec.Rating != 50 || rec.TargetPrice != 50 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Confidence != 65 {
		t.Fatalf("confidence = %v, want 65 after closed-market penalty", rec.Confidence)
	}
	if rec.RiskLevel != models.RiskHigh || rec.ModelUsed != models.ModelComprehensive {
		t.Fatalf("risk=%s model=%s", rec.RiskLevel, rec.ModelUsed)
	}
}

func bullishSnapshot() *models.SignalSnapshot {
	h := history(100, 100, 100, 100, 100, 105, 105, 105, 105, 105)
	for i := range h {
		h[i].Volume = 60_000_000
	}
	news := make([]models.NewsItem, 5)
	for i := range news {
		news[i] = models.NewsItem{Sentiment: 0.6}
	}
	return &models.SignalSnapshot{
		Symbol:     "AAPL",
		Price:      &models.PriceRecord{Price: 110},
		Indicators: &models.Indicators{RSI: 55, SMA20: 100, SMA50: 95, MACD: 1},
		History:    h,
		News:       news,
	}
}

func TestComprehensiveBullish(t *testing.T) {
	a := newTestAnalyzer(models.MarketWindow{IsOpen: true, NextClose: fixedNow.Add(5 * time.Hour)})
	rec, err := a.Analyze(bullishSnapshot())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Rating != 76 {
		t.Fatalf("rating = %d, want 76", rec.Rating)
	}
	if rec.Confidence != 85 {
		t.Fatalf("confidence = %v, want 85", rec.Confidence)
	}
	if math.Abs(rec.TargetPrice-132.88) > 1e-9 {
		t.Fatalf("target = %v, want 132.88", rec.TargetPrice)
	}
	if rec.Recommendation != models.Buy {
		t.Fatalf("recommendation = %s, want buy", rec.Recommendation)
	}
	if rec.DataQuality != 70 || rec.StabilityScore != 100 || rec.RiskLevel != models.RiskLow {
		t.Fatalf("quality=%v stability=%v risk=%s", rec.DataQuality, rec.StabilityScore, rec.RiskLevel)
	}
	if rec.PriceRangeLow != 110 || rec.PriceRangeHigh != rec.TargetPrice {
		t.Fatalf("range = %v-%v", rec.PriceRangeLow, rec.PriceRangeHigh)
	}
}

func TestComprehensiveDampensNearClose(t *testing.T) {
	a := newTestAnalyzer(models.MarketWindow{IsOpen: true, NextClose: fixedNow.Add(90 * time.Minute)})
	rec, err := a.Analyze(bullishSnapshot())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// 50 + 26*0.95
	if rec.Rating != 75 {
		t.Fatalf("rating = %d, want 75", rec.Rating)
	}
}

func TestComprehensiveSkipsInvalidSentiment(t *testing.T) {
	a := newTestAnalyzer(models.MarketWindow{IsOpen: true, NextClose: fixedNow.Add(5 * time.Hour)})
	rec, err := a.Analyze(&models.SignalSnapshot{
		Price: &models.PriceRecord{Price: 10},
		News:  []models.NewsItem{{Sentiment: math.NaN()}, {Sentiment: 4}, {Sentiment: -0.9}},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// one valid bearish article: score 44, confidence 70+2
	if rec.Rating != 44 || rec.Confidence != 72 || rec.DataQuality != 25 {
		t.Fatalf("rating=%d confidence=%v quality=%v", rec.Rating, rec.Confidence, rec.DataQuality)
	}
}

func TestComprehensiveRequiresPrice(t *testing.T) {
	a := newTestAnalyzer(models.MarketWindow{})
	if _, err := a.Analyze(&models.SignalSnapshot{Symbol: "AAPL"}); !errors.Is(err, ErrNoCurrentPrice) {
		t.Fatalf("err = %v, want ErrNoCurrentPrice", err)
	}
}

func TestSeasonalAdjustmentBounded(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for d := 0; d < 366; d++ {
		adj := SeasonalAdjustment(start.AddDate(0, 0, d))
		if math.Abs(adj) > maxSeasonalAdjustment+1e-12 {
			t.Fatalf("day %d: adjustment %v exceeds bound", d, adj)
		}
	}
	// Friday in December stacks both positive terms
	if got := SeasonalAdjustment(time.Date(2024, 12, 6, 12, 0, 0, 0, time.UTC)); math.Abs(got-0.002) > 1e-12 {
		t.Fatalf("december friday = %v", got)
	}
}

func TestZScoreDetectorFlagsShock(t *testing.T) {
	prices := make([]float64, 0, 42)
	for i := 0; i < 41; i++ {
		p := 100.0
		if i%2 == 1 {
			p = 100.1
		}
		prices = append(prices, p)
	}
	prices = append(prices, 108)
	h := history(prices...)
	for i := range h {
		h[i].Volume = 1000
	}
	h[len(h)-1].Volume = 1000

	got, err := NewZScoreDetector(30, 3).Detect(context.Background(), "AAPL", h)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var shock bool
	for _, a := range got {
		if a.Type == "shock_up" && a.Severity >= 3 {
			shock = true
		}
		if a.Type == "volume_spike" {
			t.Fatalf("flat volume flagged: %+v", a)
		}
	}
	if !shock {
		t.Fatalf("expected shock_up, got %+v", got)
	}

	short, _ := NewZScoreDetector(30, 3).Detect(context.Background(), "AAPL", h[:10])
	if len(short) != 0 {
		t.Fatalf("short history flagged: %+v", short)
	}
}

func TestLexiconSentiment(t *testing.T) {
	l := NewLexiconSentiment(map[string][]string{"AAPL": {"Apple"}})

	s, r := l.Score("AAPL", "Apple beats estimates as iPhone sales surge", "")
	if s <= 0.3 || r != 10 {
		t.Fatalf("positive headline scored %v relevance %v", s, r)
	}
	s, r = l.Score("AAPL", "Regulators open probe after chipmaker misses, shares plunge", "Pineapple growers unaffected")
	if s >= -0.3 || r != 3 {
		t.Fatalf("negative headline scored %v relevance %v", s, r)
	}
	s, _ = l.Score("AAPL", "Markets open on Tuesday", "")
	if s != 0 {
		t.Fatalf("neutral headline scored %v", s)
	}
}
