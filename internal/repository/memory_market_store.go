package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
)

const maxPricesPerSymbol = 50_000

// MemoryMarketStore keeps market state in process. It backs mock mode and tests.
type MemoryMarketStore struct {
	mu           sync.RWMutex
	clock        domsvc.Clock
	prices       map[string][]models.PriceRecord
	indicators   map[string]models.Indicators
	fundamentals map[string]models.Fundamentals
	news         map[string]map[string]models.NewsItem
	insiders     map[string][]models.InsiderTrade
	anomalies    map[string][]models.MarketAnomaly
	predictions  map[string][]models.PredictionRecord
	apiCalls     []models.APICallLog
}

var _ domrepo.MarketStore = (*MemoryMarketStore)(nil)

func NewMemoryMarketStore(clock domsvc.Clock) *MemoryMarketStore {
	if clock == nil {
		clock = domsvc.SystemClock
	}
	return &MemoryMarketStore{
		clock:        clock,
		prices:       make(map[string][]models.PriceRecord),
		indicators:   make(map[string]models.Indicators),
		fundamentals: make(map[string]models.Fundamentals),
		news:         make(map[string]map[string]models.NewsItem),
		insiders:     make(map[string][]models.InsiderTrade),
		anomalies:    make(map[string][]models.MarketAnomaly),
		predictions:  make(map[string][]models.PredictionRecord),
	}
}

func (s *MemoryMarketStore) Init(context.Context) error   { return nil }
func (s *MemoryMarketStore) Health(context.Context) error { return nil }
func (s *MemoryMarketStore) Close() error                 { return nil }

func symbolKey(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

func (s *MemoryMarketStore) InsertPrices(_ context.Context, prices []models.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := map[string]struct{}{}
	for _, p := range prices {
		k := symbolKey(p.Symbol)
		p.Symbol = k
		s.prices[k] = append(s.prices[k], p)
		touched[k] = struct{}{}
	}
	for k := range touched {
		s.prices[k] = dedupPrices(s.prices[k])
	}
	return nil
}

// dedupPrices sorts ascending and keeps the last write for each timestamp.
func dedupPrices(in []models.PriceRecord) []models.PriceRecord {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Timestamp.Before(in[j].Timestamp) })
	out := in[:0]
	for _, p := range in {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	if len(out) > maxPricesPerSymbol {
		out = append([]models.PriceRecord(nil), out[len(out)-maxPricesPerSymbol:]...)
	}
	return out
}

func (s *MemoryMarketStore) InsertIndicators(_ context.Context, ind models.Indicators) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ind.Symbol = symbolKey(ind.Symbol)
	s.indicators[ind.Symbol] = ind
	return nil
}

func (s *MemoryMarketStore) InsertFundamentals(_ context.Context, f models.Fundamentals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Symbol = symbolKey(f.Symbol)
	s.fundamentals[f.Symbol] = f
	return nil
}

func (s *MemoryMarketStore) InsertNews(_ context.Context, items []models.NewsItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range items {
		k := symbolKey(n.Symbol)
		n.Symbol = k
		if s.news[k] == nil {
			s.news[k] = make(map[string]models.NewsItem)
		}
		s.news[k][n.ID] = n
	}
	return nil
}

func (s *MemoryMarketStore) InsertInsiderTrades(_ context.Context, trades []models.InsiderTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		k := symbolKey(t.Symbol)
		t.Symbol = k
		dup := false
		for _, have := range s.insiders[k] {
			if have.Name == t.Name && have.Change == t.Change && have.TransactionDate.Equal(t.TransactionDate) {
				dup = true
				break
			}
		}
		if !dup {
			s.insiders[k] = append(s.insiders[k], t)
		}
	}
	return nil
}

func (s *MemoryMarketStore) InsertAnomalies(_ context.Context, anomalies []models.MarketAnomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range anomalies {
		k := symbolKey(a.Symbol)
		a.Symbol = k
		s.anomalies[k] = append(s.anomalies[k], a)
	}
	return nil
}

func (s *MemoryMarketStore) InsertPredictionRecord(_ context.Context, rec models.PredictionRecord) (models.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Symbol = symbolKey(rec.Symbol)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now()
	}
	rec.Reasoning = append([]string(nil), rec.Reasoning...)
	s.predictions[rec.Symbol] = append(s.predictions[rec.Symbol], rec)
	return rec, nil
}

func (s *MemoryMarketStore) InsertAPICallLog(_ context.Context, provider, endpoint string, success bool, latencyMs int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiCalls = append(s.apiCalls, models.APICallLog{
		Provider:  provider,
		Endpoint:  endpoint,
		Success:   success,
		LatencyMs: latencyMs,
		Error:     errMsg,
		CreatedAt: s.clock.Now(),
	})
	return nil
}

func (s *MemoryMarketStore) GetLatestPrice(_ context.Context, symbol string) (*models.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps := s.prices[symbolKey(symbol)]
	if len(ps) == 0 {
		return nil, nil
	}
	p := ps[len(ps)-1]
	return &p, nil
}

func (s *MemoryMarketStore) GetLatestTechnicalIndicators(_ context.Context, symbol string) (*models.Indicators, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ind, ok := s.indicators[symbolKey(symbol)]
	if !ok {
		return nil, nil
	}
	return &ind, nil
}

func (s *MemoryMarketStore) GetLatestFundamentals(_ context.Context, symbol string) (*models.Fundamentals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fundamentals[symbolKey(symbol)]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *MemoryMarketStore) GetRecentNews(_ context.Context, symbol string, hours int) ([]models.NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	var out []models.NewsItem
	for _, n := range s.news[symbolKey(symbol)] {
		if !n.PublishedAt.Before(since) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out, nil
}

func (s *MemoryMarketStore) GetPriceHistory(_ context.Context, symbol string, hours int) ([]models.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	ps := s.prices[symbolKey(symbol)]
	i := sort.Search(len(ps), func(i int) bool { return !ps[i].Timestamp.Before(since) })
	if i == len(ps) {
		return nil, nil
	}
	return append([]models.PriceRecord(nil), ps[i:]...), nil
}

func (s *MemoryMarketStore) GetRecentInsiderTrades(_ context.Context, symbol string, limit int) ([]models.InsiderTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.InsiderTrade(nil), s.insiders[symbolKey(symbol)]...)
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryMarketStore) GetLatestPrediction(_ context.Context, symbol, model string) (*models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.predictions[symbolKey(symbol)]
	for i := len(recs) - 1; i >= 0; i-- {
		if model == "" || recs[i].ModelUsed == model {
			rec := recs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// Predictions returns every stored record for symbol in insertion order.
func (s *MemoryMarketStore) Predictions(symbol string) []models.PredictionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PredictionRecord(nil), s.predictions[symbolKey(symbol)]...)
}

func (s *MemoryMarketStore) Anomalies(symbol string) []models.MarketAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.MarketAnomaly(nil), s.anomalies[symbolKey(symbol)]...)
}

func (s *MemoryMarketStore) APICalls() []models.APICallLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.APICallLog(nil), s.apiCalls...)
}
