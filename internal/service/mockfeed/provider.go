package mockfeed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
)

const providerName = "mock"

var headlines = []struct {
	text      string
	sentiment float64
}{
	{"%s beats earnings expectations on strong demand", 0.7},
	{"%s shares rally after analyst upgrade", 0.6},
	{"%s announces expanded buyback program", 0.4},
	{"%s holds annual shareholder meeting", 0},
	{"%s faces regulatory probe over disclosures", -0.6},
	{"%s misses revenue estimates, guidance cut", -0.7},
}

// Provider is a deterministic market feed for development and tests. Each
// symbol walks from its base price; the walk is a pure function of seed,
// symbol and bar time so repeated calls agree.
type Provider struct {
	seed     int64
	base     map[string]float64
	interval time.Duration
	now      func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Provider)

func WithBasePrice(symbol string, price float64) Option {
	return func(p *Provider) { p.base[strings.ToUpper(symbol)] = price }
}

func WithInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithNow(fn func() time.Time) Option {
	return func(p *Provider) {
		if fn != nil {
			p.now = fn
		}
	}
}

func New(seed int64, opts ...Option) *Provider {
	p := &Provider{
		seed:     seed,
		base:     map[string]float64{},
		interval: time.Hour,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func symbolHash(symbol string) int64 {
	var h int64 = 1469598103
	for i := 0; i < len(symbol); i++ {
		h = h*131 + int64(symbol[i])
	}
	return h
}

func (p *Provider) basePrice(symbol string) float64 {
	if v, ok := p.base[symbol]; ok {
		return v
	}
	return 50 + float64(uint64(symbolHash(symbol))%400)
}

// priceAt derives the bar close at t as a bounded oscillation around base.
func (p *Provider) priceAt(symbol string, t time.Time) (price, volume float64) {
	bar := t.Truncate(p.interval).Unix() / int64(p.interval/time.Second)
	r := rand.New(rand.NewSource(p.seed ^ symbolHash(symbol) ^ bar))
	base := p.basePrice(symbol)
	phase := float64(bar) / 24
	drift := 0.03*math.Sin(phase) + 0.01*math.Sin(phase/7)
	noise := (r.Float64() - 0.5) * 0.01
	price = math.Round(base*(1+drift+noise)*100) / 100
	volume = math.Round(1e5 * (0.5 + r.Float64()))
	return price, volume
}

func (p *Provider) Quote(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	now := p.now().UTC()
	price, vol := p.priceAt(symbol, now)
	prev, _ := p.priceAt(symbol, now.Add(-24*time.Hour))
	return &models.PriceRecord{
		Symbol:        symbol,
		Price:         price,
		Open:          prev,
		High:          math.Max(price, prev),
		Low:           math.Min(price, prev),
		PrevClose:     prev,
		ChangePercent: (price - prev) / prev * 100,
		Volume:        vol,
		Source:        providerName,
		Timestamp:     now,
	}, nil
}

func (p *Provider) History(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	var out []models.PriceRecord
	for t := from.Truncate(p.interval); !t.After(to); t = t.Add(p.interval) {
		if t.Before(from) {
			continue
		}
		price, vol := p.priceAt(symbol, t)
		out = append(out, models.PriceRecord{
			Symbol:    symbol,
			Price:     price,
			Volume:    vol,
			Source:    providerName,
			Timestamp: t.UTC(),
		})
	}
	return out, nil
}

func (p *Provider) News(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	var out []models.NewsItem
	for t := from.Truncate(6 * time.Hour); !t.After(to); t = t.Add(6 * time.Hour) {
		if t.Before(from) {
			continue
		}
		r := rand.New(rand.NewSource(p.seed ^ symbolHash(symbol) ^ t.Unix()))
		h := headlines[r.Intn(len(headlines))]
		out = append(out, models.NewsItem{
			ID:          fmt.Sprintf("%s:%s:%d", providerName, symbol, t.Unix()),
			Symbol:      symbol,
			Headline:    fmt.Sprintf(h.text, symbol),
			Source:      providerName,
			PublishedAt: t.UTC(),
		})
	}
	return out, nil
}

func (p *Provider) InsiderTrades(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTrade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.InsiderTrade
	for d := from.Truncate(24 * time.Hour); !d.After(to); d = d.Add(7 * 24 * time.Hour) {
		if d.Before(from) {
			continue
		}
		change := int64(p.rng.Intn(2000) - 1000)
		code := "P"
		if change < 0 {
			code = "S"
		}
		price, _ := p.priceAt(symbol, d)
		out = append(out, models.InsiderTrade{
			Symbol:          symbol,
			Name:            fmt.Sprintf("Insider %d", p.rng.Intn(5)+1),
			Shares:          10000 + change,
			Change:          change,
			Price:           price,
			TransactionCode: code,
			TransactionDate: d.UTC(),
			FiledAt:         d.Add(48 * time.Hour).UTC(),
		})
	}
	return out, nil
}

func (p *Provider) Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	now := p.now().UTC()
	price, _ := p.priceAt(symbol, now)
	r := rand.New(rand.NewSource(p.seed ^ symbolHash(symbol)))
	pe := 12 + r.Float64()*28
	return &models.Fundamentals{
		Symbol:        symbol,
		MarketCap:     price * 1e9,
		PERatio:       math.Round(pe*100) / 100,
		EPS:           math.Round(price/pe*100) / 100,
		DividendYield: math.Round(r.Float64()*300) / 100,
		Beta:          math.Round((0.6+r.Float64())*100) / 100,
		High52W:       p.basePrice(symbol) * 1.05,
		Low52W:        p.basePrice(symbol) * 0.95,
		Timestamp:     now,
	}, nil
}
