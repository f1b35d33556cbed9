package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/service/ratelimit"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://finnhub.io/api/v1"
	providerName   = "finnhub"
	dateLayout     = "2006-01-02"
)

// REST implements the market data provider contract over Finnhub's HTTP API.
// Calls share one token bucket sized for the free tier.
type REST struct {
	client  *resty.Client
	apiKey  string
	limiter *ratelimit.Limiter
}

type RESTOption func(*REST)

func WithBaseURL(u string) RESTOption {
	return func(r *REST) {
		if u != "" {
			r.client.SetBaseURL(u)
		}
	}
}

func WithTimeout(d time.Duration) RESTOption {
	return func(r *REST) {
		if d > 0 {
			r.client.SetTimeout(d)
		}
	}
}

func WithLimiter(l *ratelimit.Limiter) RESTOption {
	return func(r *REST) { r.limiter = l }
}

func WithRetries(n int) RESTOption {
	return func(r *REST) {
		r.client.SetRetryCount(n).
			SetRetryWaitTime(500 * time.Millisecond).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
			})
	}
}

func NewREST(apiKey string, opts ...RESTOption) *REST {
	r := &REST{
		client:  resty.New().SetBaseURL(DefaultBaseURL).SetTimeout(10 * time.Second),
		apiKey:  apiKey,
		limiter: ratelimit.New(1, 30),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *REST) Name() string { return providerName }

func (r *REST) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	if r.apiKey == "" {
		return fmt.Errorf("finnhub: api key not configured")
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, providerName); err != nil {
			return fmt.Errorf("finnhub %s: %w", path, err)
		}
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("token", r.apiKey).
		Get(path)
	if err != nil {
		return fmt.Errorf("finnhub %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("finnhub %s: status %d: %s", path, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("finnhub %s: decode: %w", path, err)
	}
	return nil
}

type quoteResponse struct {
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	DP float64 `json:"dp"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
	T  int64   `json:"t"`
}

func (r *REST) Quote(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	symbol = strings.ToUpper(symbol)
	var q quoteResponse
	if err := r.get(ctx, "/quote", map[string]string{"symbol": symbol}, &q); err != nil {
		return nil, err
	}
	if q.C <= 0 {
		return nil, nil
	}
	ts := time.Now().UTC()
	if q.T > 0 {
		ts = time.Unix(q.T, 0).UTC()
	}
	return &models.PriceRecord{
		Symbol:        symbol,
		Price:         q.C,
		Open:          q.O,
		High:          q.H,
		Low:           q.L,
		PrevClose:     q.PC,
		ChangePercent: q.DP,
		Source:        providerName,
		Timestamp:     ts,
	}, nil
}

type candleResponse struct {
	C []float64 `json:"c"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	O []float64 `json:"o"`
	V []float64 `json:"v"`
	T []int64   `json:"t"`
	S string    `json:"s"`
}

// History pulls hourly candles for [from, to].
func (r *REST) History(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceRecord, error) {
	symbol = strings.ToUpper(symbol)
	var c candleResponse
	err := r.get(ctx, "/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": "60",
		"from":       strconv.FormatInt(from.Unix(), 10),
		"to":         strconv.FormatInt(to.Unix(), 10),
	}, &c)
	if err != nil {
		return nil, err
	}
	if c.S != "ok" {
		return nil, nil
	}
	n := len(c.T)
	if len(c.C) < n {
		n = len(c.C)
	}
	out := make([]models.PriceRecord, 0, n)
	for i := 0; i < n; i++ {
		p := models.PriceRecord{
			Symbol:    symbol,
			Price:     c.C[i],
			Source:    providerName,
			Timestamp: time.Unix(c.T[i], 0).UTC(),
		}
		if i < len(c.O) {
			p.Open = c.O[i]
		}
		if i < len(c.H) {
			p.High = c.H[i]
		}
		if i < len(c.L) {
			p.Low = c.L[i]
		}
		if i < len(c.V) {
			p.Volume = c.V[i]
		}
		out = append(out, p)
	}
	return out, nil
}

type newsResponse struct {
	ID       int64  `json:"id"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// News returns company news with neutral sentiment; scoring happens at ingest.
func (r *REST) News(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	symbol = strings.ToUpper(symbol)
	var raw []newsResponse
	err := r.get(ctx, "/company-news", map[string]string{
		"symbol": symbol,
		"from":   from.Format(dateLayout),
		"to":     to.Format(dateLayout),
	}, &raw)
	if err != nil {
		return nil, err
	}
	out := make([]models.NewsItem, 0, len(raw))
	for _, n := range raw {
		if strings.TrimSpace(n.Headline) == "" {
			continue
		}
		out = append(out, models.NewsItem{
			ID:          providerName + ":" + strconv.FormatInt(n.ID, 10),
			Symbol:      symbol,
			Headline:    n.Headline,
			Summary:     n.Summary,
			Source:      n.Source,
			URL:         n.URL,
			PublishedAt: time.Unix(n.DateTime, 0).UTC(),
		})
	}
	return out, nil
}

type insiderResponse struct {
	Data []struct {
		Name             string  `json:"name"`
		Share            int64   `json:"share"`
		Change           int64   `json:"change"`
		FilingDate       string  `json:"filingDate"`
		TransactionDate  string  `json:"transactionDate"`
		TransactionCode  string  `json:"transactionCode"`
		TransactionPrice float64 `json:"transactionPrice"`
	} `json:"data"`
}

func (r *REST) InsiderTrades(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTrade, error) {
	symbol = strings.ToUpper(symbol)
	var raw insiderResponse
	err := r.get(ctx, "/stock/insider-transactions", map[string]string{
		"symbol": symbol,
		"from":   from.Format(dateLayout),
		"to":     to.Format(dateLayout),
	}, &raw)
	if err != nil {
		return nil, err
	}
	out := make([]models.InsiderTrade, 0, len(raw.Data))
	for _, d := range raw.Data {
		txDate, err := time.Parse(dateLayout, d.TransactionDate)
		if err != nil {
			continue
		}
		filed, _ := time.Parse(dateLayout, d.FilingDate)
		out = append(out, models.InsiderTrade{
			Symbol:          symbol,
			Name:            d.Name,
			Shares:          d.Share,
			Change:          d.Change,
			Price:           d.TransactionPrice,
			TransactionCode: d.TransactionCode,
			TransactionDate: txDate,
			FiledAt:         filed,
		})
	}
	return out, nil
}

type metricResponse struct {
	Metric map[string]interface{} `json:"metric"`
}

func (r *REST) Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	symbol = strings.ToUpper(symbol)
	var raw metricResponse
	err := r.get(ctx, "/stock/metric", map[string]string{"symbol": symbol, "metric": "all"}, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw.Metric) == 0 {
		return nil, nil
	}
	num := func(key string) float64 {
		if v, ok := raw.Metric[key].(float64); ok {
			return v
		}
		return 0
	}
	return &models.Fundamentals{
		Symbol:        symbol,
		MarketCap:     num("marketCapitalization") * 1e6,
		PERatio:       num("peTTM"),
		EPS:           num("epsTTM"),
		DividendYield: num("dividendYieldIndicatedAnnual"),
		Beta:          num("beta"),
		High52W:       num("52WeekHigh"),
		Low52W:        num("52WeekLow"),
		Timestamp:     time.Now().UTC(),
	}, nil
}
