package models

import "time"

// PriceRecord is a single quote or history point for a symbol.
type PriceRecord struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	PrevClose     float64   `json:"prev_close,omitempty"`
	ChangePercent float64   `json:"change_percent"`
	Volume        float64   `json:"volume"`
	Source        string    `json:"source,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type Indicators struct {
	Symbol     string    `json:"symbol"`
	RSI        float64   `json:"rsi"`
	MACD       float64   `json:"macd"`
	MACDSignal float64   `json:"macd_signal"`
	SMA20      float64   `json:"sma_20"`
	SMA50      float64   `json:"sma_50"`
	EMA12      float64   `json:"ema_12,omitempty"`
	EMA26      float64   `json:"ema_26,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Fundamentals struct {
	Symbol        string    `json:"symbol"`
	MarketCap     float64   `json:"market_cap"`
	PERatio       float64   `json:"pe_ratio"`
	EPS           float64   `json:"eps"`
	DividendYield float64   `json:"dividend_yield"`
	Beta          float64   `json:"beta"`
	High52W       float64   `json:"high_52w"`
	Low52W        float64   `json:"low_52w"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewsItem carries a sentiment in [-1,1] and a relevance in [0,10].
type NewsItem struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	Sentiment   float64   `json:"sentiment"`
	Relevance   float64   `json:"relevance"`
	PublishedAt time.Time `json:"published_at"`
}

type InsiderTrade struct {
	Symbol          string    `json:"symbol"`
	Name            string    `json:"name"`
	Shares          int64     `json:"shares"`
	Change          int64     `json:"change"`
	Price           float64   `json:"price"`
	TransactionCode string    `json:"transaction_code"`
	TransactionDate time.Time `json:"transaction_date"`
	FiledAt         time.Time `json:"filed_at"`
}

type MarketAnomaly struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`     // "shock_up", "shock_down", "vol_spike", "volume_spike"
	Severity   float64   `json:"severity"` // z-score magnitude
	Return     float64   `json:"return"`
	Volatility float64   `json:"volatility"`
}

// Tick is a single live trade print from a streaming source.
type Tick struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"` // unix millis
}

func (t Tick) Time() time.Time { return time.UnixMilli(t.Timestamp).UTC() }

// APICallLog records one outbound provider call or job execution.
type APICallLog struct {
	Provider  string    `json:"provider"`
	Endpoint  string    `json:"endpoint"`
	Success   bool      `json:"success"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
