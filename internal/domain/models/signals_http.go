package models

// Requests for the prediction HTTP endpoints.

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
}

type FastPredictionRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required,ticker"`
	NewsHours int    `query:"news_hours" json:"news_hours" default:"24" validate:"gte=1,lte=168"`
}

type RefreshRequest struct {
	Symbol string `json:"symbol" query:"symbol" validate:"required,ticker"`
}

type ClearCacheRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,ticker"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	Hours  int    `query:"hours" json:"hours" default:"24" validate:"gte=1,lte=720"`
}

// DashboardSnapshot is a read of the latest stored state, not a recompute.
type DashboardSnapshot struct {
	Symbol              string            `json:"symbol"`
	CurrentPrice        *PriceRecord      `json:"current_price"`
	Indicators          *Indicators       `json:"indicators"`
	Fundamentals        *Fundamentals     `json:"fundamentals"`
	LatestPrediction    *PredictionRecord `json:"latest_prediction"`
	RecentInsiderTrades []InsiderTrade    `json:"recent_insider_trades"`
	RecentNews          []NewsItem        `json:"recent_news"`
	Market              MarketWindow      `json:"market"`
}

// RefreshAck acknowledges an asynchronous refresh request.
type RefreshAck struct {
	Symbol    string `json:"symbol"`
	RequestID string `json:"request_id"`
	Queued    bool   `json:"queued"`
}
