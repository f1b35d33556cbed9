package repository

import (
	"context"
	"time"

	"StockPulse/internal/domain/models"
)

// MarketReader is the read side of the storage collaborator.
// "No data" is reported as a nil record or an empty slice with a nil error.
type MarketReader interface {
	GetLatestPrice(ctx context.Context, symbol string) (*models.PriceRecord, error)
	GetLatestTechnicalIndicators(ctx context.Context, symbol string) (*models.Indicators, error)
	GetLatestFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)
	GetRecentNews(ctx context.Context, symbol string, hours int) ([]models.NewsItem, error)
	GetPriceHistory(ctx context.Context, symbol string, hours int) ([]models.PriceRecord, error)
	GetRecentInsiderTrades(ctx context.Context, symbol string, limit int) ([]models.InsiderTrade, error)
	GetLatestPrediction(ctx context.Context, symbol, model string) (*models.PredictionRecord, error)
}

type MarketWriter interface {
	InsertPrices(ctx context.Context, prices []models.PriceRecord) error
	InsertIndicators(ctx context.Context, ind models.Indicators) error
	InsertFundamentals(ctx context.Context, f models.Fundamentals) error
	InsertNews(ctx context.Context, items []models.NewsItem) error
	InsertInsiderTrades(ctx context.Context, trades []models.InsiderTrade) error
	InsertAnomalies(ctx context.Context, anomalies []models.MarketAnomaly) error
}

type PredictionWriter interface {
	InsertPredictionRecord(ctx context.Context, rec models.PredictionRecord) (models.PredictionRecord, error)
}

type APICallLogger interface {
	InsertAPICallLog(ctx context.Context, provider, endpoint string, success bool, latencyMs int64, errMsg string) error
}

// MarketStore is the full storage collaborator.
type MarketStore interface {
	MarketReader
	MarketWriter
	PredictionWriter
	APICallLogger
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// MarketDataProvider is the fetch contract of an external market-data feed.
// Live and mock feeds both satisfy it.
type MarketDataProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (*models.PriceRecord, error)
	History(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceRecord, error)
	News(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error)
	InsiderTrades(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTrade, error)
	Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)
}

type TickStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// EventPublisher fans accepted predictions and anomalies out to downstream consumers.
type EventPublisher interface {
	PublishPrediction(ctx context.Context, rec models.PredictionRecord) error
	PublishAnomalies(ctx context.Context, anomalies []models.MarketAnomaly) error
	Close() error
}

// TickPublisher forwards live ticks to a broker for asynchronous storage.
type TickPublisher interface {
	PublishTick(ctx context.Context, t *models.Tick) error
}

type Metrics interface {
	RecordJobRun(job string, success bool, seconds float64)
	RecordJobSkipped(job string)
	RecordPrediction(symbol, model string, rec models.Recommendation, confidence float64)
	RecordCacheResult(result string)
	RecordProviderCall(provider, endpoint string, success bool, seconds float64)
	RecordLastPrice(symbol string, price float64)
	RecordError(kind string)
}
