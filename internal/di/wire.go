//go:build wireinject
// +build wireinject

package di

import (
	"StockPulse/pkg/config"
	"StockPulse/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideMarketHours,
	ProvideClickHouseClient,
	ProvideMarketStore,
	ProvideRedisClient,
	ProvideCacheService,
	ProvideKafkaProducer,
	ProvideEventPublisher,
)

var predictionSet = wire.NewSet(
	ProvideMarketDataProvider,
	ProvidePredictionEngine,
	ProvidePredictionCache,
	ProvideMarketJobs,
	ProvideQueue,
	ProvideDashboardService,
	ProvideScheduler,
)

var transportSet = wire.NewSet(
	ProvidePredictionHandler,
	ProvideHTTPServer,
	ProvideTickCollector,
	ProvideTickConsumer,
)

// InitializeApp wires up all dependencies and returns the application with
// a cleanup that releases the shared clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(infraSet, predictionSet, transportSet, ProvideApp)
	return nil, nil, nil
}
