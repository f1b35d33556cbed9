package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/handler/api"
	mid "StockPulse/internal/middleware"
	internalrepo "StockPulse/internal/repository"
	"StockPulse/internal/scheduler"
	"StockPulse/internal/service/cache"
	"StockPulse/internal/service/feeds"
	"StockPulse/internal/service/finnhub"
	"StockPulse/internal/service/mockfeed"
	"StockPulse/internal/service/ratelimit"
	"StockPulse/internal/service/yahoo"
	"StockPulse/internal/services/analytics"
	"StockPulse/internal/services/markethours"
	"StockPulse/internal/usecase"
	pkgcache "StockPulse/pkg/cache"
	pkgch "StockPulse/pkg/clickhouse"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/metrics"
	"StockPulse/pkg/queue"
	"StockPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// ProvideLogger builds the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	lgr, err := xlogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr.With(xlogger.String("env", cfg.Environment), xlogger.String("mode", cfg.Mode)), nil
}

// ProvideRegistry creates the registry served on the metrics route.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates the Prometheus recorder for jobs, cache and providers.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

func ProvideMarketHours(cfg *config.Config) (domsvc.MarketHours, error) {
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market timezone: %w", err)
	}
	return markethours.New(markethours.WithLocation(loc), markethours.WithHolidays(cfg.Market.Holidays...)), nil
}

// ProvideClickHouseClient connects to ClickHouse when a host is configured
// and returns nil otherwise; the store then falls back to memory.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled() {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx, cfg.ClickHouse.Options()...)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideMarketStore picks the ClickHouse store when a client exists.
func ProvideMarketStore(cfg *config.Config, client *pkgch.Client, lgr *xlogger.Logger) domrepo.MarketStore {
	if client == nil {
		return internalrepo.NewMemoryMarketStore(domsvc.SystemClock)
	}
	return internalrepo.NewCHMarketStore(client, cfg.ClickHouse.Database, lgr)
}

// ProvideMarketDataProvider returns the seeded mock feed in mock mode and
// the Finnhub REST client, backed by Yahoo when enabled, in live mode.
func ProvideMarketDataProvider(cfg *config.Config) domrepo.MarketDataProvider {
	if cfg.Mode != config.ModeLive {
		opts := make([]mockfeed.Option, 0, len(cfg.Mock.BasePrices))
		for sym, price := range cfg.Mock.BasePrices {
			opts = append(opts, mockfeed.WithBasePrice(sym, price))
		}
		return mockfeed.New(cfg.Mock.Seed, opts...)
	}

	rest := finnhub.NewREST(cfg.Finnhub.APIKey,
		finnhub.WithBaseURL(cfg.Finnhub.BaseURL),
		finnhub.WithTimeout(cfg.Finnhub.Timeout),
		finnhub.WithLimiter(ratelimit.New(cfg.Finnhub.PerSecond, cfg.Finnhub.Burst)),
		finnhub.WithRetries(cfg.Finnhub.Retries),
	)
	if !cfg.Yahoo.Enabled {
		return rest
	}
	return feeds.NewChain(rest, yahoo.New())
}

// ProvideRedisClient dials Redis when an address is configured.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled() {
		return nil, func() {}, nil
	}
	client, _, err := pkgcache.NewRedisClient(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideCacheService backs dashboard snapshots and scheduler locks with
// Redis when available and an in-process cache otherwise.
func ProvideCacheService(cfg *config.Config, client *redis.Client) (pkgcache.Service, func()) {
	if client != nil {
		return pkgcache.NewRedisCache(client, cfg.Redis.Prefix), func() {}
	}
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(time.Minute))
	return mc, func() { _ = mc.Close() }
}

func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled() {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Timeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.RetryMax),
		pkgkafka.WithBatching(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideEventPublisher returns nil when Kafka is not configured.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) *internalrepo.KafkaEventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics)
}

func ProvidePredictionEngine(cfg *config.Config, store domrepo.MarketStore, hours domsvc.MarketHours) *usecase.PredictionEngine {
	agg := usecase.NewSignalAggregator(store,
		usecase.WithFetchTimeout(cfg.Prediction.FetchTimeout),
		usecase.WithLookback(usecase.Lookback{
			NewsHours:    cfg.Prediction.NewsHours,
			HistoryHours: cfg.Prediction.HistoryHours,
		}),
	)
	return usecase.NewPredictionEngine(
		agg,
		analytics.NewDirectionalScorer(),
		analytics.NewRangePredictor(),
		analytics.NewComprehensiveAnalyzer(hours),
	)
}

// ProvidePredictionCache gates and stores comprehensive predictions. With
// Redis present accepted entries are mirrored for other replicas.
func ProvidePredictionCache(
	cfg *config.Config,
	engine *usecase.PredictionEngine,
	hours domsvc.MarketHours,
	svc pkgcache.Service,
	client *redis.Client,
	m domrepo.Metrics,
	lgr *xlogger.Logger,
) *cache.PredictionCache {
	opts := []cache.Option{
		cache.WithMinConfidence(cfg.Prediction.MinConfidence),
		cache.WithTTLs(cfg.Prediction.OpenTTL, cfg.Prediction.ClosedTTL),
		cache.WithMetrics(m),
		cache.WithLogger(lgr.With(xlogger.String("component", "prediction_cache"))),
	}
	if client != nil {
		opts = append(opts, cache.WithMirror(svc))
	}
	return cache.NewPredictionCache(engine.Comprehensive, hours, opts...)
}

func ProvideMarketJobs(
	cfg *config.Config,
	provider domrepo.MarketDataProvider,
	store domrepo.MarketStore,
	engine *usecase.PredictionEngine,
	pc *cache.PredictionCache,
	publisher *internalrepo.KafkaEventPublisher,
	m domrepo.Metrics,
	lgr *xlogger.Logger,
) *usecase.MarketJobs {
	opts := []usecase.JobsOption{usecase.WithJobsMetrics(m)}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	return usecase.NewMarketJobs(
		cfg.Jobs,
		provider,
		store,
		engine,
		pc,
		analytics.NewZScoreDetector(cfg.Prediction.AnomalyWindow, cfg.Prediction.AnomalyZScore),
		analytics.NewLexiconSentiment(nil),
		lgr,
		opts...,
	)
}

// ProvideQueue runs manual refreshes on Redis when available so any replica
// can pick them up, and in process otherwise.
func ProvideQueue(cfg *config.Config, client *redis.Client, jobs *usecase.MarketJobs, svc pkgcache.Service, lgr *xlogger.Logger) queue.Queue {
	var q queue.Queue
	if client != nil {
		q = queue.NewRedisQueue(lgr, cfg.Queue, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	} else {
		q = queue.NewLocalQueue(lgr, cfg.Queue)
	}
	q.RegisterJob(usecase.NewRefreshJob(jobs, svc, lgr))
	return q
}

func ProvideDashboardService(
	cfg *config.Config,
	store domrepo.MarketStore,
	pc *cache.PredictionCache,
	hours domsvc.MarketHours,
	q queue.Queue,
	svc pkgcache.Service,
	lgr *xlogger.Logger,
) *usecase.DashboardService {
	return usecase.NewDashboardService(store, pc, hours, q, lgr,
		usecase.WithSnapshotCache(svc, cfg.Prediction.SnapshotTTL))
}

// ProvideScheduler builds the task loops. The initial load runs inside
// Start; the distributed lock only applies when Redis is shared.
func ProvideScheduler(
	cfg *config.Config,
	hours domsvc.MarketHours,
	jobs *usecase.MarketJobs,
	store domrepo.MarketStore,
	svc pkgcache.Service,
	client *redis.Client,
	m domrepo.Metrics,
	lgr *xlogger.Logger,
) (*scheduler.Scheduler, error) {
	opts := []scheduler.Option{
		scheduler.WithInitialLoad(jobs.LoadInitial),
		scheduler.WithCallLog(store),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(lgr),
	}
	if client != nil {
		opts = append(opts, scheduler.WithDistributedLock(svc, cfg.Prediction.SchedulerLockTTL))
	}
	s, err := scheduler.New(hours, scheduler.DefaultTasks(jobs, cfg.Schedule), opts...)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return s, nil
}

func ProvidePredictionHandler(
	cfg *config.Config,
	dashboard *usecase.DashboardService,
	engine *usecase.PredictionEngine,
	pc *cache.PredictionCache,
	store domrepo.MarketStore,
	hours domsvc.MarketHours,
	sched *scheduler.Scheduler,
	ch *pkgch.Client,
	client *redis.Client,
	lgr *xlogger.Logger,
) *api.PredictionHandler {
	opts := []api.HandlerOption{
		api.WithRefreshLimit(cfg.Prediction.RefreshPerMinute, cfg.Prediction.RefreshBurst),
		api.WithHealthCheck("store", store),
		api.WithTaskRunner(sched),
	}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch))
	}
	if client != nil {
		opts = append(opts, api.WithHealthCheck("redis", api.HealthFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})))
	}
	return api.NewPredictionHandler(lgr, dashboard, engine, pc, store, hours, opts...)
}

func ProvideHTTPServer(cfg *config.Config, lgr *xlogger.Logger, reg *prometheus.Registry, h *api.PredictionHandler) *xhttp.Server {
	return xhttp.NewServer(lgr, reg, []xhttp.Handler{h}, xhttp.WithConfig(cfg.Server))
}

// ProvideTickCollector assembles the live tick path when streaming is on:
// Finnhub stream, throttling pipeline, then the configured writer backend.
func ProvideTickCollector(
	cfg *config.Config,
	store domrepo.MarketStore,
	publisher *internalrepo.KafkaEventPublisher,
	m domrepo.Metrics,
	lgr *xlogger.Logger,
) (*usecase.TickCollector, error) {
	if !cfg.Stream.Enabled {
		return nil, nil
	}
	var pub domrepo.TickPublisher
	if publisher != nil {
		pub = publisher
	}
	writer, err := usecase.NewTickWriter(cfg.Stream.Backend, store, pub, m)
	if err != nil {
		return nil, fmt.Errorf("tick writer: %w", err)
	}
	pipe := mid.NewTickPipeline(writer, m,
		mid.WithMaxPerSecond(cfg.Stream.MaxPerSec),
		mid.WithBufferSize(cfg.Stream.BufferSize),
		mid.WithPipelineLogger(lgr),
	)
	stream := finnhub.NewStream(finnhub.StreamConfig{
		APIKey:         cfg.Finnhub.APIKey,
		URL:            cfg.Finnhub.StreamURL,
		Symbols:        cfg.Jobs.Symbols,
		ReconnectDelay: cfg.Finnhub.Reconnect,
		PingInterval:   cfg.Finnhub.PingPeriod,
	}, lgr)
	return usecase.NewTickCollector(stream, pipe, m, lgr), nil
}

// ProvideTickConsumer stores ticks from the broker when the kafka backend
// is selected.
func ProvideTickConsumer(cfg *config.Config, store domrepo.MarketStore, m domrepo.Metrics, lgr *xlogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Stream.Enabled || cfg.Stream.Backend != usecase.TickBackendKafka {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, 50*time.Millisecond, 2*time.Second),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.BufferSize),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	handler, err := usecase.NewKafkaTicksHandler(cfg.Kafka.Topics.Ticks, store, m)
	if err != nil {
		return nil, err
	}
	consumer.RegisterHandler(handler)
	return consumer, nil
}

// ProvideApp orders the components: storage and queue first, then the tick
// path, the HTTP server, and finally the scheduler whose start performs the
// initial load.
func ProvideApp(
	cfg *config.Config,
	lgr *xlogger.Logger,
	store domrepo.MarketStore,
	q queue.Queue,
	sched *scheduler.Scheduler,
	srv *xhttp.Server,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
) *server.App {
	app := server.New(lgr, cfg.Server.ShutdownTimeout)

	if producer != nil {
		app.Add(server.Component{
			Name: "log_collector",
			Start: func(context.Context) error {
				lgr.AddCollector(&xlogger.CollectionConfig{
					TimeInterval:   time.Minute,
					CountThreshold: 100,
					Topic:          cfg.Kafka.Topics.Logs,
					Publisher:      producer,
				})
				return nil
			},
			Stop: func(context.Context) error {
				lgr.RemoveCollector()
				return nil
			},
		})
	}

	app.Add(server.Component{Name: "store", Start: store.Init})
	app.Add(server.Component{
		Name:  "queue",
		Start: func(context.Context) error { return q.Start() },
		Stop:  q.Stop,
	})
	if consumer != nil {
		app.Add(server.Component{
			Name:  "tick_consumer",
			Start: func(context.Context) error { return consumer.Start() },
			Stop:  consumer.Stop,
		})
	}
	if collector != nil {
		app.Add(server.Component{Name: "tick_collector", Start: collector.Start, Stop: collector.Shutdown})
	}
	app.Add(server.Component{Name: "http", Start: func(context.Context) error { return srv.Start() }, Stop: srv.Stop})
	app.Add(server.Component{Name: "scheduler", Start: sched.Start, Stop: sched.Stop})

	lgr.Info("application assembled",
		xlogger.Strings("symbols", cfg.Jobs.Symbols),
		xlogger.String("store", storeKind(cfg)),
		xlogger.Bool("stream", cfg.Stream.Enabled))
	return app
}

func storeKind(cfg *config.Config) string {
	if cfg.ClickHouse.Enabled() {
		return "clickhouse:" + strings.ToLower(cfg.ClickHouse.Database)
	}
	return "memory"
}
