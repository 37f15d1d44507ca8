package di

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/internal/handler/api"
	"CoinDash/internal/handler/ws"
	internalrepo "CoinDash/internal/repository"
	"CoinDash/internal/scheduler"
	"CoinDash/internal/usecase"
	"CoinDash/pkg/cache"
	pkgch "CoinDash/pkg/clickhouse"
	"CoinDash/pkg/config"
	xhttp "CoinDash/pkg/http"
	"CoinDash/pkg/http/middleware"
	pkgkafka "CoinDash/pkg/kafka"
	applogger "CoinDash/pkg/logger"
	"CoinDash/pkg/metrics"
	pkgpg "CoinDash/pkg/postgres"
	"CoinDash/pkg/server"
	"CoinDash/pkg/util"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideCache creates the shared cache: Redis behind an in-process L1 when
// Redis is enabled, otherwise an in-process cache only.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
		l.Info("cache: in-memory", applogger.Int("max_size", cfg.Cache.MemoryMaxSize))
		return mc, func() { _ = mc.Close() }, nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		cache.WithLayeredMemoryTTL(time.Minute),
	)
	l.Info("cache: redis",
		applogger.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)),
		applogger.String("prefix", cfg.Redis.Prefix),
	)
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideSeriesStore opens the configured series backend.
func ProvideSeriesStore(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) (domrepo.SeriesStore, func(), error) {
	var store interface {
		domrepo.SeriesStore
		SetLogger(*applogger.Logger)
	}

	switch cfg.Store.Backend {
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.CHSchema); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		store = internalrepo.NewCHSeriesStore(client, m)

	case "postgres":
		client, err := pkgpg.NewClient(
			pkgpg.WithDSN(cfg.Postgres.DSN),
			pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
			pkgpg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		store = internalrepo.NewPGSeriesStore(client, m)

	case "postgrest":
		store = internalrepo.NewRESTSeriesStore(cfg.PostgREST.URL, cfg.PostgREST.APIKey, cfg.PostgREST.Timeout, m)

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	store.SetLogger(l)
	l.Info("series store ready", applogger.String("backend", cfg.Store.Backend))
	return store, func() {
		if err := store.Close(); err != nil {
			l.Warn("series store close", applogger.Error(err))
		}
	}, nil
}

// ProvideCachedSeriesStore puts the shared cache in front of the backend.
func ProvideCachedSeriesStore(store domrepo.SeriesStore, c cache.Service, cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) *internalrepo.CachedSeriesStore {
	cs := internalrepo.NewCachedSeriesStore(store, c, cfg.Cache.SeriesTTL, cfg.Cache.CoinsTTL, m)
	cs.SetLogger(l)
	return cs
}

// ProvideDashboardConfig converts the dashboard section into use case defaults.
func ProvideDashboardConfig(cfg *config.Config) (usecase.DashboardConfig, error) {
	start, err := util.ParseDate(cfg.Dashboard.DefaultStart)
	if err != nil {
		return usecase.DashboardConfig{}, fmt.Errorf("dashboard.default_start: %w", err)
	}
	earliest, err := util.ParseDate(cfg.Dashboard.EarliestDate)
	if err != nil {
		return usecase.DashboardConfig{}, fmt.Errorf("dashboard.earliest_date: %w", err)
	}
	return usecase.DashboardConfig{
		DefaultCoins: cfg.Dashboard.DefaultCoins,
		DefaultStart: start,
		Earliest:     earliest,
		MaxRangeDays: cfg.Dashboard.MaxRangeDays,
		MaxCoins:     cfg.Dashboard.MaxCoins,
	}, nil
}

// ProvideDashboardUseCase reads through the cached store.
func ProvideDashboardUseCase(store *internalrepo.CachedSeriesStore, dc usecase.DashboardConfig) *usecase.DashboardUseCase {
	return usecase.NewDashboardUseCase(store, dc)
}

// ProvideHub creates the websocket hub for metric events.
func ProvideHub(l *applogger.Logger) (*ws.Hub, func()) {
	hub := ws.NewHub(l)
	return hub, func() { _ = hub.Close() }
}

// ProvideMetricEvents publishes to Kafka when enabled. Without Kafka, events
// go straight to this instance's websocket clients.
func ProvideMetricEvents(cfg *config.Config, producer *pkgkafka.Producer, hub *ws.Hub, m domrepo.Metrics) domrepo.MetricEventPublisher {
	if producer != nil {
		return internalrepo.NewKafkaMetricEvents(producer, cfg.Kafka.Topic, m)
	}
	return internalrepo.NewLocalMetricEvents(hub, m)
}

// ProvideMetricStore keeps the saved metric list in the shared cache.
func ProvideMetricStore(c cache.Service, l *applogger.Logger) domrepo.MetricStore {
	s := internalrepo.NewCacheMetricStore(c)
	s.SetLogger(l)
	return s
}

// ProvideMetricsUseCase creates the metric CRUD and evaluation use case.
func ProvideMetricsUseCase(
	store domrepo.MetricStore,
	series *internalrepo.CachedSeriesStore,
	dash *usecase.DashboardUseCase,
	events domrepo.MetricEventPublisher,
	c cache.Service,
	cfg *config.Config,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.MetricsUseCase {
	return usecase.NewMetricsUseCase(store, series, dash, events, c, cfg.Cache.EvaluationTTL, m, l)
}

// consumerGroup derives a group id unique to this process. Every instance
// must see every metric event to drop its caches and notify its clients.
func consumerGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "coindash"
	}
	return fmt.Sprintf("%s-%s-%s", base, strings.ToLower(host), uuid.NewString()[:8])
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(consumerGroup(cfg.Kafka.Consumer.GroupID)),
		pkgkafka.WithConsumerAutoOffsetReset("latest"),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewLoggingHook(l, time.Second))
	return consumer, nil
}

// ProvideMetricEventsHandler handles metric events read from Kafka.
func ProvideMetricEventsHandler(cfg *config.Config, c cache.Service, hub *ws.Hub, m domrepo.Metrics, l *applogger.Logger) *usecase.KafkaMetricEventsHandler {
	return usecase.NewKafkaMetricEventsHandler(cfg.Kafka.Topic, c, hub, m, l)
}

// ProvideRateLimiter guards the evaluation endpoints, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return middleware.NewRateLimiter(middleware.RateLimitConfig{
		RPS:   cfg.RateLimit.RPS,
		Burst: cfg.RateLimit.Burst,
	}).Middleware()
}

// ProvideHTTPHandler assembles every route of the API.
func ProvideHTTPHandler(
	l *applogger.Logger,
	dash *usecase.DashboardUseCase,
	mu *usecase.MetricsUseCase,
	hub *ws.Hub,
	limiter echo.MiddlewareFunc,
	store domrepo.SeriesStore,
	c cache.Service,
) xhttp.Handler {
	return api.NewRouter(
		api.NewDashboardEchoHandler(l, dash),
		api.NewMetricsEchoHandler(l, mu, limiter),
		api.NewHealthHandler(l, map[string]api.HealthCheck{
			"store": store.Health,
			"cache": c.Ping,
		}),
		hub,
	)
}

// ProvideScheduler creates the cache warm-up scheduler, or nil when disabled.
func ProvideScheduler(cfg *config.Config, store *internalrepo.CachedSeriesStore, dash *usecase.DashboardUseCase, c cache.Service, l *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	s := scheduler.NewScheduler(store, dash, c, cfg.Scheduler.WarmRange, l)
	if err := s.Register(cfg.Scheduler.WarmSpec); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideApp creates the application server. Error logs are aggregated and
// shipped to Kafka when a producer is available.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaMetricEventsHandler,
	sched *scheduler.Scheduler,
	producer *pkgkafka.Producer,
) *server.App {
	if producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Log.CollectorInterval,
			Topic:        cfg.Log.CollectorTopic,
			Publisher:    producer,
		})
	}

	httpServer := xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithLogger(l),
	)

	app := server.New(l, httpServer)
	if consumer != nil {
		app.SetConsumer(consumer, kh)
	}
	if sched != nil {
		app.SetScheduler(sched)
	}
	return app
}
