package di

import (
	"context"
	"fmt"
	"time"

	"VolLens/internal/domain/repository"
	domsvc "VolLens/internal/domain/service"
	"VolLens/internal/handler/api"
	internalrepo "VolLens/internal/repository"
	icache "VolLens/internal/service/cache"
	"VolLens/internal/service/ratelimit"
	"VolLens/internal/services/analytics"
	"VolLens/internal/usecase"
	pkgch "VolLens/pkg/clickhouse"
	"VolLens/pkg/config"
	pkgkafka "VolLens/pkg/kafka"
	applogger "VolLens/pkg/logger"
	"VolLens/pkg/metrics"
	pkgpg "VolLens/pkg/postgres"
	"VolLens/pkg/server"
)

const (
	schemaTimeout   = 10 * time.Second
	slowMessageTime = 2 * time.Second
)

// Storage bundles the market store and feature sink of the configured driver
// together with the client that backs them.
type Storage struct {
	Store  repository.MarketStore
	Sink   repository.FeatureSink
	Client server.Closer
}

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStorage opens the configured database, creates the schema and builds the
// store and sink on top of it. The store is guarded by a circuit breaker when enabled.
func ProvideStorage(cfg *config.Config, l *applogger.Logger) (*Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	var s Storage
	switch cfg.Storage.Driver {
	case "postgres":
		client, err := pkgpg.NewClient(cfg.Postgres.DSN,
			pkgpg.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnLifetime),
		)
		if err != nil {
			return nil, fmt.Errorf("postgres client: %w", err)
		}
		if err := client.InitSchema(ctx, internalrepo.PostgresSchema()); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		store := internalrepo.NewPGMarketStore(client)
		store.SetLogger(l)
		sink := internalrepo.NewPGFeatureSink(client)
		sink.SetLogger(l)
		s = Storage{Store: store, Sink: sink, Client: client}
	default:
		client, err := pkgch.NewClient(
			pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		store := internalrepo.NewCHMarketStore(client, cfg.Storage.BatchSize)
		store.SetLogger(l)
		sink := internalrepo.NewCHFeatureSink(client, cfg.Storage.BatchSize)
		sink.SetLogger(l)
		s = Storage{Store: store, Sink: sink, Client: client}
	}

	if b := cfg.Storage.Breaker; b.Enabled {
		s.Store = internalrepo.NewBreakerStore(s.Store, internalrepo.BreakerSettings{
			Name:             cfg.Storage.Driver,
			MaxRequests:      b.MaxRequests,
			Interval:         b.Interval,
			Timeout:          b.Timeout,
			FailureThreshold: b.FailureThreshold,
		}, l)
	}
	l.Info("storage ready", applogger.String("driver", cfg.Storage.Driver), applogger.Bool("breaker", cfg.Storage.Breaker.Enabled))
	return &s, nil
}

func ProvideMarketStore(s *Storage) repository.MarketStore { return s.Store }

func ProvideFeatureSink(s *Storage) repository.FeatureSink { return s.Sink }

// ProvideVolatilityBank builds per-timeframe estimators from the analysis config.
func ProvideVolatilityBank(cfg *config.Config) *usecase.VolatilityBank {
	return usecase.NewVolatilityBank(analytics.VolatilityConfig{
		Window:         cfg.Analysis.Window,
		Annualize:      cfg.Analysis.Annualize,
		PeriodsPerYear: cfg.Analysis.PeriodsPerYear,
		ConePeriods:    cfg.Analysis.ConePeriods,
	})
}

// ProvideRegimeClassifier uses the estimator of the scheduler timeframe; k-means on
// the three estimators is unaffected by a common annualization factor.
func ProvideRegimeClassifier(cfg *config.Config, bank *usecase.VolatilityBank) domsvc.RegimeClassifier {
	r := cfg.Analysis.Regime
	return analytics.NewRegimeClassifier(analytics.RegimeConfig{
		K:       r.K,
		Window:  r.Window,
		Seed:    r.Seed,
		NInit:   r.NInit,
		MaxIter: r.MaxIter,
	}, bank.For(repository.NormalizeTimeframe(cfg.Scheduler.Timeframe)))
}

func ProvideCorrelationEngine(cfg *config.Config) (domsvc.CorrelationEngine, error) {
	c := cfg.Analysis.Correlation
	engine, err := analytics.NewCorrelationEngine(analytics.CorrelationConfig{
		Lag:        c.Lag,
		Window:     c.Window,
		Resolution: c.Resolution,
	})
	if err != nil {
		return nil, fmt.Errorf("correlation engine: %w", err)
	}
	return engine, nil
}

func ProvideMarketAnalyzer(
	cfg *config.Config,
	store repository.MarketStore,
	bank *usecase.VolatilityBank,
	regime domsvc.RegimeClassifier,
	corr domsvc.CorrelationEngine,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.MarketAnalyzer {
	an := usecase.NewMarketAnalyzer(store, bank, regime, corr, m)
	an.SetLogger(l)
	an.SetResolution(cfg.Analysis.Correlation.Resolution)
	an.SetLocation(cfg.MarketLocation())
	an.SetSentimentLookback(cfg.Analysis.Correlation.Lookback)
	an.SetCorrelationDefaults(cfg.Analysis.Correlation.Lag, cfg.Analysis.Correlation.Window)
	return an
}

func ProvideSnapshotUseCase(cfg *config.Config, an *usecase.MarketAnalyzer) *usecase.SnapshotUseCase {
	uc := usecase.NewSnapshotUseCase(an)
	uc.SetTimeout(cfg.Server.RequestTimeout)
	return uc
}

func ProvideBarsUseCase(store repository.MarketStore) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(store)
}

// ProvideResponseCache returns Redis when enabled, otherwise an in-process TTL cache.
func ProvideResponseCache(cfg *config.Config) icache.BytesCache {
	r := cfg.Cache.Redis
	if r.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: "vollens:"})
	}
	return icache.NewTTLCache()
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
}

func ProvideAnalysisHandler(
	cfg *config.Config,
	an *usecase.MarketAnalyzer,
	snaps *usecase.SnapshotUseCase,
	bars *usecase.BarsUseCase,
	cache icache.BytesCache,
	rl *ratelimit.Limiter,
	l *applogger.Logger,
) *api.AnalysisHandler {
	h := api.NewAnalysisHandler(an, snaps, bars, l)
	h.SetCache(cache, cfg.Cache.TTL)
	h.SetRateLimiter(rl)
	return h
}

// ProvidePublisher creates the snapshot publisher; a no-op when Kafka is disabled.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithHeaders(map[string]string{"content-type": "application/json", "producer": "vollens"}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Snapshots), nil
}

// ProvideKafkaConsumer creates the ingest consumer with the bar and sentiment
// handlers registered; nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, store repository.MarketStore, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerBufferSize(kc.BufferSize),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewLoggingHook(l, slowMessageTime))
	consumer.RegisterHandler(usecase.NewBarsHandler(cfg.Kafka.Topics.Bars, store, m))
	consumer.RegisterHandler(usecase.NewSentimentHandler(cfg.Kafka.Topics.Sentiment, store, m))
	return consumer, nil
}

// ProvideScheduler builds the snapshot scheduler; nil when disabled.
func ProvideScheduler(
	cfg *config.Config,
	snaps *usecase.SnapshotUseCase,
	sink repository.FeatureSink,
	pub repository.Publisher,
	l *applogger.Logger,
) *usecase.SnapshotScheduler {
	sc := cfg.Scheduler
	if !sc.Enabled {
		return nil
	}
	return usecase.NewSnapshotScheduler(snaps, sink, pub, usecase.SchedulerSettings{
		Spec:        sc.Spec,
		Symbols:     sc.Symbols,
		Timeframe:   repository.NormalizeTimeframe(sc.Timeframe),
		Bars:        sc.Bars,
		Concurrency: sc.Concurrency,
		Persist:     sc.Persist,
	}, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	storage *Storage,
	handler *api.AnalysisHandler,
	pub repository.Publisher,
	consumer *pkgkafka.Consumer,
	sched *usecase.SnapshotScheduler,
	cache icache.BytesCache,
	rl *ratelimit.Limiter,
) *server.App {
	c := server.Components{
		Handler:   handler,
		Store:     storage.Store,
		Publisher: pub,
		Consumer:  consumer,
		Scheduler: sched,
		Cache:     cache,
		Limiter:   rl,
		Closers:   []server.Closer{storage.Client},
	}
	if rc, ok := cache.(*icache.RedisCache); ok {
		c.Closers = append(c.Closers, rc)
	}
	return server.New(cfg, l, c)
}
