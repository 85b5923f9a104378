package di

import (
	"context"
	"fmt"
	"time"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	"MarketSim/internal/handler/api"
	"MarketSim/internal/handler/ws"
	mid "MarketSim/internal/middleware"
	internalrepo "MarketSim/internal/repository"
	"MarketSim/internal/services/scenario"
	"MarketSim/internal/usecase"
	"MarketSim/pkg/cache"
	pkgch "MarketSim/pkg/clickhouse"
	"MarketSim/pkg/config"
	pkgkafka "MarketSim/pkg/kafka"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/metrics"
	"MarketSim/pkg/server"
)

// ProvideLogger builds the process logger from the logger section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideState builds the opening state from the simulation section.
func ProvideState(cfg *config.Config) *models.State {
	sim := cfg.Simulation
	assets := make([]models.Asset, 0, len(sim.Assets))
	for _, a := range sim.Assets {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		assets = append(assets, models.Asset{
			ID:                a.ID,
			Name:              name,
			Price:             a.Price,
			BaseVolatility:    a.Volatility,
			SharesOutstanding: a.Shares,
		})
	}
	st := models.NewState(assets, sim.TicksPerDay)
	st.Cash = sim.StartingCash
	for _, c := range sim.Capabilities {
		st.Capabilities[c] = true
	}
	return st
}

// ProvideComponents wires the engine graph around the configured seed.
func ProvideComponents(cfg *config.Config, log *logger.Logger, m repository.Metrics) (*usecase.Components, error) {
	sim := cfg.Simulation
	comp, err := usecase.Assemble(sim.Seed, scenario.DefaultCatalog(), scenario.DefaultHooks(), log, m,
		usecase.WithOvernight(sim.OvernightSteps, sim.OvernightBoost),
		usecase.WithGapBound(sim.GapBound),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return comp, nil
}

// ProvideCache returns Redis when enabled and an in-process cache otherwise.
func ProvideCache(cfg *config.Config, log *logger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, snapshots kept in memory")
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(256)), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info("redis connected", logger.String("addr", cfg.Redis.Addr))
	return c, nil
}

// ProvideSnapshotService stores snapshots in the cache for the configured TTL.
func ProvideSnapshotService(cfg *config.Config, c cache.Service, comp *usecase.Components, log *logger.Logger) *usecase.SnapshotService {
	return usecase.NewSnapshotService(internalrepo.NewCacheSnapshotStore(c, cfg.Redis.SnapshotTTL), comp.Scheduler, log)
}

// ProvideTradeInbox creates the throttled order intake.
func ProvideTradeInbox(cfg *config.Config, m repository.Metrics) *mid.TradeInbox {
	return mid.NewTradeInbox(m,
		mid.WithMaxRPS(cfg.Simulation.MaxOrderRPS),
		mid.WithBufferSize(cfg.Simulation.InboxSize),
	)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideFeedPublisher publishes feed and ticks through the producer, if any.
func ProvideFeedPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.FeedPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaFeedPublisher(producer, cfg.Kafka.FeedTopic, cfg.Kafka.TicksTopic)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTickStorage creates the tick table on the client, if any.
func ProvideTickStorage(cfg *config.Config, client *pkgch.Client, log *logger.Logger) (repository.TickStorage, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseTickStorage(client.DB(), cfg.ClickHouse.Table, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse ready",
		logger.String("database", cfg.ClickHouse.Database),
		logger.String("table", cfg.ClickHouse.Table))
	return store, nil
}

// ProvideTickExporter batches prints out to the configured backends.
func ProvideTickExporter(
	cfg *config.Config,
	pub repository.FeedPublisher,
	store repository.TickStorage,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.TickExporter {
	return usecase.NewTickExporter(pub, store, m, log, cfg.Export.BatchSize, cfg.Export.BatchTimeout)
}

// ProvideHub creates the websocket fan-out.
func ProvideHub(log *logger.Logger) *ws.Hub {
	return ws.NewHub(log)
}

// ProvideSimulator builds the single writer and subscribes the exporter and hub.
func ProvideSimulator(
	st *models.State,
	comp *usecase.Components,
	snaps *usecase.SnapshotService,
	inbox *mid.TradeInbox,
	exporter *usecase.TickExporter,
	hub *ws.Hub,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Simulator {
	return usecase.NewSimulator(st, comp.Cycle, comp.Source, comp.Feed,
		usecase.WithSimulatorLogger(log),
		usecase.WithSimulatorMetrics(m),
		usecase.WithSnapshots(snaps),
		usecase.WithInbox(inbox),
		usecase.WithObserver(exporter),
		usecase.WithObserver(hub),
	)
}

// ProvideHeadlessSimulator builds a simulator with no intake or exports.
func ProvideHeadlessSimulator(st *models.State, comp *usecase.Components, log *logger.Logger) *usecase.Simulator {
	return usecase.NewSimulator(st, comp.Cycle, comp.Source, comp.Feed, usecase.WithSimulatorLogger(log))
}

// ProvideSimulationHandler exposes the simulator over REST.
func ProvideSimulationHandler(log *logger.Logger, sim *usecase.Simulator, store repository.TickStorage) *api.SimulationHandler {
	return api.NewSimulationHandler(log, sim, store)
}

// ProvideKafkaConsumer creates the order consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.GuardHook{MaxBytes: 64 << 10, Log: log})
	return consumer, nil
}

// ProvideKafkaTradesHandler feeds orders from the orders topic into the simulator.
func ProvideKafkaTradesHandler(cfg *config.Config, sim *usecase.Simulator, m repository.Metrics) *usecase.KafkaTradesHandler {
	return usecase.NewKafkaTradesHandler(cfg.Kafka.OrdersTopic, sim, m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	sim *usecase.Simulator,
	exporter *usecase.TickExporter,
	hub *ws.Hub,
	handler *api.SimulationHandler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTradesHandler,
	producer *pkgkafka.Producer,
	c cache.Service,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, log, server.Components{
		Simulator: sim,
		Exporter:  exporter,
		Hub:       hub,
		API:       handler,
		Consumer:  consumer,
		Orders:    kh,
		Producer:  producer,
		Cache:     c,
		CH:        chClient,
	})
}
