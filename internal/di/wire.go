//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MarketSim/internal/domain/repository"
	"MarketSim/internal/usecase"
	"MarketSim/pkg/config"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/server"
)

var engineSet = wire.NewSet(
	ProvideState,
	ProvideComponents,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		engineSet,

		// Infrastructure clients
		ProvideCache,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,

		// Repositories
		ProvideSnapshotService,
		ProvideFeedPublisher,
		ProvideTickStorage,

		// Use cases
		ProvideTradeInbox,
		ProvideTickExporter,
		ProvideHub,
		ProvideSimulator,
		ProvideKafkaTradesHandler,

		// Delivery
		ProvideSimulationHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeSimulator wires a simulator with no intake or export backends.
func InitializeSimulator(cfg *config.Config, log *logger.Logger, m repository.Metrics) (*usecase.Simulator, error) {
	wire.Build(
		engineSet,
		ProvideHeadlessSimulator,
	)
	return &usecase.Simulator{}, nil
}
