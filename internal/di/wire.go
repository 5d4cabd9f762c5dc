//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"VolLens/pkg/config"
	"VolLens/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Storage
		ProvideStorage,
		ProvideMarketStore,
		ProvideFeatureSink,

		// Analytics
		ProvideVolatilityBank,
		ProvideRegimeClassifier,
		ProvideCorrelationEngine,

		// Use cases
		ProvideMarketAnalyzer,
		ProvideSnapshotUseCase,
		ProvideBarsUseCase,

		// HTTP
		ProvideResponseCache,
		ProvideRateLimiter,
		ProvideAnalysisHandler,

		// Kafka and scheduling
		ProvidePublisher,
		ProvideKafkaConsumer,
		ProvideScheduler,

		ProvideApp,
	)
	return &server.App{}, nil
}
