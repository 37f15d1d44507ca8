//go:build wireinject
// +build wireinject

package di

import (
	"CoinDash/pkg/config"
	"CoinDash/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideSeriesStore,
		ProvideCachedSeriesStore,
		ProvideMetricStore,
		ProvideHub,
		ProvideMetricEvents,

		// Use cases
		ProvideDashboardConfig,
		ProvideDashboardUseCase,
		ProvideMetricsUseCase,
		ProvideMetricEventsHandler,

		// Transport and jobs
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideScheduler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
