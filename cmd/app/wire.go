//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/airwise/internal/bootstrap"
	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/risk"
	"github.com/yanqian/airwise/internal/domain/usage"
	"github.com/yanqian/airwise/internal/infra/config"
	httpiface "github.com/yanqian/airwise/internal/interface/http"
	"github.com/yanqian/airwise/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		provideClock,
		provideRiskTable,
		risk.NewScorer,
		provideCacheConfig,
		provideCacheStore,
		cache.NewManager,
		provideUsageConfig,
		provideUsageArchive,
		usage.NewMonitor,
		provideEnvironClient,
		provideFetchers,
		provideGuidanceCatalog,
		provideAdvisorService,
		provideMetricsRegistry,
		wire.Bind(new(httpiface.CacheAdmin), new(*cache.Manager)),
		wire.Bind(new(httpiface.UsageReporter), new(*usage.Monitor)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
