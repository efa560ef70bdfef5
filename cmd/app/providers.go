package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/airwise/internal/domain/advisor"
	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/guidance"
	"github.com/yanqian/airwise/internal/domain/risk"
	"github.com/yanqian/airwise/internal/domain/usage"
	"github.com/yanqian/airwise/internal/infra/cachestore"
	"github.com/yanqian/airwise/internal/infra/config"
	"github.com/yanqian/airwise/internal/infra/environ"
	"github.com/yanqian/airwise/internal/infra/poolsource"
	"github.com/yanqian/airwise/internal/infra/telemetry"
	"github.com/yanqian/airwise/internal/infra/usagerepo"
	"github.com/yanqian/airwise/pkg/metrics"
	"github.com/yanqian/airwise/pkg/util"
)

func provideClock() util.Clock {
	return util.SystemClock{}
}

func provideRiskTable(cfg *config.Config) (risk.Table, error) {
	table := risk.DefaultTable()
	for name, f := range cfg.Risk.Factors {
		table.Factors[risk.Factor(name)] = risk.Threshold{
			SafeThreshold: f.SafeThreshold,
			Weight:        f.Weight,
			Cap:           f.Cap,
		}
	}
	if len(cfg.Risk.Synergies) > 0 {
		rules := make([]risk.SynergyRule, 0, len(cfg.Risk.Synergies))
		for _, s := range cfg.Risk.Synergies {
			rule := risk.SynergyRule{ID: s.ID, Description: s.Description, Bonus: s.Bonus}
			for _, c := range s.Conditions {
				rule.Conditions = append(rule.Conditions, risk.Condition{
					Field:     c.Field,
					Op:        risk.Op(c.Op),
					Threshold: c.Threshold,
					Relative:  c.Relative,
				})
			}
			rules = append(rules, rule)
		}
		table.Synergies = rules
	}
	if cfg.Risk.DriverFloor != nil {
		table.DriverFloor = *cfg.Risk.DriverFloor
	}
	if err := table.Validate(); err != nil {
		return risk.Table{}, fmt.Errorf("risk table: %w", err)
	}
	return table, nil
}

func provideCacheConfig(cfg *config.Config) cache.Config {
	out := cache.DefaultConfig()
	out.Precision = cfg.Cache.GeoPrecision
	if cfg.Cache.CleanupInterval > 0 {
		out.CleanupInterval = cfg.Cache.CleanupInterval
	}
	if cfg.Cache.LoadTimeout > 0 {
		out.LoadTimeout = cfg.Cache.LoadTimeout
	}
	for name, p := range cfg.Cache.Categories {
		out.Categories[name] = cache.Policy{TTL: p.TTL, CostPerCall: p.CostPerCall}
	}
	out.Fallback = cache.Policy{TTL: cfg.Cache.Fallback.TTL, CostPerCall: cfg.Cache.Fallback.CostPerCall}
	return out
}

func provideCacheStore(cfg *config.Config, logger *slog.Logger) (cache.Store, func()) {
	fallback := func() (cache.Store, func()) {
		return cachestore.NewMemoryStore(), func() {}
	}
	if !cfg.Valkey.Enabled {
		logger.Info("valkey disabled, using in-memory response cache")
		return fallback()
	}
	opt, err := buildValkeyOptions(cfg.Valkey.Addr)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory cache", "error", err)
		return fallback()
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory cache", "error", err)
		return fallback()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory cache", "error", err)
		client.Close()
		return fallback()
	}
	store, err := cachestore.NewValkeyStore(client, cfg.Valkey.Prefix)
	if err != nil {
		logger.Error("failed to build valkey store, falling back to memory cache", "error", err)
		client.Close()
		return fallback()
	}
	logger.Info("valkey response cache enabled", "addr", cfg.Valkey.Addr)
	return store, client.Close
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func provideUsageConfig(cfg *config.Config) usage.Config {
	out := usage.Config{
		DefaultWindow:      cfg.Usage.DefaultWindow,
		WarningThreshold:   cfg.Usage.WarningThreshold,
		CriticalThreshold:  cfg.Usage.CriticalThreshold,
		DegradedErrorRate:  cfg.Usage.DegradedErrorRate,
		UnhealthyErrorRate: cfg.Usage.UnhealthyErrorRate,
	}
	for _, p := range cfg.Usage.Providers {
		out.Providers = append(out.Providers, usage.ProviderConfig{
			Name:              p.Name,
			RateLimit:         p.RateLimit,
			Window:            p.Window,
			WarningThreshold:  p.WarningThreshold,
			CriticalThreshold: p.CriticalThreshold,
		})
	}
	return out
}

func provideUsageArchive(cfg *config.Config, logger *slog.Logger) (usage.Archive, func()) {
	fallback := usagerepo.NewMemoryArchive(cfg.Usage.ArchiveSize)
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory usage archive")
		return fallback, func() {}
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory usage archive", "error", err)
		return fallback, func() {}
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory usage archive", "error", err)
		return fallback, func() {}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory usage archive", "error", err)
		pool.Close()
		return fallback, func() {}
	}
	archive := usagerepo.NewPostgresArchive(pool)
	if err := archive.EnsureSchema(ctx); err != nil {
		logger.Error("usage archive schema setup failed, using memory usage archive", "error", err)
		pool.Close()
		return fallback, func() {}
	}
	logger.Info("postgres usage archive enabled")
	return archive, pool.Close
}

func provideEnvironClient(cfg *config.Config) *environ.Client {
	retry := environ.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Upstream.MaxRetries
	return environ.NewClient(environ.Config{
		AirQualityURL: cfg.Upstream.AirQualityURL,
		WeatherURL:    cfg.Upstream.WeatherURL,
		Timeout:       cfg.Upstream.Timeout,
		Retry:         retry,
		UserAgent:     cfg.Upstream.UserAgent,
	})
}

func provideFetchers(client *environ.Client) []advisor.Fetcher {
	return client.Fetchers()
}

func provideGuidanceCatalog(cfg *config.Config, logger *slog.Logger) (*guidance.Catalog, error) {
	var primary poolsource.Source
	switch {
	case cfg.Guidance.Object.Enabled():
		obj := cfg.Guidance.Object
		src, err := poolsource.NewObjectSource(poolsource.ObjectConfig{
			Endpoint:  obj.Endpoint,
			AccessKey: obj.AccessKey,
			SecretKey: obj.SecretKey,
			Bucket:    obj.Bucket,
			Region:    obj.Region,
			Key:       obj.Key,
		}, logger)
		if err != nil {
			logger.Error("invalid guidance object source, using embedded catalog", "error", err)
		} else {
			primary = src
		}
	case strings.TrimSpace(cfg.Guidance.File) != "":
		primary = poolsource.FileSource{Path: cfg.Guidance.File}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return poolsource.LoadWithFallback(ctx, primary, logger)
}

func provideAdvisorService(
	cfg *config.Config,
	scorer *risk.Scorer,
	catalog *guidance.Catalog,
	cacheManager *cache.Manager,
	monitor *usage.Monitor,
	fetchers []advisor.Fetcher,
	clock util.Clock,
	logger *slog.Logger,
) (advisor.Service, error) {
	advisorCfg := advisor.DefaultConfig()
	advisorCfg.DefaultCount = cfg.Guidance.DefaultCount
	advisorCfg.MaxCount = cfg.Guidance.MaxCount

	var opts []guidance.Option
	if cfg.Guidance.Seed != 0 {
		opts = append(opts, guidance.WithSeed(cfg.Guidance.Seed))
	}
	return advisor.NewService(advisorCfg, scorer, catalog, cacheManager, monitor, fetchers, clock, logger, opts...)
}

func provideMetricsRegistry(cacheManager *cache.Manager, monitor *usage.Monitor) *prometheus.Registry {
	reg := metrics.NewRegistry()
	reg.MustRegister(telemetry.NewCollector(cacheManager, monitor))
	return reg
}
