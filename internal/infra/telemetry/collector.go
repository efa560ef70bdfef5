package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/usage"
	"github.com/yanqian/airwise/pkg/metrics"
)

// CacheStats is satisfied by *cache.Manager.
type CacheStats interface {
	Stats() cache.Stats
}

// UsageStats is satisfied by *usage.Monitor.
type UsageStats interface {
	All() []usage.Stats
}

// Collector exports cache and provider usage state at scrape time, so the
// domain types stay free of Prometheus.
type Collector struct {
	cache CacheStats
	usage UsageStats

	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheHitRatio  *prometheus.Desc
	cacheCostSaved *prometheus.Desc
	calls          *prometheus.Desc
	errors         *prometheus.Desc
	usageRatio     *prometheus.Desc
	latency        *prometheus.Desc
	health         *prometheus.Desc
}

// NewCollector builds a collector; either source may be nil.
func NewCollector(c CacheStats, u UsageStats) *Collector {
	name := func(sub, n string) string { return prometheus.BuildFQName(metrics.Namespace, sub, n) }
	return &Collector{
		cache:          c,
		usage:          u,
		cacheHits:      prometheus.NewDesc(name("cache", "hits_total"), "Cache hits by category.", []string{"category"}, nil),
		cacheMisses:    prometheus.NewDesc(name("cache", "misses_total"), "Cache misses by category.", []string{"category"}, nil),
		cacheHitRatio:  prometheus.NewDesc(name("cache", "hit_ratio"), "Hits over lookups since start.", nil, nil),
		cacheCostSaved: prometheus.NewDesc(name("cache", "estimated_cost_saved_usd"), "Upstream spend avoided by cache hits.", nil, nil),
		calls:          prometheus.NewDesc(name("provider", "window_calls"), "Calls in the current rate-limit window.", []string{"provider"}, nil),
		errors:         prometheus.NewDesc(name("provider", "window_errors"), "Failed calls in the current window.", []string{"provider"}, nil),
		usageRatio:     prometheus.NewDesc(name("provider", "rate_limit_usage_ratio"), "Calls over rate limit in the current window.", []string{"provider"}, nil),
		latency:        prometheus.NewDesc(name("provider", "avg_latency_seconds"), "Mean call latency in the current window.", []string{"provider"}, nil),
		health:         prometheus.NewDesc(name("provider", "health"), "0 healthy, 1 degraded, 2 unhealthy.", []string{"provider"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.cacheHits, c.cacheMisses, c.cacheHitRatio, c.cacheCostSaved,
		c.calls, c.errors, c.usageRatio, c.latency, c.health,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.cache != nil {
		s := c.cache.Stats()
		for cat, cs := range s.Categories {
			ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(cs.Hits), cat)
			ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(cs.Misses), cat)
		}
		ch <- prometheus.MustNewConstMetric(c.cacheHitRatio, prometheus.GaugeValue, s.HitRate)
		ch <- prometheus.MustNewConstMetric(c.cacheCostSaved, prometheus.GaugeValue, s.EstimatedCostSaved)
	}
	if c.usage != nil {
		for _, s := range c.usage.All() {
			ch <- prometheus.MustNewConstMetric(c.calls, prometheus.GaugeValue, float64(s.Calls), s.Provider)
			ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(s.Errors), s.Provider)
			ch <- prometheus.MustNewConstMetric(c.usageRatio, prometheus.GaugeValue, s.UsagePercentOfLimit/100, s.Provider)
			ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.AvgLatencyMs/1000, s.Provider)
			ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, healthValue(s.Health), s.Provider)
		}
	}
}

func healthValue(h usage.Health) float64 {
	switch h {
	case usage.HealthDegraded:
		return 1
	case usage.HealthUnhealthy:
		return 2
	default:
		return 0
	}
}

var _ prometheus.Collector = (*Collector)(nil)
