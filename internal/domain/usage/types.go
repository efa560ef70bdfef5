package usage

import (
	"context"
	"time"
)

// Level reports how close a provider is to its rate limit.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Health reports the provider's error-rate band.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Record is the accounting for one provider over one rate-limit window.
type Record struct {
	Provider     string        `json:"provider"`
	WindowStart  time.Time     `json:"windowStart"`
	WindowEnd    time.Time     `json:"windowEnd"`
	Calls        int64         `json:"calls"`
	Errors       int64         `json:"errors"`
	TotalLatency time.Duration `json:"totalLatency"`
}

// ErrorRate is errors over calls, zero when idle.
func (r Record) ErrorRate() float64 {
	if r.Calls == 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Calls)
}

// AvgLatency is the mean latency of recorded calls.
func (r Record) AvgLatency() time.Duration {
	if r.Calls == 0 {
		return 0
	}
	return r.TotalLatency / time.Duration(r.Calls)
}

// Stats is the observable state of a provider's current window.
type Stats struct {
	Provider            string    `json:"provider"`
	Calls               int64     `json:"calls"`
	Errors              int64     `json:"errors"`
	ErrorRate           float64   `json:"errorRate"`
	AvgLatencyMs        float64   `json:"avgLatencyMs"`
	RateLimit           int64     `json:"rateLimit"`
	UsagePercentOfLimit float64   `json:"usagePercentOfLimit"`
	Level               Level     `json:"level"`
	Health              Health    `json:"health"`
	WindowStart         time.Time `json:"windowStart"`
	WindowEnd           time.Time `json:"windowEnd"`
}

// Alert is a structured form of one warning line.
type Alert struct {
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Alert kinds.
const (
	AlertRateLimit = "rate_limit"
	AlertErrorRate = "error_rate"
)

// Archive keeps closed windows for later inspection.
type Archive interface {
	Save(ctx context.Context, record Record) error
	List(ctx context.Context, provider string, limit int) ([]Record, error)
}
