package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yanqian/airwise/pkg/util"
)

type providerState struct {
	cfg     ProviderConfig
	current Record
}

// Monitor tracks per-provider call accounting. It only observes; callers
// decide what to do with Warnings and Stats.
type Monitor struct {
	cfg     Config
	clock   util.Clock
	archive Archive
	logger  *slog.Logger

	mu        sync.Mutex
	providers map[string]*providerState
}

// NewMonitor builds a monitor with every configured provider registered.
// archive may be nil.
func NewMonitor(cfg Config, clock util.Clock, archive Archive, logger *slog.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	m := &Monitor{
		cfg:       cfg,
		clock:     clock,
		archive:   archive,
		logger:    logger.With("component", "usage.monitor"),
		providers: make(map[string]*providerState, len(cfg.Providers)),
	}
	now := clock.Now()
	for _, p := range cfg.Providers {
		p.Name = strings.TrimSpace(p.Name)
		m.providers[p.Name] = m.newState(p, now)
	}
	return m, nil
}

// RecordCall accounts one upstream call. Unknown providers are registered on
// first use with the default window and no rate limit.
func (m *Monitor) RecordCall(provider string, success bool, latency time.Duration) {
	if provider == "" {
		return
	}
	if latency < 0 {
		latency = 0
	}
	m.mu.Lock()
	st := m.state(provider)
	closed, rolled := m.roll(st, m.clock.Now())
	st.current.Calls++
	if !success {
		st.current.Errors++
	}
	st.current.TotalLatency += latency
	m.mu.Unlock()

	if rolled {
		m.save(closed)
	}
}

// Stats reports the current window of provider.
func (m *Monitor) Stats(provider string) (Stats, bool) {
	m.mu.Lock()
	st, ok := m.providers[provider]
	if !ok {
		m.mu.Unlock()
		return Stats{}, false
	}
	closed, rolled := m.roll(st, m.clock.Now())
	out := m.stats(st)
	m.mu.Unlock()

	if rolled {
		m.save(closed)
	}
	return out, true
}

// All reports every known provider, sorted by name.
func (m *Monitor) All() []Stats {
	m.mu.Lock()
	now := m.clock.Now()
	names := m.names()
	out := make([]Stats, 0, len(names))
	var closed []Record
	for _, name := range names {
		st := m.providers[name]
		if rec, rolled := m.roll(st, now); rolled {
			closed = append(closed, rec)
		}
		out = append(out, m.stats(st))
	}
	m.mu.Unlock()

	for _, rec := range closed {
		m.save(rec)
	}
	return out
}

// Alerts lists rate-limit proximity and error-rate problems across providers.
func (m *Monitor) Alerts() []Alert {
	var out []Alert
	for _, s := range m.All() {
		if s.Level != LevelOK {
			out = append(out, Alert{
				Provider: s.Provider,
				Kind:     AlertRateLimit,
				Severity: string(s.Level),
				Message: fmt.Sprintf("%s: %s: %.0f%% of rate limit used (%d/%d calls this window)",
					s.Provider, s.Level, s.UsagePercentOfLimit, s.Calls, s.RateLimit),
			})
		}
		if s.Health != HealthHealthy {
			out = append(out, Alert{
				Provider: s.Provider,
				Kind:     AlertErrorRate,
				Severity: string(s.Health),
				Message: fmt.Sprintf("%s: %s: error rate %.1f%% (%d/%d calls failed)",
					s.Provider, s.Health, s.ErrorRate*100, s.Errors, s.Calls),
			})
		}
	}
	return out
}

// Warnings renders Alerts as human-readable lines.
func (m *Monitor) Warnings() []string {
	alerts := m.Alerts()
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Message)
	}
	return out
}

// History returns archived windows for provider, newest first.
func (m *Monitor) History(ctx context.Context, provider string, limit int) ([]Record, error) {
	if m.archive == nil {
		return []Record{}, nil
	}
	return m.archive.List(ctx, provider, limit)
}

func (m *Monitor) newState(p ProviderConfig, now time.Time) *providerState {
	p = m.cfg.resolve(p)
	start := now.Truncate(p.Window)
	return &providerState{
		cfg: p,
		current: Record{
			Provider:    p.Name,
			WindowStart: start,
			WindowEnd:   start.Add(p.Window),
		},
	}
}

// state must be called with mu held.
func (m *Monitor) state(provider string) *providerState {
	st, ok := m.providers[provider]
	if !ok {
		st = m.newState(ProviderConfig{Name: provider}, m.clock.Now())
		m.providers[provider] = st
		m.logger.Info("usage provider registered", "provider", provider, "window", st.cfg.Window)
	}
	return st
}

// roll starts a new window when now has passed the current one and returns
// the closed record. Must be called with mu held.
func (m *Monitor) roll(st *providerState, now time.Time) (Record, bool) {
	if now.Before(st.current.WindowEnd) {
		return Record{}, false
	}
	closed := st.current
	start := now.Truncate(st.cfg.Window)
	st.current = Record{
		Provider:    st.cfg.Name,
		WindowStart: start,
		WindowEnd:   start.Add(st.cfg.Window),
	}
	return closed, closed.Calls > 0
}

// stats must be called with mu held.
func (m *Monitor) stats(st *providerState) Stats {
	rec := st.current
	s := Stats{
		Provider:     st.cfg.Name,
		Calls:        rec.Calls,
		Errors:       rec.Errors,
		ErrorRate:    rec.ErrorRate(),
		AvgLatencyMs: float64(rec.AvgLatency()) / float64(time.Millisecond),
		RateLimit:    st.cfg.RateLimit,
		Level:        LevelOK,
		Health:       m.health(rec.ErrorRate()),
		WindowStart:  rec.WindowStart,
		WindowEnd:    rec.WindowEnd,
	}
	if st.cfg.RateLimit > 0 {
		ratio := float64(rec.Calls) / float64(st.cfg.RateLimit)
		s.UsagePercentOfLimit = ratio * 100
		switch {
		case ratio >= st.cfg.CriticalThreshold:
			s.Level = LevelCritical
		case ratio >= st.cfg.WarningThreshold:
			s.Level = LevelWarning
		}
	}
	return s
}

func (m *Monitor) health(errorRate float64) Health {
	switch {
	case errorRate > m.cfg.UnhealthyErrorRate:
		return HealthUnhealthy
	case errorRate >= m.cfg.DegradedErrorRate:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// names must be called with mu held.
func (m *Monitor) names() []string {
	out := make([]string, 0, len(m.providers))
	for name := range m.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Monitor) save(rec Record) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Save(context.Background(), rec); err != nil {
		m.logger.Warn("usage window archive failed", "provider", rec.Provider, "error", err)
		return
	}
	m.logger.Debug("usage window closed",
		"provider", rec.Provider,
		"calls", rec.Calls,
		"errors", rec.Errors,
		"window_start", rec.WindowStart)
}
