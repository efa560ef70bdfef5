package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/yanqian/airwise/pkg/errors"
	"github.com/yanqian/airwise/pkg/util"
)

// Loader fetches a payload on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Manager is the process-wide cache front. One instance is shared by every
// request; all counters live behind a single mutex.
type Manager struct {
	store  Store
	cfg    Config
	clock  util.Clock
	logger *slog.Logger
	group  singleflight.Group

	mu     sync.Mutex
	hits   map[string]int64
	misses map[string]int64
}

// NewManager wires a store to the configured policies.
func NewManager(store Store, cfg Config, clock util.Clock, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Manager{
		store:  store,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With("component", "cache.manager"),
		hits:   make(map[string]int64),
		misses: make(map[string]int64),
	}, nil
}

// TTL returns the configured lifetime for a category.
func (m *Manager) TTL(category string) time.Duration {
	return m.cfg.policy(category).TTL
}

// Get returns the cached payload for key. Expired entries are removed and
// reported as misses; store failures are logged and reported as misses too.
func (m *Manager) Get(ctx context.Context, key, category string) ([]byte, bool) {
	entry, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed", "key", key, "error", err)
		m.recordMiss(category)
		return nil, false
	}
	if ok && entry.Expired(m.clock.Now()) {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Warn("cache evict failed", "key", key, "error", err)
		}
		ok = false
	}
	if !ok {
		m.recordMiss(category)
		return nil, false
	}
	if entry.Category != "" {
		category = entry.Category
	}
	m.recordHit(category)
	return entry.Value, true
}

// Set stores value under key for ttl. A zero ttl means "never cache" and is a
// no-op.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration, category string) error {
	if key == "" {
		return errors.New("cache key cannot be empty")
	}
	if ttl < 0 {
		return fmt.Errorf("cache ttl cannot be negative: %s", ttl)
	}
	if ttl == 0 {
		return nil
	}
	entry := Entry{
		Key:      key,
		Value:    value,
		Category: category,
		StoredAt: m.clock.Now(),
		TTL:      ttl,
	}
	if err := m.store.Set(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Put stores value using the category's configured TTL.
func (m *Manager) Put(ctx context.Context, key string, value []byte, category string) error {
	return m.Set(ctx, key, value, m.TTL(category), category)
}

// Invalidate removes every key matching the glob pattern and returns how
// many were removed.
func (m *Manager) Invalidate(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, apperrors.Wrap(apperrors.CodeInvalidInput, "invalidate pattern cannot be empty", nil)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInvalidInput, "malformed invalidate pattern", err)
	}
	keys, err := m.store.Keys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.logger.Info("cache invalidated", "pattern", pattern, "removed", len(keys))
	return len(keys), nil
}

// GetOrLoad serves key from the cache or runs load once for all concurrent
// callers of the same key. The load and the cache write outlive the caller's
// context; only LoadTimeout bounds them. cached is true on a cache hit.
func (m *Manager) GetOrLoad(ctx context.Context, key, category string, load Loader) (value []byte, cached bool, err error) {
	if v, ok := m.Get(ctx, key, category); ok {
		return v, true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(detached, m.cfg.LoadTimeout)
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := m.Put(detached, key, v, category); err != nil {
			m.logger.Warn("cache write failed", "key", key, "category", category, "error", err)
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Stats returns a snapshot of the hit/miss counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Stats{Categories: make(map[string]CategoryStats)}
	for cat, n := range m.hits {
		cs := out.Categories[cat]
		cs.Hits = n
		cs.CostSaved = float64(n) * m.cfg.policy(cat).CostPerCall
		out.Categories[cat] = cs
		out.Hits += n
		out.EstimatedCostSaved += cs.CostSaved
	}
	for cat, n := range m.misses {
		cs := out.Categories[cat]
		cs.Misses = n
		out.Categories[cat] = cs
		out.Misses += n
	}
	if total := out.Hits + out.Misses; total > 0 {
		out.HitRate = float64(out.Hits) / float64(total)
	}
	return out
}

// Run purges expired entries every interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.CleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(ctx)
		}
	}
}

// Cleanup runs a single purge pass.
func (m *Manager) Cleanup(ctx context.Context) int {
	removed, err := m.store.Purge(ctx, m.clock.Now())
	if err != nil {
		m.logger.Warn("cache cleanup failed", "error", err)
		return 0
	}
	if removed > 0 {
		m.logger.Debug("cache cleanup", "removed", removed)
	}
	return removed
}

func (m *Manager) recordHit(category string) {
	m.mu.Lock()
	m.hits[category]++
	m.mu.Unlock()
}

func (m *Manager) recordMiss(category string) {
	m.mu.Lock()
	m.misses[category]++
	m.mu.Unlock()
}
