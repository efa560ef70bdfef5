package usagerepo

import (
	"context"
	"sort"
	"sync"

	"github.com/yanqian/airwise/internal/domain/usage"
)

// MemoryArchive keeps closed usage windows in process memory, bounded per
// provider.
type MemoryArchive struct {
	mu      sync.RWMutex
	records map[string][]usage.Record
	max     int
}

// NewMemoryArchive keeps at most max windows per provider (0 = 168).
func NewMemoryArchive(max int) *MemoryArchive {
	if max <= 0 {
		max = 168
	}
	return &MemoryArchive{records: make(map[string][]usage.Record), max: max}
}

// Save implements usage.Archive.
func (a *MemoryArchive) Save(_ context.Context, record usage.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := append(a.records[record.Provider], record)
	if len(list) > a.max {
		list = list[len(list)-a.max:]
	}
	a.records[record.Provider] = list
	return nil
}

// List implements usage.Archive.
func (a *MemoryArchive) List(_ context.Context, provider string, limit int) ([]usage.Record, error) {
	a.mu.RLock()
	src := a.records[provider]
	out := make([]usage.Record, len(src))
	copy(out, src)
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowStart.After(out[j].WindowStart)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ usage.Archive = (*MemoryArchive)(nil)
