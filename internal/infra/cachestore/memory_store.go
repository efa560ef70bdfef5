package cachestore

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/airwise/internal/domain/cache"
)

// MemoryStore keeps cache entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]cache.Entry)}
}

// Get implements cache.Store. Expiry is left to the caller, which owns the clock.
func (s *MemoryStore) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	return entry, ok, nil
}

// Set implements cache.Store.
func (s *MemoryStore) Set(_ context.Context, entry cache.Entry) error {
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	entry.Value = value

	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

// Delete implements cache.Store.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Keys implements cache.Store.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for k := range s.entries {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Purge drops every entry expired at now.
func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ cache.Store = (*MemoryStore)(nil)
