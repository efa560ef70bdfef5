package cache

import (
	"context"
	"time"
)

// Store defines the persistence contract for cached payloads. Patterns use
// glob syntax ('*', '?', '[...]').
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Purge(ctx context.Context, now time.Time) (int, error)
}
