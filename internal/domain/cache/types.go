package cache

import (
	"errors"
	"time"
)

// Categories shipped with the default configuration.
const (
	CategoryPollutant = "pollutant"
	CategoryWeather   = "weather"
	CategoryPollen    = "pollen"
	CategoryLocation  = "location"
)

// ErrUnavailable marks a backing store failure. The manager treats it as a miss.
var ErrUnavailable = errors.New("cache store unavailable")

// Entry is one cached payload.
type Entry struct {
	Key      string
	Value    []byte
	Category string
	StoredAt time.Time
	TTL      time.Duration
}

// ExpiresAt reports when the entry stops being served.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether a read at now must be treated as a miss.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// CategoryStats breaks counters down per category.
type CategoryStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	CostSaved float64 `json:"estimatedCostSaved"`
}

// Stats summarises cache effectiveness. EstimatedCostSaved is reporting only.
type Stats struct {
	Hits               int64                    `json:"hits"`
	Misses             int64                    `json:"misses"`
	HitRate            float64                  `json:"hitRate"`
	EstimatedCostSaved float64                  `json:"estimatedCostSaved"`
	Categories         map[string]CategoryStats `json:"categories"`
}
