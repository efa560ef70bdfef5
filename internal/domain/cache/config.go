package cache

import (
	"errors"
	"fmt"
	"time"
)

// Policy controls how long a category is kept and what a hit is worth.
type Policy struct {
	TTL         time.Duration
	CostPerCall float64
}

// Config holds cache tuning knobs.
type Config struct {
	// Precision is the number of decimal places geo keys keep.
	Precision       int
	Categories      map[string]Policy
	Fallback        Policy
	CleanupInterval time.Duration
	LoadTimeout     time.Duration
}

// DefaultConfig mirrors configs/config.yaml.
func DefaultConfig() Config {
	return Config{
		Precision: 2,
		Categories: map[string]Policy{
			CategoryPollutant: {TTL: 60 * time.Minute, CostPerCall: 0.001},
			CategoryWeather:   {TTL: 30 * time.Minute, CostPerCall: 0.0005},
			CategoryPollen:    {TTL: 2 * time.Hour, CostPerCall: 0.001},
			CategoryLocation:  {TTL: 24 * time.Hour, CostPerCall: 0.0002},
		},
		Fallback:        Policy{TTL: 30 * time.Minute},
		CleanupInterval: 5 * time.Minute,
		LoadTimeout:     5 * time.Second,
	}
}

// Validate checks the configuration before the manager is built.
func (c Config) Validate() error {
	if c.Precision < 0 || c.Precision > 6 {
		return fmt.Errorf("cache precision must be between 0 and 6, got %d", c.Precision)
	}
	for name, p := range c.Categories {
		if name == "" {
			return errors.New("cache category name cannot be empty")
		}
		if p.TTL < 0 {
			return fmt.Errorf("cache category %s: ttl cannot be negative", name)
		}
		if p.CostPerCall < 0 {
			return fmt.Errorf("cache category %s: costPerCall cannot be negative", name)
		}
	}
	if c.Fallback.TTL < 0 || c.Fallback.CostPerCall < 0 {
		return errors.New("cache fallback policy cannot be negative")
	}
	if c.LoadTimeout <= 0 {
		return errors.New("cache load timeout must be positive")
	}
	return nil
}

func (c Config) policy(category string) Policy {
	if p, ok := c.Categories[category]; ok {
		return p
	}
	return c.Fallback
}
