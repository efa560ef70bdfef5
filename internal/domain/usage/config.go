package usage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProviderConfig describes one upstream's quota.
type ProviderConfig struct {
	Name string
	// RateLimit is the call budget per window; zero means unlimited.
	RateLimit         int64
	Window            time.Duration
	WarningThreshold  float64
	CriticalThreshold float64
}

// Config holds usage monitoring knobs.
type Config struct {
	Providers          []ProviderConfig
	DefaultWindow      time.Duration
	WarningThreshold   float64
	CriticalThreshold  float64
	DegradedErrorRate  float64
	UnhealthyErrorRate float64
}

// DefaultConfig mirrors configs/config.yaml.
func DefaultConfig() Config {
	return Config{
		DefaultWindow:      time.Hour,
		WarningThreshold:   0.80,
		CriticalThreshold:  0.95,
		DegradedErrorRate:  0.05,
		UnhealthyErrorRate: 0.10,
	}
}

// Validate checks thresholds and provider definitions.
func (c Config) Validate() error {
	if c.DefaultWindow <= 0 {
		return errors.New("usage default window must be positive")
	}
	if err := validateThresholds(c.WarningThreshold, c.CriticalThreshold); err != nil {
		return err
	}
	if c.DegradedErrorRate <= 0 || c.UnhealthyErrorRate < c.DegradedErrorRate || c.UnhealthyErrorRate > 1 {
		return errors.New("usage error-rate bands must satisfy 0 < degraded <= unhealthy <= 1")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return errors.New("usage provider name cannot be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate usage provider %q", name)
		}
		seen[name] = struct{}{}
		if p.RateLimit < 0 {
			return fmt.Errorf("provider %s: rateLimit cannot be negative", name)
		}
		if p.Window < 0 {
			return fmt.Errorf("provider %s: window cannot be negative", name)
		}
		if p.WarningThreshold != 0 || p.CriticalThreshold != 0 {
			if err := validateThresholds(p.WarningThreshold, p.CriticalThreshold); err != nil {
				return fmt.Errorf("provider %s: %w", name, err)
			}
		}
	}
	return nil
}

func validateThresholds(warning, critical float64) error {
	if warning <= 0 || critical <= 0 || warning > critical || critical > 1 {
		return fmt.Errorf("usage thresholds must satisfy 0 < warning (%.2f) <= critical (%.2f) <= 1", warning, critical)
	}
	return nil
}

// resolve fills provider gaps from the global defaults.
func (c Config) resolve(p ProviderConfig) ProviderConfig {
	if p.Window <= 0 {
		p.Window = c.DefaultWindow
	}
	if p.WarningThreshold == 0 && p.CriticalThreshold == 0 {
		p.WarningThreshold = c.WarningThreshold
		p.CriticalThreshold = c.CriticalThreshold
	}
	return p
}
