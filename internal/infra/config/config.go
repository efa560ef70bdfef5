package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Risk     RiskConfig     `yaml:"risk"`
	Cache    CacheConfig    `yaml:"cache"`
	Usage    UsageConfig    `yaml:"usage"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Guidance GuidanceConfig `yaml:"guidance"`
	Valkey   ValkeyConfig   `yaml:"valkey"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RiskConfig overrides the built-in threshold table. Unset factors keep
// their defaults; a non-empty synergy list replaces the built-in rules.
// A nil DriverFloor keeps the built-in floor.
type RiskConfig struct {
	Factors     map[string]FactorConfig `yaml:"factors"`
	Synergies   []SynergyConfig         `yaml:"synergies"`
	DriverFloor *float64                `yaml:"driverFloor"`
}

// FactorConfig is one row of the threshold table.
type FactorConfig struct {
	SafeThreshold float64 `yaml:"safeThreshold"`
	Weight        float64 `yaml:"weight"`
	Cap           float64 `yaml:"cap"`
}

// SynergyConfig describes a compound-risk rule.
type SynergyConfig struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description"`
	Bonus       float64           `yaml:"bonus"`
	Conditions  []ConditionConfig `yaml:"conditions"`
}

// ConditionConfig is one clause of a synergy rule.
type ConditionConfig struct {
	Field     string  `yaml:"field"`
	Op        string  `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
	Relative  bool    `yaml:"relative"`
}

// CacheConfig tunes the response cache.
type CacheConfig struct {
	GeoPrecision    int                          `yaml:"geoPrecision"`
	CleanupInterval time.Duration                `yaml:"cleanupInterval"`
	LoadTimeout     time.Duration                `yaml:"loadTimeout"`
	Categories      map[string]CachePolicyConfig `yaml:"categories"`
	Fallback        CachePolicyConfig            `yaml:"fallback"`
}

// CachePolicyConfig is the TTL and per-call cost of one data category.
type CachePolicyConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	CostPerCall float64       `yaml:"costPerCall"`
}

// UsageConfig tunes upstream usage monitoring.
type UsageConfig struct {
	DefaultWindow      time.Duration    `yaml:"defaultWindow"`
	WarningThreshold   float64          `yaml:"warningThreshold"`
	CriticalThreshold  float64          `yaml:"criticalThreshold"`
	DegradedErrorRate  float64          `yaml:"degradedErrorRate"`
	UnhealthyErrorRate float64          `yaml:"unhealthyErrorRate"`
	ArchiveSize        int              `yaml:"archiveSize"`
	Providers          []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds the rate limit of one upstream provider.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	RateLimit         int64         `yaml:"rateLimit"`
	Window            time.Duration `yaml:"window"`
	WarningThreshold  float64       `yaml:"warningThreshold"`
	CriticalThreshold float64       `yaml:"criticalThreshold"`
}

// UpstreamConfig locates the environmental data APIs.
type UpstreamConfig struct {
	AirQualityURL string        `yaml:"airQualityUrl"`
	WeatherURL    string        `yaml:"weatherUrl"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	UserAgent     string        `yaml:"userAgent"`
}

// GuidanceConfig controls tip sampling and where the pools come from.
type GuidanceConfig struct {
	DefaultCount int          `yaml:"defaultCount"`
	MaxCount     int          `yaml:"maxCount"`
	Seed         uint64       `yaml:"seed"`
	File         string       `yaml:"file"`
	Object       ObjectConfig `yaml:"object"`
}

// ObjectConfig points at a catalog object in S3-compatible storage.
type ObjectConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Key       string `yaml:"key"`
}

// Enabled reports whether an object source is configured.
func (o ObjectConfig) Enabled() bool {
	return strings.TrimSpace(o.Endpoint) != "" && strings.TrimSpace(o.Bucket) != ""
}

// ValkeyConfig contains connection information for the shared cache.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// Load reads configuration from a YAML file, .env and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	// A missing .env is fine; real environment variables win over it.
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")

	setInt(&cfg.Cache.GeoPrecision, "CACHE_GEO_PRECISION")
	setDuration(&cfg.Cache.CleanupInterval, "CACHE_CLEANUP_INTERVAL")
	setDuration(&cfg.Cache.LoadTimeout, "CACHE_LOAD_TIMEOUT")

	setFloat(&cfg.Usage.WarningThreshold, "USAGE_WARNING_THRESHOLD")
	setFloat(&cfg.Usage.CriticalThreshold, "USAGE_CRITICAL_THRESHOLD")
	setDuration(&cfg.Usage.DefaultWindow, "USAGE_DEFAULT_WINDOW")

	setString(&cfg.Upstream.AirQualityURL, "UPSTREAM_AIR_QUALITY_URL")
	setString(&cfg.Upstream.WeatherURL, "UPSTREAM_WEATHER_URL")
	setDuration(&cfg.Upstream.Timeout, "UPSTREAM_TIMEOUT")
	setInt(&cfg.Upstream.MaxRetries, "UPSTREAM_MAX_RETRIES")

	if v := os.Getenv("GUIDANCE_SEED"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Guidance.Seed = parsed
		}
	}
	setString(&cfg.Guidance.File, "GUIDANCE_FILE")
	setString(&cfg.Guidance.Object.Endpoint, "GUIDANCE_OBJECT_ENDPOINT")
	setString(&cfg.Guidance.Object.AccessKey, "GUIDANCE_OBJECT_ACCESS_KEY")
	setString(&cfg.Guidance.Object.SecretKey, "GUIDANCE_OBJECT_SECRET_KEY")
	setString(&cfg.Guidance.Object.Bucket, "GUIDANCE_OBJECT_BUCKET")
	setString(&cfg.Guidance.Object.Region, "GUIDANCE_OBJECT_REGION")
	setString(&cfg.Guidance.Object.Key, "GUIDANCE_OBJECT_KEY")

	setBool(&cfg.Valkey.Enabled, "VALKEY_ENABLED")
	setString(&cfg.Valkey.Addr, "VALKEY_ADDR")
	setString(&cfg.Postgres.DSN, "POSTGRES_DSN")
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MinConns = int32(parsed)
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             30,
			},
		},
		Cache: CacheConfig{
			GeoPrecision:    2,
			CleanupInterval: 5 * time.Minute,
			LoadTimeout:     8 * time.Second,
			Categories: map[string]CachePolicyConfig{
				"pollutant": {TTL: time.Hour, CostPerCall: 0.001},
				"weather":   {TTL: 30 * time.Minute, CostPerCall: 0.0005},
				"pollen":    {TTL: 2 * time.Hour, CostPerCall: 0.001},
				"location":  {TTL: 24 * time.Hour, CostPerCall: 0.0002},
			},
			Fallback: CachePolicyConfig{TTL: 30 * time.Minute},
		},
		Usage: UsageConfig{
			DefaultWindow:      time.Hour,
			WarningThreshold:   0.8,
			CriticalThreshold:  0.95,
			DegradedErrorRate:  0.05,
			UnhealthyErrorRate: 0.10,
			ArchiveSize:        168,
			Providers: []ProviderConfig{
				{Name: "open-meteo-air-quality", RateLimit: 10000, Window: 24 * time.Hour},
				{Name: "open-meteo-weather", RateLimit: 10000, Window: 24 * time.Hour},
				{Name: "open-meteo-pollen", RateLimit: 10000, Window: 24 * time.Hour},
			},
		},
		Upstream: UpstreamConfig{
			AirQualityURL: "https://air-quality-api.open-meteo.com/v1/air-quality",
			WeatherURL:    "https://api.open-meteo.com/v1/forecast",
			Timeout:       4 * time.Second,
			MaxRetries:    2,
		},
		Guidance: GuidanceConfig{
			DefaultCount: 3,
			MaxCount:     10,
			Object: ObjectConfig{
				Key: "guidance/catalog.yaml",
			},
		},
		Valkey: ValkeyConfig{
			Prefix: "airwise:cache",
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
		},
	}
}

// Validate ensures the configuration is safe to use. Domain-level checks
// such as threshold tables run again when the domain types are built.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if f := c.Risk.DriverFloor; f != nil && (*f < 0 || *f > 1) {
		return errors.New("risk.driverFloor must be within [0, 1]")
	}
	for name, f := range c.Risk.Factors {
		if f.SafeThreshold <= 0 || f.Weight <= 0 || f.Cap <= 0 {
			return fmt.Errorf("risk.factors.%s: safeThreshold, weight and cap must be positive", name)
		}
	}
	if c.Cache.GeoPrecision < 0 || c.Cache.GeoPrecision > 6 {
		return errors.New("cache.geoPrecision must be between 0 and 6")
	}
	for name, p := range c.Cache.Categories {
		if p.TTL < 0 || p.CostPerCall < 0 {
			return fmt.Errorf("cache.categories.%s: ttl and costPerCall cannot be negative", name)
		}
	}
	if c.Usage.WarningThreshold <= 0 || c.Usage.CriticalThreshold > 1 || c.Usage.WarningThreshold > c.Usage.CriticalThreshold {
		return errors.New("usage thresholds must satisfy 0 < warning <= critical <= 1")
	}
	for _, p := range c.Usage.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("usage.providers: name cannot be empty")
		}
		if p.RateLimit < 0 {
			return fmt.Errorf("usage.providers.%s: rateLimit cannot be negative", p.Name)
		}
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream.timeout must be positive")
	}
	if c.Upstream.MaxRetries < 0 {
		return errors.New("upstream.maxRetries cannot be negative")
	}
	if c.Guidance.DefaultCount <= 0 || c.Guidance.MaxCount < c.Guidance.DefaultCount {
		return errors.New("guidance counts must satisfy 0 < defaultCount <= maxCount")
	}
	if c.Guidance.Object.Enabled() && strings.TrimSpace(c.Guidance.Object.Key) == "" {
		return errors.New("guidance.object.key cannot be empty when object storage is configured")
	}
	if c.Valkey.Enabled && strings.TrimSpace(c.Valkey.Addr) == "" {
		return errors.New("valkey.addr cannot be empty when valkey is enabled")
	}
	return nil
}
