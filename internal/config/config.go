// Package config loads the locate-fee pricing service's configuration via
// viper, grounded on the teacher's internal/config/config.go (nested
// mapstructure-tagged sub-configs, AutomaticEnv, a setDefaults function).
// The env prefix changes from CRYPTOFUNK to LOCATEFEE; every other section
// is new, scoped to §6's configuration list.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration for the locate-fee service.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	API           APIConfig           `mapstructure:"api"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Retry         RetryConfig         `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// APIConfig contains REST API settings, including the fixed API-key set
// per §6 (a database-backed key store remains out of scope).
type APIConfig struct {
	Host             string   `mapstructure:"host"`
	Port             int      `mapstructure:"port"`
	APIKeys          []string `mapstructure:"api_keys"`
	MaxConcurrency   int      `mapstructure:"max_concurrency"`
	RequestTimeoutMS int      `mapstructure:"request_timeout_ms"`
}

// DatabaseConfig contains PostgreSQL settings for broker config, ticker
// reference data, and the audit table.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains the shared cache tier's connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ProviderConfig configures one upstream data provider.
type ProviderConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutMS      int    `mapstructure:"timeout_ms"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	Burst          int    `mapstructure:"burst"`
}

// Timeout returns the provider timeout as a time.Duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// ProvidersConfig groups the three upstream provider configurations.
type ProvidersConfig struct {
	BorrowRate    ProviderConfig `mapstructure:"borrow_rate"`
	Volatility    ProviderConfig `mapstructure:"volatility"`
	EventCalendar ProviderConfig `mapstructure:"event_calendar"`
}

// RetryConfig holds backoff settings loaded from configuration. The provider
// clients do not read it; they use externaldata.DefaultRetryConfig.
type RetryConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `mapstructure:"max_backoff_ms"`
	BackoffFactor     float64 `mapstructure:"backoff_factor"`
	JitterFraction    float64 `mapstructure:"jitter_fraction"`
}

// CircuitBreakerConfig configures the per-provider breaker thresholds.
type CircuitBreakerConfig struct {
	ConsecutiveFailures int `mapstructure:"consecutive_failures"`
	CooldownSeconds     int `mapstructure:"cooldown_seconds"`
	HalfOpenMaxRequests int `mapstructure:"half_open_max_requests"`
}

// CacheConfig configures the two-tier cache. TTLOverridesS (keyed by the
// cache.KeyPrefix string values) is loaded but not read anywhere; every
// prefix uses the fixed cache.TTLFor table.
type CacheConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	TTLOverridesS map[string]int    `mapstructure:"ttl_overrides_seconds"`
}

// PricingConfig holds the fallback-of-last-resort and staleness knobs the
// coordinator needs that aren't owned by any single component.
type PricingConfig struct {
	GlobalMinBorrowRate  string `mapstructure:"global_min_borrow_rate"`
	StalenessMultiplier  int    `mapstructure:"staleness_multiplier"`
}

// RateLimitConfig configures the per-IP sliding-window limiter in §6.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	CalculateMaxReqs  int  `mapstructure:"calculate_max_requests"`
	CalculateWindowS  int  `mapstructure:"calculate_window_seconds"`
	ReadMaxReqs       int  `mapstructure:"read_max_requests"`
	ReadWindowS       int  `mapstructure:"read_window_seconds"`
}

// Load loads configuration from an optional file, environment variables
// (prefix LOCATEFEE_), and the defaults in setDefaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("LOCATEFEE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "locate-fee-engine")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_keys", []string{})
	v.SetDefault("api.max_concurrency", 256)
	v.SetDefault("api.request_timeout_ms", 5000)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("providers.borrow_rate.base_url", "http://localhost:9001/api")
	v.SetDefault("providers.borrow_rate.timeout_ms", 5000)
	v.SetDefault("providers.borrow_rate.requests_per_sec", 50.0)
	v.SetDefault("providers.borrow_rate.burst", 10)

	v.SetDefault("providers.volatility.base_url", "http://localhost:9002/api")
	v.SetDefault("providers.volatility.timeout_ms", 5000)
	v.SetDefault("providers.volatility.requests_per_sec", 50.0)
	v.SetDefault("providers.volatility.burst", 10)

	v.SetDefault("providers.event_calendar.base_url", "http://localhost:9003/api")
	v.SetDefault("providers.event_calendar.timeout_ms", 5000)
	v.SetDefault("providers.event_calendar.requests_per_sec", 50.0)
	v.SetDefault("providers.event_calendar.burst", 10)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_backoff_ms", 100)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	v.SetDefault("circuit_breaker.consecutive_failures", 5)
	v.SetDefault("circuit_breaker.cooldown_seconds", 30)
	v.SetDefault("circuit_breaker.half_open_max_requests", 1)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_overrides_seconds", map[string]int{})

	v.SetDefault("pricing.global_min_borrow_rate", "0.0025")
	v.SetDefault("pricing.staleness_multiplier", 2)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.calculate_max_requests", 60)
	v.SetDefault("rate_limit.calculate_window_seconds", 60)
	v.SetDefault("rate_limit.read_max_requests", 120)
	v.SetDefault("rate_limit.read_window_seconds", 60)
}

// Addr returns the "host:port" the API server should bind.
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RequestTimeout returns the per-request deadline as a time.Duration.
func (c *APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}
