package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FreshnessThreshold is the maximum age of a reported latest block time for an endpoint to count as live.
const FreshnessThreshold = 60 * time.Second

// Config holds all configuration for the application.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Prober      ProberConfig      `mapstructure:"prober"`
	Unhealthy   UnhealthyConfig   `mapstructure:"unhealthy"`
	HealthCache HealthCacheConfig `mapstructure:"health_cache"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Registry    RegistryConfig    `mapstructure:"registry"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// ProberConfig holds the timeouts applied to every probe.
type ProberConfig struct {
	DNSTimeout   time.Duration `mapstructure:"dns_timeout"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// UnhealthyConfig holds settings of the unhealthy endpoint cache.
type UnhealthyConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// HealthCacheConfig holds settings of the per-chain selection cache.
type HealthCacheConfig struct {
	// TTL bounds how long a selection is reused. Zero keeps entries until explicitly invalidated.
	TTL                     time.Duration `mapstructure:"ttl"`
	MaxConcurrentSelections int           `mapstructure:"max_concurrent_selections"`
	SelectionTimeout        time.Duration `mapstructure:"selection_timeout"`
}

// CacheConfig holds settings for the parsed registry document cache.
type CacheConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// RegistryConfig holds configuration for the chain registry snapshot.
type RegistryConfig struct {
	RepoURL       string `mapstructure:"repo_url"`
	Dir           string `mapstructure:"dir"`
	StaleHours    int    `mapstructure:"stale_hours"`
	SyncOnStartup bool   `mapstructure:"sync_on_startup"`
	StaticFile    string `mapstructure:"static_file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "chainhealth")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("prober.dns_timeout", "2s")
	v.SetDefault("prober.fetch_timeout", "12s")
	v.SetDefault("unhealthy.sweep_interval", "60s")
	v.SetDefault("health_cache.ttl", "0s")
	v.SetDefault("health_cache.max_concurrent_selections", 4)
	v.SetDefault("health_cache.selection_timeout", "60s")
	v.SetDefault("cache.default_expiration", "30m")
	v.SetDefault("cache.cleanup_interval", "1h")
	v.SetDefault("registry.repo_url", "https://github.com/cosmos/chain-registry.git")
	v.SetDefault("registry.dir", "data/chain-registry")
	v.SetDefault("registry.stale_hours", 6)
	v.SetDefault("registry.sync_on_startup", true)
	v.SetDefault("registry.static_file", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: Config file not found in %s or '.', using defaults/env vars\n", configPath)
	}

	v.SetEnvPrefix("CHAINHEALTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the health subsystem cannot run with.
func (c Config) Validate() error {
	if c.Prober.DNSTimeout <= 0 {
		return fmt.Errorf("prober.dns_timeout must be positive, got %v", c.Prober.DNSTimeout)
	}
	if c.Prober.FetchTimeout <= 0 {
		return fmt.Errorf("prober.fetch_timeout must be positive, got %v", c.Prober.FetchTimeout)
	}
	if c.Unhealthy.SweepInterval <= 0 {
		return fmt.Errorf("unhealthy.sweep_interval must be positive, got %v", c.Unhealthy.SweepInterval)
	}
	if c.HealthCache.TTL < 0 {
		return fmt.Errorf("health_cache.ttl cannot be negative, got %v", c.HealthCache.TTL)
	}
	if c.Registry.StaleHours <= 0 {
		return fmt.Errorf("registry.stale_hours must be positive, got %d", c.Registry.StaleHours)
	}
	return nil
}

func (c ProberConfig) GetDNSTimeout() time.Duration {
	return c.DNSTimeout
}

func (c ProberConfig) GetFetchTimeout() time.Duration {
	return c.FetchTimeout
}

func (c HealthCacheConfig) GetMaxConcurrentSelections() int64 {
	if c.MaxConcurrentSelections <= 0 {
		return 1
	}
	return int64(c.MaxConcurrentSelections)
}

func (c CacheConfig) GetDefaultExpiration() time.Duration {
	return c.DefaultExpiration
}

func (c CacheConfig) GetCleanupInterval() time.Duration {
	return c.CleanupInterval
}

// GetStaleAfter converts the registry staleness threshold to a duration.
func (c RegistryConfig) GetStaleAfter() time.Duration {
	return time.Duration(c.StaleHours) * time.Hour
}
