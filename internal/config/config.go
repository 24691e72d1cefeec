// Package config loads daemon and cache settings from defaults, an optional
// YAML file and VALIDAI_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/shammianand/smartcache"
	"github.com/shammianand/smartcache/internal/logging"
)

const EnvPrefix = "VALIDAI_"

// Recommended ranges. Values outside them are accepted with a warning.
const (
	minRecommendedTTL  = 60
	maxRecommendedTTL  = 86400
	minRecommendedSize = 10
	maxRecommendedSize = 10000
)

type CacheConfig struct {
	MaxSize                int    `mapstructure:"max_size" yaml:"max_size" env:"SIZE"`
	DefaultTTLSeconds      int    `mapstructure:"default_ttl_seconds" yaml:"default_ttl_seconds" env:"TTL"`
	CleanupIntervalSeconds int    `mapstructure:"cleanup_interval_seconds" yaml:"cleanup_interval_seconds" env:"CLEANUP_INTERVAL"`
	ZeroTTL                string `mapstructure:"zero_ttl" yaml:"zero_ttl" env:"ZERO_TTL"`
	MaxCaches              int    `mapstructure:"max_caches" yaml:"max_caches" env:"MAX_CACHES"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" env:"LEVEL"`
	Format string `mapstructure:"format" yaml:"format" env:"FORMAT"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxValueBytes   int64         `mapstructure:"max_value_bytes" yaml:"max_value_bytes" env:"MAX_VALUE_BYTES"`
}

// Config is the central configuration struct.
type Config struct {
	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache" envPrefix:"CACHE_"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" envPrefix:"LOG_"`
	Server ServerConfig `mapstructure:"server" yaml:"server" envPrefix:"SERVER_"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxSize:                1000,
			DefaultTTLSeconds:      1800,
			CleanupIntervalSeconds: 600,
			ZeroTTL:                smartcache.ZeroTTLExpire.String(),
			MaxCaches:              64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			MaxValueBytes:   1 << 20,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("cache.max_size", d.Cache.MaxSize)
	v.SetDefault("cache.default_ttl_seconds", d.Cache.DefaultTTLSeconds)
	v.SetDefault("cache.cleanup_interval_seconds", d.Cache.CleanupIntervalSeconds)
	v.SetDefault("cache.zero_ttl", d.Cache.ZeroTTL)
	v.SetDefault("cache.max_caches", d.Cache.MaxCaches)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_value_bytes", d.Server.MaxValueBytes)
}

// Load reads path, or smartcache.yaml from the working directory and the
// user config directory when path is empty, then applies environment
// overrides and validates the result. A missing file is only an error when
// path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("smartcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "smartcache"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Cache.DefaultTTLSeconds < 0 {
		return &smartcache.ConfigError{Field: "default_ttl_seconds", Reason: fmt.Sprintf("must not be negative, got %d", c.Cache.DefaultTTLSeconds)}
	}
	settings, err := c.Settings()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return &smartcache.ConfigError{Field: "log.level", Reason: err.Error()}
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return &smartcache.ConfigError{Field: "log.format", Reason: err.Error()}
	}
	if c.Cache.MaxCaches < 0 {
		return &smartcache.ConfigError{Field: "cache.max_caches", Reason: fmt.Sprintf("must not be negative, got %d", c.Cache.MaxCaches)}
	}
	if c.Server.MaxValueBytes <= 0 {
		return &smartcache.ConfigError{Field: "server.max_value_bytes", Reason: "must be positive"}
	}
	return nil
}

// Warnings lists accepted settings that fall outside the recommended ranges.
func (c *Config) Warnings() []string {
	var out []string
	if ttl := c.Cache.DefaultTTLSeconds; ttl < minRecommendedTTL || ttl > maxRecommendedTTL {
		out = append(out, fmt.Sprintf("cache.default_ttl_seconds=%d outside recommended range %d..%d", ttl, minRecommendedTTL, maxRecommendedTTL))
	}
	if size := c.Cache.MaxSize; size < minRecommendedSize || size > maxRecommendedSize {
		out = append(out, fmt.Sprintf("cache.max_size=%d outside recommended range %d..%d", size, minRecommendedSize, maxRecommendedSize))
	}
	return out
}

// Settings converts the cache section into smartcache.CacheSettings.
func (c *Config) Settings() (smartcache.CacheSettings, error) {
	policy, err := smartcache.ParseZeroTTLPolicy(c.Cache.ZeroTTL)
	if err != nil {
		return smartcache.CacheSettings{}, err
	}
	return smartcache.CacheSettings{
		MaxSize:         c.Cache.MaxSize,
		DefaultTTL:      time.Duration(c.Cache.DefaultTTLSeconds) * time.Second,
		ZeroTTL:         policy,
		CleanupInterval: time.Duration(c.Cache.CleanupIntervalSeconds) * time.Second,
	}, nil
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
