package smartcache

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
)

// ZeroTTLPolicy decides what a TTL of zero or less means.
type ZeroTTLPolicy int

const (
	// ZeroTTLExpire treats a non-positive TTL as already expired: nothing is
	// stored and any existing entry for the key is dropped.
	ZeroTTLExpire ZeroTTLPolicy = iota
	// ZeroTTLNever stores the entry without an expiration.
	ZeroTTLNever
)

func (p ZeroTTLPolicy) String() string {
	switch p {
	case ZeroTTLExpire:
		return "expire"
	case ZeroTTLNever:
		return "never"
	default:
		return fmt.Sprintf("ZeroTTLPolicy(%d)", int(p))
	}
}

// ParseZeroTTLPolicy accepts "expire" or "never".
func ParseZeroTTLPolicy(s string) (ZeroTTLPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expire", "":
		return ZeroTTLExpire, nil
	case "never":
		return ZeroTTLNever, nil
	}
	return 0, &ConfigError{Field: "zero_ttl", Reason: fmt.Sprintf("must be expire or never, got %q", s)}
}

// EvictReason tells an EvictCallback why an entry left the cache.
type EvictReason int

const (
	ReasonEvicted EvictReason = iota
	ReasonExpired
	ReasonDeleted
)

func (r EvictReason) String() string {
	switch r {
	case ReasonEvicted:
		return "evicted"
	case ReasonExpired:
		return "expired"
	case ReasonDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// EvictCallback is called when an entry is removed by eviction, expiration
// or Delete. It never runs while the cache lock is held.
type EvictCallback[V any] func(key string, value V, reason EvictReason)

type Options[V any] struct {
	DefaultTTL      time.Duration
	ZeroTTL         ZeroTTLPolicy
	CleanupInterval time.Duration // 0 disables the background sweeper
	LogLevel        string        // "debug", "info", "warn", "error"; empty discards logs
	Logger          *log.Logger   // takes precedence over LogLevel
	EvictCallback   EvictCallback[V]
	Clock           clock.Clock
}

// CacheSettings is the value-type independent part of Options, as supplied by
// configuration and used by Registry to build named caches.
type CacheSettings struct {
	MaxSize         int           `json:"max_size"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	ZeroTTL         ZeroTTLPolicy `json:"zero_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// Validate reports the first invalid field as a *ConfigError.
func (s CacheSettings) Validate() error {
	if s.MaxSize <= 0 {
		return &ConfigError{Field: "max_size", Reason: fmt.Sprintf("must be positive, got %d", s.MaxSize)}
	}
	if s.CleanupInterval < 0 {
		return &ConfigError{Field: "cleanup_interval", Reason: fmt.Sprintf("must not be negative, got %s", s.CleanupInterval)}
	}
	if s.ZeroTTL != ZeroTTLExpire && s.ZeroTTL != ZeroTTLNever {
		return &ConfigError{Field: "zero_ttl", Reason: fmt.Sprintf("unknown policy %s", s.ZeroTTL)}
	}
	return nil
}

func optionsFor[V any](s CacheSettings, logger *log.Logger, clk clock.Clock) Options[V] {
	return Options[V]{
		DefaultTTL:      s.DefaultTTL,
		ZeroTTL:         s.ZeroTTL,
		CleanupInterval: s.CleanupInterval,
		Logger:          logger,
		Clock:           clk,
	}
}

func buildLogger(level string) (*log.Logger, error) {
	if level == "" {
		return log.NewWithOptions(io.Discard, log.Options{}), nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, &ConfigError{Field: "log_level", Reason: err.Error()}
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "smartcache",
		Level:           lvl,
		ReportTimestamp: true,
	}), nil
}
