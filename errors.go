package smartcache

import (
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("cache closed")
	ErrInvalidConfig = errors.New("invalid cache configuration")
	ErrCacheExists   = errors.New("cache already exists")
	ErrCacheNotFound = errors.New("cache not found")
	ErrTooManyCaches = errors.New("registry cache limit reached")
)

// ConfigError reports a rejected construction parameter. It matches
// ErrInvalidConfig under errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid cache configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
