package smartcache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
)

type RegistryOptions struct {
	Logger    *log.Logger
	Clock     clock.Clock
	MaxCaches int // 0 means no limit
}

// Registry owns a set of named caches. Caches are created on first request
// and closed by Remove or Shutdown.
type Registry struct {
	mu       sync.Mutex
	caches    map[string]*Cache[any]
	defaults  CacheSettings
	maxCaches int
	logger    *log.Logger
	clock     clock.Clock
	closed    bool
}

// NewRegistry validates defaults, which are used by GetOrCreate.
func NewRegistry(defaults CacheSettings, opts RegistryOptions) (*Registry, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxCaches < 0 {
		return nil, &ConfigError{Field: "max_caches", Reason: fmt.Sprintf("must not be negative, got %d", opts.MaxCaches)}
	}
	logger := opts.Logger
	if logger == nil {
		logger, _ = buildLogger("")
	}
	return &Registry{
		caches:    make(map[string]*Cache[any]),
		defaults:  defaults,
		maxCaches: opts.MaxCaches,
		logger:    logger,
		clock:     opts.Clock,
	}, nil
}

func (r *Registry) Defaults() CacheSettings {
	return r.defaults
}

// GetOrCreate returns the cache called name, creating it with the registry
// defaults if needed. Creating a cache beyond RegistryOptions.MaxCaches fails
// with ErrTooManyCaches.
func (r *Registry) GetOrCreate(name string) (*Cache[any], error) {
	return r.GetOrCreateWith(name, r.defaults)
}

// GetOrCreateWith returns the cache called name, creating it with settings
// if needed. Settings are ignored when the cache already exists.
func (r *Registry) GetOrCreateWith(name string, settings CacheSettings) (*Cache[any], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if c, ok := r.caches[name]; ok {
		return c, nil
	}
	return r.createLocked(name, settings)
}

// Create builds a new named cache and fails with ErrCacheExists if the name
// is taken.
func (r *Registry) Create(name string, settings CacheSettings) (*Cache[any], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if _, ok := r.caches[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheExists, name)
	}
	return r.createLocked(name, settings)
}

func (r *Registry) createLocked(name string, settings CacheSettings) (*Cache[any], error) {
	if r.maxCaches > 0 && len(r.caches) >= r.maxCaches {
		return nil, fmt.Errorf("%w: %d caches", ErrTooManyCaches, r.maxCaches)
	}
	c, err := New[any](settings.MaxSize, optionsFor[any](settings, r.logger.With("cache", name), r.clock))
	if err != nil {
		return nil, fmt.Errorf("create cache %s: %w", name, err)
	}
	r.caches[name] = c
	r.logger.Info("cache created", "cache", name, "max_size", settings.MaxSize, "default_ttl", settings.DefaultTTL)
	return c, nil
}

// Existing returns the cache called name without creating it.
func (r *Registry) Existing(name string) (*Cache[any], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names returns the registered cache names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove closes and unregisters the cache called name.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	c, ok := r.caches[name]
	delete(r.caches, name)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := c.Close(); err != nil {
		r.logger.Error("failed to close cache", "cache", name, "err", err)
	}
	return true
}

// ClearAll empties every registered cache.
func (r *Registry) ClearAll() {
	for _, c := range r.snapshot() {
		c.Clear()
	}
	r.logger.Info("all caches cleared")
}

// Stats returns a snapshot of every registered cache keyed by name.
func (r *Registry) Stats() map[string]Stats {
	caches := r.snapshot()
	out := make(map[string]Stats, len(caches))
	for name, c := range caches {
		out[name] = c.Stats()
	}
	return out
}

// Shutdown closes every cache. The registry refuses new caches afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	caches := r.caches
	r.caches = make(map[string]*Cache[any])
	r.closed = true
	r.mu.Unlock()

	for name, c := range caches {
		if err := c.Close(); err != nil {
			r.logger.Error("failed to close cache", "cache", name, "err", err)
		}
	}
	r.logger.Info("all caches shut down", "count", len(caches))
}

func (r *Registry) snapshot() map[string]*Cache[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*Cache[any], len(r.caches))
	for name, c := range r.caches {
		out[name] = c
	}
	return out
}
