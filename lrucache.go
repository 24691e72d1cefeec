// Package smartcache provides a thread-safe in-memory cache with per-entry
// TTL, LRU eviction and a registry of named caches.
package smartcache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-memdb"
	"golang.org/x/sync/singleflight"
)

// Cache is a bounded key/value store with per-entry TTL and least recently
// used eviction. All methods are safe for concurrent use.
//
// Stored values are not copied. Callers must treat values returned by Get as
// read-only when other holders may exist.
type Cache[V any] struct {
	lock    sync.Mutex
	schema  *memdb.DBSchema
	db      *memdb.MemDB
	size    int
	maxSize int
	seq     uint64
	closed  bool

	opts   Options[V]
	clock  clock.Clock
	logger *log.Logger

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	loads singleflight.Group

	ticker *clock.Ticker
	stop   chan struct{}
	done   chan struct{}
}

type removal[V any] struct {
	key    string
	value  V
	reason EvictReason
}

// New creates a cache holding at most maxSize entries. A non-positive
// maxSize, a negative cleanup interval or an unknown log level is rejected
// with a *ConfigError.
func New[V any](maxSize int, opts Options[V]) (*Cache[V], error) {
	settings := CacheSettings{
		MaxSize:         maxSize,
		DefaultTTL:      opts.DefaultTTL,
		ZeroTTL:         opts.ZeroTTL,
		CleanupInterval: opts.CleanupInterval,
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		l, err := buildLogger(opts.LogLevel)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	schema := newSchema[V]()
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}

	c := &Cache[V]{
		schema:  schema,
		db:      db,
		maxSize: maxSize,
		opts:    opts,
		clock:   clk,
		logger:  logger,
	}

	if opts.CleanupInterval > 0 {
		c.ticker = clk.Ticker(opts.CleanupInterval)
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.expirationManager()
	}

	logger.Debug("cache created", "max_size", maxSize, "default_ttl", opts.DefaultTTL, "zero_ttl", opts.ZeroTTL)
	return c, nil
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) error {
	return c.SetWithTTL(key, value, c.opts.DefaultTTL)
}

// SetWithTTL inserts or overwrites key and marks it most recently used. A
// ttl <= 0 is handled according to the cache's ZeroTTLPolicy. Inserting a
// new key into a full cache first drops expired entries, then evicts least
// recently used ones.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) error {
	c.lock.Lock()
	removed, err := c.setLocked(key, value, ttl)
	c.lock.Unlock()

	if err != nil {
		return err
	}
	c.logger.Debug("set", "key", key, "ttl", ttl)
	c.notify(removed)
	return nil
}

func (c *Cache[V]) setLocked(key string, value V, ttl time.Duration) ([]removal[V], error) {
	if c.closed {
		return nil, ErrClosed
	}

	now := c.clock.Now()
	txn := c.db.Txn(true)
	defer txn.Abort()

	existing, err := c.lookup(txn, key)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 && c.opts.ZeroTTL == ZeroTTLExpire {
		if existing == nil {
			return nil, nil
		}
		if err := txn.Delete(tableEntries, existing); err != nil {
			return nil, fmt.Errorf("failed to delete item: %w", err)
		}
		txn.Commit()
		c.size--
		c.expirations.Add(1)
		return []removal[V]{{key: key, value: existing.Value, reason: ReasonExpired}}, nil
	}

	c.seq++
	item := &entry[V]{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		LastAccess: now,
		TTL:        ttl,
		Seq:        c.seq,
		Deadline:   deadline(now, ttl),
	}
	if ttl <= 0 {
		item.TTL = 0
		item.Deadline = neverExpires
	}

	var removed []removal[V]
	if existing == nil && c.size >= c.maxSize {
		removed, err = c.makeRoomLocked(txn, now)
		if err != nil {
			return nil, err
		}
	}

	if err := txn.Insert(tableEntries, item); err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}
	txn.Commit()

	c.size -= len(removed)
	if existing == nil {
		c.size++
	}
	for _, r := range removed {
		if r.reason == ReasonEvicted {
			c.evictions.Add(1)
		} else {
			c.expirations.Add(1)
		}
	}
	return removed, nil
}

// makeRoomLocked frees at least one slot. Expired entries go first since
// they are already dead, then entries in least recently used order.
func (c *Cache[V]) makeRoomLocked(txn *memdb.Txn, now time.Time) ([]removal[V], error) {
	expired, err := c.expiredLocked(txn, now)
	if err != nil {
		return nil, err
	}

	removed := make([]removal[V], 0, len(expired)+1)
	for _, e := range expired {
		if err := txn.Delete(tableEntries, e); err != nil {
			return nil, fmt.Errorf("failed to remove expired item: %w", err)
		}
		removed = append(removed, removal[V]{key: e.Key, value: e.Value, reason: ReasonExpired})
	}

	for c.size-len(removed) >= c.maxSize {
		it, err := txn.LowerBound(tableEntries, indexRecency, uint64(0))
		if err != nil {
			return nil, fmt.Errorf("failed to scan recency: %w", err)
		}
		raw := it.Next()
		if raw == nil {
			break
		}
		lru := raw.(*entry[V])
		if err := txn.Delete(tableEntries, lru); err != nil {
			return nil, fmt.Errorf("failed to evict item: %w", err)
		}
		removed = append(removed, removal[V]{key: lru.Key, value: lru.Value, reason: ReasonEvicted})
	}
	return removed, nil
}

// expiredLocked walks the expiry index up to the first live entry.
func (c *Cache[V]) expiredLocked(txn *memdb.Txn, now time.Time) ([]*entry[V], error) {
	it, err := txn.LowerBound(tableEntries, indexExpiry, uint64(0))
	if err != nil {
		return nil, fmt.Errorf("failed to scan expirations: %w", err)
	}

	var out []*entry[V]
	for raw := it.Next(); raw != nil; raw = it.Next() {
		e := raw.(*entry[V])
		if !e.expired(now) {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// Get returns the value for key if it is present and not expired. A hit
// marks the entry most recently used without extending its TTL. An expired
// entry found at key is removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	value, ok := c.get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return value, ok
}

// get is Get without touching the hit and miss counters.
func (c *Cache[V]) get(key string) (V, bool) {
	c.lock.Lock()
	value, ok, removed, err := c.getLocked(key)
	c.lock.Unlock()

	if err != nil {
		c.logger.Error("get failed", "key", key, "err", err)
	}
	c.notify(removed)
	return value, ok
}

func (c *Cache[V]) getLocked(key string) (value V, ok bool, removed []removal[V], err error) {
	if c.closed {
		return value, false, nil, nil
	}

	now := c.clock.Now()
	txn := c.db.Txn(true)
	defer txn.Abort()

	item, err := c.lookup(txn, key)
	if err != nil || item == nil {
		return value, false, nil, err
	}

	if item.expired(now) {
		if err := txn.Delete(tableEntries, item); err != nil {
			return value, false, nil, fmt.Errorf("failed to remove expired item: %w", err)
		}
		txn.Commit()
		c.size--
		c.expirations.Add(1)
		return value, false, []removal[V]{{key: item.Key, value: item.Value, reason: ReasonExpired}}, nil
	}

	touched := *item
	c.seq++
	touched.Seq = c.seq
	touched.LastAccess = now
	touched.Hits++
	if err := txn.Insert(tableEntries, &touched); err != nil {
		return item.Value, true, nil, fmt.Errorf("failed to update recency: %w", err)
	}
	txn.Commit()
	return item.Value, true, nil, nil
}

// Delete removes key and reports whether an entry was removed. An expired
// entry that had not been swept yet still counts as removed, and as an
// expiration in Stats.
func (c *Cache[V]) Delete(key string) bool {
	c.lock.Lock()
	ok, removed, err := c.deleteLocked(key)
	c.lock.Unlock()

	if err != nil {
		c.logger.Error("delete failed", "key", key, "err", err)
	}
	c.notify(removed)
	return ok
}

func (c *Cache[V]) deleteLocked(key string) (bool, []removal[V], error) {
	if c.closed {
		return false, nil, nil
	}

	txn := c.db.Txn(true)
	defer txn.Abort()

	item, err := c.lookup(txn, key)
	if err != nil || item == nil {
		return false, nil, err
	}
	if err := txn.Delete(tableEntries, item); err != nil {
		return false, nil, fmt.Errorf("failed to delete item: %w", err)
	}
	txn.Commit()
	c.size--

	if item.expired(c.clock.Now()) {
		c.expirations.Add(1)
		return true, []removal[V]{{key: key, value: item.Value, reason: ReasonExpired}}, nil
	}
	return true, []removal[V]{{key: key, value: item.Value, reason: ReasonDeleted}}, nil
}

// Clear removes every entry. Counters are left untouched.
func (c *Cache[V]) Clear() {
	c.lock.Lock()
	err := c.resetLocked()
	c.lock.Unlock()

	if err != nil {
		c.logger.Error("failed to clear cache", "err", err)
		return
	}
	c.logger.Info("cache cleared")
}

func (c *Cache[V]) resetLocked() error {
	db, err := memdb.NewMemDB(c.schema)
	if err != nil {
		return fmt.Errorf("failed to create memdb: %w", err)
	}
	c.db = db
	c.size = 0
	return nil
}

// SweepExpired removes all expired entries and returns how many it removed.
func (c *Cache[V]) SweepExpired() int {
	c.lock.Lock()
	removed, err := c.sweepLocked()
	c.lock.Unlock()

	if err != nil {
		c.logger.Error("failed to sweep expired items", "err", err)
	}
	c.notify(removed)
	return len(removed)
}

func (c *Cache[V]) sweepLocked() ([]removal[V], error) {
	if c.closed {
		return nil, nil
	}

	txn := c.db.Txn(true)
	defer txn.Abort()

	expired, err := c.expiredLocked(txn, c.clock.Now())
	if err != nil || len(expired) == 0 {
		return nil, err
	}

	removed := make([]removal[V], 0, len(expired))
	for _, e := range expired {
		if err := txn.Delete(tableEntries, e); err != nil {
			return nil, fmt.Errorf("failed to remove expired item: %w", err)
		}
		removed = append(removed, removal[V]{key: e.Key, value: e.Value, reason: ReasonExpired})
	}
	txn.Commit()

	c.size -= len(removed)
	c.expirations.Add(uint64(len(removed)))
	return removed, nil
}

// Len returns the number of stored entries, including expired entries that
// have not been removed yet.
func (c *Cache[V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.size
}

// Keys returns the stored keys from most to least recently used.
func (c *Cache[V]) Keys() []string {
	c.lock.Lock()
	items, err := c.byRecencyLocked()
	c.lock.Unlock()

	if err != nil {
		c.logger.Error("failed to list keys", "err", err)
		return nil
	}
	keys := make([]string, len(items))
	for i, e := range items {
		keys[len(items)-1-i] = e.Key
	}
	return keys
}

// Entries describes every stored entry, most recently used first.
func (c *Cache[V]) Entries() []EntryInfo {
	c.lock.Lock()
	now := c.clock.Now()
	items, err := c.byRecencyLocked()
	c.lock.Unlock()

	if err != nil {
		c.logger.Error("failed to list entries", "err", err)
		return nil
	}
	infos := make([]EntryInfo, len(items))
	for i, e := range items {
		infos[len(items)-1-i] = e.info(now)
	}
	return infos
}

func (c *Cache[V]) byRecencyLocked() ([]*entry[V], error) {
	txn := c.db.Txn(false)
	it, err := txn.LowerBound(tableEntries, indexRecency, uint64(0))
	if err != nil {
		return nil, fmt.Errorf("failed to scan recency: %w", err)
	}

	items := make([]*entry[V], 0, c.size)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		items = append(items, raw.(*entry[V]))
	}
	return items, nil
}

func (c *Cache[V]) lookup(txn *memdb.Txn, key string) (*entry[V], error) {
	raw, err := txn.First(tableEntries, indexID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve item: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*entry[V]), nil
}

func (c *Cache[V]) notify(removed []removal[V]) {
	for _, r := range removed {
		c.logger.Debug("removed key", "key", r.key, "reason", r.reason)
		if c.opts.EvictCallback != nil {
			c.opts.EvictCallback(r.key, r.value, r.reason)
		}
	}
}
