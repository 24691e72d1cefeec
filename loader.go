package smartcache

import (
	"context"
	"time"
)

// LoadFunc produces the value for a missing key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// GetOrLoad returns the cached value for key, or calls load on a miss and
// stores its result with the default TTL. Concurrent misses on the same key
// share a single load. A load error is returned and nothing is stored.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	return c.GetOrLoadWithTTL(ctx, key, c.opts.DefaultTTL, load)
}

// GetOrLoadWithTTL is GetOrLoad with an explicit TTL for the loaded value.
// Cancelling ctx abandons the wait for this caller only; the shared load
// keeps running for the others.
func (c *Cache[V]) GetOrLoadWithTTL(ctx context.Context, key string, ttl time.Duration, load LoadFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (interface{}, error) {
		return c.loadShared(loadCtx, key, ttl, load)
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// loadShared runs once per key for all waiting callers. A caller that missed
// just before an earlier load stored the key finds the value here instead of
// loading it again.
func (c *Cache[V]) loadShared(ctx context.Context, key string, ttl time.Duration, load LoadFunc[V]) (V, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.SetWithTTL(key, v, ttl); err != nil {
		return v, err
	}
	return v, nil
}
