package smartcache

// Stats is a point-in-time snapshot of a cache's counters. Counters only grow
// until ResetStats is called.
type Stats struct {
	Size        int    `json:"size"`
	MaxSize     int    `json:"max_size"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// Requests is the number of completed Get calls.
func (s Stats) Requests() uint64 {
	return s.Hits + s.Misses
}

func (s Stats) HitRate() float64 {
	if s.Requests() == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Requests())
}

func (s Stats) Utilization() float64 {
	if s.MaxSize == 0 {
		return 0
	}
	return float64(s.Size) / float64(s.MaxSize)
}

func (c *Cache[V]) Stats() Stats {
	c.lock.Lock()
	size := c.size
	c.lock.Unlock()

	return Stats{
		Size:        size,
		MaxSize:     c.maxSize,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// ResetStats zeroes the hit, miss, eviction and expiration counters.
func (c *Cache[V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
}
