package smartcache

import (
	"math"
	"time"
)

const neverExpires = math.MaxUint64

// entry is the record stored in the memdb table. Indexed fields (Key, Seq,
// Deadline) must not be mutated in place once inserted; copy and re-insert.
type entry[V any] struct {
	Key        string
	Value      V
	CreatedAt  time.Time
	LastAccess time.Time
	TTL        time.Duration
	Hits       uint64
	Seq        uint64
	Deadline   uint64
}

func (e *entry[V]) expired(now time.Time) bool {
	return e.Deadline != neverExpires && unixNanos(now) >= e.Deadline
}

// EntryInfo describes one stored entry at the moment Entries was called.
type EntryInfo struct {
	Key       string        `json:"key"`
	Age       time.Duration `json:"age"`
	Idle      time.Duration `json:"idle"`
	Hits      uint64        `json:"hits"`
	TTL       time.Duration `json:"ttl"`
	ExpiresIn time.Duration `json:"expires_in"`
	Expires   bool          `json:"expires"`
	Expired   bool          `json:"expired"`
}

func (e *entry[V]) info(now time.Time) EntryInfo {
	info := EntryInfo{
		Key:     e.Key,
		Age:     now.Sub(e.CreatedAt),
		Idle:    now.Sub(e.LastAccess),
		Hits:    e.Hits,
		TTL:     e.TTL,
		Expires: e.Deadline != neverExpires,
		Expired: e.expired(now),
	}
	if info.Expires && !info.Expired {
		info.ExpiresIn = e.CreatedAt.Add(e.TTL).Sub(now)
	}
	return info
}

// deadline is computed in unsigned nanoseconds so TTLs reaching past 2262
// (where time.UnixNano overflows) stay in the future. The sum of two values
// below 2^63 can never reach neverExpires.
func deadline(created time.Time, ttl time.Duration) uint64 {
	if ttl <= 0 {
		return unixNanos(created)
	}
	return unixNanos(created) + uint64(ttl)
}

func unixNanos(t time.Time) uint64 {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}
