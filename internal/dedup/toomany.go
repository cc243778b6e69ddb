package dedup

import (
	"sync"
	"time"
)

// tooManyCache remembers blocking keys whose candidate set already blew
// past the per-key cap, so candidate generation skips that key (until its
// flag expires after ttl) instead of re-scanning a key known to be
// hopelessly overloaded (a handful of generic titles or a shared
// placeholder ISBN can otherwise dominate every matching pass).
// Eviction is a size-triggered half-clear rather than true least-recently-used
// bookkeeping, the same tradeoff the reference mapping cache makes.
type tooManyCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	maxSize int
	ttl     time.Duration
}

func newTooManyCache(maxSize int, ttl time.Duration) *tooManyCache {
	return &tooManyCache{
		entries: make(map[string]time.Time),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// IsTooMany reports whether key was previously flagged and hasn't expired.
func (c *tooManyCache) IsTooMany(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	flaggedAt, ok := c.entries[key]
	if !ok {
		return false
	}
	return time.Since(flaggedAt) < c.ttl
}

// Flag marks key as having exceeded the candidate cap.
func (c *tooManyCache) Flag(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictHalf()
	}
	c.entries[key] = time.Now()
}

func (c *tooManyCache) evictHalf() {
	target := len(c.entries) / 2
	removed := 0
	for k := range c.entries {
		delete(c.entries, k)
		removed++
		if removed >= target {
			break
		}
	}
}
