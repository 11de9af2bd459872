package toolcache

import (
	"context"
	"sync"
	"time"
)

// entry is immutable once written; refreshes overwrite it wholesale.
type entry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

// MemoryCache is the in-process cache backend. Expired entries are dropped
// lazily on read and swept opportunistically on write.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= e.ttl {
		delete(c.entries, key)
		return nil, false
	}
	// Copy so callers can't mutate the stored entry.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Put implements Cache. A non-positive ttl stores nothing.
func (c *MemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: stored, storedAt: c.now(), ttl: ttl}
	c.sweepLocked()
}

// sweepLocked drops expired entries; called with the lock held.
func (c *MemoryCache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= e.ttl {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of live entries. Used by tests.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
