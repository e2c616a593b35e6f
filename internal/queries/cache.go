package queries

import (
	"sync"
	"time"
)

// cacheSweepAt bounds the entry map: once it grows past this, expired
// entries are swept on the next put.
const cacheSweepAt = 512

// ttlCache is a per-key cache with a fixed TTL. Writers race freely; the
// last put for a key wins, and readers only ever see entries younger than
// the TTL.
type ttlCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	val     any
	expires time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ttlCache) get(key string) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.val, true
}

func (c *ttlCache) put(key string, val any) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= cacheSweepAt {
		now := c.now()
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry{val: val, expires: c.now().Add(c.ttl)}
}

// cached returns the cached value for key or fetches, stores, and returns a
// fresh one. Errors are never cached.
func cached[T any](c *ttlCache, key string, fetch func() (T, error)) (T, error) {
	if v, ok := c.get(key); ok {
		if t, tok := v.(T); tok {
			return t, nil
		}
	}
	t, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	c.put(key, t)
	return t, nil
}
