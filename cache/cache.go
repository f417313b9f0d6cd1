// Package cache holds rendered GET responses for a short time.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Entry is a cached response body.
type Entry struct {
	Status      int
	ContentType string
	Body        []byte
}

// Cache is a TTL cache keyed by request URL. It is cleared wholesale
// whenever the underlying data changes. Every Clear starts a new generation;
// a response rendered in an older generation is never stored.
type Cache struct {
	mu       sync.Mutex
	gen      uint64
	disabled bool
	entries  *gocache.Cache
}

// New creates a cache whose entries expire after ttl. A ttl of zero or less
// disables caching.
func New(ttl time.Duration) *Cache {
	cleanup := 2 * ttl
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Cache{disabled: ttl <= 0, entries: gocache.New(ttl, cleanup)}
}

// Get returns a live entry for key.
func (c *Cache) Get(key string) (Entry, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Generation identifies the current generation. Capture it before rendering
// a response and hand it to SetIfCurrent.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfCurrent stores e under key unless the cache was cleared since gen.
func (c *Cache) SetIfCurrent(gen uint64, key string, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.disabled {
		return false
	}
	c.entries.SetDefault(key, e)
	return true
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.gen++
	c.entries.Flush()
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until
// the janitor removes them.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}
