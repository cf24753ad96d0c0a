package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements in-process caching with go-cache
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a new memory store
func NewMemoryStore(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the cache
func (c *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		data, ok := val.([]byte)
		return data, ok
	}
	return nil, false
}

// Remaining reports the lifetime left on an entry
func (c *MemoryStore) Remaining(_ context.Context, key string) (time.Duration, bool) {
	_, expires, found := c.cache.GetWithExpiration(key)
	if !found {
		return 0, false
	}
	if expires.IsZero() {
		return 0, true
	}
	left := time.Until(expires)
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// SetWithTTL stores a value. A zero ttl uses the store default.
func (c *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, value, ttl)
	return true
}

// Delete removes matching keys
func (c *MemoryStore) Delete(_ context.Context, pattern string) int {
	deleted := 0
	for key := range c.cache.Items() {
		if matchKey(pattern, key) {
			c.cache.Delete(key)
			deleted++
		}
	}
	return deleted
}

// Count returns the number of live matching keys
func (c *MemoryStore) Count(_ context.Context, pattern string) int {
	n := 0
	for key := range c.cache.Items() {
		if matchKey(pattern, key) {
			n++
		}
	}
	return n
}
