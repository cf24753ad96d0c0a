package cache

import (
	"context"
	"time"
)

// LayeredStore implements a two-layer cache: a fast local front and a
// shared or persistent back
type LayeredStore struct {
	front Store
	back  Store
}

// NewLayeredStore creates a new layered store
func NewLayeredStore(front, back Store) *LayeredStore {
	return &LayeredStore{
		front: front,
		back:  back,
	}
}

// Get checks the front first, then the back
func (c *LayeredStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.front.Get(ctx, key); found {
		return val, true
	}

	if val, found := c.back.Get(ctx, key); found {
		c.promote(ctx, key, val)
		return val, true
	}

	return nil, false
}

// promote copies a back hit to the front without outliving the back entry.
// A back layer that cannot report expiry is not promoted from.
func (c *LayeredStore) promote(ctx context.Context, key string, val []byte) {
	reader, ok := c.back.(expiryReader)
	if !ok {
		return
	}
	remaining, ok := reader.Remaining(ctx, key)
	if !ok {
		return
	}
	// Zero means no expiry on the back; the front default applies
	c.front.SetWithTTL(ctx, key, val, remaining)
}

// SetWithTTL stores a value in both layers. It succeeds if either layer
// accepted the value.
func (c *LayeredStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	front := c.front.SetWithTTL(ctx, key, value, ttl)
	back := c.back.SetWithTTL(ctx, key, value, ttl)
	return front || back
}

// Delete removes matching keys from both layers and reports the back count
func (c *LayeredStore) Delete(ctx context.Context, pattern string) int {
	front := c.front.Delete(ctx, pattern)
	back := c.back.Delete(ctx, pattern)
	if back > front {
		return back
	}
	return front
}

// Count reports the larger of the two layers
func (c *LayeredStore) Count(ctx context.Context, pattern string) int {
	front := c.front.Count(ctx, pattern)
	back := c.back.Count(ctx, pattern)
	if back > front {
		return back
	}
	return front
}
