package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/logging"
)

// DefaultTTL covers retrying the same report and re-running test fixtures
const DefaultTTL = 24 * time.Hour

// ResponseCache stores completed LLM responses keyed by Key
type ResponseCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
	failed atomic.Int64
}

// Stats describes the cache contents and session counters
type Stats struct {
	Count  int           `json:"count"`
	TTL    time.Duration `json:"ttl"`
	Hits   int64         `json:"hits"`
	Misses int64         `json:"misses"`
	Writes int64         `json:"writes"`
	Failed int64         `json:"failed_writes"`
}

// NewResponseCache wraps a store. A zero ttl uses DefaultTTL.
func NewResponseCache(store Store, ttl time.Duration, logger *zap.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		store:  store,
		ttl:    ttl,
		logger: logging.OrNop(logger),
	}
}

// Get returns a cached response or a miss
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok := c.store.Get(ctx, key)
	if ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", zap.String("key", key))
		return val, true
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores a response. A zero ttl uses the cache default. A failed write is
// logged and otherwise ignored.
func (c *ResponseCache) Put(ctx context.Context, key string, response []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if c.store.SetWithTTL(ctx, key, response, ttl) {
		c.writes.Add(1)
		return true
	}
	c.failed.Add(1)
	c.logger.Warn("cache write failed, continuing uncached", zap.String("key", key))
	return false
}

// Stats reports the number of cached responses and the configured TTL
func (c *ResponseCache) Stats(ctx context.Context) Stats {
	return Stats{
		Count:  c.store.Count(ctx, Pattern("")),
		TTL:    c.ttl,
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
		Failed: c.failed.Load(),
	}
}

// Clear deletes cached responses matching pattern, or every response when
// pattern is empty. Patterns outside the llm_cache namespace are scoped into
// it, so a shared store never loses keys that other components own.
func (c *ResponseCache) Clear(ctx context.Context, pattern string) int {
	pattern = scopePattern(pattern)
	n := c.store.Delete(ctx, pattern)
	c.logger.Info("cache cleared", zap.String("pattern", pattern), zap.Int("deleted", n))
	return n
}

func scopePattern(pattern string) string {
	if pattern == "" {
		return Pattern("")
	}
	if strings.HasPrefix(pattern, KeyPrefix+":") {
		return pattern
	}
	return KeyPrefix + ":" + pattern
}

// TTL returns the default entry lifetime
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}
