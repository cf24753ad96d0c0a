package cache

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/redisconn"
)

// Store is a key/value store with per-entry TTL. Implementations never
// surface errors: a failing backend behaves like an empty one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	// Delete removes every key matching a glob pattern and returns the count
	Delete(ctx context.Context, pattern string) int
	// Count returns how many keys match a glob pattern
	Count(ctx context.Context, pattern string) int
}

// expiryReader is implemented by stores that can report how long an entry
// has left. ok is false for a missing entry; zero means no expiry.
type expiryReader interface {
	Remaining(ctx context.Context, key string) (time.Duration, bool)
}

// NewStore builds the store named by cfg.Backend. conn is only used by the
// redis-backed variants and may be nil otherwise.
func NewStore(cfg model.CacheConfig, conn *redisconn.Lazy, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStore(cfg.TTL, 10*time.Minute), nil

	case "disk":
		return NewDiskStore(cfg.Dir, cfg.TTL), nil

	case "layered":
		return NewLayeredStore(NewMemoryStore(cfg.TTL, 10*time.Minute), NewDiskStore(cfg.Dir, cfg.TTL)), nil

	case "redis":
		if conn == nil {
			conn = redisconn.New(cfg.RedisURL, logger)
		}
		return NewRedisStore(conn, logger), nil

	case "layered-redis":
		if conn == nil {
			conn = redisconn.New(cfg.RedisURL, logger)
		}
		return NewLayeredStore(NewMemoryStore(cfg.TTL, 10*time.Minute), NewRedisStore(conn, logger)), nil

	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: memory, disk, layered, redis, layered-redis)", cfg.Backend)
	}
}

// matchKey reports whether key matches a glob pattern. An empty pattern
// matches everything.
func matchKey(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
