package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/redisconn"
)

const scanBatch = 200

// RedisStore keeps entries in redis with native expiry
type RedisStore struct {
	conn   *redisconn.Lazy
	logger *zap.Logger
}

// NewRedisStore creates a store on a lazily connected client
func NewRedisStore(conn *redisconn.Lazy, logger *zap.Logger) *RedisStore {
	return &RedisStore{conn: conn, logger: logging.OrNop(logger)}
}

// Get returns the value or a miss. Connection and command failures are misses.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	rdb, err := s.conn.Client(ctx)
	if err != nil {
		return nil, false
	}

	val, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return val, true
}

// Remaining reports the lifetime left on a key. PTTL answers -1 for a key
// without expiry and -2 for a missing key.
func (s *RedisStore) Remaining(ctx context.Context, key string) (time.Duration, bool) {
	rdb, err := s.conn.Client(ctx)
	if err != nil {
		return 0, false
	}

	ttl, err := rdb.PTTL(ctx, key).Result()
	if err != nil {
		s.logger.Warn("cache ttl lookup failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	switch {
	case ttl > 0:
		return ttl, true
	case ttl == -1:
		return 0, true
	default:
		return 0, false
	}
}

// SetWithTTL stores the value with expiry
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	rdb, err := s.conn.Client(ctx)
	if err != nil {
		return false
	}

	if err := rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Delete removes matching keys using SCAN so large keyspaces are not blocked
func (s *RedisStore) Delete(ctx context.Context, pattern string) int {
	rdb, err := s.conn.Client(ctx)
	if err != nil {
		return 0
	}

	keys := s.scan(ctx, rdb, pattern)
	deleted := 0
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := rdb.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			s.logger.Warn("cache delete failed", zap.String("pattern", pattern), zap.Error(err))
			break
		}
		deleted += int(n)
	}
	return deleted
}

// Count returns the number of matching keys
func (s *RedisStore) Count(ctx context.Context, pattern string) int {
	rdb, err := s.conn.Client(ctx)
	if err != nil {
		return 0
	}
	return len(s.scan(ctx, rdb, pattern))
}

func (s *RedisStore) scan(ctx context.Context, rdb *redis.Client, pattern string) []string {
	if pattern == "" {
		pattern = "*"
	}

	var keys []string
	iter := rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return keys
}
