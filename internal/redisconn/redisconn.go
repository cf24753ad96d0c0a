// Package redisconn holds the lazily established redis connection shared by
// the response cache and the audit store.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/logging"
)

// ErrUnavailable is returned while the store is unreachable
var ErrUnavailable = errors.New("redis unavailable")

const (
	defaultDialTimeout = 2 * time.Second
	defaultCooldown    = 30 * time.Second
)

// Lazy connects on first use. Concurrent first callers serialize on the
// mutex: one dials, the rest wait and reuse its client. A failed dial is not
// retried until the cooldown passes.
type Lazy struct {
	url         string
	logger      *zap.Logger
	dialTimeout time.Duration
	cooldown    time.Duration

	mu       sync.Mutex
	client   *redis.Client
	failedAt time.Time
	dials    int
}

// New creates a lazy connection for a redis:// URL
func New(url string, logger *zap.Logger) *Lazy {
	return &Lazy{
		url:         url,
		logger:      logging.OrNop(logger),
		dialTimeout: defaultDialTimeout,
		cooldown:    defaultCooldown,
	}
}

// WithTimeouts overrides dial timeout and failure cooldown
func (l *Lazy) WithTimeouts(dial, cooldown time.Duration) *Lazy {
	l.dialTimeout = dial
	l.cooldown = cooldown
	return l
}

// Client returns the shared client, dialing if needed
func (l *Lazy) Client(ctx context.Context) (*redis.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}
	if !l.failedAt.IsZero() && time.Since(l.failedAt) < l.cooldown {
		return nil, ErrUnavailable
	}

	l.dials++
	opts, err := redis.ParseURL(l.url)
	if err != nil {
		l.failedAt = time.Now()
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, l.dialTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		l.failedAt = time.Now()
		l.logger.Warn("redis connect failed, continuing without it",
			zap.String("url", redactURL(l.url)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	l.client = rdb
	l.failedAt = time.Time{}
	l.logger.Debug("redis connected", zap.String("url", redactURL(l.url)))
	return rdb, nil
}

// Dials reports how many connection attempts were made
func (l *Lazy) Dials() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dials
}

// Close releases the client if one was created
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}

func redactURL(raw string) string {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return "invalid"
	}
	return fmt.Sprintf("redis://%s/%d", opts.Addr, opts.DB)
}
