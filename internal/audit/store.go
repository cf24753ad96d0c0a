package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/redisconn"
)

// DefaultTTL is how long persisted artifacts are kept
const DefaultTTL = 6 * time.Hour

// keyPrefix keeps audit artifacts apart from the llm_cache namespace
const keyPrefix = "audit_log:"

// Store persists artifacts by report id
type Store interface {
	Save(ctx context.Context, reportID string, artifact []byte) error
	// Load returns found=false when no artifact exists or it has expired
	Load(ctx context.Context, reportID string) (data []byte, found bool, err error)
}

// NewStore builds the store named by cfg.Backend
func NewStore(cfg model.AuditConfig, conn *redisconn.Lazy, logger *zap.Logger) (Store, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		if conn == nil {
			conn = redisconn.New(cfg.RedisURL, logger)
		}
		return NewRedisStore(conn, ttl), nil
	case "sqlite":
		return OpenSQLiteStore(cfg.SQLitePath, ttl)
	default:
		return nil, fmt.Errorf("unknown audit backend: %s (supported: memory, redis, sqlite)", cfg.Backend)
	}
}

// Persist serializes the logger and saves it. Failures are logged at warn
// level and returned for callers that want them; they are never fatal to a run.
func Persist(ctx context.Context, store Store, l *Logger, logger *zap.Logger) (*Artifact, error) {
	logger = logging.OrNop(logger)
	artifact := l.ToArtifact()

	data, err := artifact.Marshal()
	if err != nil {
		return artifact, fmt.Errorf("encode artifact: %w", err)
	}
	if store == nil {
		return artifact, nil
	}
	if err := store.Save(ctx, artifact.ReportID, data); err != nil {
		logger.Warn("audit artifact not persisted, keeping in memory only",
			zap.String("report_id", artifact.ReportID), zap.Error(err))
		return artifact, err
	}
	return artifact, nil
}

// LoadArtifact loads and decodes an artifact
func LoadArtifact(ctx context.Context, store Store, reportID string) (*Artifact, error) {
	data, found, err := store.Load(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", reportID, err)
	}
	if !found {
		return nil, fmt.Errorf("load artifact %s: %w", reportID, ErrNotFound)
	}
	return ParseArtifact(data)
}

// ErrNotFound is returned when no artifact exists for a report id
var ErrNotFound = errors.New("audit artifact not found")

// MemoryStore keeps artifacts in process memory
type MemoryStore struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: gocache.New(ttl, 10*time.Minute), ttl: ttl}
}

// Save stores the artifact
func (s *MemoryStore) Save(_ context.Context, reportID string, artifact []byte) error {
	s.cache.Set(keyPrefix+reportID, artifact, s.ttl)
	return nil
}

// Load returns the artifact if present
func (s *MemoryStore) Load(_ context.Context, reportID string) ([]byte, bool, error) {
	val, ok := s.cache.Get(keyPrefix + reportID)
	if !ok {
		return nil, false, nil
	}
	data, ok := val.([]byte)
	return data, ok, nil
}

// RedisStore keeps artifacts in redis under audit_log:<reportId>
type RedisStore struct {
	conn *redisconn.Lazy
	ttl  time.Duration
}

// NewRedisStore creates a redis-backed store
func NewRedisStore(conn *redisconn.Lazy, ttl time.Duration) *RedisStore {
	return &RedisStore{conn: conn, ttl: ttl}
}

// Save stores the artifact with expiry
func (s *RedisStore) Save(ctx context.Context, reportID string, artifact []byte) error {
	rdb, err := s.conn.Client(ctx)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, keyPrefix+reportID, artifact, s.ttl).Err()
}

// Load returns the artifact if present
func (s *RedisStore) Load(ctx context.Context, reportID string) ([]byte, bool, error) {
	rdb, err := s.conn.Client(ctx)
	if err != nil {
		return nil, false, err
	}
	data, err := rdb.Get(ctx, keyPrefix+reportID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
