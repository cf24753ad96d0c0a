package cli

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/cache"
	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/redisconn"
)

// services holds the stores shared by commands. Cache and audit share one
// redis connection when they point at the same server.
type services struct {
	conns      map[string]*redisconn.Lazy
	responses  *cache.ResponseCache
	auditStore audit.Store
	closers    []io.Closer
	logger     *zap.Logger
}

func (s *services) redis(url string) *redisconn.Lazy {
	if conn, ok := s.conns[url]; ok {
		return conn
	}
	conn := redisconn.New(url, s.logger)
	s.conns[url] = conn
	s.closers = append(s.closers, conn)
	return conn
}

func newServices(cfg *model.Config, logger *zap.Logger) (*services, error) {
	logger = logging.OrNop(logger)
	s := &services{conns: make(map[string]*redisconn.Lazy), logger: logger}

	if cfg.Cache.Enabled {
		var conn *redisconn.Lazy
		if strings.Contains(strings.ToLower(cfg.Cache.Backend), "redis") {
			conn = s.redis(cfg.Cache.RedisURL)
		}
		store, err := cache.NewStore(cfg.Cache, conn, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("cache: %w", err)
		}
		s.responses = cache.NewResponseCache(store, cfg.Cache.TTL, logger)
	}

	var conn *redisconn.Lazy
	if strings.EqualFold(cfg.Audit.Backend, "redis") {
		conn = s.redis(cfg.Audit.RedisURL)
	}
	store, err := audit.NewStore(cfg.Audit, conn, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}
	s.auditStore = store
	if c, ok := store.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	return s, nil
}

// Close releases connections and database handles
func (s *services) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Debug("close failed", zap.Error(err))
		}
	}
	s.closers = nil
}
