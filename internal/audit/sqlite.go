package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_artifacts (
	report_id  TEXT PRIMARY KEY,
	artifact   BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_artifacts_expires ON audit_artifacts(expires_at);
`

// SQLiteStore keeps artifacts in a local SQLite database with expiry
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLiteStore opens (or creates) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create audit db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	return NewSQLiteStore(db, ttl)
}

// NewSQLiteStore uses an already opened database
func NewSQLiteStore(db *sql.DB, ttl time.Duration) (*SQLiteStore, error) {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Save upserts the artifact and purges expired rows
func (s *SQLiteStore) Save(ctx context.Context, reportID string, artifact []byte) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_artifacts (report_id, artifact, created_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(report_id) DO UPDATE SET
		   artifact = excluded.artifact,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		reportID, artifact, now.UnixMilli(), now.Add(s.ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM audit_artifacts WHERE expires_at <= ?`, now.UnixMilli()); err != nil {
		return fmt.Errorf("purge expired artifacts: %w", err)
	}
	return nil
}

// Load returns the artifact if present and unexpired
func (s *SQLiteStore) Load(ctx context.Context, reportID string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT artifact FROM audit_artifacts WHERE report_id = ? AND expires_at > ?`,
		reportID, s.now().UnixMilli()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load artifact: %w", err)
	}
	return data, true, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
