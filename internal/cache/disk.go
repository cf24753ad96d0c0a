package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore implements persistent disk-based caching
type DiskStore struct {
	dir string
	ttl time.Duration
}

// NewDiskStore creates a new disk store
func NewDiskStore(dir string, ttl time.Duration) *DiskStore {
	return &DiskStore{
		dir: dir,
		ttl: ttl,
	}
}

type diskEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a value from the disk cache
func (c *DiskStore) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.read(c.path(key))
	if !ok || entry.Key != key {
		return nil, false
	}
	return entry.Data, true
}

// Remaining reports the lifetime left on an entry
func (c *DiskStore) Remaining(_ context.Context, key string) (time.Duration, bool) {
	entry, ok := c.read(c.path(key))
	if !ok || entry.Key != key {
		return 0, false
	}
	left := time.Until(entry.ExpiresAt)
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// SetWithTTL stores a value in the disk cache
func (c *DiskStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl == 0 {
		ttl = c.ttl
	}

	now := time.Now()
	data, err := json.Marshal(diskEntry{
		Key:       key,
		Data:      value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return false
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return false
	}

	// Write to a temp file first so concurrent readers never see half an entry
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return false
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return false
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return false
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return false
	}
	return true
}

// Delete removes matching entries
func (c *DiskStore) Delete(_ context.Context, pattern string) int {
	deleted := 0
	c.walk(func(p string, entry diskEntry) {
		if matchKey(pattern, entry.Key) && os.Remove(p) == nil {
			deleted++
		}
	})
	return deleted
}

// Count returns the number of live matching entries
func (c *DiskStore) Count(_ context.Context, pattern string) int {
	n := 0
	c.walk(func(_ string, entry diskEntry) {
		if matchKey(pattern, entry.Key) {
			n++
		}
	})
	return n
}

func (c *DiskStore) walk(fn func(path string, entry diskEntry)) {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".cache") {
			continue
		}
		p := filepath.Join(c.dir, f.Name())
		if entry, ok := c.read(p); ok {
			fn(p, entry)
		}
	}
}

// read loads an entry, removing it if expired
func (c *DiskStore) read(p string) (diskEntry, bool) {
	data, err := os.ReadFile(p)
	if err != nil {
		return diskEntry{}, false
	}

	var entry diskEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return diskEntry{}, false
	}

	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(p)
		return diskEntry{}, false
	}
	return entry, true
}

// path maps a key to a file name that is safe on every filesystem
func (c *DiskStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".cache")
}
