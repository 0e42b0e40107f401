// Package cache memoizes pipeline results keyed by input identity: the
// content hash of a source file plus the fingerprint of its reshaping
// instructions. Entries live in memory and, when a directory is configured,
// in gob files that survive restarts.
package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	mem    map[string]any
	dir    string
	logger *slog.Logger

	hits, diskHits, misses atomic.Int64
}

// Stats are cumulative lookup counters.
type Stats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	DiskHits int64 `json:"disk_hits"`
	Misses   int64 `json:"misses"`
}

// New returns a cache. An empty dir keeps entries in memory only.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &Cache{mem: make(map[string]any), dir: dir, logger: logger}, nil
}

// Key derives a cache key from its parts (content hash, fingerprint, kind...).
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:16])
}

// Memo returns the value stored under key, building and storing it on a
// miss. Build errors are returned and nothing is stored.
func Memo[T any](c *Cache, key string, build func() (T, error)) (T, error) {
	if v, ok := c.get(key); ok {
		if t, ok := v.(T); ok {
			c.hits.Add(1)
			return t, nil
		}
	}

	if c.dir != "" {
		var t T
		if err := loadGob(c.path(key), &t); err == nil {
			c.diskHits.Add(1)
			c.put(key, t)
			return t, nil
		} else if !os.IsNotExist(err) {
			c.logger.Warn("cache entry unreadable, rebuilding", "key", key, "error", err)
		}
	}

	c.misses.Add(1)
	t, err := build()
	if err != nil {
		var zero T
		return zero, err
	}
	c.put(key, t)
	if c.dir != "" {
		if err := saveGob(c.path(key), t); err != nil {
			c.logger.Warn("cache entry not persisted", "key", key, "error", err)
		}
	}
	return t, nil
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.mem[key]
	return v, ok
}

func (c *Cache) put(key string, v any) {
	c.mu.Lock()
	c.mem[key] = v
	c.mu.Unlock()
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".gob")
}

// Purge drops every entry, in memory and on disk.
func (c *Cache) Purge() error {
	c.mu.Lock()
	c.mem = make(map[string]any)
	c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(c.dir, "*.gob"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("purge %s: %w", f, err)
		}
	}
	return nil
}

// Stats returns a snapshot of the lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.mem)
	c.mu.RUnlock()
	return Stats{
		Entries:  n,
		Hits:     c.hits.Load(),
		DiskHits: c.diskHits.Load(),
		Misses:   c.misses.Load(),
	}
}

func loadGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode gob: %w", err)
	}
	return nil
}

// saveGob writes through a temporary file so readers never see a partial entry.
func saveGob(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.gob")
	if err != nil {
		return fmt.Errorf("create gob file: %w", err)
	}
	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode gob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
