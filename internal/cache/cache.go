package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"binday/internal/model"
)

// Entry is a cached schedule with the time it was fetched.
type Entry struct {
	Collections []model.Collection `json:"collections"`
	FetchedAt   time.Time          `json:"fetched_at"`
	// Archived marks an entry read from the ingest archive; never cached.
	Archived    bool               `json:"-"`
}

// Cache keeps parsed schedules on disk so repeated page loads do not hit the
// council API.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
}

// New creates a cache in cacheDir whose entries expire after ttl.
func New(cacheDir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}
	return &Cache{
		dir: cacheDir,
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Get returns the cached entry for key if it exists and has not expired.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.filePath(key))
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}

	if c.now().Sub(entry.FetchedAt) > c.ttl {
		return nil, false
	}

	return &entry, true
}

// Set stores collections under key, stamped with the current time.
func (c *Cache) Set(key string, collections []model.Collection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if collections == nil {
		collections = []model.Collection{}
	}
	entry := Entry{
		Collections: collections,
		FetchedAt:   c.now(),
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath(key), data, 0644)
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.filePath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// InvalidateAll removes all cached entries.
func (c *Cache) InvalidateAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (c *Cache) filePath(key string) string {
	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, key)
	return filepath.Join(c.dir, safe+".json")
}
