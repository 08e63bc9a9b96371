package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidKey is returned for keys that would escape the store root.
var ErrInvalidKey = errors.New("invalid store key")

// Store is the interface for a persistent key-value store of payload
// snapshots. Keys may contain slashes; unlike the cache, data has no TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any) error
	SetWithExtension(ctx context.Context, key string, ext string, value []byte) error
}

// PayloadKey is the key under which a raw payload snapshot is stored.
func PayloadKey(uprn, batchID string) string {
	return path.Join("payloads", uprn, batchID)
}

// LocalStore is a file-based implementation of Store.
type LocalStore struct {
	dir string
	mu  sync.RWMutex
}

// NewLocal creates a new LocalStore with the specified directory.
func NewLocal(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir}, nil
}

// Get retrieves a value by key. Returns the value and true if found,
// or nil and false if not found.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.filePath(key, ".json")
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a value with the given key.
func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithExtension(ctx, key, ".json", value)
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *LocalStore) GetJSON(ctx context.Context, key string, v any) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON marshals and stores a value as JSON.
func (s *LocalStore) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data)
}

// SetWithExtension stores raw bytes with a custom file extension.
func (s *LocalStore) SetWithExtension(_ context.Context, key string, ext string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.filePath(key, ext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, value, 0644)
}

func (s *LocalStore) filePath(key, ext string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)+ext), nil
}

// cleanKey normalizes a slash-separated key and rejects traversal.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
