package store

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

const gcsTimeout = 30 * time.Second

// GCSStore is a Cloud Storage-backed implementation of Store.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a new GCSStore with the specified bucket.
func NewGCS(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
	}, nil
}

// Get retrieves a value by key. Returns the value and true if found,
// or nil and false if not found.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, bool) {
	name, err := objectName(key, ".json")
	if err != nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, gcsTimeout)
	defer cancel()

	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, false
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a value with the given key.
func (s *GCSStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithExtension(ctx, key, ".json", value)
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *GCSStore) GetJSON(ctx context.Context, key string, v any) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON marshals and stores a value as JSON.
func (s *GCSStore) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data)
}

// SetWithExtension stores raw bytes with a custom file extension.
func (s *GCSStore) SetWithExtension(ctx context.Context, key string, ext string, value []byte) error {
	name, err := objectName(key, ext)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, gcsTimeout)
	defer cancel()

	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType(ext)

	if _, err := writer.Write(value); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func objectName(key, ext string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return clean + ext, nil
}

func contentType(ext string) string {
	switch ext {
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
