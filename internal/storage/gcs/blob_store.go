// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	gstorage "cloud.google.com/go/storage"

	"github.com/verkehr-aachen/frost-crawler/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore writes archive objects to a configured GCS bucket.
type BlobStore struct {
	client *gstorage.Client
	bucket string
}

var _ storage.BlobStore = (*BlobStore)(nil)

// New creates a GCS-backed blob store.
func New(client *gstorage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// PutObject uploads obj and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, obj storage.Object) (string, error) {
	if strings.TrimSpace(obj.Key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	writer := s.client.Bucket(s.bucket).Object(obj.Key).NewWriter(ctx)
	writer.ContentType = obj.ContentType
	if len(obj.Metadata) > 0 {
		writer.Metadata = obj.Metadata
	}
	if _, err := writer.Write(obj.Body); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object %s: %w (close writer: %v)", obj.Key, err, closeErr)
		}
		return "", fmt.Errorf("write object %s: %w", obj.Key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", obj.Key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, obj.Key), nil
}
