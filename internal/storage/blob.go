// Package storage holds the blob abstraction shared by the archive
// backends (GCS, local filesystem, memory).
package storage

import "context"

// Object is one blob to write.
type Object struct {
	Key         string
	ContentType string
	// Metadata is attached where the backend supports it.
	Metadata map[string]string
	Body     []byte
}

// BlobStore writes objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, obj Object) (string, error)
}
