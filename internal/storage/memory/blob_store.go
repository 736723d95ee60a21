// Package memory provides in-memory implementations of the store and blob
// contracts for development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/verkehr-aachen/frost-crawler/internal/storage"
)

// BlobStore keeps objects in memory and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]storage.Object
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]storage.Object)}
}

// PutObject stores a copy of obj.
func (s *BlobStore) PutObject(_ context.Context, obj storage.Object) (string, error) {
	if strings.TrimSpace(obj.Key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	obj.Body = append([]byte(nil), obj.Body...)
	obj.Metadata = maps.Clone(obj.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.Key] = obj
	return "memory://" + obj.Key, nil
}

// Object returns a stored object.
func (s *BlobStore) Object(key string) (storage.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys lists stored keys in order.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.objects))
}
