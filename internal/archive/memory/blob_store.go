// Package memory contains an in-memory blob store for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Object is one stored blob.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
}

// BlobStore keeps uploaded objects in a map for inspection.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New returns a memory BlobStore.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject records the object and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{Path: path, ContentType: contentType, Data: stored}
	return fmt.Sprintf("mem://%s", path), nil
}

// Object returns a stored blob and whether it exists.
func (s *BlobStore) Object(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len returns the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
