// Package memory keeps batches, articles, and archived documents in process
// memory for development runs and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BlobStore holds archived document bytes keyed by object path.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewBlobStore returns an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// PutObject reads data fully, stores it under path, and returns a memory://
// URI. The stored bytes are private copies.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}

	s.mu.Lock()
	s.objects[path] = append([]byte(nil), body...)
	s.mu.Unlock()

	return fmt.Sprintf("memory://%s", path), nil
}

// Object returns a copy of the stored bytes and whether path exists.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), body...), true
}
