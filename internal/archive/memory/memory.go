// Package memory stores archived artifacts in-memory for development.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Store keeps artifacts in-memory and returns pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory archive store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// PutObject retains the content and returns a memory:// URI.
func (s *Store) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Object returns the stored content for an object path.
func (s *Store) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
