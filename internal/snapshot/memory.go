package snapshot

import (
	"context"
	"sync"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// MemoryStore keeps the snapshot in process memory. Intended for tests and
// local development.
type MemoryStore struct {
	mu   sync.Mutex
	jobs []harvest.CompletedJobSnapshot
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the stored list.
func (s *MemoryStore) Save(_ context.Context, jobs []harvest.CompletedJobSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append([]harvest.CompletedJobSnapshot(nil), jobs...)
	return nil
}

// Load returns a copy of the stored list.
func (s *MemoryStore) Load(context.Context) ([]harvest.CompletedJobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]harvest.CompletedJobSnapshot(nil), s.jobs...), nil
}

// Close does nothing.
func (s *MemoryStore) Close() {}
