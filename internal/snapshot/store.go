// Package snapshot persists the restartable subset of a session: fully
// completed jobs only. Partially completed work intentionally restarts from
// scratch.
package snapshot

import (
	"context"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// Store saves and loads completed-job snapshots.
type Store interface {
	// Save replaces the stored snapshot with the provided job list,
	// preserving order.
	Save(ctx context.Context, jobs []harvest.CompletedJobSnapshot) error
	// Load returns the stored jobs in their saved order. A missing snapshot
	// yields an empty list, not an error.
	Load(ctx context.Context) ([]harvest.CompletedJobSnapshot, error)
	// Close releases any underlying resources.
	Close()
}

// NoopStore discards saves and loads nothing. It backs runs where restart
// state is not wanted.
type NoopStore struct{}

// Save does nothing.
func (NoopStore) Save(context.Context, []harvest.CompletedJobSnapshot) error {
	return nil
}

// Load returns an empty snapshot.
func (NoopStore) Load(context.Context) ([]harvest.CompletedJobSnapshot, error) {
	return nil, nil
}

// Close does nothing.
func (NoopStore) Close() {}
