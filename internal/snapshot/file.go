package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// envelope is the on-disk snapshot schema. New fields must be optional so
// older snapshots keep loading.
type envelope struct {
	Version  int                            `json:"version"`
	SavedUTC string                         `json:"saved_utc,omitempty"`
	Jobs     []harvest.CompletedJobSnapshot `json:"jobs"`
}

const envelopeVersion = 1

// FileStore persists snapshots as a single JSON file written atomically.
type FileStore struct {
	path string
}

// NewFileStore validates the parent directory exists or can be created.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Save writes the snapshot to a temp file and renames it into place.
func (s *FileStore) Save(ctx context.Context, jobs []harvest.CompletedJobSnapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("snapshot save canceled: %w", err)
	}
	data, err := json.MarshalIndent(envelope{
		Version:  envelopeVersion,
		SavedUTC: time.Now().UTC().Format(time.RFC3339),
		Jobs:     jobs,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Load reads the snapshot if present. Decoding tolerates absent optional
// fields from older snapshot versions.
func (s *FileStore) Load(ctx context.Context) ([]harvest.CompletedJobSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot load canceled: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return env.Jobs, nil
}

// Close does nothing; the store holds no open resources.
func (s *FileStore) Close() {}
