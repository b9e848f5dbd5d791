package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

func sampleJobs() []harvest.CompletedJobSnapshot {
	return []harvest.CompletedJobSnapshot{
		{
			URL:        "http://a.test/x",
			FinalURL:   "http://a.test/x",
			Title:      "Alpha",
			Tokens:     12,
			Bytes:      345,
			Links:      []string{"http://a.test/next", "http://b.test/other"},
			Filename:   "Alpha--1a2b3c4d.md",
			FetchedUTC: "2026-08-01T12:00:00Z",
		},
		{
			URL:    "http://b.test/y",
			Tokens: 7,
			Bytes:  99,
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), sampleJobs()))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleJobs(), loaded)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestFileStoreCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deep", "snapshot.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), sampleJobs()))
}

func TestFileStoreOlderSchemaStillLoads(t *testing.T) {
	t.Parallel()

	// A version-0 snapshot: no final_url, filename, or fetched_utc fields.
	older := `{
  "version": 0,
  "jobs": [
    {"url": "http://a.test/x", "tokens": 5, "bytes": 100, "links": ["http://a.test/n"]}
  ]
}`
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(older), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "http://a.test/x", loaded[0].URL)
	require.Equal(t, 5, loaded[0].Tokens)
	require.Empty(t, loaded[0].FinalURL)
	require.Empty(t, loaded[0].Filename)
}

func TestFileStoreCorruptSnapshotErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), sampleJobs()))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleJobs(), loaded)

	// Mutating the returned slice must not affect the store.
	loaded[0].URL = "mutated"
	again, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "http://a.test/x", again[0].URL)
}
