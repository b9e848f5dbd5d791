package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	archivememory "github.com/JakeFAU/harvester/internal/archive/memory"
	"github.com/JakeFAU/harvester/internal/config"
	publishermemory "github.com/JakeFAU/harvester/internal/publisher/memory"
	"github.com/JakeFAU/harvester/internal/snapshot"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Logging.Development = false
	cfg.Snapshot.Provider = "memory"
	cfg.Archive.Provider = "memory"
	cfg.Publisher.Provider = "memory"
	return cfg
}

func TestNewWithMemoryProviders(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), baseConfig(t))
	require.NoError(t, err)

	require.NotNil(t, a.Logger())
	require.NotNil(t, a.Registry())
	require.NotNil(t, a.Hub())
	require.NotNil(t, a.Recent())
	require.IsType(t, &snapshot.MemoryStore{}, a.Snapshots())
	require.IsType(t, archivememory.New(), a.Archive())
	require.IsType(t, publishermemory.New(), a.Publisher())

	a.Close()
}

func TestNewWithFileSnapshotStore(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Snapshot.Provider = "file"
	cfg.Snapshot.Path = filepath.Join(t.TempDir(), "snapshot.json")

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &snapshot.FileStore{}, a.Snapshots())
	a.Close()
}

func TestNewWithLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.BaseDir = t.TempDir()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.Archive())
	a.Close()
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Snapshot.Provider = "s3"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}
