package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: "  "})
	require.Error(t, err)
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "artifacts")
	store, err := New(Config{BaseDir: base})
	require.NoError(t, err)
	require.NotNil(t, store)

	info, err := os.Stat(base)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := New(Config{BaseDir: base})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1/export.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(base, "run-1", "export.txt"), uri)

	data, err := os.ReadFile(filepath.Join(base, "run-1", "export.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.txt", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "path traversal")
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
}
