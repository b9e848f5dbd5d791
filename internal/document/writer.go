package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AtomicWriter persists documents under a base directory using a
// temp-then-rename scheme so readers never observe partial files.
type AtomicWriter struct {
	baseDir string
}

// NewAtomicWriter validates the base directory and creates it if missing.
func NewAtomicWriter(baseDir string) (*AtomicWriter, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &AtomicWriter{baseDir: baseDir}, nil
}

// BaseDir returns the writer's root directory.
func (w *AtomicWriter) BaseDir() string {
	return w.baseDir
}

// Write stores content under filename and returns the full path. The write
// goes to a temp file in the same directory first so the final rename is
// atomic on POSIX filesystems.
func (w *AtomicWriter) Write(ctx context.Context, filename, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("write canceled: %w", err)
	}
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("filename is required")
	}

	fullPath := filepath.Join(w.baseDir, filename)
	cleanBase := filepath.Clean(w.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected in %q", filename)
	}
	if dir := filepath.Dir(cleanFull); dir != cleanBase {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create parent directories: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(cleanFull), ".harvest-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, cleanFull); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return cleanFull, nil
}
