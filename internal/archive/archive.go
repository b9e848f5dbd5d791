// Package archive defines the interface for uploading harvest artifacts
// (export files and manifests) to a blob store. The abstraction keeps the
// runtime independent of a specific backend such as Google Cloud Storage
// or the local filesystem.
package archive

import (
	"context"
	"io"
)

// Store is the common interface for an artifact archive backend.
type Store interface {
	// PutObject uploads the content read from r to the given object path
	// and returns the URI of the stored artifact.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NoopStore discards artifacts. It is useful for dry runs where exports
// are produced on the local output directory only.
type NoopStore struct{}

// PutObject does nothing and reports an empty URI.
func (NoopStore) PutObject(_ context.Context, _ string, _ string, _ io.Reader) (string, error) {
	return "", nil
}
