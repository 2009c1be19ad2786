// Package storage provides the read-only object sources CSV inputs are
// loaded from.
package storage

import (
	"context"
	"errors"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrDownloadFailed = errors.New("download failed")
	ErrListFailed     = errors.New("list failed")
)

// Source abstracts where input objects live.
// Implementations include S3 and the local filesystem.
type Source interface {
	// ListObjects returns all object paths under the given prefix,
	// sorted lexically.
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	// Open returns a reader for the object at objectPath.
	// The caller must close it.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Name identifies the source in logs.
	Name() string
}
