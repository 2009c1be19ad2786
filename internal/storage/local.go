package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// LocalStorage implements Source using the local filesystem. Object paths
// are relative to basePath; with an empty basePath they are plain
// filesystem paths.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a filesystem source rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath != "" {
		info, err := os.Stat(basePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open base directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("base path %q is not a directory", basePath)
		}
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Name implements Source.
func (l *LocalStorage) Name() string {
	return "local"
}

// Open opens a file for reading.
func (l *LocalStorage) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.fullPath(objectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectPath)
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return f, nil
}

// Exists checks if an object exists in local storage.
func (l *LocalStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.fullPath(objectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// fullPath returns the full filesystem path for an object.
func (l *LocalStorage) fullPath(objectPath string) string {
	if l.basePath == "" {
		return objectPath
	}
	return filepath.Join(l.basePath, objectPath)
}

// ListObjects walks the directory tree under prefix and returns every
// regular file. A prefix naming a single file returns just that file.
func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchDir := l.fullPath(prefix)
	var objects []string

	err := filepath.Walk(searchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // prefix doesn't exist, return empty list
			}
			return err
		}
		if info.Mode().IsRegular() {
			if l.basePath == "" {
				objects = append(objects, path)
				return nil
			}
			rel, err := filepath.Rel(l.basePath, path)
			if err != nil {
				return err
			}
			objects = append(objects, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}

	sort.Strings(objects)
	return objects, nil
}
