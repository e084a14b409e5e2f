// Package storage is the byte-storage capability used by the recycle bin and
// share downloads. Paths are normalized, slash-separated and relative to the
// backend root.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotExist = errors.New("storage: object does not exist")
	ErrExist    = errors.New("storage: destination already exists")
)

type Entry struct {
	Path    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// WalkFunc receives each entry under a walked root. rel is relative to that
// root and uses forward slashes; the root itself is reported with rel "".
type WalkFunc func(rel string, e Entry) error

// Backend is implemented by the local filesystem store and the S3 store.
type Backend interface {
	Stat(ctx context.Context, path string) (Entry, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Move relocates a file or directory tree. It fails with ErrExist when dst
	// is occupied and with ErrNotExist when src is missing.
	Move(ctx context.Context, src, dst string) error
	// RemoveAll deletes path and everything below it. Missing paths are not an error.
	RemoveAll(ctx context.Context, path string) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Walk(ctx context.Context, root string, fn WalkFunc) error
}
