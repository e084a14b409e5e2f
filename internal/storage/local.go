package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LocalStore keeps content on a filesystem rooted at a base directory.
type LocalStore struct {
	fs afero.Fs
}

// NewLocalStore roots a store at dir on the OS filesystem, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", dir, err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewLocalStoreFs wraps an arbitrary afero filesystem.
func NewLocalStoreFs(fsys afero.Fs) *LocalStore {
	return &LocalStore{fs: fsys}
}

func toNative(p string) string {
	return filepath.FromSlash("/" + p)
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotExist, err)
	}
	return err
}

func (s *LocalStore) Stat(ctx context.Context, path string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	fi, err := s.fs.Stat(toNative(path))
	if err != nil {
		return Entry{}, mapErr(err)
	}
	return Entry{Path: path, Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()}, nil
}

func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, toNative(path))
}

func (s *LocalStore) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.fs.Stat(toNative(src)); err != nil {
		return mapErr(err)
	}
	// Rename silently replaces files on most platforms, so occupancy is
	// checked explicitly.
	exists, err := afero.Exists(s.fs, toNative(dst))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExist, dst)
	}
	if err := s.fs.MkdirAll(filepath.Dir(toNative(dst)), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dst, err)
	}
	if err := s.fs.Rename(toNative(src), toNative(dst)); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, mapErr(err))
	}
	return nil
}

func (s *LocalStore) RemoveAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.Trim(path, "/") == "" {
		return fmt.Errorf("refusing to remove storage root")
	}
	return s.fs.RemoveAll(toNative(path))
}

func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(toNative(path))
	if err != nil {
		return nil, mapErr(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return f, nil
}

func (s *LocalStore) Walk(ctx context.Context, root string, fn WalkFunc) error {
	base := toNative(root)
	return afero.Walk(s.fs, base, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return mapErr(err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		full := root
		if rel != "" {
			full = strings.TrimPrefix(root+"/"+rel, "/")
		}
		return fn(rel, Entry{Path: full, Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()})
	})
}
