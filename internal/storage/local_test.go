package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	return store, dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestLocalStore_Move(t *testing.T) {
	ctx := context.Background()

	t.Run("MovesFileAndCreatesParents", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, dir, "Docs/a.txt", "hello")

		require.NoError(t, store.Move(ctx, "Docs/a.txt", ".recycle/x/a.txt"))

		ok, err := store.Exists(ctx, "Docs/a.txt")
		require.NoError(t, err)
		assert.False(t, ok)

		data, err := os.ReadFile(filepath.Join(dir, ".recycle", "x", "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("MovesDirectoryTree", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, dir, "Docs/Q1/one.txt", "1")
		writeFile(t, dir, "Docs/Q1/sub/two.txt", "2")

		require.NoError(t, store.Move(ctx, "Docs/Q1", "Archive/Q1"))

		entry, err := store.Stat(ctx, "Archive/Q1/sub/two.txt")
		require.NoError(t, err)
		assert.False(t, entry.IsDir)
		assert.Equal(t, int64(1), entry.Size)
	})

	t.Run("RefusesOccupiedDestination", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, dir, "a.txt", "new")
		writeFile(t, dir, "b.txt", "old")

		err := store.Move(ctx, "a.txt", "b.txt")
		require.ErrorIs(t, err, ErrExist)

		data, err := os.ReadFile(filepath.Join(dir, "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, "old", string(data))
	})

	t.Run("MissingSource", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.ErrorIs(t, store.Move(ctx, "nope.txt", "b.txt"), ErrNotExist)
	})
}

func TestLocalStore_OpenAndRemove(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t)
	writeFile(t, dir, "Docs/report.pdf", "pdf-bytes")

	rc, err := store.Open(ctx, "Docs/report.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "pdf-bytes", string(data))

	_, err = store.Open(ctx, "Docs")
	assert.Error(t, err)

	require.NoError(t, store.RemoveAll(ctx, "Docs"))
	_, err = store.Stat(ctx, "Docs/report.pdf")
	assert.ErrorIs(t, err, ErrNotExist)

	// removing again is not an error
	require.NoError(t, store.RemoveAll(ctx, "Docs"))
	assert.Error(t, store.RemoveAll(ctx, ""))
}

func TestLocalStore_Walk(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t)
	writeFile(t, dir, "Docs/a.txt", "a")
	writeFile(t, dir, "Docs/sub/b.txt", "bb")

	var files []string
	err := store.Walk(ctx, "Docs", func(rel string, e Entry) error {
		if !e.IsDir {
			files = append(files, rel+"="+e.Path)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{"a.txt=Docs/a.txt", "sub/b.txt=Docs/sub/b.txt"}, files)
}
