package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))
	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))

	_, err = lfs.OpenFile(filepath.Join(tmp, "missing", "x"), os.O_RDONLY, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaultyFS(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)

	ffs.AddRule("marker", Fault{FailWrite: true, Times: 2})

	fpath := filepath.Join(tmp, "marker")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	for range 2 {
		_, err = f.Write([]byte("x"))
		assert.ErrorIs(t, err, ErrInjected)
	}
	n, err := f.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, f.Close())

	assert.Equal(t, 1, ffs.Opens("marker"))
}

func TestFaultyFS_OpenAndRename(t *testing.T) {
	tmp := t.TempDir()
	boom := errors.New("boom")
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("blocked", Fault{FailOpen: true, Err: boom})
	ffs.AddRule("final", Fault{FailRename: true})

	_, err := ffs.OpenFile(filepath.Join(tmp, "blocked"), os.O_CREATE|os.O_RDWR, 0o644)
	assert.ErrorIs(t, err, boom)

	src := filepath.Join(tmp, "src")
	f, err := ffs.OpenFile(src, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.ErrorIs(t, ffs.Rename(src, filepath.Join(tmp, "final")), ErrInjected)

	ffs.Reset()
	assert.NoError(t, ffs.Rename(src, filepath.Join(tmp, "final")))
	assert.NoError(t, ffs.MkdirAll(filepath.Join(tmp, "d"), 0o755))
	_, err = ffs.ReadDir(tmp)
	assert.NoError(t, err)
}
