package relocate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationFor(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

	t.Run("no collision uses plain name", func(t *testing.T) {
		dest := destinationFor(dir, "ubuntu.iso", now)
		assert.Equal(t, filepath.Join(dir, "ubuntu.iso"), dest)
	})

	t.Run("collision appends timestamp before extension", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ubuntu.iso"), []byte("x"), 0o644))

		dest := destinationFor(dir, "ubuntu.iso", now)
		assert.Equal(t, filepath.Join(dir, "ubuntu_20250314_150926.iso"), dest)
	})

	t.Run("collision on directory name", func(t *testing.T) {
		require.NoError(t, os.Mkdir(filepath.Join(dir, "season1"), 0o755))

		dest := destinationFor(dir, "season1", now)
		assert.Equal(t, filepath.Join(dir, "season1_20250314_150926"), dest)
	})
}

func TestMoveEntry_File(t *testing.T) {
	staging := t.TempDir()
	durable := t.TempDir()

	source := filepath.Join(staging, "movie.mkv")
	require.NoError(t, os.WriteFile(source, []byte("content"), 0o644))

	dest, err := moveEntry(context.Background(), source, durable, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(durable, "movie.mkv"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveEntry_MissingSource(t *testing.T) {
	staging := t.TempDir()
	durable := t.TempDir()

	_, err := moveEntry(context.Background(), filepath.Join(staging, "gone"), durable, 2, time.Now())
	assert.Error(t, err)
}

func TestCopyTree_Directory(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("bbbb"), 0o644))

	dest := filepath.Join(t.TempDir(), "copy")

	require.NoError(t, copyTree(context.Background(), src, dest, 2))

	a, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), a)

	b, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbb"), b)
}

func TestCopyTree_SingleFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "single.bin")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	dest := filepath.Join(t.TempDir(), "single.bin")

	require.NoError(t, copyTree(context.Background(), src, dest, 2))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}
