package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gozephyr/pcache/errors"
)

func newTempFile(t *testing.T, name, contents string) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), name), os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	if contents != "" {
		_, err = f.WriteString(contents)
		require.NoError(t, err)
	}
	return f
}

func TestFile(t *testing.T) {
	t.Run("Wraps handle with virtual identity", func(t *testing.T) {
		osf := newTempFile(t, "cache.db", "")
		f := NewFile(osf, "vfs/cache.db", ReadWrite)
		defer f.Close()

		require.Equal(t, "vfs/cache.db", f.VirtualPath())
		require.Equal(t, ReadWrite, f.Access())
		require.True(t, f.Writable())
		require.Equal(t, "read-write", f.Access().String())
	})

	t.Run("Duplicate shares contents, owns lifetime", func(t *testing.T) {
		osf := newTempFile(t, "cache.db", "shader blob")
		f := NewFile(osf, "vfs/cache.db", ReadWrite)

		dup, err := f.Duplicate()
		require.NoError(t, err)
		defer dup.Close()

		require.Equal(t, f.VirtualPath(), dup.VirtualPath())
		require.Equal(t, f.Access(), dup.Access())

		require.NoError(t, f.Close())

		buf := make([]byte, 11)
		_, err = dup.OSFile().ReadAt(buf, 0)
		require.NoError(t, err)
		require.Equal(t, "shader blob", string(buf))
	})

	t.Run("ReopenReadOnly rejects writes", func(t *testing.T) {
		osf := newTempFile(t, "cache.db", "frozen")
		f := NewFile(osf, "vfs/cache.db", ReadWrite)
		defer f.Close()

		ro, err := f.ReopenReadOnly()
		require.NoError(t, err)
		defer ro.Close()

		require.False(t, ro.Writable())

		buf := make([]byte, 6)
		_, err = ro.OSFile().ReadAt(buf, 0)
		require.NoError(t, err)
		require.Equal(t, "frozen", string(buf))

		_, err = ro.OSFile().WriteAt([]byte("thaw"), 0)
		require.Error(t, err)
	})

	t.Run("Size tracks the underlying file", func(t *testing.T) {
		osf := newTempFile(t, "cache.db", "12345")
		f := NewFile(osf, "vfs/cache.db", ReadWrite)
		defer f.Close()

		n, err := f.Size()
		require.NoError(t, err)
		require.Equal(t, int64(5), n)
	})

	t.Run("Closed handle refuses duplication", func(t *testing.T) {
		osf := newTempFile(t, "cache.db", "")
		f := NewFile(osf, "vfs/cache.db", ReadWrite)
		require.NoError(t, f.Close())
		require.NoError(t, f.Close())

		_, err := f.Duplicate()
		require.ErrorIs(t, err, errors.ErrHandleClosed)
		_, err = f.ReopenReadOnly()
		require.ErrorIs(t, err, errors.ErrHandleClosed)
	})
}
