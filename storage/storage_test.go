package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, strategy TrimStrategy) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), strategy)
	require.NoError(t, err)
	return s
}

// writeGroup creates a file group of the given db size and stamps both
// files with the given modification time.
func writeGroup(t *testing.T, s *Storage, baseName string, size int, mtime time.Time) {
	t.Helper()
	g, err := s.Open(baseName)
	require.NoError(t, err)
	_, err = g.DB.Write(make([]byte, size))
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.NoError(t, os.Chtimes(s.DBPath(baseName), mtime, mtime))
	require.NoError(t, os.Chtimes(s.JournalPath(baseName), mtime, mtime))
}

func TestStorageOpen(t *testing.T) {
	s := newTestStorage(t, nil)

	g, err := s.Open("45JG069FGH042")
	require.NoError(t, err)
	defer g.Close()

	require.FileExists(t, s.DBPath("45JG069FGH042"))
	require.FileExists(t, s.JournalPath("45JG069FGH042"))

	_, err = g.DB.WriteString("hello")
	require.NoError(t, err)

	// Reopening the same group sees the same file.
	g2, err := s.Open("45JG069FGH042")
	require.NoError(t, err)
	defer g2.Close()
	buf := make([]byte, 5)
	_, err = g2.DB.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestStorageNew(t *testing.T) {
	t.Run("Creates the root directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")
		_, err := New(dir, nil)
		require.NoError(t, err)
		require.DirExists(t, dir)
	})

	t.Run("Rejects an empty root", func(t *testing.T) {
		_, err := New("  ", nil)
		require.Error(t, err)
	})

	t.Run("Nil strategy defaults to oldest-first", func(t *testing.T) {
		s := newTestStorage(t, nil)
		require.Equal(t, "oldest-first", s.Strategy().Name())
	})
}

func TestStorageFootprint(t *testing.T) {
	s := newTestStorage(t, nil)

	total, err := s.Footprint()
	require.NoError(t, err)
	require.Zero(t, total)

	now := time.Now()
	writeGroup(t, s, "aaa", 100, now)
	writeGroup(t, s, "bbb", 250, now)

	total, err = s.Footprint()
	require.NoError(t, err)
	require.Equal(t, int64(350), total)

	groups, err := s.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
}

func TestStorageTrimTo(t *testing.T) {
	t.Run("No-op under target", func(t *testing.T) {
		s := newTestStorage(t, nil)
		writeGroup(t, s, "aaa", 100, time.Now())

		got, err := s.TrimTo(1000)
		require.NoError(t, err)
		require.Equal(t, int64(100), got)
		require.FileExists(t, s.DBPath("aaa"))
	})

	t.Run("Oldest groups deleted first", func(t *testing.T) {
		s := newTestStorage(t, OldestFirst{})
		now := time.Now()
		writeGroup(t, s, "old", 100, now.Add(-3*time.Hour))
		writeGroup(t, s, "mid", 100, now.Add(-2*time.Hour))
		writeGroup(t, s, "new", 100, now.Add(-1*time.Hour))

		got, err := s.TrimTo(150)
		require.NoError(t, err)
		require.LessOrEqual(t, got, int64(150))

		require.NoFileExists(t, s.DBPath("old"))
		require.NoFileExists(t, s.JournalPath("old"))
		require.NoFileExists(t, s.DBPath("mid"))
		require.FileExists(t, s.DBPath("new"))
	})

	t.Run("Largest groups deleted first", func(t *testing.T) {
		s := newTestStorage(t, LargestFirst{})
		now := time.Now()
		writeGroup(t, s, "small", 50, now.Add(-3*time.Hour))
		writeGroup(t, s, "large", 400, now)

		got, err := s.TrimTo(100)
		require.NoError(t, err)
		require.LessOrEqual(t, got, int64(100))

		require.NoFileExists(t, s.DBPath("large"))
		require.FileExists(t, s.DBPath("small"))
	})

	t.Run("Trim to zero clears everything", func(t *testing.T) {
		s := newTestStorage(t, nil)
		writeGroup(t, s, "aaa", 10, time.Now())
		writeGroup(t, s, "bbb", 10, time.Now())

		got, err := s.TrimTo(0)
		require.NoError(t, err)
		require.Zero(t, got)

		groups, err := s.Groups()
		require.NoError(t, err)
		require.Empty(t, groups)
	})

	t.Run("Open handles survive trimming", func(t *testing.T) {
		s := newTestStorage(t, nil)
		g, err := s.Open("live")
		require.NoError(t, err)
		defer g.Close()
		_, err = g.DB.WriteString("still writable")
		require.NoError(t, err)

		_, err = s.TrimTo(0)
		require.NoError(t, err)
		require.NoFileExists(t, s.DBPath("live"))

		_, err = g.DB.WriteString(" after unlink")
		require.NoError(t, err)
	})
}

func TestStorageDeleteAll(t *testing.T) {
	s := newTestStorage(t, nil)
	writeGroup(t, s, "aaa", 10, time.Now())
	writeGroup(t, s, "bbb", 10, time.Now())

	require.NoError(t, s.DeleteAll())

	dirEntries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Empty(t, dirEntries)

	// Idempotent on an already-empty directory.
	require.NoError(t, s.DeleteAll())
}

func TestStorageDeleteGroup(t *testing.T) {
	s := newTestStorage(t, nil)
	writeGroup(t, s, "aaa", 10, time.Now())

	require.NoError(t, s.DeleteGroup("aaa"))
	require.NoFileExists(t, s.DBPath("aaa"))
	require.NoFileExists(t, s.JournalPath("aaa"))

	// Deleting a missing group is not an error.
	require.NoError(t, s.DeleteGroup("aaa"))
}
