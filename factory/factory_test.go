package factory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gozephyr/pcache/backend"
	"github.com/gozephyr/pcache/errors"
	"github.com/gozephyr/pcache/sandbox"
)

func newTestFactory(t *testing.T) *FileFactory {
	t.Helper()
	f, err := NewFileFactory(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestVersionSuffix(t *testing.T) {
	suffix := VersionSuffix("v1.2.3")
	require.Len(t, suffix, 32)
	require.Regexp(t, `^[A-Z2-7]{32}$`, suffix)
	require.Equal(t, suffix, VersionSuffix("v1.2.3"))
	require.NotEqual(t, suffix, VersionSuffix("v1.2.4"))

	// Fixed length regardless of the product string.
	require.Len(t, VersionSuffix(""), 32)
	require.Len(t, VersionSuffix(strings.Repeat("long-version", 100)), 32)
}

func TestCreateFilesLayout(t *testing.T) {
	f := newTestFactory(t)

	params, err := f.CreateFiles("my_cache", "v1.2.3")
	require.NoError(t, err)
	defer params.Close()

	versionDir := filepath.Join(f.Root(), "my_cache", VersionSuffix("v1.2.3"))
	require.FileExists(t, filepath.Join(versionDir, "cache.db"))
	require.FileExists(t, filepath.Join(versionDir, "cache.journal"))

	require.Equal(t, backend.TypeSQLite, params.Type)
	require.True(t, params.DBWritable)
	require.True(t, params.JournalWritable)
	require.NotNil(t, params.Lock)
	require.Equal(t, filepath.Join(versionDir, "cache.db"), params.DB.VirtualPath())
	require.Equal(t, filepath.Join(versionDir, "cache.journal"), params.Journal.VirtualPath())
}

func TestCreateFilesParamsDriveBackend(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	params, err := f.CreateFiles("provisioned", "v1")
	require.NoError(t, err)

	b := backend.NewSQLiteBackend(params, sandbox.NewRegistry())
	require.NoError(t, b.Initialize(ctx))
	defer b.Close()

	require.NoError(t, b.Insert(ctx, "k", []byte("handed off"), backend.EntryMetadata{}))
	entry, err := b.Find(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("handed off"), entry.Content)
}

func TestCreateFilesSameVersionKeepsData(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	params, err := f.CreateFiles("stable", "v1")
	require.NoError(t, err)
	b := backend.NewSQLiteBackend(params, sandbox.NewRegistry())
	require.NoError(t, b.Initialize(ctx))
	require.NoError(t, b.Insert(ctx, "k", []byte("v"), backend.EntryMetadata{}))
	require.NoError(t, b.Close())

	// Re-provisioning the same (id, product) pair reopens the same files.
	params, err = f.CreateFiles("stable", "v1")
	require.NoError(t, err)
	b = backend.NewSQLiteBackend(params, sandbox.NewRegistry())
	require.NoError(t, b.Initialize(ctx))
	defer b.Close()

	entry, err := b.Find(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), entry.Content)
}

func TestCreateFilesSweepsStaleVersions(t *testing.T) {
	f := newTestFactory(t)

	oldParams, err := f.CreateFiles("my_cache", "v1.2.3")
	require.NoError(t, err)
	require.NoError(t, oldParams.Close())

	newParams, err := f.CreateFiles("my_cache", "v1.2.4")
	require.NoError(t, err)
	defer newParams.Close()

	f.Flush()

	idDir := filepath.Join(f.Root(), "my_cache")
	require.NoDirExists(t, filepath.Join(idDir, VersionSuffix("v1.2.3")))
	require.DirExists(t, filepath.Join(idDir, VersionSuffix("v1.2.4")))
}

func TestClearFiles(t *testing.T) {
	f := newTestFactory(t)

	params, err := f.CreateFiles("my_cache", "v1")
	require.NoError(t, err)
	require.NoError(t, params.Close())

	require.NoError(t, f.ClearFiles("my_cache", "v1"))
	require.NoDirExists(t, filepath.Join(f.Root(), "my_cache", VersionSuffix("v1")))
	require.DirExists(t, filepath.Join(f.Root(), "my_cache"))
}

func TestCreateFilesAsync(t *testing.T) {
	f := newTestFactory(t)

	var (
		wg     sync.WaitGroup
		params *backend.Params
		err    error
	)
	wg.Add(1)
	f.CreateFilesAsync("async_cache", "v1", func(p *backend.Params, e error) {
		params, err = p, e
		wg.Done()
	})
	wg.Wait()

	require.NoError(t, err)
	require.NotNil(t, params)
	require.NoError(t, params.Close())
}

func TestClearFilesAsync(t *testing.T) {
	f := newTestFactory(t)

	params, err := f.CreateFiles("async_cache", "v1")
	require.NoError(t, err)
	require.NoError(t, params.Close())

	var wg sync.WaitGroup
	wg.Add(1)
	var clearErr error
	f.ClearFilesAsync("async_cache", "v1", func(e error) {
		clearErr = e
		wg.Done()
	})
	wg.Wait()

	require.NoError(t, clearErr)
	require.NoDirExists(t, filepath.Join(f.Root(), "async_cache", VersionSuffix("v1")))
}

func TestAsyncCallbacksRunInSubmissionOrder(t *testing.T) {
	f := newTestFactory(t)

	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		f.CreateFilesAsync("order_cache", "v1", func(p *backend.Params, err error) {
			require.NoError(t, err)
			require.NoError(t, p.Close())
			order = append(order, i)
			wg.Done()
		})
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFactoryCloseDrainsPendingJobs(t *testing.T) {
	f, err := NewFileFactory(t.TempDir())
	require.NoError(t, err)

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		f.CreateFilesAsync("drain_cache", "v1", func(p *backend.Params, err error) {
			if err == nil {
				_ = p.Close()
			}
			completed.Add(1)
		})
	}
	require.NoError(t, f.Close())
	require.Equal(t, int32(10), completed.Load())
}

func TestFactoryClosed(t *testing.T) {
	f := newTestFactory(t)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err := f.CreateFiles("my_cache", "v1")
	require.ErrorIs(t, err, errors.ErrFactoryClosed)
	require.ErrorIs(t, f.ClearFiles("my_cache", "v1"), errors.ErrFactoryClosed)

	var called bool
	f.CreateFilesAsync("my_cache", "v1", func(p *backend.Params, err error) {
		called = true
		require.Nil(t, p)
		require.ErrorIs(t, err, errors.ErrFactoryClosed)
	})
	require.True(t, called)

	called = false
	f.ClearFilesAsync("my_cache", "v1", func(err error) {
		called = true
		require.ErrorIs(t, err, errors.ErrFactoryClosed)
	})
	require.True(t, called)

	f.Flush()
}

func TestFactoryBadCacheIDPanics(t *testing.T) {
	f := newTestFactory(t)

	require.Panics(t, func() { _, _ = f.CreateFiles("", "v1") })
	require.Panics(t, func() { _, _ = f.CreateFiles("bad`id", "v1") })
	require.Panics(t, func() { _, _ = f.CreateFiles("bad/id", "v1") })
	require.Panics(t, func() { _ = f.ClearFiles("bad id", "v1") })
	require.Panics(t, func() { f.CreateFilesAsync("caché", "v1", nil) })
	require.Panics(t, func() { f.ClearFilesAsync("..", "v1", nil) })
}
