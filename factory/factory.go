// Package factory provisions backend files on behalf of processes that
// cannot open files themselves. A FileFactory runs in the trusted host
// process; it creates the on-disk layout for a (cache id, product) pair,
// opens the database and journal files, allocates the shared lock region
// and packages everything as backend.Params ready for handoff. All
// filesystem mutation is serialized on one background runner per factory
// instance, so calls observe FIFO ordering. Descriptors opened here are
// close-on-exec, as all descriptors are under the Go runtime; handoff is
// by explicit transfer, never by inheritance.
package factory

import (
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/gozephyr/pcache/backend"
	"github.com/gozephyr/pcache/errors"
	"github.com/gozephyr/pcache/sandbox"
	"github.com/gozephyr/pcache/storage"
)

const (
	dbFileName      = "cache.db"
	journalFileName = "cache.journal"
	lockFileName    = ".lock"

	dirPerm  = 0o700
	filePerm = 0o600
)

// VersionSuffix returns the directory name bucketing one product version:
// base32 of the SHA-1 of product, always 32 path-safe characters no matter
// how long the product string is. SHA-1 is used for bucketing, not
// integrity. A product bump therefore lands in a fresh directory instead
// of reinterpreting bytes written by an older engine.
func VersionSuffix(product string) string {
	sum := sha1.Sum([]byte(product))
	return base32.StdEncoding.EncodeToString(sum[:])
}

// Option configures a FileFactory.
type Option func(*FileFactory)

// WithFactoryLogger sets the logger used for background failures.
func WithFactoryLogger(logger *slog.Logger) Option {
	return func(f *FileFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// FileFactory creates and deletes backend file groups under a fixed root
// directory. Cross-process mutation of one cache id's directory is
// arbitrated by a lock file inside it; within the process all work runs
// on the factory's own runner.
type FileFactory struct {
	root   string
	runner *runner
	logger *slog.Logger
}

// NewFileFactory creates a factory rooted at cacheRoot. The directory is
// created if it does not exist.
func NewFileFactory(cacheRoot string, opts ...Option) (*FileFactory, error) {
	if err := os.MkdirAll(cacheRoot, dirPerm); err != nil {
		return nil, errors.NewOpError(errors.ErrorTypeFactory, "NewFileFactory", "", "", err)
	}
	f := &FileFactory{
		root:   cacheRoot,
		runner: newRunner(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the factory's cache root directory.
func (f *FileFactory) Root() string {
	return f.root
}

// CreateFiles provisions the file group for one (cache id, product) pair
// and returns transferable parameters for it. Stale directories left by
// other product versions of the same cache id are deleted in the
// background; parameters already handed out for them keep working on the
// unlinked files. The call blocks while the factory's runner performs the
// filesystem work.
func (f *FileFactory) CreateFiles(cacheID, product string) (*backend.Params, error) {
	mustDirSafeCacheID(cacheID)

	type result struct {
		params *backend.Params
		err    error
	}
	ch := make(chan result, 1)
	if !f.runner.post(func() {
		params, err := f.createFiles(cacheID, product)
		ch <- result{params, err}
	}) {
		return nil, errors.Wrap("CreateFiles", cacheID, "", errors.ErrFactoryClosed)
	}
	res := <-ch
	return res.params, res.err
}

// CreateFilesAsync is the non-blocking variant of CreateFiles. fn runs on
// the factory's runner sequence after the work completes; it must not call
// back into the factory synchronously. When the factory is already closed
// fn is invoked on the calling goroutine with ErrFactoryClosed.
func (f *FileFactory) CreateFilesAsync(cacheID, product string, fn func(*backend.Params, error)) {
	mustDirSafeCacheID(cacheID)

	if !f.runner.post(func() {
		fn(f.createFiles(cacheID, product))
	}) {
		fn(nil, errors.Wrap("CreateFilesAsync", cacheID, "", errors.ErrFactoryClosed))
	}
}

// ClearFiles deletes the version directory for one (cache id, product)
// pair. Deleting a version currently in use unlinks files that open
// handles keep alive until closed.
func (f *FileFactory) ClearFiles(cacheID, product string) error {
	mustDirSafeCacheID(cacheID)

	ch := make(chan error, 1)
	if !f.runner.post(func() {
		ch <- f.clearFiles(cacheID, product)
	}) {
		return errors.Wrap("ClearFiles", cacheID, "", errors.ErrFactoryClosed)
	}
	return <-ch
}

// ClearFilesAsync is the non-blocking variant of ClearFiles. fn runs on
// the factory's runner sequence; when the factory is already closed fn is
// invoked on the calling goroutine with ErrFactoryClosed.
func (f *FileFactory) ClearFilesAsync(cacheID, product string, fn func(error)) {
	mustDirSafeCacheID(cacheID)

	if !f.runner.post(func() {
		fn(f.clearFiles(cacheID, product))
	}) {
		fn(errors.Wrap("ClearFilesAsync", cacheID, "", errors.ErrFactoryClosed))
	}
}

// Flush blocks until every job posted before the call has finished. Test
// code uses it to observe background deletions deterministically.
func (f *FileFactory) Flush() {
	f.runner.flush()
}

// Close drains pending jobs and stops the factory. Calls issued after
// Close fail with ErrFactoryClosed. Close is idempotent.
func (f *FileFactory) Close() error {
	f.runner.stop()
	return nil
}

// createFiles runs on the runner.
func (f *FileFactory) createFiles(cacheID, product string) (*backend.Params, error) {
	fail := func(err error) (*backend.Params, error) {
		return nil, errors.NewOpError(errors.ErrorTypeFactory, "CreateFiles", cacheID, "", err)
	}

	idDir := filepath.Join(f.root, cacheID)
	if err := os.MkdirAll(idDir, dirPerm); err != nil {
		return fail(err)
	}

	lock := flock.New(filepath.Join(idDir, lockFileName))
	if err := lock.Lock(); err != nil {
		return fail(err)
	}
	defer f.unlock(lock)

	suffix := VersionSuffix(product)
	f.scheduleStaleSweep(cacheID, suffix)

	versionDir := filepath.Join(idDir, suffix)
	if err := os.MkdirAll(versionDir, dirPerm); err != nil {
		return fail(err)
	}

	db, err := os.OpenFile(filepath.Join(versionDir, dbFileName), os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return fail(err)
	}
	journal, err := os.OpenFile(filepath.Join(versionDir, journalFileName), os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		_ = db.Close()
		return fail(err)
	}
	region, err := sandbox.NewSharedLock()
	if err != nil {
		_ = db.Close()
		_ = journal.Close()
		return fail(err)
	}

	return &backend.Params{
		Type:            backend.TypeSQLite,
		DB:              sandbox.NewFile(db, db.Name(), sandbox.ReadWrite),
		Journal:         sandbox.NewFile(journal, journal.Name(), sandbox.ReadWrite),
		DBWritable:      true,
		JournalWritable: true,
		Lock:            region,
	}, nil
}

// clearFiles runs on the runner.
func (f *FileFactory) clearFiles(cacheID, product string) error {
	idDir := filepath.Join(f.root, cacheID)

	lock := flock.New(filepath.Join(idDir, lockFileName))
	if err := lock.Lock(); err != nil {
		return errors.NewOpError(errors.ErrorTypeFactory, "ClearFiles", cacheID, "", err)
	}
	defer f.unlock(lock)

	versionDir := filepath.Join(idDir, VersionSuffix(product))
	if err := os.RemoveAll(versionDir); err != nil {
		return errors.NewOpError(errors.ErrorTypeFactory, "ClearFiles", cacheID, "", err)
	}
	return nil
}

// scheduleStaleSweep queues deletion of every version directory of cacheID
// except keepSuffix. Versions accumulate one directory per product bump,
// so the sweep runs on every create rather than on a schedule.
func (f *FileFactory) scheduleStaleSweep(cacheID, keepSuffix string) {
	f.runner.post(func() {
		f.sweepStaleVersions(cacheID, keepSuffix)
	})
}

// sweepStaleVersions runs on the runner. Failures are logged, never
// surfaced: GC is opportunistic.
func (f *FileFactory) sweepStaleVersions(cacheID, keepSuffix string) {
	idDir := filepath.Join(f.root, cacheID)

	lock := flock.New(filepath.Join(idDir, lockFileName))
	if err := lock.Lock(); err != nil {
		f.logger.Warn("stale version sweep: acquire lock",
			slog.String("cache_id", cacheID), slog.Any("error", err))
		return
	}
	defer f.unlock(lock)

	dirents, err := os.ReadDir(idDir)
	if err != nil {
		f.logger.Warn("stale version sweep: read directory",
			slog.String("cache_id", cacheID), slog.Any("error", err))
		return
	}
	for _, ent := range dirents {
		if !ent.IsDir() || ent.Name() == keepSuffix {
			continue
		}
		if err := os.RemoveAll(filepath.Join(idDir, ent.Name())); err != nil {
			f.logger.Warn("stale version sweep: remove",
				slog.String("cache_id", cacheID), slog.String("dir", ent.Name()), slog.Any("error", err))
		}
	}
}

func (f *FileFactory) unlock(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		f.logger.Warn("release directory lock",
			slog.String("path", lock.Path()), slog.Any("error", err))
	}
}

// mustDirSafeCacheID panics unless cacheID can serve directly as a
// directory name. The factory places the raw id on disk, so unlike the
// collection's obfuscated naming it accepts only characters from the
// allowed set and no escapable ones.
func mustDirSafeCacheID(cacheID string) {
	if cacheID == "" {
		panic("pcache: cache id must not be empty")
	}
	if !storage.DirSafeCacheID(cacheID) {
		panic(fmt.Sprintf("pcache: cache id %q is not a valid directory name", cacheID))
	}
}
