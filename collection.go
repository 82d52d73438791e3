// Package pcache provides a disk-backed key/value cache collection: many
// logical caches addressed by id, each persisted as an obfuscated SQLite
// file pair under one top directory, with open handles bounded by an LRU
// and total on-disk bytes driven back toward a target footprint.
//
// The open-handle table and the on-disk directory are independent
// resources: displacing a cache from the table closes handles but never
// deletes data; only ReduceFootprint, DeleteAllFiles and the factory's
// ClearFiles delete data.
package pcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gozephyr/pcache/backend"
	"github.com/gozephyr/pcache/errors"
	"github.com/gozephyr/pcache/metrics"
	"github.com/gozephyr/pcache/policy"
	"github.com/gozephyr/pcache/sandbox"
	"github.com/gozephyr/pcache/storage"
)

// reductionHeadroom keeps the post-trim footprint below target so the next
// insert does not immediately re-trigger reduction.
const reductionHeadroom = 0.90

// Collection maps cache ids to lazily opened persistent caches. It is safe
// to call from multiple goroutines but not internally parallel: each public
// call holds the collection lock for its duration.
type Collection struct {
	mu sync.Mutex

	store    *storage.Storage
	open     *policy.LRU[string, *Cache]
	registry *sandbox.Registry

	targetFootprint     int64
	bytesUntilReduction int64

	exporter metrics.Exporter
	latency  *metrics.LatencyTracker
	logger   *slog.Logger

	closed bool
}

// NewCollection creates a collection rooted at topDir, creating the
// directory if needed.
func NewCollection(topDir string, opts ...Option) (*Collection, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("collection options: %w", err)
	}

	store, err := storage.New(topDir, options.TrimStrategy)
	if err != nil {
		return nil, err
	}

	return &Collection{
		store:               store,
		open:                policy.NewLRU[string, *Cache](options.MaxOpenCaches),
		registry:            options.Registry,
		targetFootprint:     options.TargetFootprint,
		bytesUntilReduction: options.TargetFootprint,
		exporter:            options.MetricsExporter,
		latency:             options.LatencyTracker,
		logger:              options.Logger,
	}, nil
}

// TopDir returns the directory holding the collection's files
func (c *Collection) TopDir() string {
	return c.store.Dir()
}

// Find returns the entry stored under key in the cache identified by
// cacheID. A miss surfaces as ErrEntryNotFound; an unopenable backend
// surfaces as a wrapped I/O error. An id with unencodable characters is
// misuse and panics.
func (c *Collection) Find(ctx context.Context, cacheID, key string) (*backend.Entry, error) {
	if c.latency != nil {
		defer func(start time.Time) { c.latency.Record(metrics.OpFind, time.Since(start)) }(time.Now())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.Wrap("Find", cacheID, key, errors.ErrCollectionClosed)
	}
	return c.findLocked(ctx, cacheID, key)
}

func (c *Collection) findLocked(ctx context.Context, cacheID, key string) (*backend.Entry, error) {
	cache, err := c.getOrCreateCacheLocked(ctx, cacheID)
	if err != nil {
		return nil, err
	}

	entry, err := cache.backend.Find(ctx, key)
	if errors.IsNotFound(err) {
		c.exporter.RecordMiss()
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.exporter.RecordHit()
	return entry, nil
}

// Insert stores content under key in the cache identified by cacheID,
// replacing any previous entry. Before writing it charges
// len(key)+len(content) against the footprint counter and runs a reduction
// first when the counter is exhausted.
func (c *Collection) Insert(ctx context.Context, cacheID, key string, content []byte, meta backend.EntryMetadata) error {
	if c.latency != nil {
		defer func(start time.Time) { c.latency.Record(metrics.OpInsert, time.Since(start)) }(time.Now())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Wrap("Insert", cacheID, key, errors.ErrCollectionClosed)
	}
	return c.insertLocked(ctx, cacheID, key, content, meta)
}

func (c *Collection) insertLocked(ctx context.Context, cacheID, key string, content []byte, meta backend.EntryMetadata) error {
	// Optimistic accounting: the counter charges every write up front so
	// sustained insert traffic cannot outrun reduction. Overwrites are
	// deliberately counted at full size.
	c.bytesUntilReduction -= int64(len(key) + len(content))
	if c.bytesUntilReduction <= 0 {
		if err := c.reduceFootprintLocked(); err != nil {
			return err
		}
	}

	cache, err := c.getOrCreateCacheLocked(ctx, cacheID)
	if err != nil {
		return err
	}
	if err := cache.backend.Insert(ctx, key, content, meta); err != nil {
		return err
	}
	c.exporter.RecordInsert(int64(len(content)))
	return nil
}

// getOrCreateCacheLocked resolves cacheID through the open-handle table,
// opening the backing files on miss. Inserting into the table may displace
// the least recently used cache, whose backend is closed; its data stays.
func (c *Collection) getOrCreateCacheLocked(ctx context.Context, cacheID string) (*Cache, error) {
	if cached, ok := c.open.Get(cacheID); ok {
		return cached, nil
	}

	baseName := storage.BaseNameFromCacheID(cacheID)
	if baseName == "" {
		panic(fmt.Sprintf("pcache: cache id %q contains unencodable characters", cacheID))
	}

	group, err := c.store.Open(baseName)
	if err != nil {
		return nil, errors.Wrap("OpenCache", cacheID, "", err)
	}
	lock, err := sandbox.NewSharedLock()
	if err != nil {
		_ = group.Close()
		return nil, errors.Wrap("OpenCache", cacheID, "", err)
	}

	params := &backend.Params{
		Type:            backend.TypeSQLite,
		DB:              sandbox.NewFile(group.DB, c.store.DBPath(baseName), sandbox.ReadWrite),
		Journal:         sandbox.NewFile(group.Journal, c.store.JournalPath(baseName), sandbox.ReadWrite),
		DBWritable:      true,
		JournalWritable: true,
		Lock:            lock,
	}
	b := backend.NewSQLiteBackend(params, c.registry)
	if err := b.Initialize(ctx); err != nil {
		_ = b.Close()
		return nil, errors.Wrap("OpenCache", cacheID, "", err)
	}

	cache := newCache(cacheID, baseName, b)
	if _, victim, evicted := c.open.Put(cacheID, cache); evicted {
		if err := victim.Close(); err != nil {
			c.logger.Warn("closing evicted cache", slog.String("cache_id", victim.id), slog.Any("error", err))
		}
		c.exporter.RecordCacheEviction()
	}
	c.exporter.RecordCacheOpen()
	c.exporter.UpdateOpenCaches(int64(c.open.Len()))
	return cache, nil
}

// ReduceFootprint closes every open cache and trims on-disk bytes back
// under the target. Callers normally never need this; inserts trigger it
// automatically.
func (c *Collection) ReduceFootprint() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Wrap("ReduceFootprint", "", "", errors.ErrCollectionClosed)
	}
	return c.reduceFootprintLocked()
}

func (c *Collection) reduceFootprintLocked() error {
	if c.latency != nil {
		defer func(start time.Time) { c.latency.Record(metrics.OpReduceFootprint, time.Since(start)) }(time.Now())
	}

	// Every handle must be closed before trimming so whole groups can be
	// deleted even on platforms without delete-while-open semantics.
	c.closeAllLocked()

	target := int64(float64(c.targetFootprint) * reductionHeadroom)
	current, err := c.store.TrimTo(target)
	if err != nil {
		return err
	}
	c.bytesUntilReduction = c.targetFootprint - current
	c.exporter.RecordFootprintReduction()
	c.logger.Debug("footprint reduced",
		slog.Int64("trim_target", target),
		slog.Int64("current", current),
		slog.Int64("bytes_until_reduction", c.bytesUntilReduction))
	return nil
}

// DeleteAllFiles deletes every file under the top directory, then closes
// all open caches. Deletion happens first: unlink is safe while handles
// are open, and closing first would let a concurrent scanner reopen a file
// between close and delete.
func (c *Collection) DeleteAllFiles() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Wrap("DeleteAllFiles", "", "", errors.ErrCollectionClosed)
	}

	err := c.store.DeleteAll()
	c.closeAllLocked()
	if err != nil {
		return err
	}
	return nil
}

// ExportReadOnlyBackendParams resolves cacheID and exports an independently
// owned, write-stripped parameter set for handoff to another process.
func (c *Collection) ExportReadOnlyBackendParams(ctx context.Context, cacheID string) (*backend.Params, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.Wrap("ExportReadOnlyBackendParams", cacheID, "", errors.ErrCollectionClosed)
	}

	cache, err := c.getOrCreateCacheLocked(ctx, cacheID)
	if err != nil {
		return nil, err
	}
	return cache.backend.ExportReadOnlyParams()
}

// ExportReadWriteBackendParams resolves cacheID and exports an
// independently owned, full-fidelity parameter set.
func (c *Collection) ExportReadWriteBackendParams(ctx context.Context, cacheID string) (*backend.Params, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.Wrap("ExportReadWriteBackendParams", cacheID, "", errors.ErrCollectionClosed)
	}

	cache, err := c.getOrCreateCacheLocked(ctx, cacheID)
	if err != nil {
		return nil, err
	}
	return cache.backend.ExportReadWriteParams()
}

// CloseAll closes every open cache without touching on-disk data. The next
// access to any id reopens its files.
func (c *Collection) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeAllLocked()
}

func (c *Collection) closeAllLocked() {
	for _, cache := range c.open.Drain() {
		if err := cache.Close(); err != nil {
			c.logger.Warn("closing cache", slog.String("cache_id", cache.id), slog.Any("error", err))
		}
	}
	c.exporter.UpdateOpenCaches(0)
}

// OpenCaches returns the number of currently open backends
func (c *Collection) OpenCaches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open.Len()
}

// Footprint returns the total on-disk bytes under the top directory
func (c *Collection) Footprint() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.Wrap("Footprint", "", "", errors.ErrCollectionClosed)
	}
	return c.store.Footprint()
}

// Stats returns a snapshot of engine counters
func (c *Collection) Stats() metrics.Snapshot {
	return c.exporter.GetSnapshot()
}

// Close closes all open caches and rejects further use. On-disk data is
// untouched. Closing twice is harmless.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeAllLocked()
	return nil
}
