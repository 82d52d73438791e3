package pcache

import (
	"context"

	"github.com/gozephyr/pcache/backend"
	"github.com/gozephyr/pcache/errors"
)

// InsertItem pairs entry content with its caller-supplied metadata for
// InsertMany.
type InsertItem struct {
	Content  []byte
	Metadata backend.EntryMetadata
}

// FindMany looks up several keys in the cache identified by cacheID.
// Missing keys are simply absent from the result; any other failure aborts
// the scan. The whole batch runs under one collection lock acquisition.
func (c *Collection) FindMany(ctx context.Context, cacheID string, keys []string) (map[string]*backend.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.Wrap("FindMany", cacheID, "", errors.ErrCollectionClosed)
	}

	result := make(map[string]*backend.Entry, len(keys))
	for _, key := range keys {
		entry, err := c.findLocked(ctx, cacheID, key)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[key] = entry
	}
	return result, nil
}

// InsertMany stores several entries in the cache identified by cacheID.
// Footprint accounting matches repeated Insert: each item charges the
// counter and may trigger a reduction before it is written, so a partial
// batch can survive an I/O failure partway through.
func (c *Collection) InsertMany(ctx context.Context, cacheID string, items map[string]InsertItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Wrap("InsertMany", cacheID, "", errors.ErrCollectionClosed)
	}

	for key, item := range items {
		if err := c.insertLocked(ctx, cacheID, key, item.Content, item.Metadata); err != nil {
			return err
		}
	}
	return nil
}
