package pcache

import (
	"context"

	"github.com/gozephyr/pcache/backend"
)

// Cache binds one cache id to its open backend. Instances are created
// lazily by the collection on first access to an id and closed when they
// are displaced from the open-handle table or the collection shuts down.
// Closing a Cache never deletes its on-disk data.
type Cache struct {
	id       string
	baseName string
	backend  backend.Backend
}

func newCache(id, baseName string, b backend.Backend) *Cache {
	return &Cache{id: id, baseName: baseName, backend: b}
}

// ID returns the cache id this cache was resolved under
func (c *Cache) ID() string {
	return c.id
}

// BaseName returns the obfuscated on-disk base name derived from the id
func (c *Cache) BaseName() string {
	return c.baseName
}

// Backend returns the storage engine behind this cache
func (c *Cache) Backend() backend.Backend {
	return c.backend
}

// Find returns the entry stored under key, delegating to the backend.
func (c *Cache) Find(ctx context.Context, key string) (*backend.Entry, error) {
	return c.backend.Find(ctx, key)
}

// Insert stores content under key, delegating to the backend.
func (c *Cache) Insert(ctx context.Context, key string, content []byte, meta backend.EntryMetadata) error {
	return c.backend.Insert(ctx, key, content, meta)
}

// Close releases the backend's handles. On-disk data is untouched.
func (c *Cache) Close() error {
	return c.backend.Close()
}
