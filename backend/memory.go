package backend

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gozephyr/pcache/errors"
)

// MemoryBackend keeps entries in a map. It exists for tests and for callers
// that want the collection semantics without touching disk. There are no OS
// handles behind it, so parameter export is refused.
type MemoryBackend struct {
	mu     sync.Mutex
	items  map[string]Entry
	closed bool
	now    func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string]Entry),
		now:   time.Now,
	}
}

// Find returns a copy of the entry stored under key, or ErrEntryNotFound.
func (m *MemoryBackend) Find(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		panic("pcache: Find called with empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.Wrap("Find", "", key, errors.ErrBackendClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap("Find", "", key, err)
	}

	entry, ok := m.items[key]
	if !ok {
		return nil, errors.ErrEntryNotFound
	}
	return &Entry{
		Content:  bytes.Clone(entry.Content),
		Metadata: entry.Metadata,
	}, nil
}

// Insert stores a copy of content under key, replacing any previous entry.
func (m *MemoryBackend) Insert(ctx context.Context, key string, content []byte, meta EntryMetadata) error {
	if key == "" {
		panic("pcache: Insert called with empty key")
	}
	if meta.WriteTimestamp != 0 {
		panic("pcache: write timestamp is engine-generated, callers must leave it zero")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.Wrap("Insert", "", key, errors.ErrBackendClosed)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap("Insert", "", key, err)
	}

	m.items[key] = Entry{
		Content: bytes.Clone(content),
		Metadata: EntryMetadata{
			InputSignature: meta.InputSignature,
			WriteTimestamp: m.now().Unix(),
		},
	}
	return nil
}

// Type identifies the implementation
func (m *MemoryBackend) Type() Type {
	return TypeMemory
}

// ReadOnly reports whether Insert is refused. Memory backends always accept
// writes.
func (m *MemoryBackend) ReadOnly() bool {
	return false
}

// ExportReadOnlyParams is refused: there are no OS handles to duplicate.
func (m *MemoryBackend) ExportReadOnlyParams() (*Params, error) {
	return nil, errors.Wrap("ExportReadOnlyParams", "", "", errors.ErrNotExportable)
}

// ExportReadWriteParams is refused: there are no OS handles to duplicate.
func (m *MemoryBackend) ExportReadWriteParams() (*Params, error) {
	return nil, errors.Wrap("ExportReadWriteParams", "", "", errors.ErrNotExportable)
}

// Len returns the number of stored entries
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close drops the map. Closing twice is harmless.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.items = nil
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
