// Package backend defines the storage engines behind a persistent cache:
// the capability surface they share, the transferable parameter set that
// describes an open backend, and the SQLite and in-memory implementations.
package backend

import (
	"context"
)

// Type identifies a backend implementation.
type Type int

const (
	// TypeSQLite is the disk-backed SQLite engine.
	TypeSQLite Type = iota
	// TypeMemory is the map-backed engine for tests and ephemeral callers.
	TypeMemory
)

// String returns the backend type as text
func (t Type) String() string {
	switch t {
	case TypeSQLite:
		return "sqlite"
	case TypeMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// EntryMetadata carries the bookkeeping stored next to entry content.
// InputSignature is caller-supplied and opaque to the engine (a versioning
// or validation tag). WriteTimestamp is stamped by the backend at insert
// time; callers must leave it zero.
type EntryMetadata struct {
	InputSignature int64
	WriteTimestamp int64
}

// Entry is one immutable lookup result, produced by a successful Find and
// owned exclusively by the caller that received it.
type Entry struct {
	Content  []byte
	Metadata EntryMetadata
}

// Backend is the capability surface shared by all storage engines. One
// backend instance exclusively owns one physical database file pair for its
// lifetime. Implementations are safe for concurrent use; each public call
// holds the backend's lock for its duration.
type Backend interface {
	// Find returns the entry stored under key, or ErrEntryNotFound when
	// the key is absent. An empty key is misuse and panics.
	Find(ctx context.Context, key string) (*Entry, error)

	// Insert stores content under key, replacing any previous entry.
	// The write timestamp is engine-generated; a non-zero
	// meta.WriteTimestamp is misuse and panics.
	Insert(ctx context.Context, key string, content []byte, meta EntryMetadata) error

	// Type identifies the implementation.
	Type() Type

	// ReadOnly reports whether Insert is refused.
	ReadOnly() bool

	// ExportReadOnlyParams duplicates the backend's file set with write
	// access stripped, for handoff to an untrusted process.
	ExportReadOnlyParams() (*Params, error)

	// ExportReadWriteParams duplicates the backend's file set at full
	// fidelity. Refused on read-only backends.
	ExportReadWriteParams() (*Params, error)

	// Close releases the backend's handles. Data on disk is untouched.
	Close() error
}
