// Package sandbox provides the file layer handed to sandboxed consumers:
// pre-opened OS files wrapped with a virtual path and access rights, a
// process-wide registry resolving virtual paths to those files, and a
// shared-memory lock region for cooperative cross-process write arbitration.
//
// A sandboxed process has no filesystem access of its own. Everything it
// reads or writes arrives as a descriptor opened by a trusted process, and
// the SQL engine is pointed at descriptors through this layer rather than at
// paths it could not open.
package sandbox

import (
	"fmt"
	"os"
	"sync"

	"github.com/gozephyr/pcache/errors"
	"github.com/gozephyr/pcache/internal"
)

// Access describes the rights carried by a sandboxed file handle.
type Access int

const (
	// ReadOnly handles reject writes at the OS level.
	ReadOnly Access = iota
	// ReadWrite handles permit both reads and writes.
	ReadWrite
)

// String returns the access tag as text
func (a Access) String() string {
	if a == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// File wraps one pre-opened OS file together with the virtual path it is
// known by inside the sandbox. Ownership of the descriptor moves with the
// *File value; copying a File is never implicit, use Duplicate.
type File struct {
	mu          sync.Mutex
	f           *os.File
	virtualPath string
	access      Access
	closed      bool
}

// NewFile wraps an already-open OS file. The virtual path is the name the
// file answers to inside the sandbox, not necessarily its real location.
func NewFile(f *os.File, virtualPath string, access Access) *File {
	return &File{
		f:           f,
		virtualPath: virtualPath,
		access:      access,
	}
}

// VirtualPath returns the path the file is registered under
func (f *File) VirtualPath() string {
	return f.virtualPath
}

// Access returns the rights tag of the handle
func (f *File) Access() Access {
	return f.access
}

// Writable reports whether the handle permits writes
func (f *File) Writable() bool {
	return f.access == ReadWrite
}

// OSFile returns the wrapped handle. The File retains ownership.
func (f *File) OSFile() *os.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f
}

// ReopenPath returns an OS-openable path resolving to this handle's open
// file description, suitable for pointing the SQL engine at the file.
func (f *File) ReopenPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return internal.ReopenPath(f.f)
}

// Duplicate clones the descriptor into an independently owned File with the
// same virtual path and access rights.
func (f *File) Duplicate() (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.Wrap("Duplicate", "", f.virtualPath, errors.ErrHandleClosed)
	}
	dup, err := internal.DupFile(f.f)
	if err != nil {
		return nil, errors.Wrap("Duplicate", "", f.virtualPath, err)
	}
	return NewFile(dup, f.virtualPath, f.access), nil
}

// ReopenReadOnly opens a fresh read-only descriptor onto the same file.
// Unlike Duplicate the result cannot write even if this handle can, which
// is what read-only parameter export hands to untrusted consumers.
func (f *File) ReopenReadOnly() (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.Wrap("ReopenReadOnly", "", f.virtualPath, errors.ErrHandleClosed)
	}
	ro, err := os.OpenFile(internal.ReopenPath(f.f), os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrap("ReopenReadOnly", "", f.virtualPath, fmt.Errorf("reopen %q: %w", f.virtualPath, err))
	}
	return NewFile(ro, f.virtualPath, ReadOnly), nil
}

// Size returns the current byte size of the underlying file
func (f *File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.Wrap("Size", "", f.virtualPath, errors.ErrHandleClosed)
	}
	info, err := f.f.Stat()
	if err != nil {
		return 0, errors.Wrap("Size", "", f.virtualPath, err)
	}
	return info.Size(), nil
}

// Close releases the descriptor. Closing twice is harmless.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.f.Close()
}
