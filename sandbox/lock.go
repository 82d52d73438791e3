package sandbox

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gozephyr/pcache/errors"
	"github.com/gozephyr/pcache/internal"
)

// LockState is the unit of cooperative cross-process write arbitration.
// Exactly one instance lives in each SharedLock region. The engine only
// allocates and transfers the region; any protocol richer than the
// try/release pair below belongs to the consuming VFS layer.
type LockState struct {
	word uint32
}

const (
	lockFree = uint32(0)
	lockHeld = uint32(1)
)

// lockStateSize is the byte size of the shared region, sizeof(LockState).
const lockStateSize = int(unsafe.Sizeof(LockState{}))

// TryAcquireExclusive attempts to take the lock without blocking
func (s *LockState) TryAcquireExclusive() bool {
	return atomic.CompareAndSwapUint32(&s.word, lockFree, lockHeld)
}

// ReleaseExclusive releases the lock
func (s *LockState) ReleaseExclusive() {
	atomic.StoreUint32(&s.word, lockFree)
}

// Held reports whether the lock is currently taken
func (s *LockState) Held() bool {
	return atomic.LoadUint32(&s.word) == lockHeld
}

// SharedLock owns one mapped LockState region. The region is backed by an
// unlinked temporary file, so it is reachable only through descriptors:
// duplicating the lock shares the memory, losing every descriptor frees it.
type SharedLock struct {
	mu     sync.Mutex
	f      *os.File
	mem    []byte
	closed bool
}

// NewSharedLock allocates a fresh zeroed lock region
func NewSharedLock() (*SharedLock, error) {
	f, err := os.CreateTemp("", "pcache-lock-*")
	if err != nil {
		return nil, errors.Wrap("NewSharedLock", "", "", fmt.Errorf("create lock region: %w", err))
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, errors.Wrap("NewSharedLock", "", "", fmt.Errorf("unlink lock region: %w", err))
	}
	if err := f.Truncate(int64(lockStateSize)); err != nil {
		f.Close()
		return nil, errors.Wrap("NewSharedLock", "", "", fmt.Errorf("size lock region: %w", err))
	}
	return mapLockRegion(f)
}

func mapLockRegion(f *os.File) (*SharedLock, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, lockStateSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap("NewSharedLock", "", "", fmt.Errorf("map lock region: %w", err))
	}
	return &SharedLock{f: f, mem: mem}, nil
}

// State returns the LockState living in the shared region. The pointer is
// valid until Close.
func (l *SharedLock) State() *LockState {
	return (*LockState)(unsafe.Pointer(&l.mem[0]))
}

// Size returns the byte size of the region
func (l *SharedLock) Size() int {
	return lockStateSize
}

// Duplicate clones the region's descriptor and maps a second view onto the
// same memory, suitable for transfer to another process.
func (l *SharedLock) Duplicate() (*SharedLock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.Wrap("Duplicate", "", "", errors.ErrHandleClosed)
	}
	dup, err := internal.DupFile(l.f)
	if err != nil {
		return nil, errors.Wrap("Duplicate", "", "", err)
	}
	return mapLockRegion(dup)
}

// Close unmaps the region and releases its descriptor. Other duplicates
// keep their views alive.
func (l *SharedLock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	err := unix.Munmap(l.mem)
	l.mem = nil
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
