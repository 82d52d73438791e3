package sandbox

import (
	"sync"

	"github.com/gozephyr/pcache/errors"
)

// Registry resolves virtual paths to registered files. It stands in for the
// VFS delegate the SQL engine consults instead of the OS open primitives.
// One process-wide instance exists via Default; constructors accept an
// explicit registry so tests can stay isolated.
type Registry struct {
	mu    sync.RWMutex
	files map[string]*File
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		files: make(map[string]*File),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// Registration unregisters exactly the paths its Register call added.
// It is scope-bound: a backend holds one for its file set and releases it
// on close, never touching registrations made by anyone else.
type Registration struct {
	registry *Registry
	paths    []string
	once     sync.Once
}

// Register adds the given files under their virtual paths. If any path is
// already taken nothing is registered and the conflict is returned.
func (r *Registry) Register(files ...*File) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range files {
		if _, exists := r.files[f.VirtualPath()]; exists {
			return nil, errors.Wrap("Register", "", f.VirtualPath(), errors.ErrAlreadyRegistered)
		}
	}

	reg := &Registration{registry: r, paths: make([]string, 0, len(files))}
	for _, f := range files {
		r.files[f.VirtualPath()] = f
		reg.paths = append(reg.paths, f.VirtualPath())
	}
	return reg, nil
}

// Resolve looks up the file registered under the virtual path
func (r *Registry) Resolve(virtualPath string) (*File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[virtualPath]
	return f, ok
}

// Len returns the number of registered paths
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// Unregister removes this registration's paths from its registry. Calling
// it more than once is harmless; files themselves are not closed.
func (reg *Registration) Unregister() {
	reg.once.Do(func() {
		reg.registry.mu.Lock()
		defer reg.registry.mu.Unlock()
		for _, p := range reg.paths {
			delete(reg.registry.files, p)
		}
	})
}
