// Package registry tracks which projects have a live process.
//
// The registry is the single source of truth for "is project X running".
// It maps each project identifier to at most one process handle, and hands
// out per-project locks so that operations on one project are serialized
// without blocking operations on others.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/tessro/rig/internal/process"
)

// Errors returned by registry operations.
var (
	ErrAlreadyRegistered = errors.New("project already has a registered process")
)

// Registry maps project identifiers to process handles.
type Registry struct {
	mu sync.RWMutex
	// +checklocks:mu
	handles map[string]*process.Handle

	locksMu sync.Mutex
	// +checklocks:locksMu
	locks map[string]*projectLock
}

// projectLock is a per-project mutex counted by holders and waiters. It is
// dropped from the map when the count reaches zero.
type projectLock struct {
	mu   sync.Mutex
	refs int // Guarded by Registry.locksMu
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		handles: make(map[string]*process.Handle),
		locks:   make(map[string]*projectLock),
	}
}

// Has reports whether id has a registered handle.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[id]
	return ok
}

// Get returns the handle registered for id.
func (r *Registry) Get(id string) (*process.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Put registers h for id. It fails if id already has a handle.
func (r *Registry) Put(id string, h *process.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[id]; ok {
		return ErrAlreadyRegistered
	}
	r.handles[id] = h
	return nil
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// RemoveIf deletes the entry for id only if it is h. It reports whether
// an entry was removed.
func (r *Registry) RemoveIf(id string, h *process.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.handles[id]; ok && cur == h {
		delete(r.handles, id)
		return true
	}
	return false
}

// List returns the registered project identifiers in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the current entries.
func (r *Registry) Snapshot() map[string]*process.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*process.Handle, len(r.handles))
	for id, h := range r.handles {
		out[id] = h
	}
	return out
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Lock acquires the per-project lock for id and returns its release func.
// The release func must be called exactly once.
func (r *Registry) Lock(id string) (unlock func()) {
	r.locksMu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &projectLock{}
		r.locks[id] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.locksMu.Unlock()
	}
}

// lockCount returns how many per-project locks are held or awaited.
func (r *Registry) lockCount() int {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	return len(r.locks)
}
