// Package lockfile provides a registry of per-key mutexes used to serialize
// access to the credential store on a single key, and a thin wrapper around
// gofrs/flock for serializing access across processes.
package lockfile

import (
	"sync"

	"github.com/gofrs/flock"
)

// lockRegistry tracks one in-process mutex per logical key.
type lockRegistry struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

var registry = &lockRegistry{
	locks: make(map[string]*sync.Mutex),
}

// RegisterLock returns the mutex for key, creating it if necessary.
func (r *lockRegistry) RegisterLock(key string) *sync.Mutex {
	r.mu.RLock()
	if l, ok := r.locks[key]; ok {
		r.mu.RUnlock()
		return l
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[key] = l
	return l
}

// UnregisterLock removes key's mutex from the registry. Safe to call even if
// the mutex is currently held elsewhere; it only affects future lookups.
func (r *lockRegistry) UnregisterLock(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, key)
}

// WithKeyLock runs fn while holding the process-wide mutex for key.
func WithKeyLock(key string, fn func() error) error {
	mu := registry.RegisterLock(key)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// NewFileLock returns a gofrs/flock guarding concurrent writers to path
// across separate processes.
func NewFileLock(path string) *flock.Flock {
	return flock.New(path)
}
