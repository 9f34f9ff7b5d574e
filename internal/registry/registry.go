// Package registry implements component A of the profiling engine: the
// object registry that maps opaque driver handles to stable identities.
//
// Grounded on the teacher's core/storage.go: a single sync.RWMutex guards
// a map, readers never block each other and writers (register/unregister)
// are exclusive. Unlike core/storage.go's dense index+epoch slot array,
// entries here are keyed directly by (Kind, raw handle), since the engine
// never allocates the handles itself — the interception layer does.
package registry

import (
	"sync"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
)

type key struct {
	kind ids.Kind
	raw  uint64
}

// Registry tracks live object identities and their debug names.
//
// Safe for concurrent use: Register/Unregister/SetName take the writer
// lock, Resolve/Name take the reader lock.
type Registry struct {
	mu    sync.RWMutex
	live  map[key]uint64 // (kind, raw) -> creation time
	names map[key]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		live:  make(map[key]uint64),
		names: make(map[key]string),
	}
}

// Register assigns the current monotonic creation time to raw and stores
// it, returning the resulting identity.
func (r *Registry) Register(kind ids.Kind, raw uint64) ids.Identity {
	created := ids.NextCreationTime()
	k := key{kind, raw}

	r.mu.Lock()
	r.live[k] = created
	r.mu.Unlock()

	return ids.Identity{Raw: raw, Created: created}
}

// Unregister removes the entry for raw, along with any debug name.
func (r *Registry) Unregister(kind ids.Kind, raw uint64) {
	k := key{kind, raw}

	r.mu.Lock()
	delete(r.live, k)
	delete(r.names, k)
	r.mu.Unlock()
}

// Resolve augments raw with its stored creation time. If the handle was
// never registered (or was already unregistered), Created is zero.
func (r *Registry) Resolve(kind ids.Kind, raw uint64) ids.Identity {
	k := key{kind, raw}

	r.mu.RLock()
	created := r.live[k]
	r.mu.RUnlock()

	return ids.Identity{Raw: raw, Created: created}
}

// SetName stores (or, given an empty string, clears) the debug name
// associated with an identity.
func (r *Registry) SetName(kind ids.Kind, id ids.Identity, name string) {
	k := key{kind, id.Raw}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[k] != id.Created {
		// Stale identity: a newer object now owns this raw handle.
		return
	}
	if name == "" {
		delete(r.names, k)
	} else {
		r.names[k] = name
	}
}

// Name looks up the debug name for raw using whatever creation time is
// currently live for it, per spec ("always uses the latest creation time
// for the raw handle").
func (r *Registry) Name(kind ids.Kind, raw uint64) (string, bool) {
	k := key{kind, raw}

	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[k]
	return name, ok
}

// RLocker exposes the registry's reader lock so callers that need to hold
// it across several related lookups (e.g. the submit recorder snapshotting
// several command buffers as one atomic read) can do so without the
// registry growing a bespoke "batch lookup" method for every caller.
func (r *Registry) RLocker() sync.Locker {
	return r.mu.RLocker()
}

// Count returns the number of live entries of the given kind. Intended for
// diagnostics/tests, not the hot path.
func (r *Registry) Count(kind ids.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k := range r.live {
		if k.kind == kind {
			n++
		}
	}
	return n
}
