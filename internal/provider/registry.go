package provider

import (
	"slices"
	"sync"
)

// Registry maps backend IDs to their adapters.
// Thread-safe for concurrent access during validation runs.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ID]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[ID]Adapter),
	}
}

// Register associates an adapter with its ID, replacing any previous one.
// Safe to call concurrently.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// IDs returns all registered backend IDs, sorted.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Adapters returns the registered adapters in canonical backend order,
// followed by any unknown IDs sorted by name.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.adapters))
	seen := make(map[ID]bool, len(r.adapters))
	for _, id := range KnownIDs {
		if a, ok := r.adapters[id]; ok {
			out = append(out, a)
			seen[id] = true
		}
	}

	var rest []ID
	for id := range r.adapters {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	for _, id := range rest {
		out = append(out, r.adapters[id])
	}
	return out
}
