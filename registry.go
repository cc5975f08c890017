package arena

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the loaded arenas, at most one per ID. IDs are compared
// case-insensitively.
//
// Concurrency:
// Registry is owned by the engine loop and is not safe for concurrent use.
type Registry struct {
	arenas map[string]*Arena
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{arenas: make(map[string]*Arena)}
}

// SignAsLoaded registers a. It fails with ErrAlreadyLoaded, leaving the
// registered arena in place, when the ID is taken.
func (r *Registry) SignAsLoaded(a *Arena) error {
	key := strings.ToLower(a.ID())
	if _, ok := r.arenas[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, a.ID())
	}
	r.arenas[key] = a
	return nil
}

// UnsignFromBeingLoaded removes the arena registered under id.
func (r *Registry) UnsignFromBeingLoaded(id string) error {
	key := strings.ToLower(id)
	if _, ok := r.arenas[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}
	delete(r.arenas, key)
	return nil
}

// Get returns the arena registered under id.
func (r *Registry) Get(id string) (*Arena, bool) {
	a, ok := r.arenas[strings.ToLower(id)]
	return a, ok
}

// Has reports whether an arena is registered under id.
func (r *Registry) Has(id string) bool {
	_, ok := r.arenas[strings.ToLower(id)]
	return ok
}

// All returns the registered arenas sorted by ID.
func (r *Registry) All() []*Arena {
	out := make([]*Arena, 0, len(r.arenas))
	for _, a := range r.arenas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ID()) < strings.ToLower(out[j].ID())
	})
	return out
}

// Len returns the number of registered arenas.
func (r *Registry) Len() int {
	return len(r.arenas)
}
