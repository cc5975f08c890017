package arena

import (
	"slices"

	"github.com/google/uuid"
)

// Roster is a capacity-bounded, join-ordered collection of snapshots. Solo
// and practice modes store their members in one directly; teams wrap one.
type Roster struct {
	max     int
	order   []uuid.UUID
	members map[uuid.UUID]*Snapshot
}

// NewRoster creates a roster holding at most max players.
func NewRoster(max int) *Roster {
	return &Roster{max: max, members: make(map[uuid.UUID]*Snapshot, max)}
}

// Max returns the roster's capacity.
func (r *Roster) Max() int { return r.max }

// Len returns the number of members.
func (r *Roster) Len() int { return len(r.order) }

// Full reports whether the roster has reached its capacity.
func (r *Roster) Full() bool { return len(r.order) >= r.max }

// Has reports whether id is a member.
func (r *Roster) Has(id uuid.UUID) bool {
	_, ok := r.members[id]
	return ok
}

// Get returns the member with the given id.
func (r *Roster) Get(id uuid.UUID) (*Snapshot, bool) {
	s, ok := r.members[id]
	return s, ok
}

// Add appends a member. It fails with ErrAlreadyInArena for a duplicate and
// ErrArenaFull when the roster is at capacity.
func (r *Roster) Add(s *Snapshot) error {
	if r.Has(s.UUID()) {
		return ErrAlreadyInArena
	}
	if r.Full() {
		return ErrArenaFull
	}
	r.members[s.UUID()] = s
	r.order = append(r.order, s.UUID())
	return nil
}

// Remove drops a member and returns its snapshot.
func (r *Roster) Remove(id uuid.UUID) (*Snapshot, bool) {
	s, ok := r.members[id]
	if !ok {
		return nil, false
	}
	delete(r.members, id)
	r.order = slices.DeleteFunc(r.order, func(o uuid.UUID) bool { return o == id })
	return s, true
}

// All returns the members in join order.
func (r *Roster) All() []*Snapshot {
	out := make([]*Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}
