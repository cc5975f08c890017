package arena

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Snapshot protects a player's state for the duration of one arena
// membership. It is captured when the player joins and restored exactly once
// when they leave.
type Snapshot struct {
	player   Player
	id       uuid.UUID
	name     string
	saved    PlayerState
	restored bool
}

// Capture records the player's current state. It fails with
// ErrStateUnavailable when the state cannot be read.
func Capture(p Player) (*Snapshot, error) {
	st, err := p.State()
	if err != nil {
		if errors.Is(err, ErrStateUnavailable) {
			return nil, fmt.Errorf("%w: %s", err, p.Name())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrStateUnavailable, p.Name(), err)
	}
	return &Snapshot{
		player: p,
		id:     p.UUID(),
		name:   p.Name(),
		saved:  st.Clone(),
	}, nil
}

// Player returns the handle the snapshot was taken from.
func (s *Snapshot) Player() Player {
	return s.player
}

// UUID returns the identity of the captured player.
func (s *Snapshot) UUID() uuid.UUID {
	return s.id
}

// Name returns the display name at capture time.
func (s *Snapshot) Name() string {
	return s.name
}

// Saved returns a copy of the captured state.
func (s *Snapshot) Saved() PlayerState {
	return s.saved.Clone()
}

// Restored reports whether Restore has already run.
func (s *Snapshot) Restored() bool {
	return s.restored
}

// ApplyPersona replaces the player's state with the in-arena persona.
func (s *Snapshot) ApplyPersona() {
	s.player.SetState(s.saved.persona())
}

// Restore puts the captured state back on the player. It fails with
// ErrSnapshotRestored when called a second time.
func (s *Snapshot) Restore() error {
	if s.restored {
		return ErrSnapshotRestored
	}
	s.restored = true
	s.player.SetState(s.saved.Clone())
	return nil
}
