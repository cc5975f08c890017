package arena

import (
	"slices"

	"github.com/df-mc/dragonfly/server/entity/effect"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
)

// Player is the engine's view of a connected player. Session implements it
// on top of a Dragonfly entity handle; tests use in-memory fakes.
//
// Concurrency:
// The engine only calls Player methods from its own loop. Implementations
// that touch world state must hop into the player's world transaction
// themselves.
type Player interface {
	// UUID returns the player's stable identity.
	UUID() uuid.UUID
	// Name returns the player's display name.
	Name() string
	// Online reports whether the player is still connected.
	Online() bool

	// State captures the transient state protected by a Snapshot. It fails
	// when the state cannot be read, never returning a partial state.
	State() (PlayerState, error)
	// SetState overwrites the transient state.
	SetState(PlayerState)
	// Teleport moves the player, changing worlds if needed.
	Teleport(Location)

	Message(msg string)
	Title(title, subtitle string)
	Popup(msg string)
	Tip(msg string)
	ActionBar(msg string)

	// Transfer sends the player to another server at host:port.
	Transfer(addr string) error
}

// PlayerState is the part of a player that arena membership overwrites.
type PlayerState struct {
	NameTag   string
	Inventory []item.Stack
	Armour    [4]item.Stack
	Effects   []effect.Effect
	Health    float64
	MaxHealth float64
	Food      int
	GameMode  world.GameMode
}

// Clone returns a deep enough copy of the state that later mutation of the
// player does not leak into it.
func (s PlayerState) Clone() PlayerState {
	s.Inventory = slices.Clone(s.Inventory)
	s.Effects = slices.Clone(s.Effects)
	return s
}

// persona returns the state players carry while inside an arena: empty
// inventory and armour, no effects, full health and food, adventure mode.
func (s PlayerState) persona() PlayerState {
	return PlayerState{
		NameTag:   s.NameTag,
		Inventory: make([]item.Stack, len(s.Inventory)),
		MaxHealth: s.MaxHealth,
		Health:    s.MaxHealth,
		Food:      20,
		GameMode:  world.GameModeAdventure,
	}
}
