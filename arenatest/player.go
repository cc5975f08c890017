// Package arenatest provides in-memory collaborators for testing code built
// on the arena engine: players, worlds, an archiver, a fault-injecting
// provider and an engine harness stepped by hand.
package arenatest

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/df-mc/dragonfly/server/entity/effect"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
	"github.com/oriumgames/arena"
)

// ErrOffline is returned by Transfer when the player is offline.
var ErrOffline = errors.New("player offline")

// Player is an arena.Player that records everything sent to it. It is safe
// for concurrent use.
type Player struct {
	id   uuid.UUID
	name string

	mu        sync.Mutex
	online    bool
	state     arena.PlayerState
	stateErr  error
	location  arena.Location
	teleports int
	messages  []string
	titles    []string
	popups    []string
	tips      []string
	bars      []string
	transfers []string
}

// NewPlayer returns an online survival player holding a stack of sticks,
// wearing an iron helmet and under a speed effect.
func NewPlayer(name string) *Player {
	inv := make([]item.Stack, 36)
	inv[0] = item.NewStack(item.Stick{}, 16)
	var armour [4]item.Stack
	armour[0] = item.NewStack(item.Helmet{Tier: item.ArmourTierIron{}}, 1)
	return &Player{
		id:     uuid.New(),
		name:   name,
		online: true,
		state: arena.PlayerState{
			NameTag:   name,
			Inventory: inv,
			Armour:    armour,
			Effects:   []effect.Effect{effect.New(effect.Speed, 1, time.Minute)},
			Health:    14,
			MaxHealth: 20,
			Food:      12,
			GameMode:  world.GameModeSurvival,
		},
	}
}

// Players returns n players named p1..pn.
func Players(n int) []*Player {
	out := make([]*Player, n)
	for i := range out {
		out[i] = NewPlayer("p" + strconv.Itoa(i+1))
	}
	return out
}

func (p *Player) UUID() uuid.UUID { return p.id }
func (p *Player) Name() string    { return p.name }

func (p *Player) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// SetOnline marks the player as connected or not.
func (p *Player) SetOnline(v bool) {
	p.mu.Lock()
	p.online = v
	p.mu.Unlock()
}

func (p *Player) State() (arena.PlayerState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stateErr != nil {
		return arena.PlayerState{}, p.stateErr
	}
	return p.state.Clone(), nil
}

// Current returns the player's state without going through State.
func (p *Player) Current() arena.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// FailState makes State return err. A nil err restores normal reads.
func (p *Player) FailState(err error) {
	p.mu.Lock()
	p.stateErr = err
	p.mu.Unlock()
}

func (p *Player) SetState(st arena.PlayerState) {
	p.mu.Lock()
	p.state = st.Clone()
	p.mu.Unlock()
}

func (p *Player) Teleport(loc arena.Location) {
	p.mu.Lock()
	p.location = loc
	p.teleports++
	p.mu.Unlock()
}

// Location returns where the player was last teleported to.
func (p *Player) Location() arena.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

// Teleports returns the number of teleports so far.
func (p *Player) Teleports() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teleports
}

func (p *Player) record(dst *[]string, msg string) {
	p.mu.Lock()
	*dst = append(*dst, msg)
	p.mu.Unlock()
}

func (p *Player) Message(msg string)           { p.record(&p.messages, msg) }
func (p *Player) Title(title, subtitle string) { p.record(&p.titles, title+"|"+subtitle) }
func (p *Player) Popup(msg string)             { p.record(&p.popups, msg) }
func (p *Player) Tip(msg string)               { p.record(&p.tips, msg) }
func (p *Player) ActionBar(msg string)         { p.record(&p.bars, msg) }

func (p *Player) Transfer(addr string) error {
	if !p.Online() {
		return ErrOffline
	}
	p.record(&p.transfers, addr)
	return nil
}

func (p *Player) snapshot(src *[]string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), *src...)
}

// Messages returns the chat messages received so far.
func (p *Player) Messages() []string { return p.snapshot(&p.messages) }

// Titles returns the titles received so far, as "title|subtitle".
func (p *Player) Titles() []string { return p.snapshot(&p.titles) }

// Tips returns the tips received so far.
func (p *Player) Tips() []string { return p.snapshot(&p.tips) }

// Transfers returns the addresses the player was transferred to.
func (p *Player) Transfers() []string { return p.snapshot(&p.transfers) }

// LastMessage returns the most recent chat message, or "".
func (p *Player) LastMessage() string {
	msgs := p.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

var _ arena.Player = (*Player)(nil)
