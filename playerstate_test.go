package arena

import (
	"testing"
	"time"

	"github.com/df-mc/dragonfly/server/entity/effect"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/item/inventory"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// body follows the player rules writeState depends on: healing is ignored
// in modes that take no damage, and lowering the max health clamps health.
type body struct {
	tag     string
	mode    world.GameMode
	inv     *inventory.Inventory
	armour  *inventory.Armour
	effects []effect.Effect
	health  float64
	max     float64
	food    int
}

func newBody(mode world.GameMode, health float64) *body {
	return &body{
		mode:   mode,
		inv:    inventory.New(36, nil),
		armour: inventory.NewArmour(nil),
		health: health,
		max:    20,
		food:   20,
	}
}

func (b *body) NameTag() string                 { return b.tag }
func (b *body) SetNameTag(s string)             { b.tag = s }
func (b *body) GameMode() world.GameMode        { return b.mode }
func (b *body) SetGameMode(m world.GameMode)    { b.mode = m }
func (b *body) Inventory() *inventory.Inventory { return b.inv }
func (b *body) Armour() *inventory.Armour       { return b.armour }
func (b *body) Effects() []effect.Effect        { return append([]effect.Effect(nil), b.effects...) }
func (b *body) AddEffect(e effect.Effect)       { b.effects = append(b.effects, e) }
func (b *body) Health() float64                 { return b.health }
func (b *body) MaxHealth() float64              { return b.max }
func (b *body) Food() int                       { return b.food }
func (b *body) SetFood(n int)                   { b.food = n }

func (b *body) RemoveEffect(t effect.Type) {
	kept := b.effects[:0]
	for _, e := range b.effects {
		if e.Type() != t {
			kept = append(kept, e)
		}
	}
	b.effects = kept
}

func (b *body) SetMaxHealth(v float64) {
	if v <= 0 {
		v = 1
	}
	b.max = v
	b.health = min(b.health, v)
}

func (b *body) Heal(v float64, _ world.HealingSource) {
	if v < 0 || !b.mode.AllowsTakingDamage() {
		return
	}
	b.health = min(b.health+v, b.max)
}

func TestWriteStateHealth(t *testing.T) {
	inv := make([]item.Stack, 36)
	inv[4] = item.NewStack(item.Stick{}, 3)
	var armour [4]item.Stack
	armour[0] = item.NewStack(item.Helmet{Tier: item.ArmourTierIron{}}, 1)

	tests := []struct {
		name   string
		from   world.GameMode
		health float64
		to     world.GameMode
		want   float64
	}{
		{"lower into creative", world.GameModeAdventure, 20, world.GameModeCreative, 6},
		{"raise into spectator", world.GameModeAdventure, 2, world.GameModeSpectator, 17},
		{"raise from creative", world.GameModeCreative, 3, world.GameModeSurvival, 19},
		{"lower in survival", world.GameModeSurvival, 20, world.GameModeSurvival, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := PlayerState{
				NameTag:   "p1",
				Inventory: inv,
				Armour:    armour,
				Effects:   []effect.Effect{effect.New(effect.Speed, 1, time.Minute)},
				Health:    tt.want,
				MaxHealth: 20,
				Food:      9,
				GameMode:  tt.to,
			}
			b := newBody(tt.from, tt.health)
			b.effects = []effect.Effect{effect.New(effect.Slowness, 2, time.Minute)}

			writeState(b, st)
			assert.Equal(t, tt.want, b.Health())
			assert.Equal(t, 20.0, b.MaxHealth())
			assert.Equal(t, tt.to, b.GameMode())
			assert.Equal(t, st, readState(b))
		})
	}
}

func TestSessionDropsWritesAfterAbandon(t *testing.T) {
	s := &Session{
		log:  zap.NewNop(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.bind(&player.Player{})
	require.False(t, s.Online(), "a quitting player is not online")

	s.abandon()
	assert.True(t, s.Closed())

	ran := false
	s.do(func(*world.Tx, *player.Player) { ran = true })
	assert.False(t, ran, "writes after a quit gave up are dropped")

	_, err := s.State()
	assert.ErrorIs(t, err, ErrStateUnavailable)
}
