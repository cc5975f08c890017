package arena

import (
	"github.com/df-mc/dragonfly/server/entity/effect"
	"github.com/df-mc/dragonfly/server/item/inventory"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
)

// restoreSource is the healing source used to set health to an exact value.
type restoreSource struct{}

func (restoreSource) HealingSource() {}

// stateHolder is the part of *player.Player that reads and writes a
// PlayerState.
type stateHolder interface {
	NameTag() string
	SetNameTag(string)
	GameMode() world.GameMode
	SetGameMode(world.GameMode)
	Inventory() *inventory.Inventory
	Armour() *inventory.Armour
	Effects() []effect.Effect
	AddEffect(effect.Effect)
	RemoveEffect(effect.Type)
	Health() float64
	MaxHealth() float64
	SetMaxHealth(float64)
	Heal(float64, world.HealingSource)
	Food() int
	SetFood(int)
}

var _ stateHolder = (*player.Player)(nil)

func readState(p stateHolder) PlayerState {
	st := PlayerState{
		NameTag:   p.NameTag(),
		Inventory: p.Inventory().Slots(),
		Effects:   p.Effects(),
		Health:    p.Health(),
		MaxHealth: p.MaxHealth(),
		Food:      p.Food(),
		GameMode:  p.GameMode(),
	}
	copy(st.Armour[:], p.Armour().Slots())
	return st
}

// writeState applies st to p. Health is set before effects and the game mode
// so neither absorption nor a mode without damage changes the result.
func writeState(p stateHolder, st PlayerState) {
	p.SetNameTag(st.NameTag)

	inv := p.Inventory()
	_ = inv.Clear()
	for slot, it := range st.Inventory {
		if it.Empty() || slot >= inv.Size() {
			continue
		}
		_ = inv.SetItem(slot, it)
	}
	p.Armour().Set(st.Armour[0], st.Armour[1], st.Armour[2], st.Armour[3])

	for _, e := range p.Effects() {
		p.RemoveEffect(e.Type())
	}
	setHealth(p, st.Health, st.MaxHealth)
	for _, e := range st.Effects {
		p.AddEffect(e)
	}

	p.SetFood(st.Food)
	p.SetGameMode(st.GameMode)
}

// setHealth sets health to exactly health. Lowering the max health clamps
// the current health, and healing is not subject to attack immunity.
func setHealth(p stateHolder, health, maxHealth float64) {
	if maxHealth <= 0 {
		maxHealth = p.MaxHealth()
	}
	if health <= 0 || health > maxHealth {
		health = maxHealth
	}
	if !p.GameMode().AllowsTakingDamage() {
		p.SetGameMode(world.GameModeSurvival)
	}
	p.SetMaxHealth(health)
	if d := health - p.Health(); d > 0 {
		p.Heal(d, restoreSource{})
	}
	p.SetMaxHealth(maxHealth)
}
