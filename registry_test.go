package arena_test

import (
	"math/rand/v2"
	"testing"

	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/arenatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	sky := h.Arena(duelOptions("Sky"))
	bay := h.Arena(duelOptions("bay"))

	r := arena.NewRegistry()
	require.NoError(t, r.SignAsLoaded(sky))
	require.NoError(t, r.SignAsLoaded(bay))
	assert.ErrorIs(t, r.SignAsLoaded(sky), arena.ErrAlreadyLoaded)
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get("SKY")
	require.True(t, ok)
	assert.Same(t, sky, got, "a second sign never replaces the first arena")
	assert.True(t, r.Has("Bay"))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "bay", all[0].ID())
	assert.Equal(t, "Sky", all[1].ID())

	require.NoError(t, r.UnsignFromBeingLoaded("sky"))
	assert.ErrorIs(t, r.UnsignFromBeingLoaded("sky"), arena.ErrNotLoaded)
	assert.False(t, r.Has("sky"))
	assert.Equal(t, 1, r.Len())
}

func TestMatchmakerPick(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	quiet := h.Arena(duelOptions("quiet"))
	busy := h.Arena(duelOptions("busy"))
	full := h.Arena(duelOptions("full"))
	h.Join(busy, arenatest.NewPlayer("b1"))
	h.Join(full, arenatest.Players(2)...)

	assert.True(t, arena.Open(quiet))
	assert.True(t, arena.Open(busy))
	assert.False(t, arena.Open(full), "no room left")

	m := arena.NewMatchmaker(rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 20; i++ {
		got, err := m.Pick([]*arena.Arena{full, busy, quiet})
		require.NoError(t, err)
		assert.Same(t, quiet, got, "more headroom wins")
	}

	_, err := m.Pick([]*arena.Arena{full})
	assert.ErrorIs(t, err, arena.ErrNoAvailableArenas)
	_, err = m.Pick(nil)
	assert.ErrorIs(t, err, arena.ErrNoAvailableArenas)
}

func TestMatchmakerTieStaysOpen(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	a := h.Arena(duelOptions("a"))
	b := h.Arena(duelOptions("b"))

	m := arena.NewMatchmaker(rand.New(rand.NewPCG(1, 1)))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		got, err := m.Pick([]*arena.Arena{a, b})
		require.NoError(t, err)
		seen[got.ID()] = true
	}
	assert.True(t, seen["a"] && seen["b"], "equal headroom spreads players")
}

func TestMatchmakerSkipsRunningArena(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	quiet := h.Arena(duelOptions("quiet"))
	running := h.Arena(duelOptions("running"))
	p1, p2 := arenatest.NewPlayer("p1"), arenatest.NewPlayer("p2")
	h.Join(running, p1, p2)
	tickUntil(t, h, running, arena.InGame)

	require.NoError(t, h.Engine.LeaveArena(p2, arena.QuitOptions{Force: true}))
	require.Equal(t, arena.InGame, running.State())
	require.Less(t, running.Mode().PlayerCount(), running.Mode().MaxPlayers(), "a slot is free")
	assert.False(t, arena.Open(running), "a running match takes no one")

	m := arena.NewMatchmaker(rand.New(rand.NewPCG(3, 3)))
	for i := 0; i < 20; i++ {
		got, err := m.Pick([]*arena.Arena{running, quiet})
		require.NoError(t, err)
		assert.Same(t, quiet, got)
	}
	_, err := m.Pick([]*arena.Arena{running})
	assert.ErrorIs(t, err, arena.ErrNoAvailableArenas)
}
