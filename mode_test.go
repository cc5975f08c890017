package arena_test

import (
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/arenatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeRegistry(t *testing.T) {
	r := arena.NewModeRegistry()
	assert.Equal(t, []string{"duo", "practice", "solo", "squad", "trio"}, r.Names())
	assert.True(t, r.Has("SOLO"))

	err := r.Register("Solo", func(arena.ModeConfig) (arena.Mode, error) { return arena.NewSolo(1), nil })
	assert.ErrorIs(t, err, arena.ErrModeExists)
	require.NoError(t, r.Register("Ffa", func(arena.ModeConfig) (arena.Mode, error) { return arena.NewSolo(12), nil }))

	m, err := r.New("ffa", "", rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 12, m.MaxPlayers())

	_, err = r.New("bedwars", "", nil)
	assert.ErrorIs(t, err, arena.ErrUnknownMode)
}

func TestModeData(t *testing.T) {
	r := arena.NewModeRegistry()
	rng := rand.New(rand.NewPCG(1, 1))
	tests := []struct {
		name    string
		mode    string
		data    string
		max     int
		perTeam int
		err     error
	}{
		{"solo slots", "solo", `{"slots": 6}`, 6, 1, nil},
		{"solo without slots", "solo", `{}`, 0, 0, arena.ErrInvalidRecord},
		{"solo zero slots", "solo", `{"slots": 0}`, 0, 0, arena.ErrInvalidRecord},
		{"duo names", "duo", `{"teams": ["red", "blue"]}`, 4, 2, nil},
		{"squad objects", "squad", `{"teams": [{"name": "Ants", "colour": "red"}, {"name": "Bees", "colour": "yellow"}, "green"]}`, 12, 4, nil},
		{"trio encoded list", "trio", `{"teams": "[\"red\", \"blue\"]"}`, 6, 3, nil},
		{"custom team name", "duo", `{"teams": ["Sharks", "blue"]}`, 4, 2, nil},
		{"unknown colour", "duo", `{"teams": [{"name": "x", "colour": "octarine"}]}`, 0, 0, arena.ErrUnknownColour},
		{"duplicate team", "duo", `{"teams": ["red", "RED"]}`, 0, 0, arena.ErrTeamExists},
		{"no teams", "duo", `{"teams": []}`, 0, 0, arena.ErrInvalidRecord},
		{"malformed", "duo", `{"teams": 3}`, 0, 0, arena.ErrInvalidRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.New(tt.mode, tt.data, rng)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.max, m.MaxPlayers())
			assert.Equal(t, tt.perTeam, m.MaxPlayersPerTeam())
		})
	}
}

func TestTeamModeMatch(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	h.Create(arena.CreateOptions{
		ID:            "teams",
		World:         "teams_world",
		Mode:          "duo",
		CountdownTime: 1,
		ArenaTime:     2,
		ArenaData:     `{"teams": ["red", {"name": "Blue", "colour": "blue"}]}`,
	})
	spawns := arena.Spawns{
		"red":  {Pos: mgl64.Vec3{10, 64, 10}},
		"blue": {Pos: mgl64.Vec3{-10, 64, -10}},
	}
	enc, err := spawns.Encode()
	require.NoError(t, err)
	require.NoError(t, h.Provider.SetSpawns(t.Context(), "teams", enc))
	a := h.Load("teams")
	mode, ok := a.Mode().(*arena.TeamMode)
	require.True(t, ok)

	players := arenatest.Players(4)
	h.Join(a, players...)
	assert.ErrorIs(t, h.Engine.JoinArena(arenatest.NewPlayer("p5"), "teams"), arena.ErrArenaFull)
	for _, team := range mode.Teams().Teams() {
		assert.Equal(t, 2, team.Len(), team.Name())
	}

	tickUntil(t, h, a, arena.InGame)
	for _, p := range players {
		team, ok := mode.Teams().TeamOf(p.UUID())
		require.True(t, ok)
		want := spawns[arena.TeamSpawnKey(team.Name())].Pos
		assert.Equal(t, want, p.Location().Pos, p.Name())
		assert.Equal(t, "teams_world", p.Location().World)
	}

	red, ok := mode.Teams().Team("RED")
	require.True(t, ok)
	for _, s := range red.Players() {
		require.NoError(t, h.Engine.LeaveArena(s.Player(), arena.QuitOptions{Force: true}))
	}
	tickUntil(t, h, a, arena.Restarting)
	require.Len(t, a.Winners(), 2)
	blue, _ := mode.Teams().Team("blue")
	for _, w := range a.Winners() {
		assert.True(t, blue.Has(w.UUID()))
	}
}

func capture(t *testing.T, p arena.Player) *arena.Snapshot {
	t.Helper()
	s, err := arena.Capture(p)
	require.NoError(t, err)
	return s
}

func TestTeamManagerPick(t *testing.T) {
	m := arena.NewTeamManager(1, rand.New(rand.NewPCG(7, 7)))
	red, err := m.Add("red", arena.TeamColour{Name: "red"})
	require.NoError(t, err)
	blue, err := m.Add("blue", arena.TeamColour{Name: "blue"})
	require.NoError(t, err)
	_, err = m.Add("Red", arena.TeamColour{})
	assert.ErrorIs(t, err, arena.ErrTeamExists)

	p1 := capture(t, arenatest.NewPlayer("p1"))
	require.NoError(t, m.Assign(red, p1))
	assert.ErrorIs(t, m.Assign(blue, p1), arena.ErrAlreadyInArena)

	got, err := m.Pick()
	require.NoError(t, err)
	assert.Same(t, blue, got, "the only team with room")

	require.NoError(t, m.Assign(blue, capture(t, arenatest.NewPlayer("p2"))))
	_, err = m.Pick()
	assert.ErrorIs(t, err, arena.ErrNoTeamsAvailable)
	assert.ErrorIs(t, m.Assign(red, capture(t, arenatest.NewPlayer("p3"))), arena.ErrNoTeamsAvailable)
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 2, m.Max())

	s, ok := m.Remove(p1.UUID())
	require.True(t, ok)
	assert.Same(t, p1, s)
	assert.Zero(t, red.Len())
}
