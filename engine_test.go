package arena_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/arenatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createErr runs CreateArena to completion and returns its error.
func createErr(h *arenatest.Harness, opts arena.CreateOptions) error {
	var err error
	h.Engine.CreateArena(opts, func(_ arena.Record, e error) { err = e })
	h.Flush()
	return err
}

func loadErr(h *arenatest.Harness, id string) error {
	var err error
	h.Engine.LoadArena(id, func(_ *arena.Arena, e error) { err = e })
	h.Flush()
	return err
}

func TestCreateArena(t *testing.T) {
	p := arenatest.NewProvider()
	h := arenatest.New(t, p)

	rec := h.Create(arena.CreateOptions{ID: " Sky ", World: "sky", Mode: "SOLO", ArenaData: `{"slots": 4}`})
	assert.Equal(t, "Sky", rec.ID)
	assert.Equal(t, "solo", rec.Mode)
	assert.Equal(t, arena.DefaultArenaTime, rec.ArenaTime)
	assert.Equal(t, "{}", rec.Spawns)
	assert.Equal(t, 1, h.Archiver.Backups(), "world backed up on create")
	assert.True(t, h.Worlds.Loaded("sky"), "world reloaded after the backup")

	stored, err := p.Arena(t.Context(), "sky")
	require.NoError(t, err)
	assert.Equal(t, rec, stored)

	tests := []struct {
		name string
		opts arena.CreateOptions
		want error
	}{
		{"stored duplicate", arena.CreateOptions{ID: "SKY", World: "w", Mode: "solo"}, arena.ErrArenaExists},
		{"unknown mode", arena.CreateOptions{ID: "x", World: "w", Mode: "bedwars"}, arena.ErrUnknownMode},
		{"missing world", arena.CreateOptions{ID: "x", Mode: "solo"}, arena.ErrInvalidRecord},
		{"invalid data", arena.CreateOptions{ID: "x", World: "w", Mode: "solo", ArenaData: "{"}, arena.ErrInvalidRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, createErr(h, tt.opts), tt.want)
		})
	}

	h.Load("sky")
	err = createErr(h, arena.CreateOptions{ID: "sky", World: "w", Mode: "solo"})
	require.ErrorIs(t, err, arena.ErrArenaExists)
	assert.Equal(t, "Arena already exists", h.Engine.Messages().ForError(err))
}

func TestCreateArenaProviderFailure(t *testing.T) {
	p := arenatest.NewProvider()
	h := arenatest.New(t, p)
	p.Fail("Insert", errors.New("connection reset"))

	err := createErr(h, arena.CreateOptions{ID: "x", World: "w", Mode: "solo"})
	require.Error(t, err)
	assert.Equal(t, arena.KindIO, arena.KindOf(err))
	assert.Zero(t, h.Archiver.Backups())
	assert.Equal(t, h.Engine.Messages().Failed, h.Engine.Messages().ForError(err))
}

func TestLoadArena(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	h.Create(duelOptions("duel"))

	assert.ErrorIs(t, loadErr(h, "nope"), arena.ErrArenaUnknown)

	a := h.Load("DUEL")
	assert.Equal(t, "duel", a.ID())
	assert.ErrorIs(t, loadErr(h, "duel"), arena.ErrAlreadyLoaded)

	got, ok := h.Engine.Arena("Duel")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Len(t, h.Engine.Arenas(), 1)
}

func TestLoadArenaBadRecord(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	h.Create(arena.CreateOptions{ID: "teams", World: "w", Mode: "duo"})
	assert.ErrorIs(t, loadErr(h, "teams"), arena.ErrInvalidRecord, "a team mode without teams")

	h.Create(arena.CreateOptions{ID: "fail", World: "broken", Mode: "solo", ArenaData: `{"slots": 2}`})
	h.Worlds.FailLoad("broken", assert.AnError)
	require.NoError(t, h.Worlds.Unload("broken"))
	assert.ErrorIs(t, loadErr(h, "fail"), assert.AnError)
	_, ok := h.Engine.Arena("fail")
	assert.False(t, ok)
}

func TestLoadArenas(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	h.Create(duelOptions("a"))
	h.Create(duelOptions("b"))
	h.Create(arena.CreateOptions{ID: "c", World: "c", Mode: "duo"})
	h.Load("a")

	var (
		loaded []*arena.Arena
		err    error
	)
	h.Engine.LoadArenas(func(l []*arena.Arena, e error) { loaded, err = l, e })
	h.Flush()

	require.Error(t, err)
	assert.ErrorIs(t, err, arena.ErrInvalidRecord)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b", loaded[0].ID())
	assert.Len(t, h.Engine.Arenas(), 2)
}

func TestUnloadAndRemoveArena(t *testing.T) {
	p := arenatest.NewProvider()
	h := arenatest.New(t, p)
	a := h.Arena(duelOptions("duel"))
	p1 := arenatest.NewPlayer("p1")
	h.Join(a, p1)

	require.NoError(t, h.Engine.UnloadArena("duel"))
	assert.False(t, h.Engine.InArena(p1.UUID()), "members are removed on unload")
	assert.Equal(t, 14.0, p1.Current().Health)
	assert.ErrorIs(t, h.Engine.UnloadArena("duel"), arena.ErrNotLoaded)

	a = h.Load("duel")
	h.Join(a, p1)

	var err error
	h.Engine.RemoveArena("duel", func(e error) { err = e })
	h.Flush()
	require.NoError(t, err)
	assert.False(t, h.Engine.InArena(p1.UUID()))
	_, ok := h.Engine.Arena("duel")
	assert.False(t, ok)
	known, kerr := p.Known(t.Context(), "duel")
	require.NoError(t, kerr)
	assert.False(t, known)

	h.Engine.RemoveArena("duel", func(e error) { err = e })
	h.Flush()
	assert.ErrorIs(t, err, arena.ErrArenaUnknown)
}

func TestJoinArenaErrors(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	a := h.Arena(duelOptions("duel"))
	b := h.Arena(duelOptions("other"))
	p1 := arenatest.NewPlayer("p1")

	assert.ErrorIs(t, h.Engine.JoinArena(p1, "nope"), arena.ErrArenaNotFound)
	assert.ErrorIs(t, h.Engine.LeaveArena(p1, arena.DefaultQuitOptions), arena.ErrNotInArena)

	h.Join(a, p1)
	assert.ErrorIs(t, h.Engine.JoinArena(p1, "duel"), arena.ErrAlreadyInArena)
	assert.ErrorIs(t, h.Engine.JoinArena(p1, b.ID()), arena.ErrAlreadyInArena, "one arena per player")

	got, ok := h.Engine.PlayerArena(p1.UUID())
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestJoinRandomArena(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	_, err := h.Engine.JoinRandomArena(arenatest.NewPlayer("p0"))
	assert.ErrorIs(t, err, arena.ErrNoArenas)

	running := h.Arena(arena.CreateOptions{ID: "running", World: "r", Mode: "solo", CountdownTime: 1, ArenaData: `{"slots": 1}`})
	h.Join(running, arenatest.NewPlayer("p1"))
	tickUntil(t, h, running, arena.InGame)

	_, err = h.Engine.JoinRandomArena(arenatest.NewPlayer("p2"))
	assert.ErrorIs(t, err, arena.ErrNoAvailableArenas)

	busy := h.Arena(arena.CreateOptions{ID: "busy", World: "b", Mode: "solo", ArenaData: `{"slots": 4}`})
	quiet := h.Arena(arena.CreateOptions{ID: "quiet", World: "q", Mode: "solo", ArenaData: `{"slots": 4}`})
	h.Join(busy, arenatest.NewPlayer("p3"))

	for i := 0; i < 3; i++ {
		p := arenatest.NewPlayer("r" + strings.Repeat("x", i))
		got, err := h.Engine.JoinRandomArena(p)
		require.NoError(t, err)
		assert.NotSame(t, running, got, "closed arenas are never picked")
		if i == 0 {
			assert.Same(t, quiet, got, "the arena with more room wins")
		}
	}
	assert.Equal(t, 4, busy.Mode().PlayerCount()+quiet.Mode().PlayerCount())
}

func TestSetupFlow(t *testing.T) {
	p := arenatest.NewProvider()
	h := arenatest.New(t, p)
	h.Create(duelOptions("forge"))
	owner, other := arenatest.NewPlayer("owner"), arenatest.NewPlayer("other")

	sess := startSetup(t, h, owner, "forge")
	assert.Equal(t, arena.SetupActive, sess.Phase())

	_, err := setupErr(h, other, "forge")
	assert.ErrorIs(t, err, arena.ErrArenaInSetup)
	_, err = setupErr(h, owner, "forge")
	assert.ErrorIs(t, err, arena.ErrAlreadyInSetup)
	assert.ErrorIs(t, loadErr(h, "forge"), arena.ErrArenaInSetup)
	assert.ErrorIs(t, createErr(h, duelOptions("forge")), arena.ErrArenaExists)

	q := sess.Queue()
	spawn := arena.Location{World: "forge_world", Pos: mgl64.Vec3{4, 65, 4}}
	assert.True(t, q.SetSpawn(1, spawn))
	assert.False(t, q.SetSpawn(1, arena.Location{}), "values are set once")
	assert.True(t, q.SetTeamSpawn("Red", spawn))
	assert.True(t, q.SetLobbySettings(arena.LobbySettings{World: "lobby", Location: spawn}))
	assert.True(t, q.SetArenaData(`{"slots": 8}`))
	assert.False(t, q.SetArenaData(`{"slots": 2}`))
	assert.True(t, q.SetExtraData(`{"author": "owner"}`))

	var a *arena.Arena
	h.Engine.FinishSetup(owner, func(got *arena.Arena, e error) { a, err = got, e })
	h.Flush()
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, arena.SetupCommitted, sess.Phase())
	assert.Equal(t, 8, a.Mode().MaxPlayers())
	assert.Equal(t, `{"author": "owner"}`, a.ExtraData())
	assert.Equal(t, "lobby", a.LobbySettings().World)
	assert.Equal(t, mgl64.Vec3{4, 65, 4}, a.Spawns()["1"].Pos)
	assert.Contains(t, a.Spawns(), "red")

	rec, err := p.Arena(t.Context(), "forge")
	require.NoError(t, err)
	assert.NotContains(t, rec.Spawns, "forge_world", "spawn worlds are not stored")

	_, err = setupErr(h, owner, "forge")
	assert.ErrorIs(t, err, arena.ErrArenaLoaded)
	assert.ErrorIs(t, h.Engine.CancelSetup(owner), arena.ErrNotInSetup)
}

func TestSetupRejectsMembersAndUnknownArenas(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	a := h.Arena(duelOptions("duel"))
	h.Create(duelOptions("forge"))
	p1 := arenatest.NewPlayer("p1")

	_, err := setupErr(h, p1, "missing")
	assert.ErrorIs(t, err, arena.ErrArenaUnknown)

	h.Join(a, p1)
	_, err = setupErr(h, p1, "forge")
	assert.ErrorIs(t, err, arena.ErrAlreadyInArena)

	require.NoError(t, h.Engine.LeaveArena(p1, arena.DefaultQuitOptions))
	startSetup(t, h, p1, "forge")
	assert.ErrorIs(t, h.Engine.JoinArena(p1, "duel"), arena.ErrAlreadyInSetup)

	require.NoError(t, h.Engine.CancelSetup(p1))
	_, ok := h.Engine.Setup(p1.UUID())
	assert.False(t, ok)
	assert.Equal(t, "forge", h.Load("forge").ID(), "a cancelled setup frees the arena")
}

func TestFinishSetupWriteFailure(t *testing.T) {
	boom := errors.New("write failed")
	tests := []struct {
		name     string
		provider func() (arena.Provider, func(op string, err error))
		// spawnsKept reports whether the spawns write survives the failed
		// lobby write.
		spawnsKept bool
	}{
		{"independent writes", func() (arena.Provider, func(string, error)) {
			p := arenatest.NewProvider()
			return p, p.Fail
		}, true},
		{"atomic commit", func() (arena.Provider, func(string, error)) {
			p := arenatest.NewAtomicProvider()
			return p, p.Fail
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, fail := tt.provider()
			h := arenatest.New(t, p)
			h.Create(duelOptions("forge"))
			owner := arenatest.NewPlayer("owner")
			sess := startSetup(t, h, owner, "forge")
			sess.Queue().SetSpawn(1, arena.Location{Pos: mgl64.Vec3{1, 2, 3}})
			sess.Queue().SetLobbySettings(arena.LobbySettings{World: "lobby"})
			fail("SetLobbySettings", boom)

			var err error
			h.Engine.FinishSetup(owner, func(_ *arena.Arena, e error) { err = e })
			h.Flush()
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, arena.SetupCancelled, sess.Phase())
			_, ok := h.Engine.Setup(owner.UUID())
			assert.False(t, ok, "the session ends either way")
			_, loaded := h.Engine.Arena("forge")
			assert.False(t, loaded)

			rec, rerr := p.Arena(t.Context(), "forge")
			require.NoError(t, rerr)
			assert.Equal(t, tt.spawnsKept, rec.Spawns != "{}")
			assert.Equal(t, "{}", rec.LobbySettings)
		})
	}
}

func TestEngineCloseRestoresPlayers(t *testing.T) {
	h := arenatest.New(t, arenatest.NewProvider())
	a := h.Arena(duelOptions("duel"))
	p1 := arenatest.NewPlayer("p1")
	h.Join(a, p1)

	require.NoError(t, h.Engine.Close())
	assert.Equal(t, 14.0, p1.Current().Health)
	assert.False(t, h.Engine.InArena(p1.UUID()))
	assert.ErrorIs(t, h.Engine.Exec(func() {}), arena.ErrClosed)
}

func TestFinishSetupCommitsOnce(t *testing.T) {
	p := arenatest.NewAtomicProvider()
	h := arenatest.New(t, p)
	h.Create(duelOptions("forge"))
	owner := arenatest.NewPlayer("owner")
	sess := startSetup(t, h, owner, "forge")
	sess.Queue().SetSpawn(1, arena.Location{Pos: mgl64.Vec3{1, 2, 3}})

	var results []error
	finish := func(_ *arena.Arena, err error) { results = append(results, err) }
	h.Engine.FinishSetup(owner, finish)
	assert.Equal(t, arena.SetupCommitting, sess.Phase())

	h.Engine.FinishSetup(owner, finish)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0], arena.ErrNotInSetup, "a committing session cannot be finished again")
	assert.ErrorIs(t, h.Engine.CancelSetup(owner), arena.ErrNotInSetup)
	var removeErr error
	h.Engine.RemoveArena("forge", func(err error) { removeErr = err })
	assert.ErrorIs(t, removeErr, arena.ErrArenaInSetup)

	h.Flush()
	require.Len(t, results, 2)
	assert.NoError(t, results[1])
	assert.Equal(t, 1, p.Commits())
	assert.Equal(t, arena.SetupCommitted, sess.Phase())
	_, loaded := h.Engine.Arena("forge")
	assert.True(t, loaded)
}

func TestFinishSetupRejectsInvalidRecord(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no slots", `{"slots": 0}`},
		{"malformed", `{`},
		{"wrong shape", `{"slots": "many"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := arenatest.NewAtomicProvider()
			h := arenatest.New(t, p)
			h.Create(duelOptions("forge"))
			owner := arenatest.NewPlayer("owner")
			sess := startSetup(t, h, owner, "forge")
			sess.Queue().SetSpawn(1, arena.Location{Pos: mgl64.Vec3{1, 2, 3}})
			require.True(t, sess.Queue().SetArenaData(tt.data))

			var err error
			h.Engine.FinishSetup(owner, func(_ *arena.Arena, e error) { err = e })
			h.Flush()
			assert.ErrorIs(t, err, arena.ErrInvalidRecord)
			assert.Equal(t, arena.KindValidation, arena.KindOf(err))
			assert.Zero(t, p.Commits(), "nothing is written")
			assert.Equal(t, arena.SetupActive, sess.Phase())

			rec, rerr := p.Arena(t.Context(), "forge")
			require.NoError(t, rerr)
			assert.Equal(t, `{"slots": 2}`, rec.ArenaData)
			assert.Equal(t, "{}", rec.Spawns)

			require.NoError(t, h.Engine.CancelSetup(owner))
			assert.Equal(t, "forge", h.Load("forge").ID())
		})
	}
}

func startSetup(t *testing.T, h *arenatest.Harness, p arena.Player, id string) *arena.SetupSession {
	t.Helper()
	s, err := setupErr(h, p, id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func setupErr(h *arenatest.Harness, p arena.Player, id string) (*arena.SetupSession, error) {
	var (
		s   *arena.SetupSession
		err error
	)
	h.Engine.AddPlayerToSetup(p, id, func(got *arena.SetupSession, e error) { s, err = got, e })
	h.Flush()
	return s, err
}
