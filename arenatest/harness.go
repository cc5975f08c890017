package arenatest

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/oriumgames/arena"
	"github.com/stretchr/testify/require"
)

// Harness is an engine on a scheduler that is never started. Engine methods
// are called directly from the test goroutine, which plays the engine loop;
// provider and archive jobs run inline and their completions wait for Flush.
type Harness struct {
	Engine   *arena.Engine
	Sched    *arena.Scheduler
	Worlds   *Worlds
	Archiver *Archiver
	Provider arena.Provider

	t testing.TB
}

// New builds a harness around p. configure may add listeners, modes or a
// lobby transfer; it runs before Build.
func New(t testing.TB, p arena.Provider, configure ...func(b *arena.Builder)) *Harness {
	t.Helper()
	dir := t.TempDir()
	h := &Harness{
		Sched:    arena.NewScheduler(nil),
		Worlds:   NewWorlds(filepath.Join(dir, "worlds"), DefaultWorld),
		Archiver: NewArchiver(),
		Provider: p,
		t:        t,
	}
	b := arena.NewBuilder().
		Provider(p).
		Worlds(h.Worlds).
		Archiver(h.Archiver).
		BackupDir(filepath.Join(dir, "backups")).
		Scheduler(h.Sched).
		Rand(rand.New(rand.NewPCG(1, 2)))
	for _, fn := range configure {
		fn(b)
	}
	h.Engine = b.Build()
	t.Cleanup(func() { _ = h.Engine.Close() })
	return h
}

// Flush runs every queued completion.
func (h *Harness) Flush() {
	h.Sched.Flush()
}

// Tick runs n engine ticks: every ticking arena steps once per tick.
func (h *Harness) Tick(n int) {
	for i := 0; i < n; i++ {
		for _, a := range h.Engine.Arenas() {
			if a.Mode().Ticks() {
				a.Tick()
			}
		}
		h.Flush()
	}
}

// Create stores a new arena and waits for its world backup.
func (h *Harness) Create(opts arena.CreateOptions) arena.Record {
	h.t.Helper()
	var (
		rec  arena.Record
		err  error
		done bool
	)
	h.Engine.CreateArena(opts, func(r arena.Record, e error) {
		rec, err, done = r, e, true
	})
	h.Flush()
	require.True(h.t, done, "create %s did not complete", opts.ID)
	require.NoError(h.t, err)
	return rec
}

// Load loads a stored arena.
func (h *Harness) Load(id string) *arena.Arena {
	h.t.Helper()
	var (
		a    *arena.Arena
		err  error
		done bool
	)
	h.Engine.LoadArena(id, func(got *arena.Arena, e error) {
		a, err, done = got, e, true
	})
	h.Flush()
	require.True(h.t, done, "load %s did not complete", id)
	require.NoError(h.t, err)
	return a
}

// Arena creates and loads an arena.
func (h *Harness) Arena(opts arena.CreateOptions) *arena.Arena {
	h.t.Helper()
	h.Create(opts)
	return h.Load(opts.ID)
}

// Join joins every player to a, failing the test on error.
func (h *Harness) Join(a *arena.Arena, players ...*Player) {
	h.t.Helper()
	for _, p := range players {
		require.NoError(h.t, h.Engine.JoinArena(p, a.ID()), p.Name())
	}
}
