// Package arena runs isolated minigame arenas on a Dragonfly server.
//
// An arena is one match instance bound to a world. It moves through
// Waiting, Countdown, InGame, Restarting and Resetting on a one second
// clock, and its world is restored from an archive between matches.
// The engine provides:
//   - A registry of loaded arenas and the player to arena index
//   - Persistence of arena records through a Provider
//   - World archives and restores off the game loop
//   - An interactive setup flow for spawns and lobby settings
//   - Pluggable game modes and per-player state snapshots
//
// # Quick Start
//
//	engine := arena.NewBuilder().
//	    Provider(store, arena.WithTimeout(5*time.Second)).
//	    Worlds(worlds).
//	    Archiver(archive.New(0)).
//	    BackupDir("backups").
//	    Logger(log).
//	    Init()
//
//	engine.Exec(func() {
//	    engine.LoadArenas(func(loaded []*arena.Arena, err error) { ... })
//	})
//
//	cmd.Register(arena.Commands(engine, worlds, isOperator))
//	for p := range srv.Accept() {
//	    sess := sessions.NewSession(p)
//	    p.Handle(arena.NewHandler(engine, sessions, sess, nil))
//	}
//
// # Threading
//
// The engine, its arenas and their modes belong to a single loop driven by
// the Scheduler. Code running elsewhere reaches them through Engine.Exec or
// Engine.ExecWait. Provider calls and world archives run on the scheduler's
// worker pool and report back on the loop through completion callbacks.
//
// # Modes
//
// The built-in modes are solo, duo, squad and practice:
//
//	solo      every player for themselves, arenaData {"slots": N}
//	duo       teams of two, arenaData {"teams": [...]}
//	squad     teams of four, arenaData {"teams": [...]}
//	practice  never starts a match
//
// Further modes are registered with Builder.Mode.
package arena
