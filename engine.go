package arena

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine is the host API of the arena lifecycle engine. It owns the arena
// registry, the setup sessions and the engine loop.
//
// Usage:
//
//	engine := arena.NewBuilder().
//	    Provider(store).
//	    Worlds(worlds).
//	    Archiver(archive.New(0)).
//	    BackupDir("backups").
//	    Init()
//	defer engine.Close()
//
//	engine.Exec(func() {
//	    if err := engine.JoinArena(sess, "sky-1"); err != nil {
//	        sess.Message(engine.Messages().ForError(err))
//	    }
//	})
//
// Concurrency:
// Every method except Exec, ExecWait, Start, Close and the accessors that
// say otherwise must be called on the engine loop, that is from inside a
// function passed to Exec or ExecWait, or from a completion or Listener.
// Operations that reach the provider or the archiver return immediately and
// report through a completion that also runs on the loop.
type Engine struct {
	log      *zap.Logger
	sched    *Scheduler
	provider Provider
	opts     ProviderOptions
	modes    *ModeRegistry
	rng      *rand.Rand

	registry   *Registry
	setups     *SetupRegistry
	matchmaker *Matchmaker
	env        *env

	ticker  *LoopHandle
	started atomic.Bool
	closed  atomic.Bool
	once    sync.Once
}

// CreateOptions describes a new arena.
type CreateOptions struct {
	ID    string
	World string
	Mode  string

	// Timers in seconds. Zero selects the default.
	CountdownTime  int
	ArenaTime      int
	RestartingTime int

	// ArenaData is the mode data, for example {"slots": 8} or
	// {"teams": ["red", "blue"]}. Empty means "{}".
	ArenaData string
}

// Default timers of created arenas, in seconds.
const (
	DefaultCountdownTime  = 30
	DefaultArenaTime      = 600
	DefaultRestartingTime = 10
)

func (o CreateOptions) record() Record {
	or := func(v, def int) int {
		if v == 0 {
			return def
		}
		return v
	}
	r := NewRecord(
		strings.TrimSpace(o.ID),
		strings.TrimSpace(o.World),
		strings.ToLower(strings.TrimSpace(o.Mode)),
		or(o.CountdownTime, DefaultCountdownTime),
		or(o.ArenaTime, DefaultArenaTime),
		or(o.RestartingTime, DefaultRestartingTime),
	)
	if o.ArenaData != "" {
		r.ArenaData = o.ArenaData
	}
	return r
}

// Messages returns the current message templates.
func (e *Engine) Messages() Messages {
	return e.env.messages
}

// SetMessages replaces the message templates. It is safe to call from any
// goroutine; the change applies on the loop.
func (e *Engine) SetMessages(m Messages) {
	_ = e.Exec(func() { e.env.messages = m })
}

// Modes returns the mode registry. It is safe for concurrent use.
func (e *Engine) Modes() *ModeRegistry { return e.modes }

// Scheduler returns the engine loop.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Backup returns the world backup coordinator.
func (e *Engine) Backup() *WorldBackup { return e.env.backup }

// Provider returns the persistence provider.
func (e *Engine) Provider() Provider { return e.provider }

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.log }

// Exec queues fn on the engine loop. It is safe to call from any goroutine.
func (e *Engine) Exec(fn func()) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.sched.Dispatch(fn)
	return nil
}

// ExecWait runs fn on the engine loop and waits for it to return, or for
// ctx to end. When ctx ends first, fn still runs later. It must not be
// called from the loop itself.
func (e *Engine) ExecWait(ctx context.Context, fn func()) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.sched.Running() {
		fn()
		return nil
	}
	done := make(chan struct{})
	e.sched.Dispatch(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start registers the arena tick and starts the engine loop.
func (e *Engine) Start() {
	if e.closed.Load() || e.started.Swap(true) {
		return
	}
	e.ticker = e.sched.Loop("arenas", e.tickArenas, time.Second)
	e.sched.Start()
	e.log.Info("arena engine started", zap.String("provider", e.provider.Name()))
}

// Close force-removes every player, restoring their snapshots, and stops
// the engine loop. Completions still pending are dropped.
func (e *Engine) Close() error {
	e.once.Do(func() {
		shutdown := func() {
			for _, a := range e.registry.All() {
				a.kickAll()
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.ExecWait(ctx, shutdown); err != nil {
			e.log.Warn("shutdown did not complete", zap.Error(err))
		}
		cancel()
		e.closed.Store(true)
		e.ticker.Cancel()
		e.sched.Stop()
		e.log.Info("arena engine stopped")
	})
	return nil
}

// tickArenas runs one state machine step on every ticking arena.
func (e *Engine) tickArenas() {
	for _, a := range e.registry.All() {
		if a.mode.Ticks() {
			a.Tick()
		}
	}
}

// call runs a provider job on the worker pool; done runs on the loop.
func (e *Engine) call(job func(ctx context.Context) error, done func(error)) {
	e.sched.Go(job, e.opts.Timeout, done)
}

// Arena returns the loaded arena with the given ID.
func (e *Engine) Arena(id string) (*Arena, bool) {
	return e.registry.Get(id)
}

// Arenas returns the loaded arenas sorted by ID.
func (e *Engine) Arenas() []*Arena {
	return e.registry.All()
}

// PlayerArena returns the arena the player is a member of.
func (e *Engine) PlayerArena(id uuid.UUID) (*Arena, bool) {
	for _, a := range e.registry.All() {
		if a.mode.HasPlayer(id) {
			return a, true
		}
	}
	return nil, false
}

// InArena reports whether the player is a member of any arena.
func (e *Engine) InArena(id uuid.UUID) bool {
	_, ok := e.PlayerArena(id)
	return ok
}

// Setup returns the setup session of the player.
func (e *Engine) Setup(id uuid.UUID) (*SetupSession, bool) {
	return e.setups.Get(id)
}

// JoinArena adds p to the arena with the given ID.
func (e *Engine) JoinArena(p Player, id string) error {
	if e.InArena(p.UUID()) {
		return ErrAlreadyInArena
	}
	if e.setups.Has(p.UUID()) {
		return ErrAlreadyInSetup
	}
	a, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrArenaNotFound, id)
	}
	return a.Join(p)
}

// JoinRandomArena adds p to an arena picked by the matchmaker. The join
// error of the picked arena is returned as is.
func (e *Engine) JoinRandomArena(p Player) (*Arena, error) {
	if e.registry.Len() == 0 {
		return nil, ErrNoArenas
	}
	if e.InArena(p.UUID()) {
		return nil, ErrAlreadyInArena
	}
	if e.setups.Has(p.UUID()) {
		return nil, ErrAlreadyInSetup
	}
	a, err := e.matchmaker.Pick(e.registry.All())
	if err != nil {
		return nil, err
	}
	if err := a.Join(p); err != nil {
		return nil, err
	}
	return a, nil
}

// LeaveArena removes p from its arena.
func (e *Engine) LeaveArena(p Player, opts QuitOptions) error {
	a, ok := e.PlayerArena(p.UUID())
	if !ok {
		return ErrNotInArena
	}
	return a.Quit(p, opts)
}

// CreateArena validates opts, stores a new record and backs up the arena
// world. The arena is not loaded; it is configured through a setup session
// first.
func (e *Engine) CreateArena(opts CreateOptions, done func(Record, error)) {
	rec := opts.record()
	if err := rec.Validate(); err != nil {
		done(rec, err)
		return
	}
	if !e.modes.Has(rec.Mode) {
		done(rec, fmt.Errorf("%w: %s", ErrUnknownMode, rec.Mode))
		return
	}
	if e.registry.Has(rec.ID) || e.setups.ArenaInSetup(rec.ID) {
		done(rec, fmt.Errorf("%w: %s", ErrArenaExists, rec.ID))
		return
	}

	e.call(func(ctx context.Context) error {
		known, err := e.provider.Known(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("check arena %s: %w", rec.ID, err)
		}
		if known {
			return fmt.Errorf("%w: %s", ErrArenaExists, rec.ID)
		}
		if err := e.provider.Insert(ctx, rec); err != nil {
			return fmt.Errorf("insert arena %s: %w", rec.ID, err)
		}
		return nil
	}, func(err error) {
		if err != nil {
			done(rec, err)
			return
		}
		e.log.Info("arena created", zap.String("arena", rec.ID), zap.String("mode", rec.Mode))
		if err := e.env.backup.Backup(rec.ID, rec.WorldName, func(err error) { done(rec, err) }); err != nil {
			done(rec, err)
		}
	})
}

// RemoveArena deletes the arena's record. If the arena is loaded, its
// members are force-removed and it is unregistered; a running setup for it
// is cancelled.
func (e *Engine) RemoveArena(id string, done func(error)) {
	if s, ok := e.setups.ForArena(id); ok && s.phase == SetupCommitting {
		done(fmt.Errorf("%w: %s", ErrArenaInSetup, id))
		return
	}
	e.call(func(ctx context.Context) error {
		known, err := e.provider.Known(ctx, id)
		if err != nil {
			return fmt.Errorf("check arena %s: %w", id, err)
		}
		if !known {
			return fmt.Errorf("%w: %s", ErrArenaUnknown, id)
		}
		if err := e.provider.Remove(ctx, id); err != nil {
			return fmt.Errorf("remove arena %s: %w", id, err)
		}
		return nil
	}, func(err error) {
		if err != nil {
			done(err)
			return
		}
		if s, ok := e.setups.ForArena(id); ok {
			_, _ = e.setups.Cancel(s.Owner())
		}
		if a, ok := e.registry.Get(id); ok {
			a.kickAll()
			_ = e.registry.UnsignFromBeingLoaded(id)
			e.env.listeners.unload(a)
		}
		if err := e.env.backup.Discard(id); err != nil {
			e.log.Warn("discard world backup", zap.String("arena", id), zap.Error(err))
		}
		e.log.Info("arena removed", zap.String("arena", id))
		done(nil)
	})
}

// UnloadArena force-removes every member and unregisters the arena without
// touching its record.
func (e *Engine) UnloadArena(id string) error {
	a, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}
	a.kickAll()
	if err := e.registry.UnsignFromBeingLoaded(id); err != nil {
		return err
	}
	e.env.listeners.unload(a)
	e.log.Info("arena unloaded", zap.String("arena", a.id))
	return nil
}

// LoadArena reads the arena's record and registers a fresh arena built
// from it.
func (e *Engine) LoadArena(id string, done func(*Arena, error)) {
	if e.registry.Has(id) {
		done(nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, id))
		return
	}
	if e.setups.ArenaInSetup(id) {
		done(nil, fmt.Errorf("%w: %s", ErrArenaInSetup, id))
		return
	}

	var rec Record
	e.call(func(ctx context.Context) error {
		r, err := e.provider.Arena(ctx, id)
		if err != nil {
			return fmt.Errorf("read arena %s: %w", id, err)
		}
		rec = r
		return nil
	}, func(err error) {
		if err != nil {
			done(nil, err)
			return
		}
		a, err := e.load(rec)
		done(a, err)
	})
}

// LoadArenas loads every stored arena that is neither loaded nor in setup.
// Arenas that fail to load are skipped; their errors are combined.
func (e *Engine) LoadArenas(done func([]*Arena, error)) {
	var recs []Record
	e.call(func(ctx context.Context) error {
		r, err := e.provider.Arenas(ctx)
		if err != nil {
			return fmt.Errorf("read arenas: %w", err)
		}
		recs = r
		return nil
	}, func(err error) {
		if err != nil {
			done(nil, err)
			return
		}
		var (
			loaded []*Arena
			errs   error
		)
		for _, rec := range recs {
			if e.registry.Has(rec.ID) || e.setups.ArenaInSetup(rec.ID) {
				continue
			}
			a, err := e.load(rec)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("arena %s: %w", rec.ID, err))
				continue
			}
			loaded = append(loaded, a)
		}
		done(loaded, errs)
	})
}

// load builds and registers an arena from rec.
func (e *Engine) load(rec Record) (*Arena, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if e.setups.ArenaInSetup(rec.ID) {
		return nil, fmt.Errorf("%w: %s", ErrArenaInSetup, rec.ID)
	}
	mode, err := e.modes.New(rec.Mode, rec.ArenaData, e.rng)
	if err != nil {
		return nil, err
	}
	a, err := newArena(rec, mode, e.env)
	if err != nil {
		return nil, err
	}
	if !e.env.worlds.Loaded(rec.WorldName) && !e.env.backup.Pending(rec.ID) {
		if err := e.env.worlds.Load(rec.WorldName); err != nil {
			return nil, fmt.Errorf("load world %s: %w", rec.WorldName, err)
		}
	}
	if err := e.registry.SignAsLoaded(a); err != nil {
		return nil, err
	}
	if !e.env.backup.HasBackup(a.id) && !e.env.backup.Pending(a.id) {
		if err := e.env.backup.Backup(a.id, a.worldName, nil); err != nil {
			a.log.Warn("initial world backup", zap.Error(err))
		}
	}
	e.env.listeners.load(a)
	a.log.Info("arena loaded", zap.String("mode", mode.Name()), zap.Int("max_players", mode.MaxPlayers()))
	return a, nil
}

// AddPlayerToSetup starts a setup session for p on a stored arena that is
// not loaded.
func (e *Engine) AddPlayerToSetup(p Player, id string, done func(*SetupSession, error)) {
	if err := e.checkSetup(p.UUID(), id); err != nil {
		done(nil, err)
		return
	}

	var rec Record
	e.call(func(ctx context.Context) error {
		r, err := e.provider.Arena(ctx, id)
		if err != nil {
			return fmt.Errorf("read arena %s: %w", id, err)
		}
		rec = r
		return nil
	}, func(err error) {
		if err != nil {
			done(nil, err)
			return
		}
		// The arena may have been loaded or claimed while the record was read.
		if err := e.checkSetup(p.UUID(), rec.ID); err != nil {
			done(nil, err)
			return
		}
		s, err := e.setups.Begin(p.UUID(), rec)
		if err != nil {
			done(nil, err)
			return
		}
		e.log.Info("setup started", zap.String("arena", rec.ID), zapPlayer(p))
		done(s, nil)
	})
}

func (e *Engine) checkSetup(player uuid.UUID, id string) error {
	if e.setups.Has(player) {
		return ErrAlreadyInSetup
	}
	if e.InArena(player) {
		return ErrAlreadyInArena
	}
	if e.setups.ArenaInSetup(id) {
		return fmt.Errorf("%w: %s", ErrArenaInSetup, id)
	}
	if e.registry.Has(id) {
		return fmt.Errorf("%w: %s", ErrArenaLoaded, id)
	}
	return nil
}

// FinishSetup writes the staged values of p's session, ends the session
// and loads the arena. When the provider is a Committer the write is
// atomic; otherwise every field is written independently and a failure may
// leave earlier fields stored. On any write failure the arena is not loaded.
//
// The staged values are checked against the stored record before anything
// is written; an arena that would not load is rejected with the session
// left active. While the write runs the session is SetupCommitting and
// cannot be finished or cancelled again.
func (e *Engine) FinishSetup(p Player, done func(*Arena, error)) {
	s, ok := e.setups.Get(p.UUID())
	if !ok || s.phase != SetupActive {
		done(nil, ErrNotInSetup)
		return
	}
	base, err := parseSpawns(s.record.Spawns)
	if err != nil {
		base = Spawns{}
	}
	fields, err := s.queue.fields(base)
	if err != nil {
		done(nil, err)
		return
	}
	if err := e.validate(fields.apply(s.record)); err != nil {
		done(nil, err)
		return
	}

	id := s.arena
	s.phase = SetupCommitting
	e.call(func(ctx context.Context) error {
		return e.commit(ctx, id, fields)
	}, func(err error) {
		s.queue.Clear()
		if cur, ok := e.setups.Get(s.owner); ok && cur == s {
			e.setups.Remove(s.owner)
		}
		if err != nil {
			s.phase = SetupCancelled
			e.log.Error("setup commit failed", zap.String("arena", id), zap.Error(err))
			done(nil, err)
			return
		}
		s.phase = SetupCommitted
		e.log.Info("setup finished", zap.String("arena", id), zapPlayer(p))
		e.LoadArena(id, done)
	})
}

// validate checks that rec would load: its mode builds from its arena data
// and its spawns and lobby settings parse.
func (e *Engine) validate(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, err := e.modes.New(rec.Mode, rec.ArenaData, e.rng); err != nil {
		return err
	}
	if _, err := parseSpawns(rec.Spawns); err != nil {
		return err
	}
	_, err := parseLobbySettings(rec.LobbySettings)
	return err
}

// commit writes setup fields through the provider.
func (e *Engine) commit(ctx context.Context, id string, f SetupFields) error {
	if f.Empty() {
		return nil
	}
	if c, ok := e.provider.(Committer); ok {
		if err := c.Commit(ctx, id, f); err != nil {
			return fmt.Errorf("commit setup %s: %w", id, err)
		}
		return nil
	}

	type write struct {
		field string
		value *string
		fn    func(ctx context.Context, id, v string) error
	}
	writes := []write{
		{KeySpawns, f.Spawns, e.provider.SetSpawns},
		{KeyLobbySettings, f.LobbySettings, e.provider.SetLobbySettings},
		{KeyArenaData, f.ArenaData, e.provider.SetArenaData},
		{KeyExtraData, f.ExtraData, e.provider.SetExtraData},
	}
	errs := make([]error, len(writes))
	var g errgroup.Group
	for i, w := range writes {
		if w.value == nil {
			continue
		}
		g.Go(func() error {
			if err := w.fn(ctx, id, *w.value); err != nil {
				errs[i] = fmt.Errorf("set %s of %s: %w", w.field, id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

// CancelSetup ends p's setup session without writing anything.
func (e *Engine) CancelSetup(p Player) error {
	s, err := e.setups.Cancel(p.UUID())
	if err != nil {
		return err
	}
	e.log.Info("setup cancelled", zap.String("arena", s.arena), zapPlayer(p))
	return nil
}
