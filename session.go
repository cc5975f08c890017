package arena

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/player/title"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// stateTimeout bounds a synchronous state read from the engine loop.
	stateTimeout = 2 * time.Second

	applyAttempts = 20
	applyBackoff  = 50 * time.Millisecond
)

// WorldResolver finds a loaded world by name.
type WorldResolver interface {
	World(name string) (*world.World, bool)
}

// Session is the engine's Player on top of a Dragonfly player. It wraps the
// player's EntityHandle (which is persistent across transactions).
//
// Sessions are created when players join and closed when they leave. Writes
// (state, teleports, messages) are queued and applied in order inside the
// player's world transaction, so the engine loop never waits on a world.
//
// Concurrency:
// Session is safe for concurrent use. While the player is quitting, the
// handler binds the quitting *player.Player and the engine applies the
// snapshot restore directly on it.
type Session struct {
	// handle is the persistent entity handle for the player
	handle *world.EntityHandle

	// uuid, name and xuid are cached for fast lookup
	uuid uuid.UUID
	name string
	xuid string

	worlds WorldResolver
	log    *zap.Logger

	// closed indicates if the session has been closed
	closed atomic.Bool

	// bound is the player during HandleQuit
	bound atomic.Pointer[player.Player]

	// protected is true while the player waits in an arena lobby
	protected atomic.Bool

	// primed holds a state captured by the world goroutine ahead of a join
	primedMu sync.Mutex
	primed   *PlayerState
	primedAt time.Time

	// ops is the write queue drained by run
	opsMu sync.Mutex
	ops   []func(tx *world.Tx, p *player.Player)
	wake  chan struct{}
	done  chan struct{}
}

func newSession(p *player.Player, worlds WorldResolver, log *zap.Logger) *Session {
	s := &Session{
		handle: p.H(),
		uuid:   p.UUID(),
		name:   p.Name(),
		xuid:   p.XUID(),
		worlds: worlds,
		log:    log.With(zap.String("player", p.Name())),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Handle returns the underlying EntityHandle.
func (s *Session) Handle() *world.EntityHandle { return s.handle }

// UUID returns the player's UUID.
func (s *Session) UUID() uuid.UUID { return s.uuid }

// Name returns the player's name.
func (s *Session) Name() string { return s.name }

// XUID returns the player's XUID.
func (s *Session) XUID() string { return s.xuid }

// Online reports whether the player is connected and not quitting.
func (s *Session) Online() bool {
	return !s.closed.Load() && s.bound.Load() == nil
}

// Closed returns true if the session has been closed.
func (s *Session) Closed() bool { return s.closed.Load() }

// Protected reports whether the player is waiting in an arena lobby.
func (s *Session) Protected() bool { return s.protected.Load() }

// Exec runs a function within the session's world transaction and waits
// for it. Returns false if the player is offline or the session is closed.
// It must not be called from the engine loop.
func (s *Session) Exec(fn func(tx *world.Tx, p *player.Player)) bool {
	if s.closed.Load() {
		return false
	}
	return s.handle.ExecWorld(func(tx *world.Tx, e world.Entity) {
		if p, ok := e.(*player.Player); ok {
			fn(tx, p)
		}
	})
}

// Prime captures the player's state ahead of a join. Commands call it from
// the world goroutine so the engine loop does not have to read it back. A
// primed state is used once, and only shortly after it was captured.
func (s *Session) Prime(p *player.Player) {
	st := readState(p)
	s.primedMu.Lock()
	s.primed = &st
	s.primedAt = time.Now()
	s.primedMu.Unlock()
}

// State implements Player. It fails with ErrStateUnavailable when the player
// is gone or the world does not answer in time.
func (s *Session) State() (PlayerState, error) {
	if p := s.bound.Load(); p != nil {
		return readState(p), nil
	}
	s.primedMu.Lock()
	primed, at := s.primed, s.primedAt
	s.primed = nil
	s.primedMu.Unlock()
	if primed != nil && time.Since(at) < stateTimeout {
		return *primed, nil
	}

	ch := make(chan PlayerState, 1)
	go func() {
		if !s.Exec(func(_ *world.Tx, p *player.Player) { ch <- readState(p) }) {
			close(ch)
		}
	}()
	select {
	case st, ok := <-ch:
		if !ok {
			return PlayerState{}, ErrStateUnavailable
		}
		return st, nil
	case <-time.After(stateTimeout):
		s.log.Warn("state read timed out")
		return PlayerState{}, ErrStateUnavailable
	}
}

// SetState implements Player.
func (s *Session) SetState(st PlayerState) {
	st = st.Clone()
	s.do(func(_ *world.Tx, p *player.Player) { writeState(p, st) })
}

// Teleport implements Player. Teleports are skipped while the player quits.
func (s *Session) Teleport(loc Location) {
	if s.bound.Load() != nil {
		return
	}
	s.do(func(tx *world.Tx, p *player.Player) { s.teleport(tx, p, loc) })
}

func (s *Session) teleport(tx *world.Tx, p *player.Player, loc Location) {
	w, ok := s.worlds.World(loc.World)
	if !ok && loc.World != "" {
		s.log.Warn("teleport to unknown world", zap.String("world", loc.World))
		return
	}
	if !ok || w == tx.World() {
		place(p, loc)
		return
	}
	h := tx.RemoveEntity(p)
	w.Exec(func(tx *world.Tx) {
		if p, ok := tx.AddEntity(h).(*player.Player); ok {
			place(p, loc)
		}
	})
}

func place(p *player.Player, loc Location) {
	p.Teleport(loc.Pos)
	rot := p.Rotation()
	p.Move(mgl64.Vec3{}, loc.Yaw-rot.Yaw(), loc.Pitch-rot.Pitch())
}

// Message implements Player.
func (s *Session) Message(msg string) {
	s.do(func(_ *world.Tx, p *player.Player) { p.Message(msg) })
}

// Title implements Player.
func (s *Session) Title(t, subtitle string) {
	s.do(func(_ *world.Tx, p *player.Player) { p.SendTitle(title.New(t).WithSubtitle(subtitle)) })
}

// Popup implements Player.
func (s *Session) Popup(msg string) {
	s.do(func(_ *world.Tx, p *player.Player) { p.SendPopup(msg) })
}

// Tip implements Player.
func (s *Session) Tip(msg string) {
	s.do(func(_ *world.Tx, p *player.Player) { p.SendTip(msg) })
}

// ActionBar implements Player.
func (s *Session) ActionBar(msg string) {
	s.do(func(_ *world.Tx, p *player.Player) { p.SendTitle(title.New().WithActionText(msg)) })
}

// Transfer implements Player. The transfer is queued; connection errors
// are logged.
func (s *Session) Transfer(addr string) error {
	if !s.Online() {
		return ErrNotInArena
	}
	s.do(func(_ *world.Tx, p *player.Player) {
		if err := p.Transfer(addr); err != nil {
			s.log.Warn("transfer failed", zap.String("address", addr), zap.Error(err))
		}
	})
	return nil
}

// do applies op to the player: directly when bound, otherwise through the
// write queue.
func (s *Session) do(op func(tx *world.Tx, p *player.Player)) {
	if s.closed.Load() {
		return
	}
	if p := s.bound.Load(); p != nil {
		op(p.Tx(), p)
		return
	}
	s.opsMu.Lock()
	s.ops = append(s.ops, op)
	s.opsMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run drains the write queue until the session closes.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.opsMu.Lock()
		ops := s.ops
		s.ops = nil
		s.opsMu.Unlock()
		if len(ops) == 0 {
			continue
		}
		for _, op := range ops {
			s.apply(op)
		}
	}
}

// apply runs op in the player's current world. A player moving between
// worlds belongs to none for a moment, so op is retried a few times.
func (s *Session) apply(op func(tx *world.Tx, p *player.Player)) {
	for attempt := 0; attempt < applyAttempts; attempt++ {
		if s.closed.Load() || s.Exec(op) {
			return
		}
		select {
		case <-s.done:
			return
		case <-time.After(applyBackoff):
		}
	}
	s.log.Debug("dropped player update")
}

// bind makes writes apply to p directly for the duration of a quit.
func (s *Session) bind(p *player.Player) {
	s.bound.Store(p)
}

// abandon unbinds the quitting player and closes the session. Writes that
// arrive after a quit gave up are dropped.
func (s *Session) abandon() {
	s.bound.Store(nil)
	s.close()
}

// close closes the session. Queued writes are dropped.
func (s *Session) close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	s.opsMu.Lock()
	s.ops = nil
	s.opsMu.Unlock()
}

// String returns a string representation of the session for debugging.
func (s *Session) String() string {
	return "Session{Name: " + s.name + ", XUID: " + s.xuid + ", UUID: " + s.uuid.String() + "}"
}

// Compile-time check that Session implements Player.
var _ Player = (*Session)(nil)

// Sessions indexes the sessions of connected players.
// It is safe for concurrent use.
type Sessions struct {
	worlds WorldResolver
	log    *zap.Logger

	mu     sync.RWMutex
	byUUID map[uuid.UUID]*Session
	byName map[string]*Session
}

// NewSessions creates an empty index. worlds resolves teleport targets.
func NewSessions(worlds WorldResolver, log *zap.Logger) *Sessions {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sessions{
		worlds: worlds,
		log:    log,
		byUUID: make(map[uuid.UUID]*Session),
		byName: make(map[string]*Session),
	}
}

// NewSession creates a session for a player who just joined.
func (m *Sessions) NewSession(p *player.Player) *Session {
	s := newSession(p, m.worlds, m.log)
	m.mu.Lock()
	m.byUUID[s.uuid] = s
	m.byName[s.name] = s
	m.mu.Unlock()
	return s
}

// ByUUID retrieves a session by UUID.
func (m *Sessions) ByUUID(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byUUID[id]
	return s, ok
}

// ByName retrieves a session by player name.
func (m *Sessions) ByName(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byName[name]
	return s, ok
}

// All returns every session.
func (m *Sessions) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byUUID))
	for _, s := range m.byUUID {
		out = append(out, s)
	}
	return out
}

// Len returns the number of sessions.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUUID)
}

func (m *Sessions) remove(s *Session) {
	m.mu.Lock()
	if m.byUUID[s.uuid] == s {
		delete(m.byUUID, s.uuid)
	}
	if m.byName[s.name] == s {
		delete(m.byName, s.name)
	}
	m.mu.Unlock()
	s.close()
}
