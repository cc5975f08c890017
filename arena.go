package arena

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// env holds the collaborators shared by every arena of one engine. Arenas
// reach the registry only through lookup, never through a stored reference.
type env struct {
	log       *zap.Logger
	worlds    Worlds
	backup    *WorldBackup
	transfer  *LobbyTransfer
	messages  Messages
	listeners listeners
	lookup    func(id string) (*Arena, bool)
}

// Arena is one isolated match instance. It owns its Mode and Timer.
//
// Concurrency:
// Arenas are not safe for concurrent use. Every method must be called from
// the engine loop (see Engine.Exec).
type Arena struct {
	id        string
	worldName string
	state     State
	mode      Mode
	timer     *Timer
	lobby     LobbySettings
	spawns    Spawns
	extra     string
	record    Record

	winners      []*Snapshot
	endRequested bool

	env *env
	log *zap.Logger
}

// newArena builds an arena from a validated record and a freshly built mode.
func newArena(rec Record, mode Mode, e *env) (*Arena, error) {
	lobby, err := parseLobbySettings(rec.LobbySettings)
	if err != nil {
		return nil, err
	}
	spawns, err := parseSpawns(rec.Spawns)
	if err != nil {
		return nil, err
	}
	a := &Arena{
		id:        rec.ID,
		worldName: rec.WorldName,
		state:     Waiting,
		mode:      mode,
		timer:     NewTimer(rec.CountdownTime, rec.ArenaTime, rec.RestartingTime),
		lobby:     lobby,
		spawns:    spawns,
		extra:     rec.ExtraData,
		record:    rec,
		env:       e,
	}
	a.log = e.log.With(zap.String("arena", a.id))
	return a, nil
}

// ID returns the arena identifier.
func (a *Arena) ID() string { return a.id }

// WorldName returns the name of the world matches are played in.
func (a *Arena) WorldName() string { return a.worldName }

// State returns the current match state.
func (a *Arena) State() State { return a.state }

// Mode returns the arena's mode.
func (a *Arena) Mode() Mode { return a.mode }

// Timer returns the arena's timer.
func (a *Arena) Timer() *Timer { return a.timer }

// LobbySettings returns where players wait before the match.
func (a *Arena) LobbySettings() LobbySettings { return a.lobby }

// Spawns returns a copy of the arena spawns.
func (a *Arena) Spawns() Spawns {
	out := make(Spawns, len(a.spawns))
	for k, v := range a.spawns {
		out[k] = v
	}
	return out
}

// ExtraData returns the raw extra data payload.
func (a *Arena) ExtraData() string { return a.extra }

// Record returns the record the arena was loaded from.
func (a *Arena) Record() Record { return a.record }

// Winners returns the winners of the last match.
func (a *Arena) Winners() []*Snapshot { return a.winners }

// HasWinners reports whether the last match produced winners.
func (a *Arena) HasWinners() bool { return len(a.winners) > 0 }

// Is reports whether id names this arena.
func (a *Arena) Is(id string) bool { return strings.EqualFold(a.id, id) }

// Join admits p through the arena's mode.
func (a *Arena) Join(p Player) error {
	return a.mode.OnJoin(a, p)
}

// Quit removes p through the arena's mode.
func (a *Arena) Quit(p Player, opts QuitOptions) error {
	return a.mode.OnQuit(a, p, opts)
}

// SetState applies a transition. The timer and every listener observe it
// before SetState returns, so the next Tick always sees consistent counters.
func (a *Arena) SetState(s State) {
	from := a.state
	if from == s {
		return
	}
	a.state = s
	a.timer.observe(from, s)
	a.log.Debug("state changed", zap.Stringer("from", from), zap.Stringer("to", s))
	a.env.listeners.stateChange(a, from, s)
}

// Tick runs one step of the state machine.
func (a *Arena) Tick() {
	stateTicks[a.state](a)
	a.env.listeners.tick(a)
	if a.state == Countdown {
		a.BroadcastTip(a.env.messages.formatTime(a.env.messages.Countdown, a.timer.Countdown()))
	}
}

// EndMatch signals that the running match is over. The next tick moves the
// arena to Restarting with the given winners.
func (a *Arena) EndMatch(winners []*Snapshot) {
	if a.state != InGame {
		return
	}
	a.winners = winners
	a.endRequested = true
}

// ResetWorld restores the arena world from its backup archive. It fails
// immediately, without touching the world, when there is no archive or a
// world operation is already pending; otherwise done runs on the engine loop
// once the world has been reloaded.
func (a *Arena) ResetWorld(done func(error)) error {
	return a.env.backup.Restore(a.id, a.worldName, done)
}

// CheckJoin runs the membership, capacity and state checks, in that order.
func (a *Arena) CheckJoin(m Mode, p Player) error {
	if m.HasPlayer(p.UUID()) {
		return ErrAlreadyInArena
	}
	if m.PlayerCount() >= m.MaxPlayers() {
		return ErrArenaFull
	}
	if a.state == InGame {
		return ErrArenaRunning
	}
	return nil
}

// Welcome finishes a successful join: applies the arena persona, sends the
// player to the lobby and announces them.
func (a *Arena) Welcome(m Mode, s *Snapshot) {
	s.ApplyPersona()
	s.Player().Teleport(a.lobbySpawn())
	a.Broadcast(a.env.messages.Format(a.env.messages.Joined, s.Name(), m.PlayerCount(), m.MaxPlayers()))
	a.env.listeners.join(a, s)
}

// CheckQuit runs the membership and state checks for leaving.
func (a *Arena) CheckQuit(m Mode, p Player, force bool) error {
	if !m.HasPlayer(p.UUID()) {
		return ErrNotInArena
	}
	if !force && a.state.Locked() {
		return ErrCannotLeaveNow
	}
	return nil
}

// Farewell finishes a successful quit: restores the snapshot, sends the
// player out of the arena and optionally announces it.
func (a *Arena) Farewell(m Mode, s *Snapshot, opts QuitOptions) {
	if err := s.Restore(); err != nil {
		a.log.Error("restore snapshot", zap.String("player", s.Name()), zap.Error(err))
	}
	a.sendOut(s.Player())
	if opts.Notify {
		a.Broadcast(a.env.messages.Format(a.env.messages.Left, s.Name(), m.PlayerCount(), m.MaxPlayers()))
	}
	a.env.listeners.quit(a, s, opts.Force)
}

func (a *Arena) lobbySpawn() Location {
	if a.lobby.Set() {
		return a.lobby.Spawn()
	}
	return a.env.worlds.DefaultSpawn()
}

// sendOut transfers p to the lobby server when configured, and falls back
// to the default spawn.
func (a *Arena) sendOut(p Player) {
	if !p.Online() {
		return
	}
	if a.env.transfer.Enabled() {
		err := a.env.transfer.Send(p)
		if err == nil {
			return
		}
		a.log.Warn("lobby transfer failed", zap.String("player", p.Name()), zap.Error(err))
	}
	p.Teleport(a.env.worlds.DefaultSpawn())
}

// kickAll force-removes every member without announcing it.
func (a *Arena) kickAll() {
	for _, s := range a.mode.Players() {
		if err := a.mode.OnQuit(a, s.Player(), QuitOptions{Force: true}); err != nil {
			a.log.Error("force quit", zap.String("player", s.Name()), zap.Error(err))
		}
	}
}

// Judge is implemented by modes that can decide the winners of a match.
type Judge interface {
	Winners(a *Arena) []*Snapshot
}

func (a *Arena) finishMatch() {
	if !a.endRequested {
		a.winners = nil
		if j, ok := a.mode.(Judge); ok {
			a.winners = j.Winners(a)
		}
	}
	a.endRequested = false
	names := make([]string, 0, len(a.winners))
	for _, w := range a.winners {
		names = append(names, w.Name())
	}
	a.log.Info("match ended", zap.Strings("winners", names))
	if len(names) > 0 {
		a.BroadcastTitle(a.env.messages.MatchOver, a.env.messages.formatWinners(names))
	}
	a.env.listeners.matchEnd(a, a.winners)
}

// beginReset clears the arena and restores its world. The arena stays in
// Resetting until the restore completes, successfully or not.
func (a *Arena) beginReset() {
	a.kickAll()
	if err := a.ResetWorld(a.resetDone); err != nil {
		a.log.Warn("world reset skipped", zap.Error(err))
		a.resetDone(nil)
	}
}

// resetDone is the restore completion. The arena may have been removed or
// replaced while the restore ran; in that case it does nothing.
func (a *Arena) resetDone(err error) {
	if live, ok := a.env.lookup(a.id); !ok || live != a {
		a.log.Debug("reset completed for unloaded arena")
		return
	}
	if err != nil {
		a.log.Error("world reset failed", zap.Error(err))
	}
	a.winners = nil
	a.SetState(Waiting)
}

// String returns a short description of the arena.
func (a *Arena) String() string {
	return fmt.Sprintf("%s[%s %s %d/%d]", a.id, a.mode.Name(), a.state, a.mode.PlayerCount(), a.mode.MaxPlayers())
}
