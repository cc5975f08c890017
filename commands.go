package arena

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/sandertv/gophertunnel/minecraft/text"
	"go.uber.org/zap"
)

// Commands returns the /arena command. admin decides who may run the
// configuration sub commands; a nil admin allows nobody.
//
// Usage:
//
//	cmd.Register(arena.Commands(engine, worlds, func(src cmd.Source) bool {
//	    p, ok := src.(*player.Player)
//	    return ok && ops[p.Name()]
//	}))
//
// Concurrency:
// Sub commands run in the sender's world transaction and hand their work to
// the engine loop with Engine.Exec; replies arrive asynchronously.
func Commands(e *Engine, worlds *WorldManager, admin func(src cmd.Source) bool) cmd.Command {
	base := command{engine: e}
	adm := adminCommand{command: base, worlds: worlds, admin: admin}
	return cmd.New("arena", "Join, leave and configure arenas.", []string{"ar"},
		joinCommand{command: base},
		randomCommand{command: base},
		leaveCommand{command: base},
		listCommand{command: base},
		createCommand{adminCommand: adm},
		removeCommand{adminCommand: adm},
		loadCommand{adminCommand: adm},
		unloadCommand{adminCommand: adm},
		endCommand{adminCommand: adm},
		setupCommand{adminCommand: adm},
		setSpawnCommand{adminCommand: adm},
		setLobbyCommand{adminCommand: adm},
		setDataCommand{adminCommand: adm},
		setExtraCommand{adminCommand: adm},
		finishCommand{adminCommand: adm},
		cancelCommand{adminCommand: adm},
	)
}

// command carries the engine into sub commands. Unexported fields are not
// parsed as arguments.
type command struct {
	engine *Engine
}

// run queues fn on the engine loop and reports a closed engine to o.
func (c command) run(o *cmd.Output, fn func()) {
	if err := c.engine.Exec(fn); err != nil {
		o.Error(c.engine.Messages().ForError(err))
	}
}

// fail sends the player-facing text of err.
func (c command) fail(to Player, err error) {
	if to == nil {
		c.engine.log.Info("arena command failed", zap.Error(err))
		return
	}
	to.Message(text.Colourf("<red>%s</red>", c.engine.Messages().ForError(err)))
}

func (c command) ok(to Player, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if to == nil {
		c.engine.log.Info(msg)
		return
	}
	to.Message(text.Colourf("<green>%s</green>", msg))
}

// sourceSession returns the player behind src and its Session. Either is nil
// when src is the console or a player not handled by a SessionHandler.
func sourceSession(src cmd.Source) (*player.Player, *Session) {
	p, ok := src.(*player.Player)
	if !ok {
		return nil, nil
	}
	if h, ok := p.Handler().(*SessionHandler); ok {
		return p, h.Session()
	}
	return p, nil
}

// player resolves the sending session, reporting console senders to o.
func (c command) player(src cmd.Source, o *cmd.Output) (*player.Player, *Session) {
	p, sess := sourceSession(src)
	if p == nil || sess == nil {
		o.Error("Player-only command")
		return nil, nil
	}
	return p, sess
}

type adminCommand struct {
	command
	worlds *WorldManager
	admin  func(src cmd.Source) bool
}

// Allow implements cmd.Allower.
func (c adminCommand) Allow(src cmd.Source) bool {
	return c.admin != nil && c.admin(src)
}

// sender returns the session of a player sender, or nil for the console.
// Configuration replies to administrators carry the raw error text.
func (c adminCommand) sender(src cmd.Source) Player {
	if _, sess := sourceSession(src); sess != nil {
		return sess
	}
	return nil
}

func (c adminCommand) fail(to Player, err error) {
	if to == nil {
		c.engine.log.Warn("arena command failed", zap.Error(err))
		return
	}
	to.Message(text.Colourf("<red>%s</red>", err.Error()))
}

type joinCommand struct {
	command
	Sub cmd.SubCommand `cmd:"join"`
	ID  string         `cmd:"arena"`
}

func (c joinCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	p, sess := c.player(src, o)
	if sess == nil {
		return
	}
	sess.Prime(p)
	c.run(o, func() {
		if err := c.engine.JoinArena(sess, c.ID); err != nil {
			c.fail(sess, err)
		}
	})
}

type randomCommand struct {
	command
	Sub cmd.SubCommand `cmd:"random"`
}

func (c randomCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	p, sess := c.player(src, o)
	if sess == nil {
		return
	}
	sess.Prime(p)
	c.run(o, func() {
		if _, err := c.engine.JoinRandomArena(sess); err != nil {
			c.fail(sess, err)
		}
	})
}

type leaveCommand struct {
	command
	Sub cmd.SubCommand `cmd:"leave"`
}

func (c leaveCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, sess := c.player(src, o)
	if sess == nil {
		return
	}
	c.run(o, func() {
		if err := c.engine.LeaveArena(sess, DefaultQuitOptions); err != nil {
			c.fail(sess, err)
		}
	})
}

type listCommand struct {
	command
	Sub cmd.SubCommand `cmd:"list"`
}

func (c listCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, sess := c.player(src, o)
	if sess == nil {
		return
	}
	c.run(o, func() {
		arenas := c.engine.Arenas()
		if len(arenas) == 0 {
			c.fail(sess, ErrNoArenas)
			return
		}
		var b strings.Builder
		for _, a := range arenas {
			b.WriteString(text.Colourf("<yellow>%s</yellow> <grey>%s</grey> %s %d/%d\n",
				a.ID(), a.Mode().Name(), a.State(), a.Mode().PlayerCount(), a.Mode().MaxPlayers()))
		}
		sess.Message(strings.TrimSuffix(b.String(), "\n"))
	})
}

type createCommand struct {
	adminCommand
	Sub   cmd.SubCommand     `cmd:"create"`
	ID    string             `cmd:"arena"`
	Mode  string             `cmd:"mode"`
	World string             `cmd:"world"`
	Data  cmd.Optional[string] `cmd:"data"`
}

func (c createCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	to := c.sender(src)
	data, _ := c.Data.Load()
	opts := CreateOptions{ID: c.ID, Mode: c.Mode, World: c.World, ArenaData: data}
	c.run(o, func() {
		c.engine.CreateArena(opts, func(rec Record, err error) {
			if err != nil {
				c.fail(to, err)
				return
			}
			c.ok(to, "Arena %s created, run /arena setup %s to configure it", rec.ID, rec.ID)
		})
	})
}

type removeCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"remove"`
	ID  string         `cmd:"arena"`
}

func (c removeCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	to := c.sender(src)
	c.run(o, func() {
		c.engine.RemoveArena(c.ID, func(err error) {
			if err != nil {
				c.fail(to, err)
				return
			}
			c.ok(to, "Arena %s removed", c.ID)
		})
	})
}

type loadCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"load"`
	ID  string         `cmd:"arena"`
}

func (c loadCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	to := c.sender(src)
	c.run(o, func() {
		c.engine.LoadArena(c.ID, func(a *Arena, err error) {
			if err != nil {
				c.fail(to, err)
				return
			}
			c.ok(to, "Arena %s loaded", a.ID())
		})
	})
}

type unloadCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"unload"`
	ID  string         `cmd:"arena"`
}

func (c unloadCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	to := c.sender(src)
	c.run(o, func() {
		if err := c.engine.UnloadArena(c.ID); err != nil {
			c.fail(to, err)
			return
		}
		c.ok(to, "Arena %s unloaded", c.ID)
	})
}

type endCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"end"`
	ID  string         `cmd:"arena"`
}

func (c endCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	to := c.sender(src)
	c.run(o, func() {
		a, ok := c.engine.Arena(c.ID)
		if !ok {
			c.fail(to, ErrArenaNotFound)
			return
		}
		if a.State() != InGame {
			c.fail(to, fmt.Errorf("%w: %s is %s", ErrNotInGame, a.ID(), a.State()))
			return
		}
		a.EndMatch(nil)
		c.ok(to, "Match in %s ends on the next tick", a.ID())
	})
}

type setupCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"setup"`
	ID  string         `cmd:"arena"`
}

func (c setupCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, sess := c.player(src, o)
	if sess == nil {
		return
	}
	c.run(o, func() {
		c.engine.AddPlayerToSetup(sess, c.ID, func(s *SetupSession, err error) {
			if err != nil {
				c.fail(sess, err)
				return
			}
			c.ok(sess, "Setting up %s (%s). Use setspawn, setlobby, setdata, setextra, then finish.", s.ArenaID(), s.Record().Mode)
		})
	})
}

// location returns where p stands, in the world it stands in.
func (c adminCommand) location(p *player.Player, tx *world.Tx) Location {
	rot := p.Rotation()
	loc := Location{Pos: p.Position(), Yaw: rot.Yaw(), Pitch: rot.Pitch()}
	if name, ok := c.worlds.NameOf(tx.World()); ok {
		loc.World = name
	}
	return loc
}

// staged runs fn against the sender's setup queue on the loop.
func (c adminCommand) staged(o *cmd.Output, sess *Session, fn func(q *SetupQueue) (bool, string)) {
	c.run(o, func() {
		s, ok := c.engine.Setup(sess.UUID())
		if !ok {
			c.command.fail(sess, ErrNotInSetup)
			return
		}
		stored, what := fn(s.Queue())
		if !stored {
			sess.Message(text.Colourf("<yellow>%s is already set, start a new setup to change it</yellow>", what))
			return
		}
		c.ok(sess, "%s set", what)
	})
}

type setSpawnCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"setspawn"`
	Key string         `cmd:"spawn"`
}

func (c setSpawnCommand) Run(src cmd.Source, o *cmd.Output, tx *world.Tx) {
	p, sess := c.player(src, o)
	if sess == nil {
		return
	}
	loc := c.location(p, tx)
	c.staged(o, sess, func(q *SetupQueue) (bool, string) {
		if n, err := strconv.Atoi(c.Key); err == nil {
			return q.SetSpawn(n, loc), "Spawn " + c.Key
		}
		return q.SetTeamSpawn(c.Key, loc), "Spawn of team " + c.Key
	})
}

type setLobbyCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"setlobby"`
}

func (c setLobbyCommand) Run(src cmd.Source, o *cmd.Output, tx *world.Tx) {
	p, sess := c.player(src, o)
	if sess == nil {
		return
	}
	loc := c.location(p, tx)
	c.staged(o, sess, func(q *SetupQueue) (bool, string) {
		return q.SetLobbySettings(LobbySettings{World: loc.World, Location: loc}), "Lobby"
	})
}

type setDataCommand struct {
	adminCommand
	Sub  cmd.SubCommand `cmd:"setdata"`
	Data cmd.Varargs    `cmd:"json"`
}

func (c setDataCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, sess := c.player(src, o)
	if sess == nil {
		return
	}
	data := string(c.Data)
	c.staged(o, sess, func(q *SetupQueue) (bool, string) {
		return q.SetArenaData(data), "Arena data"
	})
}

type setExtraCommand struct {
	adminCommand
	Sub  cmd.SubCommand `cmd:"setextra"`
	Data cmd.Varargs    `cmd:"json"`
}

func (c setExtraCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, sess := c.player(src, o)
	if sess == nil {
		return
	}
	data := string(c.Data)
	c.staged(o, sess, func(q *SetupQueue) (bool, string) {
		return q.SetExtraData(data), "Extra data"
	})
}

type finishCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"finish"`
}

func (c finishCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, sess := c.player(src, o)
	if sess == nil {
		return
	}
	c.run(o, func() {
		c.engine.FinishSetup(sess, func(a *Arena, err error) {
			if err != nil {
				c.fail(sess, err)
				return
			}
			c.ok(sess, "Setup finished, arena %s loaded", a.ID())
		})
	})
}

type cancelCommand struct {
	adminCommand
	Sub cmd.SubCommand `cmd:"cancel"`
}

func (c cancelCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, sess := c.player(src, o)
	if sess == nil {
		return
	}
	c.run(o, func() {
		if err := c.engine.CancelSetup(sess); err != nil {
			c.command.fail(sess, err)
			return
		}
		c.ok(sess, "Setup cancelled")
	})
}
