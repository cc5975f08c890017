package arena

import (
	"math/rand/v2"

	"go.uber.org/zap"
)

// Builder configures an Engine before initialization.
// Use NewBuilder() to create a builder and chain configuration methods.
// Provider, Worlds and Archiver are required.
type Builder struct {
	provider     Provider
	providerOpts []ProviderOption
	worlds       Worlds
	archiver     Archiver
	backupDir    string
	log          *zap.Logger
	listeners    []Listener
	transfer     *LobbyTransfer
	messages     *Messages
	modes        []modeRegistration
	colours      []TeamColour
	rng          *rand.Rand
	sched        *Scheduler
}

type modeRegistration struct {
	name    string
	factory ModeFactory
}

// NewBuilder creates a new engine builder.
func NewBuilder() *Builder {
	return &Builder{backupDir: "backups"}
}

// Provider sets the persistence provider.
//
// Example:
//
//	builder.Provider(store, arena.WithTimeout(2*time.Second))
func (b *Builder) Provider(p Provider, opts ...ProviderOption) *Builder {
	b.provider = p
	b.providerOpts = append(b.providerOpts, opts...)
	return b
}

// Worlds sets the world manager.
func (b *Builder) Worlds(w Worlds) *Builder {
	b.worlds = w
	return b
}

// Archiver sets the archive runner used for world backups.
func (b *Builder) Archiver(a Archiver) *Builder {
	b.archiver = a
	return b
}

// BackupDir sets the directory world archives are stored in.
// Default: "backups".
func (b *Builder) BackupDir(dir string) *Builder {
	b.backupDir = dir
	return b
}

// Logger sets the engine logger. Default: zap.NewNop().
func (b *Builder) Logger(l *zap.Logger) *Builder {
	b.log = l
	return b
}

// Listener adds a lifecycle listener. Listeners run in the order added.
func (b *Builder) Listener(l Listener) *Builder {
	b.listeners = append(b.listeners, l)
	return b
}

// Transfer sends players leaving an arena to a lobby server.
func (b *Builder) Transfer(t *LobbyTransfer) *Builder {
	b.transfer = t
	return b
}

// Messages sets the player-facing texts. Default: DefaultMessages().
func (b *Builder) Messages(m Messages) *Builder {
	b.messages = &m
	return b
}

// Mode registers a custom mode.
//
// Example:
//
//	builder.Mode("duel", func(cfg arena.ModeConfig) (arena.Mode, error) {
//	    return arena.NewSolo(2), nil
//	})
func (b *Builder) Mode(name string, f ModeFactory) *Builder {
	b.modes = append(b.modes, modeRegistration{name, f})
	return b
}

// TeamColour registers a custom team colour.
func (b *Builder) TeamColour(c TeamColour) *Builder {
	b.colours = append(b.colours, c)
	return b
}

// Rand sets the random source used for matchmaking and team picks.
func (b *Builder) Rand(r *rand.Rand) *Builder {
	b.rng = r
	return b
}

// Scheduler sets the engine loop. Tests pass a scheduler they step
// manually.
func (b *Builder) Scheduler(s *Scheduler) *Builder {
	b.sched = s
	return b
}

// Build creates the engine without starting it. It panics when a required
// collaborator is missing or a custom mode cannot be registered.
func (b *Builder) Build() *Engine {
	if b.provider == nil {
		panic("arena: Builder needs a Provider")
	}
	if b.worlds == nil {
		panic("arena: Builder needs Worlds")
	}
	if b.archiver == nil {
		panic("arena: Builder needs an Archiver")
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	opts := defaultProviderOptions()
	for _, o := range b.providerOpts {
		o(&opts)
	}
	rng := b.rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	sched := b.sched
	if sched == nil {
		sched = NewScheduler(log)
	}
	messages := DefaultMessages()
	if b.messages != nil {
		messages = *b.messages
	}

	modes := NewModeRegistry()
	for _, m := range b.modes {
		if err := modes.Register(m.name, m.factory); err != nil {
			panic("arena: " + err.Error())
		}
	}
	for _, c := range b.colours {
		modes.Colours().Register(c)
	}

	e := &Engine{
		log:        log,
		sched:      sched,
		provider:   b.provider,
		opts:       opts,
		modes:      modes,
		rng:        rng,
		registry:   NewRegistry(),
		setups:     NewSetupRegistry(),
		matchmaker: NewMatchmaker(rng),
	}
	e.env = &env{
		log:       log,
		worlds:    b.worlds,
		backup:    NewWorldBackup(b.backupDir, b.archiver, b.worlds, sched, opts.ArchiveTimeout, log),
		transfer:  b.transfer,
		messages:  messages,
		listeners: listeners{log: log, list: append([]Listener(nil), b.listeners...)},
		lookup:    e.registry.Get,
	}
	return e
}

// Init builds the engine and starts its loop.
func (b *Builder) Init() *Engine {
	e := b.Build()
	e.Start()
	return e
}
