package arena

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/df-mc/dragonfly/server/entity"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/df-mc/dragonfly/server/world/mcdb"
	"go.uber.org/multierr"
)

// WorldManager loads arena worlds from a directory of LevelDB worlds next to
// the server's default world. It implements Worlds and WorldResolver.
//
// Concurrency:
// WorldManager is safe for concurrent use.
type WorldManager struct {
	dir  string
	log  *slog.Logger
	def  *world.World
	name string

	mu     sync.RWMutex
	worlds map[string]*world.World
}

// NewWorldManager creates a manager for the worlds stored in dir. def is
// the server's default world, registered under defName; it is never
// unloaded by the manager.
func NewWorldManager(dir string, def *world.World, defName string, log *slog.Logger) *WorldManager {
	if log == nil {
		log = slog.Default()
	}
	return &WorldManager{
		dir:    dir,
		log:    log,
		def:    def,
		name:   defName,
		worlds: map[string]*world.World{defName: def},
	}
}

// Dir returns the directory worlds are stored in.
func (m *WorldManager) Dir() string { return m.dir }

// Loaded reports whether the named world is loaded.
func (m *WorldManager) Loaded(name string) bool {
	_, ok := m.World(name)
	return ok
}

// World returns the named world if it is loaded.
func (m *WorldManager) World(name string) (*world.World, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.worlds[name]
	return w, ok
}

// Names returns the loaded world names, sorted.
func (m *WorldManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.worlds))
	for n := range m.worlds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load opens the named world from Dir. Loading a loaded world does nothing.
func (m *WorldManager) Load(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.worlds[name]; ok {
		return nil
	}
	path := filepath.Join(m.dir, name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("world %s: %w", name, err)
	}
	db, err := mcdb.Config{Log: m.log}.Open(path)
	if err != nil {
		return fmt.Errorf("open world %s: %w", name, err)
	}
	w := world.Config{
		Log:      m.log.With("world", name),
		Dim:      world.Overworld,
		Provider: db,
		Entities: entity.DefaultRegistry,
	}.New()
	w.StopWeatherCycle()
	m.worlds[name] = w
	return nil
}

// Unload moves every player in the named world to the default spawn and
// closes the world. Unloading the default world or a world that is not
// loaded does nothing.
func (m *WorldManager) Unload(name string) error {
	m.mu.Lock()
	w, ok := m.worlds[name]
	if !ok || w == m.def {
		m.mu.Unlock()
		return nil
	}
	delete(m.worlds, name)
	m.mu.Unlock()

	spawn := m.def.Spawn().Vec3Middle()
	<-w.Exec(func(tx *world.Tx) {
		for e := range tx.Players() {
			h := tx.RemoveEntity(e)
			m.def.Exec(func(tx *world.Tx) {
				if p, ok := tx.AddEntity(h).(*player.Player); ok {
					p.Teleport(spawn)
				}
			})
		}
	})
	if err := w.Close(); err != nil {
		return fmt.Errorf("close world %s: %w", name, err)
	}
	return nil
}

// DefaultSpawn is the spawn of the default world.
func (m *WorldManager) DefaultSpawn() Location {
	return Location{World: m.name, Pos: m.def.Spawn().Vec3Middle()}
}

// Close closes every world except the default one.
func (m *WorldManager) Close() error {
	var errs error
	for _, name := range m.Names() {
		errs = multierr.Append(errs, m.Unload(name))
	}
	return errs
}

var (
	_ Worlds        = (*WorldManager)(nil)
	_ WorldResolver = (*WorldManager)(nil)
)

// NameOf returns the name w is registered under.
func (m *WorldManager) NameOf(w *world.World) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for n, lw := range m.worlds {
		if lw == w {
			return n, true
		}
	}
	return "", false
}
