package arenatest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/arena"
)

// Worlds is an arena.Worlds that only tracks which worlds are loaded.
type Worlds struct {
	dir string

	mu      sync.Mutex
	loaded  map[string]bool
	loads   int
	unloads int
	failing map[string]error
}

// NewWorlds returns a manager rooted at dir with the given worlds loaded.
func NewWorlds(dir string, loaded ...string) *Worlds {
	w := &Worlds{dir: dir, loaded: make(map[string]bool), failing: make(map[string]error)}
	for _, n := range loaded {
		w.loaded[n] = true
	}
	return w
}

// DefaultWorld is the world of DefaultSpawn.
const DefaultWorld = "world"

func (w *Worlds) Dir() string { return w.dir }

func (w *Worlds) Loaded(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded[name]
}

func (w *Worlds) Load(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.failing[name]; err != nil {
		return err
	}
	w.loaded[name] = true
	w.loads++
	return nil
}

func (w *Worlds) Unload(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded[name] {
		w.unloads++
	}
	delete(w.loaded, name)
	return nil
}

func (w *Worlds) DefaultSpawn() arena.Location {
	return arena.Location{World: DefaultWorld, Pos: mgl64.Vec3{0, 64, 0}}
}

// FailLoad makes loading name fail with err; a nil err clears it.
func (w *Worlds) FailLoad(name string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.failing, name)
		return
	}
	w.failing[name] = err
}

// Loads returns the number of successful loads.
func (w *Worlds) Loads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loads
}

// Unloads returns the number of unloads of loaded worlds.
func (w *Worlds) Unloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unloads
}

// ErrNoArchive is returned by Archiver.Restore for unknown archives.
var ErrNoArchive = errors.New("no such archive")

// Archiver is an arena.Archiver that remembers archive paths instead of
// writing files.
type Archiver struct {
	mu       sync.Mutex
	archives map[string]string
	backups  int
	restores int
	err      error
}

// NewArchiver returns an archiver with no archives.
func NewArchiver() *Archiver {
	return &Archiver{archives: make(map[string]string)}
}

func (a *Archiver) Backup(ctx context.Context, src, archive string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.archives[archive] = src
	a.backups++
	return nil
}

func (a *Archiver) Restore(ctx context.Context, archive, dest string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if _, ok := a.archives[archive]; !ok {
		return fmt.Errorf("%w: %s", ErrNoArchive, archive)
	}
	a.restores++
	return ctx.Err()
}

func (a *Archiver) Exists(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.archives[path]
	return ok
}

// Fail makes every following Backup and Restore fail with err; a nil err
// clears it.
func (a *Archiver) Fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// Forget drops every archive.
func (a *Archiver) Forget() {
	a.mu.Lock()
	a.archives = make(map[string]string)
	a.mu.Unlock()
}

// Backups returns the number of successful backups.
func (a *Archiver) Backups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backups
}

// Restores returns the number of successful restores.
func (a *Archiver) Restores() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restores
}

var (
	_ arena.Worlds   = (*Worlds)(nil)
	_ arena.Archiver = (*Archiver)(nil)
)
