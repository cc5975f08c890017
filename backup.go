package arena

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Archiver packs and unpacks world directories.
type Archiver interface {
	// Backup writes the directory src into the archive file at archive,
	// replacing it.
	Backup(ctx context.Context, src, archive string) error
	// Restore extracts archive into dest, which must not exist.
	Restore(ctx context.Context, archive, dest string) error
	// Exists reports whether an archive file exists at path.
	Exists(path string) bool
}

// WorldBackup coordinates world archives with the world manager. Each
// operation unloads the world on the loop, runs the archive work on the
// scheduler's worker pool, and reloads the world on the loop before its
// completion runs. At most one operation per arena is in flight.
type WorldBackup struct {
	dir      string
	archiver Archiver
	worlds   Worlds
	sched    *Scheduler
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewWorldBackup creates a coordinator storing archives in dir.
func NewWorldBackup(dir string, archiver Archiver, worlds Worlds, sched *Scheduler, timeout time.Duration, log *zap.Logger) *WorldBackup {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorldBackup{
		dir:      dir,
		archiver: archiver,
		worlds:   worlds,
		sched:    sched,
		timeout:  timeout,
		log:      log,
		pending:  make(map[string]struct{}),
	}
}

// ArchivePath returns the archive file of an arena.
func (b *WorldBackup) ArchivePath(id string) string {
	return filepath.Join(b.dir, strings.ToLower(id)+".zip")
}

// HasBackup reports whether an archive exists for the arena.
func (b *WorldBackup) HasBackup(id string) bool {
	return b.archiver.Exists(b.ArchivePath(id))
}

// Pending reports whether an operation is in flight for the arena.
func (b *WorldBackup) Pending(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[strings.ToLower(id)]
	return ok
}

func (b *WorldBackup) acquire(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(id)
	if _, ok := b.pending[key]; ok {
		return false
	}
	b.pending[key] = struct{}{}
	return true
}

func (b *WorldBackup) release(id string) {
	b.mu.Lock()
	delete(b.pending, strings.ToLower(id))
	b.mu.Unlock()
}

// Backup archives the arena's world. The world is unloaded first so the
// archive sees a consistent copy on disk.
func (b *WorldBackup) Backup(id, world string, done func(error)) error {
	if !b.acquire(id) {
		return fmt.Errorf("%w: %s", ErrBackupPending, id)
	}
	if err := b.unload(world); err != nil {
		b.release(id)
		return err
	}

	src := filepath.Join(b.worlds.Dir(), world)
	archive := b.ArchivePath(id)
	b.log.Debug("world backup started", zap.String("arena", id), zap.String("world", world))
	b.sched.Go(func(ctx context.Context) error {
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			return fmt.Errorf("create backup dir: %w", err)
		}
		if err := b.archiver.Backup(ctx, src, archive); err != nil {
			return fmt.Errorf("backup world %s: %w", world, err)
		}
		return nil
	}, b.timeout, b.complete(id, world, "world backup", done))
	return nil
}

// Restore replaces the arena's world with its archive. It fails with
// ErrNoBackup, without touching the world, when there is no archive.
func (b *WorldBackup) Restore(id, world string, done func(error)) error {
	archive := b.ArchivePath(id)
	if !b.archiver.Exists(archive) {
		return fmt.Errorf("%w: %s", ErrNoBackup, id)
	}
	if !b.acquire(id) {
		return fmt.Errorf("%w: %s", ErrBackupPending, id)
	}
	if err := b.unload(world); err != nil {
		b.release(id)
		return err
	}

	live := filepath.Join(b.worlds.Dir(), world)
	b.log.Debug("world restore started", zap.String("arena", id), zap.String("world", world))
	b.sched.Go(func(ctx context.Context) error {
		if err := os.RemoveAll(live); err != nil {
			return fmt.Errorf("remove world %s: %w", world, err)
		}
		if err := b.archiver.Restore(ctx, archive, live); err != nil {
			return fmt.Errorf("restore world %s: %w", world, err)
		}
		return nil
	}, b.timeout, b.complete(id, world, "world restore", done))
	return nil
}

// Discard deletes the arena's archive. A missing archive is not an error.
func (b *WorldBackup) Discard(id string) error {
	if b.Pending(id) {
		return fmt.Errorf("%w: %s", ErrBackupPending, id)
	}
	if err := os.Remove(b.ArchivePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard backup %s: %w", id, err)
	}
	return nil
}

func (b *WorldBackup) unload(world string) error {
	if !b.worlds.Loaded(world) {
		return nil
	}
	if err := b.worlds.Unload(world); err != nil {
		return fmt.Errorf("unload world %s: %w", world, err)
	}
	return nil
}

// complete returns the loop-side completion of an operation: the world is
// reloaded whether or not the archive work succeeded.
func (b *WorldBackup) complete(id, world, op string, done func(error)) func(error) {
	return func(err error) {
		b.release(id)
		if !b.worlds.Loaded(world) {
			if lerr := b.worlds.Load(world); lerr != nil {
				err = multierr.Append(err, fmt.Errorf("reload world %s: %w", world, lerr))
			}
		}
		if err != nil {
			b.log.Error(op+" failed", zap.String("arena", id), zap.Error(err))
		} else {
			b.log.Debug(op+" finished", zap.String("arena", id))
		}
		if done != nil {
			done(err)
		}
	}
}
