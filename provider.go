package arena

import (
	"context"
	"time"
)

// Provider persists arena records. Implementations bridge the engine with
// external stores (SQL databases, document stores, files).
//
// The engine calls providers from its worker pool, never from the loop, and
// bounds every call with the context. A failed call must leave the store as
// it was where the backend allows it.
type Provider interface {
	// Name returns a unique identifier for this provider (for logging/debugging).
	Name() string

	// Arenas returns every stored record.
	Arenas(ctx context.Context) ([]Record, error)

	// Known reports whether a record exists for id.
	Known(ctx context.Context, id string) (bool, error)

	// Arena returns the record stored for id. It fails with ErrArenaUnknown
	// when there is none.
	Arena(ctx context.Context, id string) (Record, error)

	// Insert stores a new record. It fails with ErrArenaExists when the ID is
	// taken.
	Insert(ctx context.Context, r Record) error

	// Remove deletes the record of id. It fails with ErrArenaUnknown when
	// there is none.
	Remove(ctx context.Context, id string) error

	// SetSpawns replaces the serialized spawns of id.
	SetSpawns(ctx context.Context, id, spawns string) error

	// SetLobbySettings replaces the serialized lobby settings of id.
	SetLobbySettings(ctx context.Context, id, settings string) error

	// SetArenaData replaces the mode data of id.
	SetArenaData(ctx context.Context, id, data string) error

	// SetExtraData replaces the extra data of id.
	SetExtraData(ctx context.Context, id, data string) error
}

// SetupFields is the set of serialized fields a setup session writes. Nil
// fields are left untouched.
type SetupFields struct {
	Spawns        *string
	LobbySettings *string
	ArenaData     *string
	ExtraData     *string
}

// Empty reports whether no field is staged.
func (f SetupFields) Empty() bool {
	return f.Spawns == nil && f.LobbySettings == nil && f.ArenaData == nil && f.ExtraData == nil
}

// apply returns rec with every staged field set.
func (f SetupFields) apply(rec Record) Record {
	if f.Spawns != nil {
		rec.Spawns = *f.Spawns
	}
	if f.LobbySettings != nil {
		rec.LobbySettings = *f.LobbySettings
	}
	if f.ArenaData != nil {
		rec.ArenaData = *f.ArenaData
	}
	if f.ExtraData != nil {
		rec.ExtraData = *f.ExtraData
	}
	return rec
}

// Committer is implemented by providers that can write every setup field in
// one atomic operation. When the provider is a Committer, finishing a setup
// either stores all fields or none.
type Committer interface {
	Commit(ctx context.Context, id string, f SetupFields) error
}

// ProviderOptions configures how the engine calls its provider and archiver.
type ProviderOptions struct {
	// Timeout is the maximum time a single provider call may take.
	// Default: 5 seconds.
	Timeout time.Duration

	// ArchiveTimeout is the maximum time a world backup or restore may take.
	// Default: 2 minutes.
	ArchiveTimeout time.Duration
}

// defaultProviderOptions returns sensible defaults.
func defaultProviderOptions() ProviderOptions {
	return ProviderOptions{
		Timeout:        5 * time.Second,
		ArchiveTimeout: 2 * time.Minute,
	}
}

// ProviderOption configures provider calls.
type ProviderOption func(*ProviderOptions)

// WithTimeout sets the provider call timeout.
func WithTimeout(d time.Duration) ProviderOption {
	return func(o *ProviderOptions) {
		o.Timeout = d
	}
}

// WithArchiveTimeout sets the world backup and restore timeout.
func WithArchiveTimeout(d time.Duration) ProviderOption {
	return func(o *ProviderOptions) {
		o.ArchiveTimeout = d
	}
}
