package arenatest

import (
	"context"
	"sync"

	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/store/memory"
)

// Provider wraps the memory store and fails chosen operations on demand.
// Operation names are the arena.Provider method names.
type Provider struct {
	*memory.Store

	mu   sync.Mutex
	fail map[string]error
}

// NewProvider returns an empty fault-injecting provider.
func NewProvider(records ...arena.Record) *Provider {
	return &Provider{Store: memory.New(records...), fail: make(map[string]error)}
}

// Fail makes op fail with err; a nil err clears it.
func (p *Provider) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.fail, op)
		return
	}
	p.fail[op] = err
}

func (p *Provider) failure(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fail[op]
}

func (p *Provider) Arenas(ctx context.Context) ([]arena.Record, error) {
	if err := p.failure("Arenas"); err != nil {
		return nil, err
	}
	return p.Store.Arenas(ctx)
}

func (p *Provider) Known(ctx context.Context, id string) (bool, error) {
	if err := p.failure("Known"); err != nil {
		return false, err
	}
	return p.Store.Known(ctx, id)
}

func (p *Provider) Arena(ctx context.Context, id string) (arena.Record, error) {
	if err := p.failure("Arena"); err != nil {
		return arena.Record{}, err
	}
	return p.Store.Arena(ctx, id)
}

func (p *Provider) Insert(ctx context.Context, r arena.Record) error {
	if err := p.failure("Insert"); err != nil {
		return err
	}
	return p.Store.Insert(ctx, r)
}

func (p *Provider) Remove(ctx context.Context, id string) error {
	if err := p.failure("Remove"); err != nil {
		return err
	}
	return p.Store.Remove(ctx, id)
}

func (p *Provider) SetSpawns(ctx context.Context, id, v string) error {
	if err := p.failure("SetSpawns"); err != nil {
		return err
	}
	return p.Store.SetSpawns(ctx, id, v)
}

func (p *Provider) SetLobbySettings(ctx context.Context, id, v string) error {
	if err := p.failure("SetLobbySettings"); err != nil {
		return err
	}
	return p.Store.SetLobbySettings(ctx, id, v)
}

func (p *Provider) SetArenaData(ctx context.Context, id, v string) error {
	if err := p.failure("SetArenaData"); err != nil {
		return err
	}
	return p.Store.SetArenaData(ctx, id, v)
}

func (p *Provider) SetExtraData(ctx context.Context, id, v string) error {
	if err := p.failure("SetExtraData"); err != nil {
		return err
	}
	return p.Store.SetExtraData(ctx, id, v)
}

// AtomicProvider is a Provider that also implements arena.Committer. A
// commit fails as a whole, before writing anything, if any staged field's
// setter is set to fail.
type AtomicProvider struct {
	*Provider
	commits int
}

// NewAtomicProvider returns an empty committing provider.
func NewAtomicProvider(records ...arena.Record) *AtomicProvider {
	return &AtomicProvider{Provider: NewProvider(records...)}
}

func (p *AtomicProvider) Commit(ctx context.Context, id string, f arena.SetupFields) error {
	staged := []struct {
		op    string
		value *string
		set   func(context.Context, string, string) error
	}{
		{"SetSpawns", f.Spawns, p.Store.SetSpawns},
		{"SetLobbySettings", f.LobbySettings, p.Store.SetLobbySettings},
		{"SetArenaData", f.ArenaData, p.Store.SetArenaData},
		{"SetExtraData", f.ExtraData, p.Store.SetExtraData},
	}
	if _, err := p.Store.Arena(ctx, id); err != nil {
		return err
	}
	for _, s := range staged {
		if s.value == nil {
			continue
		}
		if err := p.failure(s.op); err != nil {
			return err
		}
	}
	for _, s := range staged {
		if s.value == nil {
			continue
		}
		if err := s.set(ctx, id, *s.value); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.commits++
	p.mu.Unlock()
	return nil
}

// Commits returns the number of successful commits.
func (p *AtomicProvider) Commits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commits
}

var (
	_ arena.Provider  = (*Provider)(nil)
	_ arena.Committer = (*AtomicProvider)(nil)
)
