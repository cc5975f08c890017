// Package memory is an in-process arena.Provider. Records live in a map and
// are lost when the process exits; it is meant for tests, local servers and
// as a reference for other providers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oriumgames/arena"
)

// Store is a map-backed provider. It is safe for concurrent use.
//
// Store does not implement arena.Committer: setup fields are written one by
// one, like on a store without transactions.
type Store struct {
	mu      sync.RWMutex
	records map[string]arena.Record
}

// New creates an empty store, optionally seeded with records.
func New(records ...arena.Record) *Store {
	s := &Store{records: make(map[string]arena.Record, len(records))}
	for _, r := range records {
		s.records[key(r.ID)] = r
	}
	return s
}

func key(id string) string { return strings.ToLower(id) }

// Name implements arena.Provider.
func (s *Store) Name() string { return "memory" }

// Arenas implements arena.Provider. Records are sorted by ID.
func (s *Store) Arenas(ctx context.Context) ([]arena.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]arena.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i].ID) < key(out[j].ID) })
	return out, nil
}

// Known implements arena.Provider.
func (s *Store) Known(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key(id)]
	return ok, nil
}

// Arena implements arena.Provider.
func (s *Store) Arena(ctx context.Context, id string) (arena.Record, error) {
	if err := ctx.Err(); err != nil {
		return arena.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key(id)]
	if !ok {
		return arena.Record{}, fmt.Errorf("%w: %s", arena.ErrArenaUnknown, id)
	}
	return r, nil
}

// Insert implements arena.Provider.
func (s *Store) Insert(ctx context.Context, r arena.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key(r.ID)]; ok {
		return fmt.Errorf("%w: %s", arena.ErrArenaExists, r.ID)
	}
	s.records[key(r.ID)] = r
	return nil
}

// Remove implements arena.Provider.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key(id)]; !ok {
		return fmt.Errorf("%w: %s", arena.ErrArenaUnknown, id)
	}
	delete(s.records, key(id))
	return nil
}

// update applies fn to the stored record of id.
func (s *Store) update(ctx context.Context, id string, fn func(r *arena.Record)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key(id)]
	if !ok {
		return fmt.Errorf("%w: %s", arena.ErrArenaUnknown, id)
	}
	fn(&r)
	s.records[key(id)] = r
	return nil
}

// SetSpawns implements arena.Provider.
func (s *Store) SetSpawns(ctx context.Context, id, spawns string) error {
	return s.update(ctx, id, func(r *arena.Record) { r.Spawns = spawns })
}

// SetLobbySettings implements arena.Provider.
func (s *Store) SetLobbySettings(ctx context.Context, id, settings string) error {
	return s.update(ctx, id, func(r *arena.Record) { r.LobbySettings = settings })
}

// SetArenaData implements arena.Provider.
func (s *Store) SetArenaData(ctx context.Context, id, data string) error {
	return s.update(ctx, id, func(r *arena.Record) { r.ArenaData = data })
}

// SetExtraData implements arena.Provider.
func (s *Store) SetExtraData(ctx context.Context, id, data string) error {
	return s.update(ctx, id, func(r *arena.Record) { r.ExtraData = data })
}

var _ arena.Provider = (*Store)(nil)
