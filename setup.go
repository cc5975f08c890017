package arena

import (
	"strings"

	"github.com/google/uuid"
)

// SetupPhase is the lifecycle phase of a setup session.
type SetupPhase uint8

const (
	SetupNotStarted SetupPhase = iota
	SetupActive
	SetupCommitting
	SetupCommitted
	SetupCancelled
)

// String returns the string representation of the phase.
func (p SetupPhase) String() string {
	switch p {
	case SetupNotStarted:
		return "not_started"
	case SetupActive:
		return "active"
	case SetupCommitting:
		return "committing"
	case SetupCommitted:
		return "committed"
	case SetupCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SetupQueue stages arena configuration until the setup is finished. Every
// value can be set once; later calls for the same field are ignored and
// report false. Start a new session to change a value.
type SetupQueue struct {
	spawns    Spawns
	lobby     *LobbySettings
	arenaData *string
	extraData *string
}

// NewSetupQueue creates an empty queue.
func NewSetupQueue() *SetupQueue {
	return &SetupQueue{spawns: Spawns{}}
}

// SetSpawn stages the n-th numbered spawn.
func (q *SetupQueue) SetSpawn(n int, loc Location) bool {
	return q.setSpawn(SpawnKey(n), loc)
}

// SetTeamSpawn stages the spawn of a team.
func (q *SetupQueue) SetTeamSpawn(team string, loc Location) bool {
	return q.setSpawn(TeamSpawnKey(team), loc)
}

func (q *SetupQueue) setSpawn(key string, loc Location) bool {
	if _, ok := q.spawns[key]; ok {
		return false
	}
	loc.World = ""
	q.spawns[key] = loc
	return true
}

// SetLobbySettings stages the lobby settings.
func (q *SetupQueue) SetLobbySettings(s LobbySettings) bool {
	if q.lobby != nil {
		return false
	}
	s.Location.World = ""
	q.lobby = &s
	return true
}

// SetArenaData stages the mode data.
func (q *SetupQueue) SetArenaData(data string) bool {
	if q.arenaData != nil {
		return false
	}
	q.arenaData = &data
	return true
}

// SetExtraData stages the extra data.
func (q *SetupQueue) SetExtraData(data string) bool {
	if q.extraData != nil {
		return false
	}
	q.extraData = &data
	return true
}

// Spawns returns a copy of the staged spawns.
func (q *SetupQueue) Spawns() Spawns {
	out := make(Spawns, len(q.spawns))
	for k, v := range q.spawns {
		out[k] = v
	}
	return out
}

// LobbySettings returns the staged lobby settings.
func (q *SetupQueue) LobbySettings() (LobbySettings, bool) {
	if q.lobby == nil {
		return LobbySettings{}, false
	}
	return *q.lobby, true
}

// Empty reports whether nothing is staged.
func (q *SetupQueue) Empty() bool {
	return len(q.spawns) == 0 && q.lobby == nil && q.arenaData == nil && q.extraData == nil
}

// Clear drops everything staged.
func (q *SetupQueue) Clear() {
	q.spawns = Spawns{}
	q.lobby = nil
	q.arenaData = nil
	q.extraData = nil
}

// fields serializes the staged values. Staged spawns are merged over base,
// the spawns already stored for the arena.
func (q *SetupQueue) fields(base Spawns) (SetupFields, error) {
	var f SetupFields
	if len(q.spawns) > 0 {
		merged := make(Spawns, len(base)+len(q.spawns))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range q.spawns {
			merged[k] = v
		}
		s, err := merged.Encode()
		if err != nil {
			return f, err
		}
		f.Spawns = &s
	}
	if q.lobby != nil {
		s, err := q.lobby.Encode()
		if err != nil {
			return f, err
		}
		f.LobbySettings = &s
	}
	if q.arenaData != nil {
		s := *q.arenaData
		f.ArenaData = &s
	}
	if q.extraData != nil {
		s := *q.extraData
		f.ExtraData = &s
	}
	return f, nil
}

// SetupSession is one player's configuration session for one arena.
type SetupSession struct {
	owner  uuid.UUID
	arena  string
	phase  SetupPhase
	record Record
	queue  *SetupQueue
}

// Owner returns the player running the setup.
func (s *SetupSession) Owner() uuid.UUID { return s.owner }

// ArenaID returns the arena being configured.
func (s *SetupSession) ArenaID() string { return s.arena }

// Phase returns the session phase.
func (s *SetupSession) Phase() SetupPhase { return s.phase }

// Record returns the stored record the session started from.
func (s *SetupSession) Record() Record { return s.record }

// Queue returns the staged values.
func (s *SetupSession) Queue() *SetupQueue { return s.queue }

// SetupRegistry tracks setup sessions: at most one per player and one per
// arena.
//
// Concurrency:
// SetupRegistry is owned by the engine loop and is not safe for concurrent
// use.
type SetupRegistry struct {
	byOwner map[uuid.UUID]*SetupSession
	byArena map[string]*SetupSession
}

// NewSetupRegistry creates an empty registry.
func NewSetupRegistry() *SetupRegistry {
	return &SetupRegistry{
		byOwner: make(map[uuid.UUID]*SetupSession),
		byArena: make(map[string]*SetupSession),
	}
}

// Begin starts an active session for owner on rec's arena.
func (r *SetupRegistry) Begin(owner uuid.UUID, rec Record) (*SetupSession, error) {
	if _, ok := r.byOwner[owner]; ok {
		return nil, ErrAlreadyInSetup
	}
	key := strings.ToLower(rec.ID)
	if _, ok := r.byArena[key]; ok {
		return nil, ErrArenaInSetup
	}
	s := &SetupSession{
		owner:  owner,
		arena:  rec.ID,
		phase:  SetupActive,
		record: rec,
		queue:  NewSetupQueue(),
	}
	r.byOwner[owner] = s
	r.byArena[key] = s
	return s, nil
}

// Get returns the session owned by owner.
func (r *SetupRegistry) Get(owner uuid.UUID) (*SetupSession, bool) {
	s, ok := r.byOwner[owner]
	return s, ok
}

// Has reports whether owner is running a setup.
func (r *SetupRegistry) Has(owner uuid.UUID) bool {
	_, ok := r.byOwner[owner]
	return ok
}

// ArenaInSetup reports whether the arena is being configured.
func (r *SetupRegistry) ArenaInSetup(id string) bool {
	_, ok := r.byArena[strings.ToLower(id)]
	return ok
}

// ForArena returns the session configuring the arena.
func (r *SetupRegistry) ForArena(id string) (*SetupSession, bool) {
	s, ok := r.byArena[strings.ToLower(id)]
	return s, ok
}

// Len returns the number of sessions.
func (r *SetupRegistry) Len() int {
	return len(r.byOwner)
}

// Remove drops the session of owner.
func (r *SetupRegistry) Remove(owner uuid.UUID) {
	s, ok := r.byOwner[owner]
	if !ok {
		return
	}
	delete(r.byOwner, owner)
	delete(r.byArena, strings.ToLower(s.arena))
}

// Cancel moves the session of owner to SetupCancelled and removes it. A
// session that is being committed cannot be cancelled.
func (r *SetupRegistry) Cancel(owner uuid.UUID) (*SetupSession, error) {
	s, ok := r.byOwner[owner]
	if !ok || s.phase != SetupActive {
		return nil, ErrNotInSetup
	}
	s.phase = SetupCancelled
	s.queue.Clear()
	r.Remove(owner)
	return s, nil
}
