package arena

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Mode is the capacity and team ruleset of an arena. Each arena owns its own
// Mode instance, built from the arena record by a ModeFactory.
//
// The arena is passed to every call rather than stored, so a Mode never
// holds a reference back to its owner. Built-in modes implement OnJoin and
// OnQuit with the Arena helpers CheckJoin, Welcome, CheckQuit and Farewell;
// custom modes are expected to do the same so the check order and the
// snapshot lifecycle stay consistent.
type Mode interface {
	// Name returns the registry name of the mode.
	Name() string
	// MaxPlayers returns the arena capacity.
	MaxPlayers() int
	// MaxPlayersPerTeam returns the team capacity, 1 for modes without teams.
	MaxPlayersPerTeam() int
	// HasPlayer reports whether id is a member.
	HasPlayer(id uuid.UUID) bool
	// Players returns every member.
	Players() []*Snapshot
	// PlayerCount returns the number of members.
	PlayerCount() int

	// OnJoin admits p into a.
	OnJoin(a *Arena, p Player) error
	// OnQuit removes p from a.
	OnQuit(a *Arena, p Player, opts QuitOptions) error
	// DistributeToSpawns teleports every member to its spawn.
	DistributeToSpawns(a *Arena, spawns Spawns)
	// Ticks reports whether arenas of this mode run the match state machine.
	Ticks() bool
}

// QuitOptions controls how a player leaves an arena.
type QuitOptions struct {
	// Notify broadcasts the leave message to the remaining members.
	Notify bool
	// Force removes the player regardless of the arena state. Disconnects
	// and administrative removals always force.
	Force bool
}

// DefaultQuitOptions notifies and does not force.
var DefaultQuitOptions = QuitOptions{Notify: true}

// ModeConfig is passed to a ModeFactory.
type ModeConfig struct {
	// Name is the lower-cased registry name the factory was looked up with.
	Name string
	// Data is the mode-specific arena data payload of the record.
	Data string
	// Rand drives any random choice the mode makes.
	Rand *rand.Rand
	// Colours resolves team colour names.
	Colours *TeamColours
}

// ModeFactory builds a fresh Mode for one arena.
type ModeFactory func(cfg ModeConfig) (Mode, error)

// ModeRegistry maps mode names to factories. Names are case-insensitive.
// It is safe for concurrent use.
type ModeRegistry struct {
	mu        sync.RWMutex
	factories map[string]ModeFactory
	colours   *TeamColours
}

// NewModeRegistry returns a registry with the built-in modes: solo, duo,
// trio, squad and practice.
func NewModeRegistry() *ModeRegistry {
	r := &ModeRegistry{
		factories: make(map[string]ModeFactory),
		colours:   NewTeamColours(),
	}
	r.factories["solo"] = newSoloMode
	r.factories["duo"] = TeamModeFactory(2)
	r.factories["trio"] = TeamModeFactory(3)
	r.factories["squad"] = TeamModeFactory(4)
	r.factories["practice"] = newPracticeMode
	return r
}

// Register adds a custom mode. It fails with ErrModeExists if the name is
// taken.
func (r *ModeRegistry) Register(name string, f ModeFactory) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || f == nil {
		panic("arena: Register needs a name and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("%w: %s", ErrModeExists, key)
	}
	r.factories[key] = f
	return nil
}

// Has reports whether a mode is registered under name.
func (r *ModeRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.ToLower(name)]
	return ok
}

// Names returns the registered mode names, sorted.
func (r *ModeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Colours returns the team colour registry shared by team modes.
func (r *ModeRegistry) Colours() *TeamColours {
	return r.colours
}

// New builds the mode registered under name.
func (r *ModeRegistry) New(name, data string, rng *rand.Rand) (Mode, error) {
	key := strings.ToLower(name)
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, name)
	}
	return f(ModeConfig{Name: key, Data: data, Rand: rng, Colours: r.colours})
}

// slotsData is the arena data of roster modes.
type slotsData struct {
	Slots *int `json:"slots"`
}

func parseSlots(data string, fallback int) (int, error) {
	var d slotsData
	if data != "" {
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return 0, fmt.Errorf("%w: arena data: %v", ErrInvalidRecord, err)
		}
	}
	if d.Slots == nil {
		if fallback > 0 {
			return fallback, nil
		}
		return 0, fmt.Errorf("%w: arena data has no slots", ErrInvalidRecord)
	}
	if *d.Slots < 1 {
		return 0, fmt.Errorf("%w: slots must be positive, got %d", ErrInvalidRecord, *d.Slots)
	}
	return *d.Slots, nil
}

// Solo is a free-for-all mode with a fixed number of slots.
type Solo struct {
	roster *Roster
}

// NewSolo creates a solo mode with the given number of slots.
func NewSolo(slots int) *Solo {
	return &Solo{roster: NewRoster(slots)}
}

func newSoloMode(cfg ModeConfig) (Mode, error) {
	slots, err := parseSlots(cfg.Data, 0)
	if err != nil {
		return nil, err
	}
	return NewSolo(slots), nil
}

func (m *Solo) Name() string                { return "solo" }
func (m *Solo) MaxPlayers() int             { return m.roster.Max() }
func (m *Solo) MaxPlayersPerTeam() int      { return 1 }
func (m *Solo) HasPlayer(id uuid.UUID) bool { return m.roster.Has(id) }
func (m *Solo) Players() []*Snapshot        { return m.roster.All() }
func (m *Solo) PlayerCount() int            { return m.roster.Len() }
func (m *Solo) Ticks() bool                 { return true }

// OnJoin admits p into the roster.
func (m *Solo) OnJoin(a *Arena, p Player) error {
	return joinRoster(a, m, m.roster, p)
}

// OnQuit removes p from the roster.
func (m *Solo) OnQuit(a *Arena, p Player, opts QuitOptions) error {
	return quitRoster(a, m, m.roster, p, opts)
}

// DistributeToSpawns sends the n-th member, in join order, to spawn "n".
func (m *Solo) DistributeToSpawns(a *Arena, spawns Spawns) {
	distributeRoster(a, m.roster, spawns)
}

// Practice is an untimed roster mode: arenas never leave Waiting, so
// players may come and go freely.
type Practice struct {
	roster *Roster
}

// NewPractice creates a practice mode with the given number of slots.
func NewPractice(slots int) *Practice {
	return &Practice{roster: NewRoster(slots)}
}

func newPracticeMode(cfg ModeConfig) (Mode, error) {
	slots, err := parseSlots(cfg.Data, 1)
	if err != nil {
		return nil, err
	}
	return NewPractice(slots), nil
}

func (m *Practice) Name() string                { return "practice" }
func (m *Practice) MaxPlayers() int             { return m.roster.Max() }
func (m *Practice) MaxPlayersPerTeam() int      { return 1 }
func (m *Practice) HasPlayer(id uuid.UUID) bool { return m.roster.Has(id) }
func (m *Practice) Players() []*Snapshot        { return m.roster.All() }
func (m *Practice) PlayerCount() int            { return m.roster.Len() }
func (m *Practice) Ticks() bool                 { return false }

func (m *Practice) OnJoin(a *Arena, p Player) error {
	return joinRoster(a, m, m.roster, p)
}

func (m *Practice) OnQuit(a *Arena, p Player, opts QuitOptions) error {
	return quitRoster(a, m, m.roster, p, opts)
}

func (m *Practice) DistributeToSpawns(a *Arena, spawns Spawns) {
	distributeRoster(a, m.roster, spawns)
}

func joinRoster(a *Arena, m Mode, r *Roster, p Player) error {
	if err := a.CheckJoin(m, p); err != nil {
		return err
	}
	s, err := Capture(p)
	if err != nil {
		return err
	}
	if err := r.Add(s); err != nil {
		return err
	}
	a.Welcome(m, s)
	return nil
}

func quitRoster(a *Arena, m Mode, r *Roster, p Player, opts QuitOptions) error {
	if err := a.CheckQuit(m, p, opts.Force); err != nil {
		return err
	}
	s, _ := r.Remove(p.UUID())
	a.Farewell(m, s, opts)
	return nil
}

func distributeRoster(a *Arena, r *Roster, spawns Spawns) {
	for i, s := range r.All() {
		loc, ok := spawns[SpawnKey(i+1)]
		if !ok {
			a.log.Warn("missing spawn", zapArena(a), zapKey(SpawnKey(i+1)))
			continue
		}
		s.Player().Teleport(loc.In(a.WorldName()))
	}
}

// TeamMode splits players into equally sized teams.
type TeamMode struct {
	name  string
	teams *TeamManager
}

// teamEntry is one configured team. It decodes from a bare name or from
// {"name": ..., "colour": ...}.
type teamEntry struct {
	Name   string `json:"name"`
	Colour string `json:"colour"`
}

func (e *teamEntry) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		e.Name = name
		return nil
	}
	type plain teamEntry
	return json.Unmarshal(b, (*plain)(e))
}

type teamsData struct {
	Teams json.RawMessage `json:"teams"`
}

// parseTeams reads the team list. The list may also be stored as a JSON
// string holding the encoded list.
func parseTeams(data string) ([]teamEntry, error) {
	var d teamsData
	if data != "" {
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("%w: arena data: %v", ErrInvalidRecord, err)
		}
	}
	if len(d.Teams) == 0 {
		return nil, fmt.Errorf("%w: arena data has no teams", ErrInvalidRecord)
	}
	raw := d.Teams
	var encoded string
	if json.Unmarshal(raw, &encoded) == nil {
		raw = json.RawMessage(encoded)
	}
	var entries []teamEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: teams: %v", ErrInvalidRecord, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: arena data has no teams", ErrInvalidRecord)
	}
	return entries, nil
}

// TeamModeFactory returns a factory for team modes with perTeam players per
// team. The team list comes from the arena data.
func TeamModeFactory(perTeam int) ModeFactory {
	return func(cfg ModeConfig) (Mode, error) {
		entries, err := parseTeams(cfg.Data)
		if err != nil {
			return nil, err
		}
		m := NewTeamMode(cfg.Name, perTeam, cfg.Rand)
		for _, e := range entries {
			colourName := e.Colour
			if colourName == "" {
				colourName = e.Name
			}
			colour, ok := cfg.Colours.Get(colourName)
			if !ok {
				if e.Colour != "" {
					return nil, fmt.Errorf("%w: %s", ErrUnknownColour, e.Colour)
				}
				colour = TeamColour{Name: strings.ToLower(e.Name)}
			}
			if _, err := m.teams.Add(e.Name, colour); err != nil {
				return nil, fmt.Errorf("%w: %s", err, e.Name)
			}
		}
		return m, nil
	}
}

// NewTeamMode creates a team mode without teams. Use Teams().Add to
// configure them.
func NewTeamMode(name string, perTeam int, rng *rand.Rand) *TeamMode {
	return &TeamMode{name: name, teams: NewTeamManager(perTeam, rng)}
}

// Teams returns the team manager.
func (m *TeamMode) Teams() *TeamManager { return m.teams }

func (m *TeamMode) Name() string                { return m.name }
func (m *TeamMode) MaxPlayers() int             { return m.teams.Max() }
func (m *TeamMode) MaxPlayersPerTeam() int      { return m.teams.PerTeam() }
func (m *TeamMode) HasPlayer(id uuid.UUID) bool { return m.teams.Has(id) }
func (m *TeamMode) Players() []*Snapshot        { return m.teams.Players() }
func (m *TeamMode) PlayerCount() int            { return m.teams.Count() }
func (m *TeamMode) Ticks() bool                 { return true }

// OnJoin admits p onto a random team with room.
func (m *TeamMode) OnJoin(a *Arena, p Player) error {
	if err := a.CheckJoin(m, p); err != nil {
		return err
	}
	t, err := m.teams.Pick()
	if err != nil {
		return err
	}
	s, err := Capture(p)
	if err != nil {
		return err
	}
	if err := m.teams.Assign(t, s); err != nil {
		return err
	}
	a.Welcome(m, s)
	return nil
}

// OnQuit takes p off its team.
func (m *TeamMode) OnQuit(a *Arena, p Player, opts QuitOptions) error {
	if err := a.CheckQuit(m, p, opts.Force); err != nil {
		return err
	}
	s, _ := m.teams.Remove(p.UUID())
	a.Farewell(m, s, opts)
	return nil
}

// DistributeToSpawns sends every team to the spawn keyed by its lower-cased
// name.
func (m *TeamMode) DistributeToSpawns(a *Arena, spawns Spawns) {
	for _, t := range m.teams.Teams() {
		loc, ok := spawns[TeamSpawnKey(t.Name())]
		if !ok {
			a.log.Warn("missing team spawn", zapArena(a), zapKey(TeamSpawnKey(t.Name())))
			continue
		}
		for _, s := range t.Players() {
			s.Player().Teleport(loc.In(a.WorldName()))
		}
	}
}

// Winners returns the last remaining player, if exactly one is left.
func (m *Solo) Winners(*Arena) []*Snapshot {
	if players := m.roster.All(); len(players) == 1 {
		return players
	}
	return nil
}

// Winners returns the members of the only team with players left, if
// exactly one team has any.
func (m *TeamMode) Winners(*Arena) []*Snapshot {
	var last *Team
	for _, t := range m.teams.Teams() {
		if t.Len() == 0 {
			continue
		}
		if last != nil {
			return nil
		}
		last = t
	}
	if last == nil {
		return nil
	}
	return last.Players()
}

// Compile-time checks for the built-in modes.
var (
	_ Mode  = (*Solo)(nil)
	_ Mode  = (*Practice)(nil)
	_ Mode  = (*TeamMode)(nil)
	_ Judge = (*Solo)(nil)
	_ Judge = (*TeamMode)(nil)
)
