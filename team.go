package arena

import (
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/df-mc/dragonfly/server/item"
	"github.com/google/uuid"
	"github.com/sandertv/gophertunnel/minecraft/text"
)

// TeamColour is a named team colour: the dye used for team items and the
// text tag used when formatting team names.
type TeamColour struct {
	Name string
	Dye  item.Colour
	Tag  string
}

// Format wraps s in the colour's text tag.
func (c TeamColour) Format(s string) string {
	if c.Tag == "" {
		return s
	}
	return text.Colourf("<"+c.Tag+">%s</"+c.Tag+">", s)
}

// TeamColours is a registry of team colours keyed by lower-cased name.
// It is safe for concurrent use.
type TeamColours struct {
	mu      sync.RWMutex
	colours map[string]TeamColour
}

// NewTeamColours returns a registry pre-filled with the sixteen dye colours.
func NewTeamColours() *TeamColours {
	c := &TeamColours{colours: make(map[string]TeamColour, 16)}
	for _, tc := range []TeamColour{
		{"black", item.ColourBlack(), "black"},
		{"blue", item.ColourBlue(), "blue"},
		{"green", item.ColourGreen(), "dark-green"},
		{"lime", item.ColourLime(), "green"},
		{"cyan", item.ColourCyan(), "dark-aqua"},
		{"purple", item.ColourPurple(), "dark-purple"},
		{"orange", item.ColourOrange(), "gold"},
		{"light_gray", item.ColourLightGrey(), "grey"},
		{"gray", item.ColourGrey(), "dark-grey"},
		{"light_blue", item.ColourLightBlue(), "aqua"},
		{"red", item.ColourRed(), "red"},
		{"magenta", item.ColourMagenta(), "purple"},
		{"pink", item.ColourPink(), "purple"},
		{"yellow", item.ColourYellow(), "yellow"},
		{"white", item.ColourWhite(), "white"},
		{"brown", item.ColourBrown(), "dark-red"},
	} {
		c.colours[tc.Name] = tc
	}
	return c
}

// Register adds a custom colour. Registering an existing name replaces it.
func (c *TeamColours) Register(tc TeamColour) {
	tc.Name = strings.ToLower(tc.Name)
	c.mu.Lock()
	c.colours[tc.Name] = tc
	c.mu.Unlock()
}

// Get returns the colour registered under name.
func (c *TeamColours) Get(name string) (TeamColour, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tc, ok := c.colours[strings.ToLower(name)]
	return tc, ok
}

// Names returns every registered colour name, sorted.
func (c *TeamColours) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.colours))
	for n := range c.colours {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Team is a named, coloured roster inside one arena.
type Team struct {
	name   string
	colour TeamColour
	roster *Roster
}

// Name returns the team name as configured.
func (t *Team) Name() string { return t.name }

// Colour returns the team colour.
func (t *Team) Colour() TeamColour { return t.colour }

// DisplayName returns the team name formatted in the team colour.
func (t *Team) DisplayName() string { return t.colour.Format(t.name) }

// Max returns the team capacity.
func (t *Team) Max() int { return t.roster.Max() }

// Len returns the number of members.
func (t *Team) Len() int { return t.roster.Len() }

// Full reports whether the team has no room left.
func (t *Team) Full() bool { return t.roster.Full() }

// Has reports whether id is on this team.
func (t *Team) Has(id uuid.UUID) bool { return t.roster.Has(id) }

// Players returns the members in join order.
func (t *Team) Players() []*Snapshot { return t.roster.All() }

// TeamManager owns the teams of one arena instance.
type TeamManager struct {
	perTeam int
	teams   []*Team
	byName  map[string]*Team
	rng     *rand.Rand
}

// NewTeamManager creates an empty manager whose teams hold perTeam players.
// rng drives random team selection.
func NewTeamManager(perTeam int, rng *rand.Rand) *TeamManager {
	return &TeamManager{
		perTeam: perTeam,
		byName:  make(map[string]*Team),
		rng:     rng,
	}
}

// Add creates a team. Names are unique case-insensitively.
func (m *TeamManager) Add(name string, colour TeamColour) (*Team, error) {
	key := strings.ToLower(name)
	if _, ok := m.byName[key]; ok {
		return nil, ErrTeamExists
	}
	t := &Team{name: name, colour: colour, roster: NewRoster(m.perTeam)}
	m.teams = append(m.teams, t)
	m.byName[key] = t
	return t, nil
}

// Team returns the team with the given name.
func (m *TeamManager) Team(name string) (*Team, bool) {
	t, ok := m.byName[strings.ToLower(name)]
	return t, ok
}

// Teams returns the teams in configuration order.
func (m *TeamManager) Teams() []*Team {
	out := make([]*Team, len(m.teams))
	copy(out, m.teams)
	return out
}

// PerTeam returns the capacity of each team.
func (m *TeamManager) PerTeam() int { return m.perTeam }

// Max returns the combined capacity of all teams.
func (m *TeamManager) Max() int { return len(m.teams) * m.perTeam }

// Count returns the number of players across all teams.
func (m *TeamManager) Count() int {
	n := 0
	for _, t := range m.teams {
		n += t.Len()
	}
	return n
}

// Has reports whether id is on any team.
func (m *TeamManager) Has(id uuid.UUID) bool {
	_, ok := m.TeamOf(id)
	return ok
}

// TeamOf returns the team id belongs to.
func (m *TeamManager) TeamOf(id uuid.UUID) (*Team, bool) {
	for _, t := range m.teams {
		if t.Has(id) {
			return t, true
		}
	}
	return nil, false
}

// Players returns every member, team by team.
func (m *TeamManager) Players() []*Snapshot {
	out := make([]*Snapshot, 0, m.Count())
	for _, t := range m.teams {
		out = append(out, t.Players()...)
	}
	return out
}

// Pick selects a team with room: uniformly at random among the candidates,
// or the only candidate when there is one. It fails with
// ErrNoTeamsAvailable when every team is full.
func (m *TeamManager) Pick() (*Team, error) {
	var open []*Team
	for _, t := range m.teams {
		if !t.Full() {
			open = append(open, t)
		}
	}
	switch len(open) {
	case 0:
		return nil, ErrNoTeamsAvailable
	case 1:
		return open[0], nil
	}
	return open[m.rng.IntN(len(open))], nil
}

// Assign puts s on team t. A player can only be on one team at a time.
func (m *TeamManager) Assign(t *Team, s *Snapshot) error {
	if m.Has(s.UUID()) {
		return ErrAlreadyInArena
	}
	if err := t.roster.Add(s); err != nil {
		if err == ErrArenaFull {
			return ErrNoTeamsAvailable
		}
		return err
	}
	return nil
}

// Remove takes id off its team.
func (m *TeamManager) Remove(id uuid.UUID) (*Snapshot, bool) {
	t, ok := m.TeamOf(id)
	if !ok {
		return nil, false
	}
	return t.roster.Remove(id)
}
