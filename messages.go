package arena

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sandertv/gophertunnel/minecraft/text"
	"gopkg.in/yaml.v3"
)

// Messages holds the player-facing texts of the engine. Templates may use
// %name%, %current% and %max%; countdown texts use %time%.
type Messages struct {
	NoArenas          string `yaml:"no_arenas"`
	NoAvailableArenas string `yaml:"no_available_arenas"`
	NoTeamsAvailable  string `yaml:"no_teams_available"`
	AlreadyInArena    string `yaml:"already_in_arena"`
	ArenaFull         string `yaml:"arena_full"`
	ArenaRunning      string `yaml:"arena_running"`
	CannotLeave       string `yaml:"cannot_leave"`
	NotInArena        string `yaml:"not_in_arena"`
	ArenaNotFound     string `yaml:"arena_not_found"`
	ArenaExists       string `yaml:"arena_exists"`
	ArenaUnknown      string `yaml:"arena_unknown"`
	ArenaLoaded       string `yaml:"arena_loaded"`
	ArenaInSetup      string `yaml:"arena_in_setup"`
	AlreadyInSetup    string `yaml:"already_in_setup"`
	NotInSetup        string `yaml:"not_in_setup"`
	Failed            string `yaml:"failed"`

	Joined    string `yaml:"joined"`
	Left      string `yaml:"left"`
	Countdown string `yaml:"countdown"`
	MatchOver string `yaml:"match_over"`
	Winners   string `yaml:"winners"`
}

// DefaultMessages returns the built-in English texts.
func DefaultMessages() Messages {
	return Messages{
		NoArenas:          "No arenas found",
		NoAvailableArenas: "No available arenas found",
		NoTeamsAvailable:  "No teams available",
		AlreadyInArena:    "You are already inside an arena",
		ArenaFull:         "Arena is full",
		ArenaRunning:      "Cant join due to: Arena is already running",
		CannotLeave:       "Cant leave arena due to its state",
		NotInArena:        "You are not inside an arena",
		ArenaNotFound:     "Arena not found",
		ArenaExists:       "Arena already exists",
		ArenaUnknown:      "Arena does not exist",
		ArenaLoaded:       "Unable to set up a loaded arena",
		ArenaInSetup:      "Arena is being set up",
		AlreadyInSetup:    "You are already inside the setup",
		NotInSetup:        "You are not inside the setup",
		Failed:            "Something went wrong, try again later",

		Joined:    text.Colourf("<grey>%s</grey>", "[%name%] joined the arena. [%current%/%max%]"),
		Left:      text.Colourf("<grey>%s</grey>", "[%name%] left the arena. [%current%/%max%]"),
		Countdown: text.Colourf("<yellow>%s</yellow>", "Starting in %time%"),
		MatchOver: text.Colourf("<gold>%s</gold>", "Match over"),
		Winners:   "Winners: %winners%",
	}
}

// LoadMessages reads messages from a YAML file. Keys missing from the file
// keep their default text.
func LoadMessages(path string) (Messages, error) {
	m := DefaultMessages()
	b, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read messages: %w", err)
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse messages %s: %w", path, err)
	}
	return m, nil
}

// Format substitutes %name%, %current% and %max% in tpl.
func (m Messages) Format(tpl, name string, current, max int) string {
	return strings.NewReplacer(
		"%name%", name,
		"%current%", strconv.Itoa(current),
		"%max%", strconv.Itoa(max),
	).Replace(tpl)
}

func (m Messages) formatTime(tpl string, seconds int) string {
	return strings.ReplaceAll(tpl, "%time%", strconv.Itoa(seconds))
}

func (m Messages) formatWinners(names []string) string {
	return strings.ReplaceAll(m.Winners, "%winners%", strings.Join(names, ", "))
}

// ForError translates an engine error into player-facing text. Errors the
// engine did not produce, such as provider failures, become the generic
// failure text so raw I/O details never reach players.
func (m Messages) ForError(err error) string {
	for _, e := range []struct {
		target error
		text   string
	}{
		{ErrNoArenas, m.NoArenas},
		{ErrNoAvailableArenas, m.NoAvailableArenas},
		{ErrNoTeamsAvailable, m.NoTeamsAvailable},
		{ErrAlreadyInArena, m.AlreadyInArena},
		{ErrArenaFull, m.ArenaFull},
		{ErrArenaRunning, m.ArenaRunning},
		{ErrCannotLeaveNow, m.CannotLeave},
		{ErrNotInArena, m.NotInArena},
		{ErrArenaNotFound, m.ArenaNotFound},
		{ErrArenaExists, m.ArenaExists},
		{ErrArenaUnknown, m.ArenaUnknown},
		{ErrArenaLoaded, m.ArenaLoaded},
		{ErrArenaInSetup, m.ArenaInSetup},
		{ErrAlreadyInSetup, m.AlreadyInSetup},
		{ErrNotInSetup, m.NotInSetup},
	} {
		if errors.Is(err, e.target) {
			return e.text
		}
	}
	if KindOf(err) != KindIO {
		return err.Error()
	}
	return m.Failed
}
