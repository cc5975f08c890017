package arena

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
)

// Location is a position with a facing direction inside a named world.
// The world name is not part of the serialized form; spawns take it from
// the arena and lobby locations from their LobbySettings.
type Location struct {
	World string
	Pos   mgl64.Vec3
	Yaw   float64
	Pitch float64
}

// Rotation returns the location's facing as a cube.Rotation.
func (l Location) Rotation() cube.Rotation {
	return cube.Rotation{l.Yaw, l.Pitch}
}

// In returns a copy of the location placed in the given world.
func (l Location) In(world string) Location {
	l.World = world
	return l
}

// String returns a human-readable form of the location.
func (l Location) String() string {
	return fmt.Sprintf("%s(%.1f, %.1f, %.1f)", l.World, l.Pos[0], l.Pos[1], l.Pos[2])
}

type locationJSON struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// MarshalJSON encodes the location as {"x","y","z","yaw","pitch"}.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationJSON{X: l.Pos[0], Y: l.Pos[1], Z: l.Pos[2], Yaw: l.Yaw, Pitch: l.Pitch})
}

// UnmarshalJSON decodes the {"x","y","z","yaw","pitch"} form.
func (l *Location) UnmarshalJSON(b []byte) error {
	var v locationJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	l.Pos = mgl64.Vec3{v.X, v.Y, v.Z}
	l.Yaw, l.Pitch = v.Yaw, v.Pitch
	return nil
}

// LobbySettings is where players wait before a match starts.
type LobbySettings struct {
	World    string   `json:"worldName"`
	Location Location `json:"location"`
}

// Set reports whether the lobby has been configured.
func (s LobbySettings) Set() bool {
	return s.World != ""
}

// Spawn returns the lobby location inside the lobby world.
func (s LobbySettings) Spawn() Location {
	return s.Location.In(s.World)
}

// Spawns maps spawn keys to locations. Roster modes key spawns "1".."n",
// team modes key them by lower-cased team name.
type Spawns map[string]Location

// SpawnKey returns the key of the n-th numbered spawn.
func SpawnKey(n int) string {
	return strconv.Itoa(n)
}

// TeamSpawnKey returns the key of a team's spawn.
func TeamSpawnKey(team string) string {
	return strings.ToLower(team)
}

// Keys returns the spawn keys in a stable order: numbered keys ascending,
// then named keys alphabetically.
func (s Spawns) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, ei := strconv.Atoi(keys[i])
		nj, ej := strconv.Atoi(keys[j])
		switch {
		case ei == nil && ej == nil:
			return ni < nj
		case ei == nil:
			return true
		case ej == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

func parseSpawns(raw string) (Spawns, error) {
	spawns := Spawns{}
	if raw == "" {
		return spawns, nil
	}
	if err := json.Unmarshal([]byte(raw), &spawns); err != nil {
		return nil, fmt.Errorf("%w: spawns: %v", ErrInvalidRecord, err)
	}
	return spawns, nil
}

func parseLobbySettings(raw string) (LobbySettings, error) {
	var s LobbySettings
	if raw == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, fmt.Errorf("%w: lobby settings: %v", ErrInvalidRecord, err)
	}
	return s, nil
}

// Encode returns the serialized record form of the spawns.
func (s Spawns) Encode() (string, error) {
	if s == nil {
		s = Spawns{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode spawns: %w", err)
	}
	return string(b), nil
}

// Encode returns the serialized record form of the lobby settings.
func (s LobbySettings) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode lobby settings: %w", err)
	}
	return string(b), nil
}
