package arena

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record keys, in their canonical order.
const (
	KeyArenaID        = "arenaID"
	KeyWorldName      = "worldName"
	KeyMode           = "mode"
	KeyCountdownTime  = "countdownTime"
	KeyArenaTime      = "arenaTime"
	KeyRestartingTime = "restartingTime"
	KeyLobbySettings  = "lobbySettings"
	KeySpawns         = "spawns"
	KeyArenaData      = "arenaData"
	KeyExtraData      = "extraData"
)

// RecordKeys lists every key a record must carry.
var RecordKeys = [...]string{
	KeyArenaID, KeyWorldName, KeyMode,
	KeyCountdownTime, KeyArenaTime, KeyRestartingTime,
	KeyLobbySettings, KeySpawns, KeyArenaData, KeyExtraData,
}

// emptyPayload is the default value of the serialized record fields.
const emptyPayload = "{}"

// Record is the persisted shape of an arena. Providers may store it as rows,
// documents or files; the engine only reads and writes these fields.
type Record struct {
	ID             string `json:"arenaID"`
	WorldName      string `json:"worldName"`
	Mode           string `json:"mode"`
	CountdownTime  int    `json:"countdownTime"`
	ArenaTime      int    `json:"arenaTime"`
	RestartingTime int    `json:"restartingTime"`
	LobbySettings  string `json:"lobbySettings"`
	Spawns         string `json:"spawns"`
	ArenaData      string `json:"arenaData"`
	ExtraData      string `json:"extraData"`
}

// NewRecord returns a record for a freshly created arena with the serialized
// fields set to their empty defaults.
func NewRecord(id, worldName, mode string, countdown, arenaTime, restarting int) Record {
	return Record{
		ID:             id,
		WorldName:      worldName,
		Mode:           mode,
		CountdownTime:  countdown,
		ArenaTime:      arenaTime,
		RestartingTime: restarting,
		LobbySettings:  emptyPayload,
		Spawns:         emptyPayload,
		ArenaData:      emptyPayload,
		ExtraData:      emptyPayload,
	}
}

// ParseRecord builds a record from a key/value map, as returned by document
// stores or decoded JSON. A map missing any of the ten keys is rejected with
// ErrMissingKey; it is never repaired.
func ParseRecord(data map[string]any) (Record, error) {
	for _, key := range RecordKeys {
		if _, ok := data[key]; !ok {
			return Record{}, fmt.Errorf("%w: %q", ErrMissingKey, key)
		}
	}

	var (
		r   Record
		err error
	)
	str := func(key string) string {
		if err != nil {
			return ""
		}
		var s string
		s, err = recordString(key, data[key])
		return s
	}
	num := func(key string) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = recordInt(key, data[key])
		return n
	}

	r.ID = str(KeyArenaID)
	r.WorldName = str(KeyWorldName)
	r.Mode = str(KeyMode)
	r.CountdownTime = num(KeyCountdownTime)
	r.ArenaTime = num(KeyArenaTime)
	r.RestartingTime = num(KeyRestartingTime)
	r.LobbySettings = str(KeyLobbySettings)
	r.Spawns = str(KeySpawns)
	r.ArenaData = str(KeyArenaData)
	r.ExtraData = str(KeyExtraData)
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// Map returns the record in its key/value form.
func (r Record) Map() map[string]any {
	return map[string]any{
		KeyArenaID:        r.ID,
		KeyWorldName:      r.WorldName,
		KeyMode:           r.Mode,
		KeyCountdownTime:  r.CountdownTime,
		KeyArenaTime:      r.ArenaTime,
		KeyRestartingTime: r.RestartingTime,
		KeyLobbySettings:  r.LobbySettings,
		KeySpawns:         r.Spawns,
		KeyArenaData:      r.ArenaData,
		KeyExtraData:      r.ExtraData,
	}
}

// Validate checks the fields every arena needs before it can be built.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidRecord, KeyArenaID)
	}
	if strings.TrimSpace(r.WorldName) == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidRecord, KeyWorldName)
	}
	if strings.TrimSpace(r.Mode) == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidRecord, KeyMode)
	}
	for key, payload := range map[string]string{
		KeyLobbySettings: r.LobbySettings,
		KeySpawns:        r.Spawns,
		KeyArenaData:     r.ArenaData,
		KeyExtraData:     r.ExtraData,
	} {
		if payload != "" && !json.Valid([]byte(payload)) {
			return fmt.Errorf("%w: %s is not valid JSON", ErrInvalidRecord, key)
		}
	}
	return nil
}

func recordString(key string, v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidRecord, key, err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: %s has type %T", ErrInvalidRecord, key, v)
	}
}

func recordInt(key string, v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, key, err)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidRecord, key, v)
	}
}
