package arena_test

import (
	"encoding/json"
	"testing"

	"github.com/oriumgames/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	full := arena.NewRecord("sky", "sky_world", "solo", 30, 600, 10).Map()

	r, err := arena.ParseRecord(full)
	require.NoError(t, err)
	assert.Equal(t, arena.NewRecord("sky", "sky_world", "solo", 30, 600, 10), r)

	for _, key := range arena.RecordKeys {
		t.Run("missing "+key, func(t *testing.T) {
			data := arena.NewRecord("sky", "w", "solo", 1, 2, 3).Map()
			delete(data, key)
			_, err := arena.ParseRecord(data)
			assert.ErrorIs(t, err, arena.ErrMissingKey)
		})
	}
}

func TestParseRecordFromJSON(t *testing.T) {
	raw := `{
		"arenaID": "sky", "worldName": "sky_world", "mode": "duo",
		"countdownTime": 15, "arenaTime": "300", "restartingTime": 5.0,
		"lobbySettings": {}, "spawns": {"red": {"x": 1, "y": 2, "z": 3, "yaw": 0, "pitch": 0}},
		"arenaData": "{\"teams\": [\"red\"]}", "extraData": null
	}`
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	r, err := arena.ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, 15, r.CountdownTime)
	assert.Equal(t, 300, r.ArenaTime)
	assert.Equal(t, 5, r.RestartingTime)
	assert.JSONEq(t, `{}`, r.LobbySettings)
	assert.JSONEq(t, `{"red": {"x": 1, "y": 2, "z": 3, "yaw": 0, "pitch": 0}}`, r.Spawns)
	assert.Equal(t, `{"teams": ["red"]}`, r.ArenaData)
	assert.Empty(t, r.ExtraData)
	require.NoError(t, r.Validate())

	data["arenaTime"] = "soon"
	_, err = arena.ParseRecord(data)
	assert.ErrorIs(t, err, arena.ErrInvalidRecord)
	data["arenaTime"] = true
	_, err = arena.ParseRecord(data)
	assert.ErrorIs(t, err, arena.ErrInvalidRecord)
}

func TestRecordValidate(t *testing.T) {
	valid := arena.NewRecord("sky", "w", "solo", 1, 1, 1)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *arena.Record)
	}{
		{"blank id", func(r *arena.Record) { r.ID = "  " }},
		{"blank world", func(r *arena.Record) { r.WorldName = "" }},
		{"blank mode", func(r *arena.Record) { r.Mode = "" }},
		{"bad spawns", func(r *arena.Record) { r.Spawns = "{" }},
		{"bad lobby", func(r *arena.Record) { r.LobbySettings = "[" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), arena.ErrInvalidRecord)
		})
	}
}
