package memory

import (
	"context"
	"testing"

	"github.com/oriumgames/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := arena.NewRecord("Sky", "sky_world", "solo", 30, 600, 10)
	require.NoError(t, s.Insert(ctx, rec))
	require.ErrorIs(t, s.Insert(ctx, arena.NewRecord("sky", "w", "solo", 1, 1, 1)), arena.ErrArenaExists)

	known, err := s.Known(ctx, "SKY")
	require.NoError(t, err)
	assert.True(t, known)

	got, err := s.Arena(ctx, "sky")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	require.NoError(t, s.SetSpawns(ctx, "sky", `{"1":{"x":1,"y":2,"z":3,"yaw":0,"pitch":0}}`))
	require.NoError(t, s.SetLobbySettings(ctx, "sky", `{"worldName":"lobby"}`))
	require.NoError(t, s.SetArenaData(ctx, "sky", `{"slots":4}`))
	require.NoError(t, s.SetExtraData(ctx, "sky", `{"theme":"ice"}`))

	got, err = s.Arena(ctx, "sky")
	require.NoError(t, err)
	assert.Equal(t, `{"slots":4}`, got.ArenaData)
	assert.Equal(t, `{"theme":"ice"}`, got.ExtraData)
	assert.Equal(t, `{"worldName":"lobby"}`, got.LobbySettings)

	require.NoError(t, s.Remove(ctx, "Sky"))
	require.ErrorIs(t, s.Remove(ctx, "sky"), arena.ErrArenaUnknown)
	_, err = s.Arena(ctx, "sky")
	require.ErrorIs(t, err, arena.ErrArenaUnknown)
	require.ErrorIs(t, s.SetSpawns(ctx, "sky", "{}"), arena.ErrArenaUnknown)
}

func TestStoreArenasSorted(t *testing.T) {
	s := New(
		arena.NewRecord("c", "w", "solo", 1, 1, 1),
		arena.NewRecord("A", "w", "solo", 1, 1, 1),
		arena.NewRecord("b", "w", "solo", 1, 1, 1),
	)
	recs, err := s.Arenas(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"A", "b", "c"}, ids)
}

func TestStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Arenas(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
