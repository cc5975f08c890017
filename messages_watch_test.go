package arena_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oriumgames/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchMessagesReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yml")
	require.NoError(t, os.WriteFile(path, []byte("failed: first\n"), 0o644))

	got := make(chan arena.Messages, 8)
	w, err := arena.WatchMessages(path, nil, func(m arena.Messages) { got <- m })
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("failed: second\n"), 0o644))
	select {
	case m := <-got:
		assert.Equal(t, "second", m.Failed)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the file changed")
	}

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close(), "closing twice is fine")
}

func TestWatchMessagesMissingDir(t *testing.T) {
	_, err := arena.WatchMessages(filepath.Join(t.TempDir(), "nope", "messages.yml"), nil, func(arena.Messages) {})
	assert.Error(t, err)
}
