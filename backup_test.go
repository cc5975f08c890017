package arena_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/archive"
	"github.com/oriumgames/arena/arenatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldBackupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	worlds := arenatest.NewWorlds(filepath.Join(dir, "worlds"), "sky")
	live := filepath.Join(worlds.Dir(), "sky")
	require.NoError(t, os.MkdirAll(filepath.Join(live, "db"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(live, "level.dat"), []byte("level"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(live, "db", "000001.ldb"), []byte("chunks"), 0o644))

	sched := arena.NewScheduler(nil)
	t.Cleanup(sched.Stop)
	b := arena.NewWorldBackup(filepath.Join(dir, "backups"), archive.New(0), worlds, sched, time.Minute, nil)
	assert.Equal(t, filepath.Join(dir, "backups", "sky.zip"), b.ArchivePath("Sky"))
	assert.False(t, b.HasBackup("sky"))

	var backupErr error
	require.NoError(t, b.Backup("sky", "sky", func(err error) { backupErr = err }))
	assert.True(t, b.Pending("sky"), "pending until the completion runs on the loop")
	assert.False(t, worlds.Loaded("sky"), "world unloaded while archived")
	assert.ErrorIs(t, b.Backup("sky", "sky", nil), arena.ErrBackupPending)

	sched.Flush()
	require.NoError(t, backupErr)
	assert.False(t, b.Pending("sky"))
	assert.True(t, worlds.Loaded("sky"))
	assert.True(t, b.HasBackup("sky"))

	require.NoError(t, os.WriteFile(filepath.Join(live, "level.dat"), []byte("griefed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(live, "junk"), []byte("x"), 0o644))

	var restoreErr error
	require.NoError(t, b.Restore("sky", "sky", func(err error) { restoreErr = err }))
	sched.Flush()
	require.NoError(t, restoreErr)

	got, err := os.ReadFile(filepath.Join(live, "level.dat"))
	require.NoError(t, err)
	assert.Equal(t, "level", string(got))
	assert.NoFileExists(t, filepath.Join(live, "junk"))
	assert.FileExists(t, filepath.Join(live, "db", "000001.ldb"))

	require.NoError(t, b.Discard("sky"))
	assert.False(t, b.HasBackup("sky"))
	require.NoError(t, b.Discard("sky"), "discarding a missing archive is fine")
	assert.ErrorIs(t, b.Restore("sky", "sky", nil), arena.ErrNoBackup)
}
