package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "arena.yml", `
server:
  address: ":19133"
worlds:
  dir: maps
  archive_timeout: 30s
database:
  dsn: postgres://arena@localhost/arena
admin:
  address: ":9090"
lobby:
  enabled: true
  address: lobby.example.net:19132
operators: [Steve, Alex]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":19133", cfg.Server.Address)
	assert.Equal(t, "Arena", cfg.Server.Name)
	assert.Equal(t, "maps", cfg.Worlds.Dir)
	assert.Equal(t, "backups", cfg.Worlds.BackupDir)
	assert.Equal(t, 30*time.Second, cfg.Worlds.ArchiveTimeout)
	assert.Equal(t, "postgres://arena@localhost/arena", cfg.Database.DSN)
	assert.Equal(t, ":9090", cfg.Admin.Address)
	assert.True(t, cfg.Lobby.Enabled)
	assert.True(t, cfg.IsOperator("steve"))
	assert.False(t, cfg.IsOperator("herobrine"))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "arena.yml", "server:\n  address: \":1\"\n")
	t.Setenv("ARENA_ADDRESS", ":2")
	t.Setenv("ARENA_DATABASE_TIMEOUT", "1s")
	t.Setenv("ARENA_ADMIN_RPS", "2.5")
	t.Setenv("ARENA_OPERATORS", "a, b,,c")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":2", cfg.Server.Address)
	assert.Equal(t, time.Second, cfg.Database.Timeout)
	assert.Equal(t, 2.5, cfg.Admin.RequestsPerSecond)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Operators)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ARENA_NAME=FromDotEnv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("ARENA_NAME") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "FromDotEnv", cfg.Server.Name)
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad yaml", file: "server: [", env: nil},
		{name: "bad duration", env: map[string]string{"ARENA_DATABASE_TIMEOUT": "soon"}},
		{name: "bad bool", env: map[string]string{"ARENA_LOBBY_ENABLED": "maybe"}},
		{name: "lobby without address", file: "lobby:\n  enabled: true\n"},
		{name: "empty worlds dir", env: map[string]string{"ARENA_WORLDS_DIR": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, "arena.yml", tt.file)
			}
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
