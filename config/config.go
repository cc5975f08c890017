// Package config loads the settings of an arena server.
//
// Values are resolved in order: built-in defaults, the YAML file, a .env
// file next to the process, and finally ARENA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Worlds   WorldsConfig   `yaml:"worlds"`
	Database DatabaseConfig `yaml:"database"`
	Admin    AdminConfig    `yaml:"admin"`
	Lobby    LobbyConfig    `yaml:"lobby"`

	// Messages is the path of the player-facing messages file. It is
	// reloaded when it changes.
	Messages string `yaml:"messages"`

	// Operators may run the configuration sub commands of /arena.
	Operators []string `yaml:"operators"`

	// LogLevel is a zap level name: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// ServerConfig holds the Dragonfly listener settings.
type ServerConfig struct {
	Address    string `yaml:"address"`
	Name       string `yaml:"name"`
	MaxPlayers int    `yaml:"max_players"`
}

// WorldsConfig holds where worlds and their backups live.
type WorldsConfig struct {
	// Dir contains one LevelDB world per arena.
	Dir string `yaml:"dir"`
	// Default is the world players are sent to when they leave an arena.
	Default string `yaml:"default"`
	// BackupDir receives one zip archive per arena.
	BackupDir string `yaml:"backup_dir"`
	// ArchiveTimeout bounds a single backup or restore.
	ArchiveTimeout time.Duration `yaml:"archive_timeout"`
}

// DatabaseConfig selects the arena provider. An empty DSN keeps records in
// memory.
type DatabaseConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// AdminConfig configures the HTTP admin surface. An empty Address disables
// it.
type AdminConfig struct {
	Address string `yaml:"address"`
	// Token, when set, must be sent as a bearer token on mutating requests.
	Token             string  `yaml:"token"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LobbyConfig configures the transfer of players to a lobby server after
// they leave an arena.
type LobbyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:    ":19132",
			Name:       "Arena",
			MaxPlayers: 100,
		},
		Worlds: WorldsConfig{
			Dir:            "worlds",
			Default:        "world",
			BackupDir:      "backups",
			ArchiveTimeout: 2 * time.Minute,
		},
		Database: DatabaseConfig{
			Timeout: 5 * time.Second,
		},
		Admin: AdminConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Messages: "messages.yml",
		LogLevel: "info",
	}
}

// Load reads the configuration at path. A missing file is not an error; the
// defaults and environment are used instead.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Server.Address == "":
		return errors.New("config: server.address is empty")
	case c.Worlds.Dir == "":
		return errors.New("config: worlds.dir is empty")
	case c.Worlds.BackupDir == "":
		return errors.New("config: worlds.backup_dir is empty")
	case c.Database.Timeout <= 0:
		return errors.New("config: database.timeout must be positive")
	case c.Worlds.ArchiveTimeout <= 0:
		return errors.New("config: worlds.archive_timeout must be positive")
	case c.Lobby.Enabled && c.Lobby.Address == "":
		return errors.New("config: lobby.address is required when the lobby is enabled")
	}
	return nil
}

// IsOperator reports whether name is listed in Operators.
func (c Config) IsOperator(name string) bool {
	for _, op := range c.Operators {
		if strings.EqualFold(op, name) {
			return true
		}
	}
	return false
}

// applyEnv overrides fields from ARENA_* variables.
func (c *Config) applyEnv() error {
	setString(&c.Server.Address, "ARENA_ADDRESS")
	setString(&c.Server.Name, "ARENA_NAME")
	setString(&c.Worlds.Dir, "ARENA_WORLDS_DIR")
	setString(&c.Worlds.Default, "ARENA_DEFAULT_WORLD")
	setString(&c.Worlds.BackupDir, "ARENA_BACKUP_DIR")
	setString(&c.Database.DSN, "ARENA_DATABASE_DSN")
	setString(&c.Admin.Address, "ARENA_ADMIN_ADDRESS")
	setString(&c.Admin.Token, "ARENA_ADMIN_TOKEN")
	setString(&c.Lobby.Address, "ARENA_LOBBY_ADDRESS")
	setString(&c.Messages, "ARENA_MESSAGES")
	setString(&c.LogLevel, "ARENA_LOG_LEVEL")
	if v := os.Getenv("ARENA_OPERATORS"); v != "" {
		c.Operators = splitList(v)
	}

	return multierr.Combine(
		setInt(&c.Server.MaxPlayers, "ARENA_MAX_PLAYERS"),
		setInt(&c.Admin.Burst, "ARENA_ADMIN_BURST"),
		setFloat(&c.Admin.RequestsPerSecond, "ARENA_ADMIN_RPS"),
		setDuration(&c.Database.Timeout, "ARENA_DATABASE_TIMEOUT"),
		setDuration(&c.Worlds.ArchiveTimeout, "ARENA_ARCHIVE_TIMEOUT"),
		setBool(&c.Lobby.Enabled, "ARENA_LOBBY_ENABLED"),
	)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = i
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}
