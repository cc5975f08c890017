// Package sqlstore is an arena.Provider on top of GORM and PostgreSQL.
//
// Records are stored in one table, keyed by the lower-cased arena ID. The
// store implements arena.Committer, so finishing a setup writes every staged
// field in a single transaction.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oriumgames/arena"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// row is the table layout of a record.
type row struct {
	Key            string `gorm:"column:arena_key;primaryKey;size:64"`
	ID             string `gorm:"column:arena_id;size:64;not null"`
	WorldName      string `gorm:"column:world_name;size:128;not null"`
	Mode           string `gorm:"column:mode;size:32;not null"`
	CountdownTime  int    `gorm:"column:countdown_time;not null"`
	ArenaTime      int    `gorm:"column:arena_time;not null"`
	RestartingTime int    `gorm:"column:restarting_time;not null"`
	LobbySettings  string `gorm:"column:lobby_settings;type:text;not null"`
	Spawns         string `gorm:"column:spawns;type:text;not null"`
	ArenaData      string `gorm:"column:arena_data;type:text;not null"`
	ExtraData      string `gorm:"column:extra_data;type:text;not null"`
}

// TableName implements gorm's tabler.
func (row) TableName() string { return "arenas" }

func toRow(r arena.Record) row {
	return row{
		Key:            key(r.ID),
		ID:             r.ID,
		WorldName:      r.WorldName,
		Mode:           r.Mode,
		CountdownTime:  r.CountdownTime,
		ArenaTime:      r.ArenaTime,
		RestartingTime: r.RestartingTime,
		LobbySettings:  r.LobbySettings,
		Spawns:         r.Spawns,
		ArenaData:      r.ArenaData,
		ExtraData:      r.ExtraData,
	}
}

func (r row) record() arena.Record {
	return arena.Record{
		ID:             r.ID,
		WorldName:      r.WorldName,
		Mode:           r.Mode,
		CountdownTime:  r.CountdownTime,
		ArenaTime:      r.ArenaTime,
		RestartingTime: r.RestartingTime,
		LobbySettings:  r.LobbySettings,
		Spawns:         r.Spawns,
		ArenaData:      r.ArenaData,
		ExtraData:      r.ExtraData,
	}
}

func key(id string) string { return strings.ToLower(id) }

// Store persists arena records in PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at dsn and migrates the arenas table.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the arenas table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("migrate arenas: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Name implements arena.Provider.
func (s *Store) Name() string { return "postgres" }

// Arenas implements arena.Provider.
func (s *Store) Arenas(ctx context.Context) ([]arena.Record, error) {
	var rows []row
	if err := s.db.WithContext(ctx).Order("arena_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list arenas: %w", err)
	}
	out := make([]arena.Record, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// Known implements arena.Provider.
func (s *Store) Known(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&row{}).Where("arena_key = ?", key(id)).Count(&n).Error; err != nil {
		return false, fmt.Errorf("look up arena %s: %w", id, err)
	}
	return n > 0, nil
}

// Arena implements arena.Provider.
func (s *Store) Arena(ctx context.Context, id string) (arena.Record, error) {
	var r row
	err := s.db.WithContext(ctx).Where("arena_key = ?", key(id)).Take(&r).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return arena.Record{}, fmt.Errorf("%w: %s", arena.ErrArenaUnknown, id)
	case err != nil:
		return arena.Record{}, fmt.Errorf("read arena %s: %w", id, err)
	}
	return r.record(), nil
}

// Insert implements arena.Provider.
func (s *Store) Insert(ctx context.Context, r arena.Record) error {
	rw := toRow(r)
	err := s.db.WithContext(ctx).Create(&rw).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", arena.ErrArenaExists, r.ID)
	case err != nil:
		return fmt.Errorf("insert arena %s: %w", r.ID, err)
	}
	return nil
}

// Remove implements arena.Provider.
func (s *Store) Remove(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("arena_key = ?", key(id)).Delete(&row{})
	if res.Error != nil {
		return fmt.Errorf("remove arena %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", arena.ErrArenaUnknown, id)
	}
	return nil
}

// SetSpawns implements arena.Provider.
func (s *Store) SetSpawns(ctx context.Context, id, spawns string) error {
	return s.update(s.db.WithContext(ctx), id, map[string]any{"spawns": spawns})
}

// SetLobbySettings implements arena.Provider.
func (s *Store) SetLobbySettings(ctx context.Context, id, settings string) error {
	return s.update(s.db.WithContext(ctx), id, map[string]any{"lobby_settings": settings})
}

// SetArenaData implements arena.Provider.
func (s *Store) SetArenaData(ctx context.Context, id, data string) error {
	return s.update(s.db.WithContext(ctx), id, map[string]any{"arena_data": data})
}

// SetExtraData implements arena.Provider.
func (s *Store) SetExtraData(ctx context.Context, id, data string) error {
	return s.update(s.db.WithContext(ctx), id, map[string]any{"extra_data": data})
}

// Commit implements arena.Committer. The row is locked for the duration of
// the transaction and either every staged field is written or none is.
func (s *Store) Commit(ctx context.Context, id string, f arena.SetupFields) error {
	cols := columns(f)
	if len(cols) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r row
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("arena_key = ?", key(id)).Take(&r).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("%w: %s", arena.ErrArenaUnknown, id)
		case err != nil:
			return fmt.Errorf("lock arena %s: %w", id, err)
		}
		return s.update(tx, id, cols)
	})
}

func columns(f arena.SetupFields) map[string]any {
	cols := make(map[string]any, 4)
	if f.Spawns != nil {
		cols["spawns"] = *f.Spawns
	}
	if f.LobbySettings != nil {
		cols["lobby_settings"] = *f.LobbySettings
	}
	if f.ArenaData != nil {
		cols["arena_data"] = *f.ArenaData
	}
	if f.ExtraData != nil {
		cols["extra_data"] = *f.ExtraData
	}
	return cols
}

func (s *Store) update(db *gorm.DB, id string, cols map[string]any) error {
	res := db.Model(&row{}).Where("arena_key = ?", key(id)).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update arena %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", arena.ErrArenaUnknown, id)
	}
	return nil
}

var (
	_ arena.Provider  = (*Store)(nil)
	_ arena.Committer = (*Store)(nil)
)
