package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fitremind/internal/models"

	"github.com/jmoiron/sqlx"
)

// SQLStore keeps one row per settings key in reminder_settings. It works
// with both the sqlite3 and postgres drivers.
type SQLStore struct {
	db  *sqlx.DB
	key string
}

func NewSQLStore(db *sqlx.DB, key string) *SQLStore {
	if key == "" {
		key = DefaultKey
	}
	return &SQLStore{db: db, key: key}
}

type settingsRow struct {
	Config     string `db:"config"`
	Checkpoint int64  `db:"checkpoint"`
}

func (s *SQLStore) Load(ctx context.Context) (models.Settings, error) {
	var row settingsRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		"SELECT config, checkpoint FROM reminder_settings WHERE key = ?"), s.key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, unavailable("load settings", err)
	}

	var cfg models.ReminderConfig
	if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
		return models.Settings{}, unavailable("decode settings", err)
	}
	return models.NewSettings(cfg, fromMillis(row.Checkpoint)), nil
}

func (s *SQLStore) SaveConfig(ctx context.Context, cfg models.ReminderConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO reminder_settings (key, config, checkpoint, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(key) DO UPDATE SET
		config = excluded.config,
		updated_at = excluded.updated_at`),
		s.key, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return unavailable("save settings", err)
	}
	return nil
}

func (s *SQLStore) CompareAndSwapCheckpoint(ctx context.Context, old, next *time.Time) (bool, error) {
	if old == nil {
		// The first delivery may happen before any config was saved here.
		if err := s.ensureRow(ctx); err != nil {
			return false, err
		}
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE reminder_settings SET checkpoint = ?, updated_at = ? WHERE key = ? AND checkpoint = ?"),
		toMillis(next), time.Now().UnixMilli(), s.key, toMillis(old),
	)
	if err != nil {
		return false, unavailable("swap checkpoint", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("swap checkpoint", err)
	}
	return n == 1, nil
}

func (s *SQLStore) ensureRow(ctx context.Context) error {
	data, err := json.Marshal(models.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO reminder_settings (key, config, checkpoint, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(key) DO NOTHING`),
		s.key, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return unavailable("create settings row", err)
	}
	return nil
}
