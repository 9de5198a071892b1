package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Initialize opens the database, applies the schema and runs the idempotent
// migrations. dsn is a file path (or ":memory:") for sqlite3 and a
// connection URL for postgres.
func Initialize(driver, dsn string) (*sqlx.DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}

	if driver == DriverSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		if err := prepareSQLite(db, dsn); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func prepareSQLite(db *sqlx.DB, dsn string) error {
	// Every connection to ":memory:" is a separate database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// With SQLCipher builds DB_ENCRYPTION_KEY unlocks an encrypted file.
	if key := os.Getenv("DB_ENCRYPTION_KEY"); key != "" {
		esc := strings.ReplaceAll(key, "'", "''")
		if _, err := db.Exec(fmt.Sprintf("PRAGMA key = '%s';", esc)); err != nil {
			return fmt.Errorf("failed to set database encryption key: %w", err)
		}
		_, _ = db.Exec("PRAGMA cipher_compatibility = 4;")
		var count int
		if err := db.QueryRow("SELECT count(*) FROM sqlite_master;").Scan(&count); err != nil {
			return fmt.Errorf("database inaccessible with provided encryption key: %w", err)
		}
	}

	// The background agent and the foreground server may hold the file at
	// the same time.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, err := db.Exec("PRAGMA journal_mode = WAL")
	return err
}

func createTables(db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS reminder_settings (
			key TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			checkpoint BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			endpoint TEXT PRIMARY KEY,
			settings_key TEXT NOT NULL,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_push_subscriptions_key ON push_subscriptions(settings_key)`,
		`CREATE TABLE IF NOT EXISTS completed_exercises (
			id TEXT PRIMARY KEY,
			settings_key TEXT NOT NULL,
			exercise_type TEXT NOT NULL,
			count INTEGER NOT NULL,
			completed_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completed_exercises_key ON completed_exercises(settings_key, completed_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
