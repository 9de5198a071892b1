package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// columnExists checks whether table has column, using PRAGMA table_info on
// sqlite and information_schema elsewhere.
func columnExists(db *sqlx.DB, table, column string) (bool, error) {
	if db.DriverName() != DriverSQLite {
		var n int
		err := db.Get(&n, db.Rebind(
			"SELECT count(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?"),
			table, column)
		return n > 0, err
	}

	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Migrate adds columns introduced after the first schema. It is idempotent.
func Migrate(db *sqlx.DB) error {
	additions := []struct {
		table, column, ddl string
	}{
		{"reminder_settings", "checkpoint", "ALTER TABLE reminder_settings ADD COLUMN checkpoint BIGINT NOT NULL DEFAULT 0"},
		{"reminder_settings", "updated_at", "ALTER TABLE reminder_settings ADD COLUMN updated_at BIGINT NOT NULL DEFAULT 0"},
		{"push_subscriptions", "created_at", "ALTER TABLE push_subscriptions ADD COLUMN created_at BIGINT NOT NULL DEFAULT 0"},
	}

	for _, a := range additions {
		exists, err := columnExists(db, a.table, a.column)
		if err != nil {
			return fmt.Errorf("inspect %s.%s: %w", a.table, a.column, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(a.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", a.table, a.column, err)
		}
	}
	return nil
}
