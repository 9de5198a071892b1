package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Completions is the exercise log fed by "complete" notification actions.
type Completions struct {
	db  *sqlx.DB
	key string
}

func NewCompletions(db *sqlx.DB, settingsKey string) *Completions {
	return &Completions{db: db, key: settingsKey}
}

func (c *Completions) Record(ctx context.Context, exerciseType string, count int, at time.Time) error {
	_, err := c.db.ExecContext(ctx, c.db.Rebind(
		`INSERT INTO completed_exercises (id, settings_key, exercise_type, count, completed_at)
		VALUES (?, ?, ?, ?, ?)`),
		uuid.NewString(), c.key, exerciseType, count, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// Totals sums completed repetitions per exercise type since the given time.
func (c *Completions) Totals(ctx context.Context, since time.Time) (map[string]int, error) {
	var rows []struct {
		ExerciseType string `db:"exercise_type"`
		Total        int    `db:"total"`
	}
	err := c.db.SelectContext(ctx, &rows, c.db.Rebind(
		`SELECT exercise_type, SUM(count) AS total FROM completed_exercises
		WHERE settings_key = ? AND completed_at >= ?
		GROUP BY exercise_type`),
		c.key, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sum completions: %w", err)
	}

	totals := make(map[string]int, len(rows))
	for _, r := range rows {
		totals[r.ExerciseType] = r.Total
	}
	return totals, nil
}
