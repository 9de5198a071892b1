// Package settings persists the reminder configuration and the delivery
// checkpoint. It is the only state the foreground and background contexts
// share, so every backend offers read-your-writes for a single key and an
// atomic compare-and-swap on the checkpoint.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fitremind/internal/models"
)

// ErrStorageUnavailable wraps every backend failure.
var ErrStorageUnavailable = errors.New("settings storage unavailable")

// DefaultKey names the record used when a process serves a single user.
const DefaultKey = "default"

// Store is implemented by every settings backend.
type Store interface {
	// Load returns the current record, or models.DefaultSettings when
	// nothing has been saved yet.
	Load(ctx context.Context) (models.Settings, error)

	// SaveConfig replaces the config and leaves the checkpoint untouched.
	SaveConfig(ctx context.Context, cfg models.ReminderConfig) error

	// CompareAndSwapCheckpoint sets the checkpoint to next only if it still
	// equals old (nil meaning "never delivered"). It reports whether the
	// swap happened.
	CompareAndSwapCheckpoint(ctx context.Context, old, next *time.Time) (bool, error)
}

// Watcher is implemented by stores that can report changes made by other
// processes.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func validate(cfg models.ReminderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

// Checkpoints are stored as unix milliseconds with 0 meaning none.
func toMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

func sameCheckpoint(a, b *time.Time) bool {
	return toMillis(a) == toMillis(b)
}
