package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a ReminderConfig violates its invariants.
var ErrInvalidConfig = errors.New("invalid reminder config")

type Exercise struct {
	Type  string `json:"type" yaml:"type"`
	Count int    `json:"count" yaml:"count"`
}

// ActiveWindow is the inclusive daily hour range in which reminders are generated.
type ActiveWindow struct {
	StartHour int `json:"startHour" yaml:"start_hour"`
	EndHour   int `json:"endHour" yaml:"end_hour"`
}

// ReminderConfig is the user's reminder configuration. It is the payload of
// UPDATE_REMINDERS messages and of PUT /api/settings.
type ReminderConfig struct {
	Enabled         bool         `json:"enabled" yaml:"enabled"`
	Window          ActiveWindow `json:"activeWindow" yaml:"active_window"`
	IntervalMinutes int          `json:"intervalMinutes" yaml:"interval_minutes"`
	Exercises       []Exercise   `json:"exerciseCatalog" yaml:"exercises"`
}

// Validate checks the config invariants.
func (c ReminderConfig) Validate() error {
	if c.Window.StartHour < 0 || c.Window.StartHour > 23 {
		return fmt.Errorf("%w: startHour %d out of range 0..23", ErrInvalidConfig, c.Window.StartHour)
	}
	if c.Window.EndHour < 0 || c.Window.EndHour > 23 {
		return fmt.Errorf("%w: endHour %d out of range 0..23", ErrInvalidConfig, c.Window.EndHour)
	}
	if c.Window.StartHour > c.Window.EndHour {
		return fmt.Errorf("%w: startHour %d after endHour %d", ErrInvalidConfig, c.Window.StartHour, c.Window.EndHour)
	}
	if c.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: intervalMinutes must be positive", ErrInvalidConfig)
	}
	for i, e := range c.Exercises {
		if e.Type == "" {
			return fmt.Errorf("%w: exercise %d has no type", ErrInvalidConfig, i)
		}
		if e.Count <= 0 {
			return fmt.Errorf("%w: exercise %q count must be positive", ErrInvalidConfig, e.Type)
		}
	}
	if c.Enabled && len(c.Exercises) == 0 {
		return fmt.Errorf("%w: exercise catalog is empty", ErrInvalidConfig)
	}
	return nil
}

// Clone returns a copy that does not share the exercise slice.
func (c ReminderConfig) Clone() ReminderConfig {
	out := c
	out.Exercises = append([]Exercise(nil), c.Exercises...)
	return out
}

// DefaultConfig is used when nothing has been persisted yet.
func DefaultConfig() ReminderConfig {
	return ReminderConfig{
		Enabled:         false,
		Window:          ActiveWindow{StartHour: 8, EndHour: 20},
		IntervalMinutes: 60,
		Exercises: []Exercise{
			{Type: "pushups", Count: 10},
			{Type: "squats", Count: 15},
			{Type: "situps", Count: 10},
		},
	}
}

// Settings is the persisted record: the config plus the delivery checkpoint.
// Its JSON form is the flat keyed record shared by both execution contexts.
type Settings struct {
	Enabled         bool       `json:"enabled"`
	StartHour       int        `json:"startHour"`
	EndHour         int        `json:"endHour"`
	IntervalMinutes int        `json:"intervalMinutes"`
	Exercises       []Exercise `json:"exercises"`
	Checkpoint      *time.Time `json:"checkpoint"`
}

func NewSettings(cfg ReminderConfig, checkpoint *time.Time) Settings {
	return Settings{
		Enabled:         cfg.Enabled,
		StartHour:       cfg.Window.StartHour,
		EndHour:         cfg.Window.EndHour,
		IntervalMinutes: cfg.IntervalMinutes,
		Exercises:       append([]Exercise(nil), cfg.Exercises...),
		Checkpoint:      checkpoint,
	}
}

// Config extracts the ReminderConfig part of the record.
func (s Settings) Config() ReminderConfig {
	return ReminderConfig{
		Enabled:         s.Enabled,
		Window:          ActiveWindow{StartHour: s.StartHour, EndHour: s.EndHour},
		IntervalMinutes: s.IntervalMinutes,
		Exercises:       append([]Exercise(nil), s.Exercises...),
	}
}

// DefaultSettings returns DefaultConfig with no checkpoint.
func DefaultSettings() Settings {
	return NewSettings(DefaultConfig(), nil)
}

// Trigger is a computed instant plus the exercise to prompt for. Never persisted.
type Trigger struct {
	FiresAt  time.Time `json:"firesAt"`
	Exercise Exercise  `json:"chosenExercise"`
	// Snooze marks a one-off trigger that bypasses the active window.
	Snooze bool `json:"snooze,omitempty"`
}

// DeliveredNotification exists while the platform notification is visible.
type DeliveredNotification struct {
	ID        string    `json:"id"`
	Exercise  string    `json:"exercise"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
}

// CapabilityKind is the background wakeup capability granted by the host.
type CapabilityKind string

const (
	CapabilityNone               CapabilityKind = "none"
	CapabilityBackgroundSyncOnly CapabilityKind = "backgroundSyncOnly"
	CapabilityPeriodicSync       CapabilityKind = "periodicSyncGranted"
)

type SyncRegistration struct {
	Kind         CapabilityKind `json:"kind"`
	Interval     time.Duration  `json:"interval,omitempty"`
	RegisteredAt *time.Time     `json:"registeredAt,omitempty"`
	LastError    string         `json:"lastError,omitempty"`
}

// Active reports whether any wakeup capability is registered.
func (r SyncRegistration) Active() bool {
	return r.Kind != "" && r.Kind != CapabilityNone
}
