// Package actions turns the user's response to a delivered reminder into a
// mutation request for the exercise log or a one-off snoozed trigger.
package actions

import (
	"errors"
	"fmt"
	"log/slog"

	"fitremind/internal/clock"
	"fitremind/internal/models"
	"fitremind/internal/trigger"
)

// DefaultSnoozeMinutes is used when no snooze length is configured.
const DefaultSnoozeMinutes = 15

// DefaultEntryRoute is where Open sends the user.
const DefaultEntryRoute = "/"

var ErrUnknownAction = errors.New("unknown notification action")

// ExerciseLog is the external collaborator that records completed exercises.
type ExerciseLog interface {
	OnExerciseCompleted(exerciseType string, count int)
}

// ExerciseLogFunc adapts a function to ExerciseLog.
type ExerciseLogFunc func(exerciseType string, count int)

func (f ExerciseLogFunc) OnExerciseCompleted(exerciseType string, count int) {
	f(exerciseType, count)
}

// Snoozer arms one-off triggers. *scheduler.Scheduler implements it.
type Snoozer interface {
	ScheduleOnce(t models.Trigger) bool
}

type Config struct {
	Registry      *Registry
	Log           ExerciseLog
	Snoozer       Snoozer
	Calculator    *trigger.Calculator
	Clock         clock.Clock
	SnoozeMinutes int
	EntryRoute    string
	Logger        *slog.Logger
}

type Handler struct {
	registry      *Registry
	log           ExerciseLog
	snoozer       Snoozer
	calc          *trigger.Calculator
	clock         clock.Clock
	snoozeMinutes int
	entryRoute    string
	logger        *slog.Logger
}

// Result describes what an action did. Duplicate is set when the
// notification had already reached a terminal state and nothing happened.
type Result struct {
	State     State           `json:"state"`
	Duplicate bool            `json:"duplicate,omitempty"`
	Snooze    *models.Trigger `json:"snooze,omitempty"`
	Scheduled bool            `json:"scheduled,omitempty"`
	Route     string          `json:"route,omitempty"`
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		registry:      cfg.Registry,
		log:           cfg.Log,
		snoozer:       cfg.Snoozer,
		calc:          cfg.Calculator,
		clock:         cfg.Clock,
		snoozeMinutes: cfg.SnoozeMinutes,
		entryRoute:    cfg.EntryRoute,
		logger:        cfg.Logger,
	}
	if h.registry == nil {
		h.registry = NewRegistry(0, 0, nil)
	}
	if h.calc == nil {
		h.calc = trigger.New(nil)
	}
	if h.clock == nil {
		h.clock = clock.Real()
	}
	if h.snoozeMinutes <= 0 {
		h.snoozeMinutes = DefaultSnoozeMinutes
	}
	if h.entryRoute == "" {
		h.entryRoute = DefaultEntryRoute
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Registry exposes the delivered-notification registry.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Track records a freshly delivered notification.
func (h *Handler) Track(n models.DeliveredNotification) {
	h.registry.Track(n)
}

// Lookup returns a tracked notification by id.
func (h *Handler) Lookup(id string) (models.DeliveredNotification, bool) {
	return h.registry.lookup(id)
}

// Handle applies action to n. The notification does not need to be tracked
// or still visible; a repeated action on the same id is a no-op. An empty
// action is a click on the notification body and opens the app.
func (h *Handler) Handle(n models.DeliveredNotification, action string) (Result, error) {
	to, err := stateFor(action)
	if err != nil {
		return Result{}, err
	}

	prev, applied := h.registry.transition(n, to)
	if !applied {
		h.logger.Debug("notification already handled", "id", n.ID, "state", prev, "action", action)
		return Result{State: prev, Duplicate: true}, nil
	}

	res := Result{State: to}
	switch to {
	case Completed:
		if h.log != nil {
			h.log.OnExerciseCompleted(n.Exercise, n.Count)
		}
	case Snoozed:
		t := h.calc.Snooze(h.clock.Now(), h.snoozeMinutes, models.Exercise{Type: n.Exercise, Count: n.Count})
		res.Snooze = &t
		if h.snoozer != nil {
			res.Scheduled = h.snoozer.ScheduleOnce(t)
		}
		if !res.Scheduled {
			h.logger.Warn("snooze not scheduled, foreground scheduler not running", "id", n.ID, "firesAt", t.FiresAt)
		}
	case Opened:
		res.Route = h.entryRoute
	case Dismissed:
	}

	h.logger.Info("notification action", "id", n.ID, "action", action, "state", to)
	return res, nil
}

func stateFor(action string) (State, error) {
	switch action {
	case models.ActionComplete:
		return Completed, nil
	case models.ActionSnooze:
		return Snoozed, nil
	case models.ActionDismiss:
		return Dismissed, nil
	case models.ActionOpen, "":
		return Opened, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
}
