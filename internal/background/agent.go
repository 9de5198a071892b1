// Package background delivers reminders when the foreground scheduler is
// not running. Each invocation is short-lived: it reads the settings record,
// decides from the persisted checkpoint whether a slot came due since the
// last delivery, and emits at most one notification.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fitremind/internal/clock"
	"fitremind/internal/models"
	"fitremind/internal/notify"
	"fitremind/internal/settings"
	"fitremind/internal/trigger"

	"github.com/google/uuid"
)

// DefaultBudget bounds a single invocation.
const DefaultBudget = 10 * time.Second

type Outcome string

const (
	Delivered Outcome = "delivered"
	NotDue    Outcome = "notDue"
	Disabled  Outcome = "disabled"
	Claimed   Outcome = "claimedElsewhere" // another context delivered this slot
	Baseline  Outcome = "baseline"         // first run or stale checkpoint, nothing was due
	Failed    Outcome = "failed"
)

// Result describes one invocation. Err is informational only; it has
// already been logged.
type Result struct {
	Outcome      Outcome                       `json:"outcome"`
	Trigger      *models.Trigger               `json:"trigger,omitempty"`
	Notification *models.DeliveredNotification `json:"notification,omitempty"`
	Err          error                         `json:"-"`
}

// TokenIssuer signs the action token placed in notification data.
type TokenIssuer interface {
	Issue(n models.DeliveredNotification) (string, error)
}

type Config struct {
	Store      settings.Store
	Calculator *trigger.Calculator
	Notifier   notify.Notifier
	Tokens     TokenIssuer // optional
	Clock      clock.Clock
	Budget     time.Duration
	Logger     *slog.Logger

	// OnDelivered is called after every successful emission.
	OnDelivered func(models.DeliveredNotification)
}

type Agent struct {
	store       settings.Store
	calc        *trigger.Calculator
	notifier    notify.Notifier
	tokens      TokenIssuer
	clock       clock.Clock
	budget      time.Duration
	logger      *slog.Logger
	onDelivered func(models.DeliveredNotification)
	newID       func() string
}

func New(cfg Config) *Agent {
	a := &Agent{
		store:       cfg.Store,
		calc:        cfg.Calculator,
		notifier:    cfg.Notifier,
		tokens:      cfg.Tokens,
		clock:       cfg.Clock,
		budget:      cfg.Budget,
		logger:      cfg.Logger,
		onDelivered: cfg.OnDelivered,
		newID:       uuid.NewString,
	}
	if a.calc == nil {
		a.calc = trigger.New(nil)
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}
	if a.budget <= 0 {
		a.budget = DefaultBudget
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Run is one host-driven wakeup. It never returns an error and never
// panics: a failure reaching the host dispatcher could get the wakeup
// capability revoked.
func (a *Agent) Run(ctx context.Context) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()
	defer a.recoverInto(&res)

	st, err := a.store.Load(ctx)
	if err != nil {
		return a.fail("load settings", err)
	}
	cfg := st.Config()
	if !cfg.Enabled {
		return Result{Outcome: Disabled}
	}

	now := a.clock.Now()
	old := st.Checkpoint

	if old == nil || old.After(now) {
		if old != nil {
			a.logger.Warn("checkpoint is in the future, recomputing", "checkpoint", old.Format(time.RFC3339), "now", now.Format(time.RFC3339))
		}
		t, ok := a.calc.Next(now, cfg)
		if !ok {
			return Result{Outcome: NotDue}
		}
		if !t.FiresAt.Equal(now.Truncate(time.Minute)) {
			// Nothing to catch up on: remember where we are so the next
			// wakeup can tell whether a slot passed in between.
			if _, err := a.store.CompareAndSwapCheckpoint(ctx, old, &now); err != nil {
				return a.fail("set checkpoint", err)
			}
			return Result{Outcome: Baseline, Trigger: &t}
		}
		return a.claimAndEmit(ctx, old, now, t)
	}

	t, ok := a.calc.NextAfter(old.In(now.Location()), cfg)
	if !ok {
		return Result{Outcome: NotDue}
	}
	if t.FiresAt.After(now) {
		a.logger.Debug("no reminder due", "next", t.FiresAt.Format(time.RFC3339))
		return Result{Outcome: NotDue, Trigger: &t}
	}
	if !trigger.InWindow(now, cfg.Window) {
		// The missed slot is not caught up outside active hours; only
		// snoozes may fire there.
		if _, err := a.store.CompareAndSwapCheckpoint(ctx, old, &now); err != nil {
			return a.fail("set checkpoint", err)
		}
		return Result{Outcome: Baseline, Trigger: &t}
	}
	return a.claimAndEmit(ctx, old, now, t)
}

// Deliver emits a trigger fired by the foreground scheduler. Regular
// triggers go through the same checkpoint claim as Run so a slot already
// delivered by a background wakeup is not shown twice. Snoozes are emitted
// unconditionally and leave the checkpoint alone.
func (a *Agent) Deliver(ctx context.Context, t models.Trigger) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()
	defer a.recoverInto(&res)

	now := a.clock.Now()
	if t.Snooze {
		return a.emit(ctx, now, t)
	}

	st, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Warn("settings unavailable, delivering without checkpoint", "error", err)
		return a.emit(ctx, now, t)
	}
	cfg := st.Config()
	if !cfg.Enabled {
		return Result{Outcome: Disabled}
	}
	if slot, ok := trigger.NextSlot(t.FiresAt, cfg); !ok || !slot.Equal(t.FiresAt) {
		// Armed under a config another process has since replaced.
		a.logger.Debug("trigger no longer matches the stored config", "firesAt", t.FiresAt.Format(time.RFC3339))
		return Result{Outcome: NotDue}
	}
	if st.Checkpoint != nil && !st.Checkpoint.Before(t.FiresAt) && !st.Checkpoint.After(now) {
		return Result{Outcome: Claimed, Trigger: &t}
	}
	return a.claimAndEmit(ctx, st.Checkpoint, now, t)
}

func (a *Agent) claimAndEmit(ctx context.Context, old *time.Time, now time.Time, t models.Trigger) Result {
	claim := now
	ok, err := a.store.CompareAndSwapCheckpoint(ctx, old, &claim)
	if err != nil {
		return a.fail("claim checkpoint", err)
	}
	if !ok {
		a.logger.Debug("slot already claimed", "firesAt", t.FiresAt.Format(time.RFC3339))
		return Result{Outcome: Claimed, Trigger: &t}
	}

	// A cancel may have landed after the load; it cannot retract this
	// wakeup, so check again right before emitting.
	if st, err := a.store.Load(ctx); err == nil && !st.Enabled {
		return Result{Outcome: Disabled}
	}

	res := a.emit(ctx, now, t)
	if res.Outcome == Failed {
		if _, err := a.store.CompareAndSwapCheckpoint(ctx, &claim, old); err != nil {
			a.logger.Warn("failed to release checkpoint claim", "error", err)
		}
	}
	return res
}

func (a *Agent) emit(ctx context.Context, now time.Time, t models.Trigger) Result {
	n := models.DeliveredNotification{
		ID:        a.newID(),
		Exercise:  t.Exercise.Type,
		Count:     t.Exercise.Count,
		CreatedAt: now,
	}

	var token string
	if a.tokens != nil {
		var err error
		if token, err = a.tokens.Issue(n); err != nil {
			a.logger.Warn("failed to sign action token", "error", err)
			token = ""
		}
	}

	if err := a.notifier.Notify(ctx, notify.BuildPayload(n, token)); err != nil {
		res := a.fail("notify", err)
		res.Trigger = &t
		return res
	}

	a.logger.Info("reminder delivered", "id", n.ID, "exercise", n.Exercise, "count", n.Count,
		"firesAt", t.FiresAt.Format(time.RFC3339), "snooze", t.Snooze)
	if a.onDelivered != nil {
		a.onDelivered(n)
	}
	return Result{Outcome: Delivered, Trigger: &t, Notification: &n}
}

func (a *Agent) fail(op string, err error) Result {
	err = fmt.Errorf("%s: %w", op, err)
	a.logger.Warn("background delivery failed", "error", err)
	return Result{Outcome: Failed, Err: err}
}

func (a *Agent) recoverInto(res *Result) {
	if r := recover(); r != nil {
		*res = a.fail("panic", fmt.Errorf("%v", r))
	}
}
