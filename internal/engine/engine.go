// Package engine wires the reminder components together for the host shell.
// It owns the foreground copy of the config, which keeps scheduling alive
// when the settings store is unavailable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"fitremind/internal/actions"
	"fitremind/internal/auth"
	"fitremind/internal/background"
	"fitremind/internal/channel"
	"fitremind/internal/clock"
	"fitremind/internal/models"
	"fitremind/internal/notify"
	"fitremind/internal/registrar"
	"fitremind/internal/scheduler"
	"fitremind/internal/settings"
	"fitremind/internal/trigger"

	"github.com/google/uuid"
)

var ErrUnknownNotification = errors.New("unknown notification")

type Deps struct {
	Store    settings.Store
	Notifier notify.Notifier

	// Optional collaborators.
	Badge       *notify.Badge
	Fallback    *notify.Fallback
	Tokens      *auth.Signer
	ExerciseLog actions.ExerciseLog
	Channel     channel.MessageChannel
	Clock       clock.Clock
	Random      trigger.RandomSource
	Logger      *slog.Logger

	Defaults            models.ReminderConfig
	SnoozeMinutes       int
	EntryRoute          string
	WakeBudget          time.Duration
	PeriodicSync        bool
	PeriodicInterval    time.Duration
	MinPeriodicInterval time.Duration
}

type Engine struct {
	store     settings.Store
	calc      *trigger.Calculator
	sched     *scheduler.Scheduler
	agent     *background.Agent
	actions   *actions.Handler
	registrar *registrar.Registrar
	reconnect *registrar.Reconnect
	channel   channel.MessageChannel
	badge     *notify.Badge
	fallback  *notify.Fallback
	tokens    *auth.Signer
	clock     clock.Clock
	logger    *slog.Logger
	defaults  models.ReminderConfig
	id        string // tags outgoing messages so echoes are ignored

	mu      sync.RWMutex
	cfg     models.ReminderConfig
	started bool
	cancel  context.CancelFunc
}

func New(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Channel == nil {
		d.Channel = channel.NewLocal(0, d.Logger)
	}
	if d.Defaults.IntervalMinutes == 0 {
		d.Defaults = models.DefaultConfig()
	}

	e := &Engine{
		store:    d.Store,
		calc:     trigger.New(d.Random),
		channel:  d.Channel,
		badge:    d.Badge,
		fallback: d.Fallback,
		tokens:   d.Tokens,
		clock:    d.Clock,
		logger:   d.Logger,
		defaults: d.Defaults,
		id:       uuid.NewString(),
		cfg:      d.Defaults.Clone(),
	}

	e.sched = scheduler.New(e.calc, d.Clock, e.Config, d.Logger.With("component", "scheduler"))

	e.actions = actions.NewHandler(actions.Config{
		Registry:      actions.NewRegistry(0, 0, d.Clock.Now),
		Log:           d.ExerciseLog,
		Snoozer:       e.sched,
		Calculator:    e.calc,
		Clock:         d.Clock,
		SnoozeMinutes: d.SnoozeMinutes,
		EntryRoute:    d.EntryRoute,
		Logger:        d.Logger.With("component", "actions"),
	})

	agentCfg := background.Config{
		Store:       d.Store,
		Calculator:  e.calc,
		Notifier:    d.Notifier,
		Clock:       d.Clock,
		Budget:      d.WakeBudget,
		Logger:      d.Logger.With("component", "agent"),
		OnDelivered: e.actions.Track,
	}
	if d.Tokens != nil {
		agentCfg.Tokens = d.Tokens
	}
	e.agent = background.New(agentCfg)

	permitted := d.PeriodicSync
	ticker := registrar.NewTicker(e.wake, d.Clock, func() bool { return permitted }, d.MinPeriodicInterval)
	e.reconnect = registrar.NewReconnect(e.wake)
	e.registrar = registrar.New(
		[]registrar.WakeupSource{ticker, e.reconnect},
		d.PeriodicInterval, d.Clock, d.Logger.With("component", "registrar"),
	)

	e.sched.OnDue(func(t models.Trigger) {
		ctx := context.Background()
		if !t.Snooze {
			// The scheduler re-arms from Config right after this returns.
			if cfg, changed := e.refresh(ctx); changed {
				e.register(ctx, cfg)
			}
		}
		e.agent.Deliver(ctx, t)
	})
	e.channel.OnMessage(func(msg models.Message) {
		e.HandleMessage(context.Background(), msg)
	})
	return e
}

// Start loads the stored config, seeds it from the defaults when nothing was
// configured yet, and starts the foreground scheduler and background
// registration.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	st, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Warn("could not load settings, using defaults", "error", err)
		st = models.NewSettings(e.defaults, nil)
	}
	cfg := st.Config()
	if st.Checkpoint == nil && sameConfig(cfg, models.DefaultConfig()) && !sameConfig(cfg, e.defaults) {
		cfg = e.defaults.Clone()
		if err := e.store.SaveConfig(ctx, cfg); err != nil {
			e.logger.Warn("could not seed settings", "error", err)
		}
	}

	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()

	e.sched.Start()
	e.register(ctx, cfg)

	if w, ok := e.store.(settings.Watcher); ok {
		if err := w.Watch(runCtx, e.reload); err != nil {
			e.logger.Debug("settings store cannot be watched", "error", err)
		}
	}
	e.logger.Info("reminder engine started", "enabled", cfg.Enabled, "interval", cfg.IntervalMinutes)
	return nil
}

// Stop halts foreground scheduling and the in-process wakeup sources.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.sched.Stop()
	e.registrar.Unregister(ctx)
	return e.channel.Close()
}

func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// Config returns the foreground copy of the config.
func (e *Engine) Config() models.ReminderConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Clone()
}

// Settings returns the persisted record.
func (e *Engine) Settings(ctx context.Context) (models.Settings, error) {
	return e.store.Load(ctx)
}

// UpdateConfig validates, applies and persists cfg and tells the
// background context about it.
func (e *Engine) UpdateConfig(ctx context.Context, cfg models.ReminderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.apply(ctx, cfg, true); err != nil {
		return err
	}
	c := cfg.Clone()
	e.publish(ctx, models.Message{Type: models.MessageUpdateReminders, Config: &c})
	return nil
}

// Cancel disables reminders everywhere.
func (e *Engine) Cancel(ctx context.Context) error {
	cfg := e.Config()
	cfg.Enabled = false
	if err := e.apply(ctx, cfg, true); err != nil {
		return err
	}
	e.publish(ctx, models.Message{Type: models.MessageCancelReminders})
	return nil
}

// HandleMessage applies a message from another process. Our own messages
// and messages matching the current config are ignored.
func (e *Engine) HandleMessage(ctx context.Context, msg models.Message) {
	if msg.Source == e.id {
		return
	}
	var err error
	switch msg.Type {
	case models.MessageUpdateReminders:
		if msg.Config == nil {
			e.reload()
			return
		}
		if sameConfig(*msg.Config, e.Config()) {
			return
		}
		if err = msg.Config.Validate(); err == nil {
			err = e.apply(ctx, *msg.Config, true)
		}
	case models.MessageCancelReminders:
		cfg := e.Config()
		if !cfg.Enabled {
			return
		}
		cfg.Enabled = false
		err = e.apply(ctx, cfg, true)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		e.logger.Warn("dropping message", "type", msg.Type, "error", err)
	}
}

// Wake runs one background agent invocation.
func (e *Engine) Wake(ctx context.Context) background.Result {
	return e.agent.Run(ctx)
}

func (e *Engine) wake(ctx context.Context) {
	e.agent.Run(ctx)
}

// Reconnected is the host's signal that connectivity is back.
func (e *Engine) Reconnected(ctx context.Context) bool {
	return e.reconnect.Reconnected(ctx)
}

func (e *Engine) VisibilityChanged(visible bool) {
	if visible && e.Started() {
		ctx := context.Background()
		if cfg, changed := e.refresh(ctx); changed {
			e.register(ctx, cfg)
		}
	}
	e.sched.VisibilityChanged(visible)
}

// PermissionGranted is called on an explicit user action that granted
// notification permission again, such as a new push subscription.
func (e *Engine) PermissionGranted() {
	if e.fallback != nil {
		e.fallback.ResetPermission()
	}
}

// HandleAction applies a notification action posted back by the host. With
// a token signer the token alone identifies the notification; otherwise
// the id must still be in the registry.
func (e *Engine) HandleAction(ctx context.Context, id, action, token string) (actions.Result, error) {
	var n models.DeliveredNotification
	if e.tokens != nil {
		claims, err := e.tokens.Validate(token, id)
		if err != nil {
			return actions.Result{}, err
		}
		n = claims.Notification()
	} else {
		var ok bool
		if n, ok = e.actions.Lookup(id); !ok {
			return actions.Result{}, fmt.Errorf("%w: %s", ErrUnknownNotification, id)
		}
	}

	res, err := e.actions.Handle(n, action)
	if err != nil {
		return res, err
	}
	if res.State == actions.Opened && e.badge != nil {
		e.badge.Clear()
	}
	return res, nil
}

type Status struct {
	Enabled          bool                    `json:"enabled"`
	Scheduler        string                  `json:"scheduler"`
	Next             *models.Trigger         `json:"nextTrigger"`
	Snoozes          []models.Trigger        `json:"snoozes"`
	Registration     models.SyncRegistration `json:"registration"`
	StorageDegraded  bool                    `json:"storageDegraded"`
	PermissionDenied bool                    `json:"permissionDenied"`
	Badge            int                     `json:"badge"`
	Pending          int                     `json:"pendingNotifications"`
}

// Status is for diagnostics. When the scheduler is not running the next
// trigger is computed from the current config.
func (e *Engine) Status(ctx context.Context) Status {
	cfg := e.Config()
	started := e.Started()
	if !started {
		if st, err := e.store.Load(ctx); err == nil {
			cfg = st.Config()
		}
	}

	s := Status{
		Enabled:      cfg.Enabled,
		Scheduler:    e.sched.State().String(),
		Snoozes:      e.sched.Snoozes(),
		Registration: e.registrar.CapabilityState(),
		Pending:      len(e.actions.Registry().Pending()),
	}
	if t, ok := e.sched.Next(); ok {
		s.Next = &t
	} else if !started {
		if t, ok := e.calc.Next(e.clock.Now(), cfg); ok {
			s.Next = &t
		}
	}
	if r, ok := e.store.(*settings.Resilient); ok {
		s.StorageDegraded = r.Degraded()
	}
	if e.fallback != nil {
		s.PermissionDenied = e.fallback.Denied()
	}
	if e.badge != nil {
		s.Badge = e.badge.Count()
	}
	return s
}

func (e *Engine) apply(ctx context.Context, cfg models.ReminderConfig, persist bool) error {
	e.mu.Lock()
	e.cfg = cfg.Clone()
	e.mu.Unlock()

	if persist {
		if err := e.store.SaveConfig(ctx, cfg); err != nil {
			if errors.Is(err, models.ErrInvalidConfig) {
				return err
			}
			e.logger.Warn("settings not persisted, continuing in memory", "error", err)
		}
	}

	// A one-shot command only persists; wakeups belong to the server.
	if e.Started() {
		e.sched.Reschedule()
		e.register(ctx, cfg)
	}
	return nil
}

func (e *Engine) register(ctx context.Context, cfg models.ReminderConfig) {
	if _, err := e.registrar.Register(ctx, cfg); err != nil {
		e.logger.Debug("background wakeup unavailable", "error", err)
	}
}

// reload picks up a config written by another process and re-arms.
func (e *Engine) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg, changed := e.refresh(ctx); changed && e.Started() {
		e.sched.Reschedule()
		e.register(ctx, cfg)
	}
}

// refresh re-reads the store into the foreground copy. A store that cannot
// be read leaves the copy as is. It never calls into the scheduler, so it
// is safe from the due callback.
func (e *Engine) refresh(ctx context.Context) (models.ReminderConfig, bool) {
	st, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Warn("reload settings failed", "error", err)
		return e.Config(), false
	}
	cfg := st.Config()

	e.mu.Lock()
	changed := !sameConfig(cfg, e.cfg)
	if changed {
		e.cfg = cfg.Clone()
	}
	e.mu.Unlock()

	if changed {
		e.logger.Info("settings changed externally", "enabled", cfg.Enabled, "interval", cfg.IntervalMinutes)
	}
	return cfg, changed
}

func (e *Engine) publish(ctx context.Context, msg models.Message) {
	msg.Source = e.id
	if err := e.channel.Send(ctx, msg); err != nil {
		e.logger.Warn("message not sent", "type", msg.Type, "error", err)
	}
}

func sameConfig(a, b models.ReminderConfig) bool {
	return a.Enabled == b.Enabled &&
		a.Window == b.Window &&
		a.IntervalMinutes == b.IntervalMinutes &&
		slices.Equal(a.Exercises, b.Exercises)
}
