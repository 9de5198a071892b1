// Package registrar registers the background agent with whatever wakeup
// facility the host offers, preferring periodic wakeups over one-shot
// wakeups on reconnect.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fitremind/internal/clock"
	"fitremind/internal/models"
)

// ErrCapabilityUnsupported is returned by a WakeupSource the host cannot
// provide, and by Register when no source could be registered.
var ErrCapabilityUnsupported = errors.New("wakeup capability unsupported")

// WakeupSource is one host scheduling facility.
type WakeupSource interface {
	Kind() models.CapabilityKind
	Register(ctx context.Context, interval time.Duration) (models.CapabilityKind, error)
	Unregister(ctx context.Context) error
}

type Registrar struct {
	sources  []WakeupSource
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	active WakeupSource
	state  models.SyncRegistration
}

// New takes sources in order of preference. A zero interval registers at
// the config's reminder interval.
func New(sources []WakeupSource, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Registrar {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		sources:  sources,
		interval: interval,
		clock:    clk,
		logger:   logger,
		state:    models.SyncRegistration{Kind: models.CapabilityNone},
	}
}

// Register picks the strongest source that accepts the registration. A
// failing source is skipped in favour of the next one, and a disabled config
// unregisters. The error is only for diagnostics: it is non-nil when nothing
// at all could be registered.
func (r *Registrar) Register(ctx context.Context, cfg models.ReminderConfig) (models.SyncRegistration, error) {
	if !cfg.Enabled {
		err := r.Unregister(ctx)
		return r.CapabilityState(), err
	}

	interval := r.interval
	if interval <= 0 {
		interval = time.Duration(cfg.IntervalMinutes) * time.Minute
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, src := range r.sources {
		kind, err := src.Register(ctx, interval)
		if err != nil {
			r.logger.Debug("wakeup source unavailable, trying next", "kind", src.Kind(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Kind(), err))
			continue
		}

		if r.active != nil && r.active != src {
			if err := r.active.Unregister(ctx); err != nil {
				r.logger.Warn("failed to unregister previous wakeup source", "kind", r.active.Kind(), "error", err)
			}
		}
		r.active = src
		now := r.clock.Now()
		r.state = models.SyncRegistration{Kind: kind, Interval: interval, RegisteredAt: &now}
		if len(errs) > 0 {
			r.state.LastError = errors.Join(errs...).Error()
		}
		r.logger.Info("background wakeup registered", "kind", kind, "interval", interval)
		return r.state, nil
	}

	r.dropActiveLocked(ctx)
	err := ErrCapabilityUnsupported
	if len(errs) > 0 {
		err = fmt.Errorf("%w: %w", ErrCapabilityUnsupported, errors.Join(errs...))
	}
	r.state = models.SyncRegistration{Kind: models.CapabilityNone, LastError: err.Error()}
	r.logger.Warn("no background wakeup available, reminders only while the app is open", "error", err)
	return r.state, err
}

// Unregister removes any registration. It is idempotent and a failure of
// the host facility is logged, not returned.
func (r *Registrar) Unregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil && !r.state.Active() {
		return nil
	}
	r.dropActiveLocked(ctx)
	r.state = models.SyncRegistration{Kind: models.CapabilityNone}
	r.logger.Info("background wakeup unregistered")
	return nil
}

// CapabilityState is for diagnostics only. Scheduling decisions re-check
// the live config instead.
func (r *Registrar) CapabilityState() models.SyncRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state
	if st.RegisteredAt != nil {
		t := *st.RegisteredAt
		st.RegisteredAt = &t
	}
	return st
}

func (r *Registrar) dropActiveLocked(ctx context.Context) {
	if r.active == nil {
		return
	}
	if err := r.active.Unregister(ctx); err != nil {
		r.logger.Warn("failed to unregister wakeup source", "kind", r.active.Kind(), "error", err)
	}
	r.active = nil
}
