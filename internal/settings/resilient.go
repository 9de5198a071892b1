package settings

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fitremind/internal/models"
)

// Resilient keeps the last known record in memory and keeps serving it when
// the backing store fails, so the foreground context can keep scheduling for
// the rest of the session. Write failures are logged and not returned.
// A config saved while degraded is written back once the store returns.
type Resilient struct {
	inner  Store
	logger *slog.Logger

	mu       sync.Mutex
	last     models.Settings
	have     bool
	dirty    bool
	degraded bool
}

func NewResilient(inner Store, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{inner: inner, logger: logger}
}

// Degraded reports whether the last storage operation failed.
func (r *Resilient) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// Unwrap returns the backing store.
func (r *Resilient) Unwrap() Store {
	return r.inner
}

func (r *Resilient) Load(ctx context.Context) (models.Settings, error) {
	r.mu.Lock()
	dirty, pending := r.dirty, r.last.Config()
	r.mu.Unlock()

	if dirty {
		if err := r.inner.SaveConfig(ctx, pending); err == nil {
			r.mu.Lock()
			r.dirty = false
			r.mu.Unlock()
			r.logger.Info("settings storage recovered, pending config written")
		}
	}

	st, err := r.inner.Load(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.markDegradedLocked("load", err)
		if r.have {
			return copySettings(r.last), nil
		}
		return models.DefaultSettings(), nil
	}
	if r.dirty {
		// The write-back failed; memory is still newer than the store.
		st = models.NewSettings(r.last.Config(), st.Checkpoint)
	} else {
		r.degraded = false
	}
	r.last = copySettings(st)
	r.have = true
	return st, nil
}

func (r *Resilient) SaveConfig(ctx context.Context, cfg models.ReminderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.last = models.NewSettings(cfg, r.last.Checkpoint)
	r.have = true
	r.mu.Unlock()

	err := r.inner.SaveConfig(ctx, cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.markDegradedLocked("save", err)
		r.dirty = true
		return nil
	}
	r.dirty = false
	r.degraded = false
	return nil
}

func (r *Resilient) CompareAndSwapCheckpoint(ctx context.Context, old, next *time.Time) (bool, error) {
	ok, err := r.inner.CompareAndSwapCheckpoint(ctx, old, next)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.markDegradedLocked("checkpoint", err)
		if !sameCheckpoint(r.last.Checkpoint, old) {
			return false, nil
		}
		r.last.Checkpoint = copyTime(next)
		return true, nil
	}
	if ok {
		r.last.Checkpoint = copyTime(next)
	}
	return ok, nil
}

// Watch forwards to the backing store when it supports change notification.
func (r *Resilient) Watch(ctx context.Context, onChange func()) error {
	w, ok := r.inner.(Watcher)
	if !ok {
		return errors.New("settings store does not support watching")
	}
	return w.Watch(ctx, onChange)
}

func (r *Resilient) markDegradedLocked(op string, err error) {
	if !r.degraded {
		r.logger.Warn("settings storage unavailable, continuing in foreground-only mode", "op", op, "error", err)
	}
	r.degraded = true
}
