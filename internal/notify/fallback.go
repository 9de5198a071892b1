package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"fitremind/internal/models"
)

// Fallback delivers through primary and switches to secondary once primary
// reports ErrPermissionDenied. The primary is not tried again until
// ResetPermission is called, which only happens on an explicit user action.
// Other primary errors fall through to secondary for that delivery only.
type Fallback struct {
	primary   Notifier
	secondary Notifier
	logger    *slog.Logger

	mu     sync.Mutex
	denied bool
}

func NewFallback(primary, secondary Notifier, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Notify(ctx context.Context, p models.NotificationPayload) error {
	if !f.Denied() {
		err := f.primary.Notify(ctx, p)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			f.mu.Lock()
			f.denied = true
			f.mu.Unlock()
			f.logger.Warn("notification permission denied, using silent fallback", "error", err)
		} else {
			f.logger.Warn("primary notifier failed, using fallback", "error", err)
		}
	}
	return f.secondary.Notify(ctx, p)
}

// Denied reports whether the primary has been given up on.
func (f *Fallback) Denied() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.denied
}

// ResetPermission re-enables the primary after the user granted permission again.
func (f *Fallback) ResetPermission() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		f.logger.Info("notification permission restored")
	}
	f.denied = false
}
