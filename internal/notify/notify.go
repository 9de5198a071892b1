// Package notify delivers reminder payloads to the host notification
// facility. Web push reaches installed PWAs, the desktop notifier covers the
// local shell, and the badge is the silent fallback used once notification
// permission is refused.
package notify

import (
	"context"
	"errors"
	"fmt"

	"fitremind/internal/models"
)

var (
	// ErrPermissionDenied means the user refused or revoked notification
	// permission. Callers must not re-prompt on their own.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrNotConfigured means the delivery channel lacks its credentials.
	ErrNotConfigured = errors.New("notification channel not configured")
)

type Notifier interface {
	Notify(ctx context.Context, p models.NotificationPayload) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, p models.NotificationPayload) error

func (f Func) Notify(ctx context.Context, p models.NotificationPayload) error {
	return f(ctx, p)
}

// BuildPayload renders the reminder notification for n. token is the signed
// action token and may be empty.
func BuildPayload(n models.DeliveredNotification, token string) models.NotificationPayload {
	return models.NotificationPayload{
		Title: "Time to move",
		Body:  fmt.Sprintf("%d %s", n.Count, n.Exercise),
		Tag:   models.NotificationTag,
		Actions: []models.NotificationAction{
			{ID: models.ActionComplete, Label: "Done"},
			{ID: models.ActionSnooze, Label: "Snooze"},
		},
		Data: models.NotificationData{
			ID:           n.ID,
			ExerciseType: n.Exercise,
			Count:        n.Count,
			Timestamp:    n.CreatedAt,
			Token:        token,
		},
	}
}
