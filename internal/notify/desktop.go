package notify

import (
	"context"
	"fmt"

	"fitremind/internal/models"
)

// platform is the OS-specific notification command.
type platform interface {
	supported() bool
	send(ctx context.Context, title, message string) error
}

// Desktop shows reminders with the local notification daemon. It is used
// by the host shell when it runs on a workstation.
type Desktop struct {
	p platform
}

func NewDesktop() *Desktop {
	return &Desktop{p: newPlatform()}
}

// Supported reports whether the platform has a notification command.
func (d *Desktop) Supported() bool {
	return d.p != nil && d.p.supported()
}

func (d *Desktop) Notify(ctx context.Context, p models.NotificationPayload) error {
	if !d.Supported() {
		return fmt.Errorf("%w: no desktop notification facility", ErrPermissionDenied)
	}
	return d.p.send(ctx, p.Title, p.Body)
}
