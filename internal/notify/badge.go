package notify

import (
	"context"
	"sync"

	"fitremind/internal/models"
)

// Badge is the silent in-app fallback: it counts reminders the user has not
// seen and keeps the latest one for the app to render. It never fails.
type Badge struct {
	mu     sync.Mutex
	count  int
	latest *models.NotificationPayload
}

func NewBadge() *Badge {
	return &Badge{}
}

func (b *Badge) Notify(ctx context.Context, p models.NotificationPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	b.latest = &p
	return nil
}

// Count returns the number of unseen reminders.
func (b *Badge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Latest returns the most recent reminder, if any.
func (b *Badge) Latest() (models.NotificationPayload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return models.NotificationPayload{}, false
	}
	return *b.latest, true
}

// Clear resets the badge once the app has shown it.
func (b *Badge) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
	b.latest = nil
}
