package settings

import (
	"context"
	"sync"
	"time"

	"fitremind/internal/models"
)

// MemoryStore is process-local. It backs tests and the foreground-only mode.
type MemoryStore struct {
	mu sync.Mutex
	st models.Settings
}

func NewMemoryStore(initial models.Settings) *MemoryStore {
	return &MemoryStore{st: copySettings(initial)}
}

func (s *MemoryStore) Load(ctx context.Context) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySettings(s.st), nil
}

func (s *MemoryStore) SaveConfig(ctx context.Context, cfg models.ReminderConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = models.NewSettings(cfg, s.st.Checkpoint)
	return nil
}

func (s *MemoryStore) CompareAndSwapCheckpoint(ctx context.Context, old, next *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sameCheckpoint(s.st.Checkpoint, old) {
		return false, nil
	}
	s.st.Checkpoint = copyTime(next)
	return true, nil
}

func copySettings(s models.Settings) models.Settings {
	return models.NewSettings(s.Config(), copyTime(s.Checkpoint))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
