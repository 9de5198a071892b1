package registrar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fitremind/internal/clock"
	"fitremind/internal/models"
)

// WakeFunc runs one background agent invocation.
type WakeFunc func(ctx context.Context)

// Ticker is the periodic capability. It wakes the agent every interval
// using re-armed single-shot timers. Permission models the host's periodic
// sync grant; MinInterval is the host's floor and shorter requests are
// raised to it.
type Ticker struct {
	wake        WakeFunc
	clock       clock.Clock
	permitted   func() bool
	minInterval time.Duration

	mu       sync.Mutex
	timer    clock.Timer
	gen      uint64
	interval time.Duration
}

func NewTicker(wake WakeFunc, clk clock.Clock, permitted func() bool, minInterval time.Duration) *Ticker {
	if clk == nil {
		clk = clock.Real()
	}
	if permitted == nil {
		permitted = func() bool { return true }
	}
	return &Ticker{wake: wake, clock: clk, permitted: permitted, minInterval: minInterval}
}

func (t *Ticker) Kind() models.CapabilityKind {
	return models.CapabilityPeriodicSync
}

func (t *Ticker) Register(ctx context.Context, interval time.Duration) (models.CapabilityKind, error) {
	if !t.permitted() {
		return models.CapabilityNone, fmt.Errorf("%w: periodic sync permission not granted", ErrCapabilityUnsupported)
	}
	if interval < t.minInterval {
		interval = t.minInterval
	}
	if interval <= 0 {
		return models.CapabilityNone, fmt.Errorf("%w: invalid interval %s", ErrCapabilityUnsupported, interval)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.interval = interval
	t.armLocked()
	return models.CapabilityPeriodicSync, nil
}

func (t *Ticker) Unregister(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	return nil
}

// Interval returns the registered interval, zero when not registered.
func (t *Ticker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Ticker) armLocked() {
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.interval, func() { t.tick(gen) })
}

func (t *Ticker) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.interval = 0
}

func (t *Ticker) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	// Re-arm first so a slow wake does not stretch the period.
	t.armLocked()
	t.mu.Unlock()

	t.wake(context.Background())
}

// Reconnect is the weaker best-effort capability: the agent runs once each
// time the host reports connectivity is back.
type Reconnect struct {
	wake WakeFunc

	mu         sync.Mutex
	registered bool
}

func NewReconnect(wake WakeFunc) *Reconnect {
	return &Reconnect{wake: wake}
}

func (r *Reconnect) Kind() models.CapabilityKind {
	return models.CapabilityBackgroundSyncOnly
}

func (r *Reconnect) Register(ctx context.Context, interval time.Duration) (models.CapabilityKind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = true
	return models.CapabilityBackgroundSyncOnly, nil
}

func (r *Reconnect) Unregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = false
	return nil
}

// Reconnected runs the agent once if registered. It reports whether it did.
func (r *Reconnect) Reconnected(ctx context.Context) bool {
	r.mu.Lock()
	registered := r.registered
	r.mu.Unlock()
	if !registered {
		return false
	}
	r.wake(ctx)
	return true
}
