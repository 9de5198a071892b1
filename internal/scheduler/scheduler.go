// Package scheduler runs reminders while the application is in the
// foreground. It arms one single-shot timer per trigger and re-arms after
// every firing, so wakeups never drift against the slot grid.
package scheduler

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"fitremind/internal/clock"
	"fitremind/internal/models"
	"fitremind/internal/trigger"
)

type State int

const (
	Idle State = iota
	Armed
	Firing
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	default:
		return "idle"
	}
}

// ConfigFunc returns the config in effect right now. It is called with the
// scheduler's lock held and must not call back into the scheduler.
type ConfigFunc func() models.ReminderConfig

type Scheduler struct {
	calc   *trigger.Calculator
	clock  clock.Clock
	config ConfigFunc
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	firing   bool
	visible  bool
	onDue    func(models.Trigger)
	timer    clock.Timer
	next     *models.Trigger
	gen      uint64
	lastSlot time.Time // latest slot already delivered by this scheduler
	seq      uint64
	once     map[uint64]*oneShot
}

type oneShot struct {
	trigger models.Trigger
	timer   clock.Timer
}

func New(calc *trigger.Calculator, clk clock.Clock, config ConfigFunc, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		calc:    calc,
		clock:   clk,
		config:  config,
		logger:  logger,
		visible: true,
		once:    make(map[uint64]*oneShot),
	}
}

// OnDue sets the callback invoked for every due trigger, regular or snoozed.
// It runs without the scheduler lock held.
func (s *Scheduler) OnDue(cb func(models.Trigger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDue = cb
}

// Start arms the next trigger. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.armLocked(s.clock.Now())
	s.logger.Info("foreground scheduler started", "next", s.nextTimeLocked())
}

// Stop cancels every pending wakeup, snoozes included. Safe in any state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.disarmLocked()
	s.cancelSnoozesLocked()
	s.logger.Info("foreground scheduler stopped")
}

// Reschedule recomputes the next trigger from the current config. It is
// called whenever the config changes.
func (s *Scheduler) Reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.armLocked(s.clock.Now())
}

// ScheduleOnce arms a one-off trigger next to the regular cadence. Snoozes
// use it; the trigger fires regardless of the active window. It reports
// false when the scheduler is not running.
func (s *Scheduler) ScheduleOnce(t models.Trigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.seq++
	id := s.seq
	delay := t.FiresAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.once[id] = &oneShot{
		trigger: t,
		timer:   s.clock.AfterFunc(delay, func() { s.fireOnce(id) }),
	}
	return true
}

// VisibilityChanged tells the scheduler whether the host is showing the
// application. A suspended context may not run its timers, so on
// hidden -> visible a reminder that came due while hidden fires once
// and the next slot is armed.
func (s *Scheduler) VisibilityChanged(visible bool) {
	s.mu.Lock()
	wasVisible := s.visible
	s.visible = visible
	if !s.running || !visible || wasVisible {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	var due []uint64
	for id, o := range s.once {
		if !now.Before(o.trigger.FiresAt) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	regularDue := s.next != nil && !now.Before(s.next.FiresAt)
	gen := s.gen
	if !regularDue {
		s.armLocked(now)
	}
	s.mu.Unlock()

	for _, id := range due {
		s.fireOnce(id)
	}
	if regularDue {
		s.fire(gen)
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.firing:
		return Firing
	case s.running && (s.next != nil || len(s.once) > 0):
		return Armed
	default:
		return Idle
	}
}

// Next returns the armed regular trigger.
func (s *Scheduler) Next() (models.Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return models.Trigger{}, false
	}
	return *s.next, true
}

// Snoozes returns pending one-off triggers ordered by fire time.
func (s *Scheduler) Snoozes() []models.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Trigger, 0, len(s.once))
	for _, o := range s.once {
		out = append(out, o.trigger)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiresAt.Before(out[j].FiresAt) })
	return out
}

func (s *Scheduler) armLocked(now time.Time) {
	s.disarmLocked()

	cfg := s.config()
	t, ok := s.calc.Next(now, cfg)
	if ok && !s.lastSlot.IsZero() && !t.FiresAt.After(s.lastSlot) {
		t, ok = s.calc.NextAfter(s.lastSlot, cfg)
	}
	if !ok {
		// Disabled: nothing regular to arm and pending snoozes go too.
		s.cancelSnoozesLocked()
		return
	}

	s.next = &t
	gen := s.gen
	delay := t.FiresAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *Scheduler) disarmLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.next = nil
}

func (s *Scheduler) cancelSnoozesLocked() {
	for id, o := range s.once {
		o.timer.Stop()
		delete(s.once, id)
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.running || s.next == nil {
		s.mu.Unlock()
		return
	}
	t := *s.next
	s.disarmLocked()
	now := s.clock.Now()
	s.lastSlot = t.FiresAt
	if fm := now.Truncate(time.Minute); fm.After(s.lastSlot) {
		// Slots that passed while suspended are covered by this delivery.
		s.lastSlot = fm
	}
	s.firing = true
	cb := s.onDue
	s.mu.Unlock()

	s.deliver(cb, t)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.firing = false
	if s.running {
		s.armLocked(s.clock.Now())
	}
}

func (s *Scheduler) fireOnce(id uint64) {
	s.mu.Lock()
	o, ok := s.once[id]
	if !ok || !s.running {
		s.mu.Unlock()
		return
	}
	delete(s.once, id)
	o.timer.Stop()
	s.firing = true
	cb := s.onDue
	s.mu.Unlock()

	s.deliver(cb, o.trigger)

	s.mu.Lock()
	s.firing = false
	s.mu.Unlock()
}

func (s *Scheduler) deliver(cb func(models.Trigger), t models.Trigger) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reminder callback panicked", "panic", r, "firesAt", t.FiresAt)
		}
	}()
	cb(t)
}

func (s *Scheduler) nextTimeLocked() any {
	if s.next == nil {
		return "none"
	}
	return s.next.FiresAt
}
