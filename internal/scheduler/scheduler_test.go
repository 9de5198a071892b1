package scheduler

import (
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"fitremind/internal/clock"
	"fitremind/internal/models"
	"fitremind/internal/trigger"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

type harness struct {
	clk   *clock.Manual
	s     *Scheduler
	mu    sync.Mutex
	cfg   models.ReminderConfig
	fired []models.Trigger
}

func newHarness(now time.Time) *harness {
	h := &harness{
		clk: clock.NewManual(now),
		cfg: models.ReminderConfig{
			Enabled:         true,
			Window:          models.ActiveWindow{StartHour: 9, EndHour: 17},
			IntervalMinutes: 30,
			Exercises:       []models.Exercise{{Type: "squats", Count: 10}},
		},
	}
	h.s = New(trigger.New(trigger.NewSeededSource(1)), h.clk, h.config, nil)
	h.s.OnDue(func(t models.Trigger) {
		h.mu.Lock()
		h.fired = append(h.fired, t)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) config() models.ReminderConfig {
	return h.cfg
}

func (h *harness) firedAt() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []time.Time
	for _, t := range h.fired {
		out = append(out, t.FiresAt)
	}
	return out
}

func TestStartArmsNextSlot(t *testing.T) {
	h := newHarness(at(9, 15))
	if h.s.State() != Idle {
		t.Fatalf("state = %v before start", h.s.State())
	}
	h.s.Start()

	next, ok := h.s.Next()
	if !ok || !next.FiresAt.Equal(at(9, 30)) {
		t.Fatalf("next = %v, %v", next.FiresAt, ok)
	}
	if next.Exercise.Type != "squats" || next.Exercise.Count != 10 {
		t.Errorf("exercise = %+v", next.Exercise)
	}
	if h.s.State() != Armed {
		t.Errorf("state = %v, want armed", h.s.State())
	}
	if h.clk.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", h.clk.Pending())
	}
}

func TestFiresAndRearms(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.Start()

	h.clk.Set(at(9, 30))
	h.clk.Set(at(10, 0))
	h.clk.Set(at(10, 10))

	got := h.firedAt()
	if len(got) != 2 || !got[0].Equal(at(9, 30)) || !got[1].Equal(at(10, 0)) {
		t.Fatalf("fired = %v", got)
	}
	next, _ := h.s.Next()
	if !next.FiresAt.Equal(at(10, 30)) {
		t.Errorf("next = %v, want 10:30", next.FiresAt)
	}
	if h.clk.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", h.clk.Pending())
	}
}

func TestBoundarySlotFiresOnce(t *testing.T) {
	h := newHarness(at(9, 0))
	h.s.Start()
	h.clk.Advance(0)

	got := h.firedAt()
	if len(got) != 1 || !got[0].Equal(at(9, 0)) {
		t.Fatalf("fired = %v", got)
	}
	next, _ := h.s.Next()
	if !next.FiresAt.Equal(at(9, 30)) {
		t.Errorf("next = %v, want 9:30", next.FiresAt)
	}
}

func TestUsesConfigAtFireTime(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.Start()

	h.cfg.IntervalMinutes = 60
	h.clk.Set(at(9, 30))

	next, _ := h.s.Next()
	if !next.FiresAt.Equal(at(10, 0)) {
		t.Errorf("next = %v, want 10:00", next.FiresAt)
	}
}

func TestStop(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.Stop() // idle no-op
	h.s.Start()
	h.s.ScheduleOnce(models.Trigger{FiresAt: at(9, 20), Snooze: true})
	h.s.Stop()
	h.s.Stop()

	h.clk.Set(at(12, 0))
	if len(h.firedAt()) != 0 {
		t.Fatalf("fired after stop: %v", h.firedAt())
	}
	if h.s.State() != Idle {
		t.Errorf("state = %v", h.s.State())
	}
	if _, ok := h.s.Next(); ok {
		t.Error("next trigger after stop")
	}
}

func TestDisableClearsNext(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.Start()
	h.s.ScheduleOnce(models.Trigger{FiresAt: at(9, 20), Snooze: true})

	h.cfg.Enabled = false
	h.s.Reschedule()

	if _, ok := h.s.Next(); ok {
		t.Error("next trigger while disabled")
	}
	if len(h.s.Snoozes()) != 0 {
		t.Error("snooze kept while disabled")
	}
	h.clk.Set(at(12, 0))
	if len(h.firedAt()) != 0 {
		t.Fatalf("fired while disabled: %v", h.firedAt())
	}

	h.cfg.Enabled = true
	h.s.Reschedule()
	if next, ok := h.s.Next(); !ok || !next.FiresAt.Equal(at(12, 0)) {
		t.Errorf("next after re-enable = %v, %v", next.FiresAt, ok)
	}
}

func TestResumeFiresOnceForMissedSlots(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.Start()

	h.s.VisibilityChanged(false)
	h.clk.SetSilently(at(11, 10)) // 9:30, 10:00, 10:30 and 11:00 passed while suspended
	h.s.VisibilityChanged(true)

	got := h.firedAt()
	if len(got) != 1 {
		t.Fatalf("fired %d times on resume, want 1: %v", len(got), got)
	}
	next, _ := h.s.Next()
	if !next.FiresAt.Equal(at(11, 30)) {
		t.Errorf("next = %v, want 11:30", next.FiresAt)
	}

	// The stale timer must not deliver again.
	h.clk.Advance(0)
	if len(h.firedAt()) != 1 {
		t.Errorf("duplicate firing: %v", h.firedAt())
	}
}

func TestResumeOnSlotDoesNotRepeat(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.Start()

	h.s.VisibilityChanged(false)
	h.clk.SetSilently(at(10, 0))
	h.s.VisibilityChanged(true)

	if len(h.firedAt()) != 1 {
		t.Fatalf("fired = %v", h.firedAt())
	}
	next, _ := h.s.Next()
	if !next.FiresAt.Equal(at(10, 30)) {
		t.Errorf("next = %v, want 10:30", next.FiresAt)
	}
}

func TestResumeBeforeDueRearms(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.Start()

	h.s.VisibilityChanged(false)
	h.clk.SetSilently(at(9, 20))
	h.s.VisibilityChanged(true)

	if len(h.firedAt()) != 0 {
		t.Fatalf("fired early: %v", h.firedAt())
	}
	h.clk.Set(at(9, 30))
	if len(h.firedAt()) != 1 {
		t.Fatalf("fired = %v", h.firedAt())
	}
}

func TestScheduleOnceBypassesWindow(t *testing.T) {
	h := newHarness(at(21, 0))
	h.s.Start()

	calc := trigger.New(nil)
	snooze := calc.Snooze(h.clk.Now(), 15, models.Exercise{Type: "squats", Count: 10})
	if !h.s.ScheduleOnce(snooze) {
		t.Fatal("ScheduleOnce refused")
	}
	if h.s.State() != Armed {
		t.Errorf("state = %v", h.s.State())
	}

	h.clk.Set(time.Date(2026, 3, 10, 21, 15, 0, 0, time.UTC))
	got := h.firedAt()
	if len(got) != 1 || !got[0].Equal(at(21, 15)) {
		t.Fatalf("fired = %v", got)
	}
	if len(h.s.Snoozes()) != 0 {
		t.Error("snooze still pending")
	}
	next, _ := h.s.Next()
	if !next.FiresAt.Equal(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("regular cadence disturbed: next = %v", next.FiresAt)
	}
}

func TestScheduleOnceRequiresStart(t *testing.T) {
	h := newHarness(at(9, 15))
	if h.s.ScheduleOnce(models.Trigger{FiresAt: at(9, 20)}) {
		t.Error("ScheduleOnce accepted while idle")
	}
}

func TestCallbackPanicKeepsScheduling(t *testing.T) {
	h := newHarness(at(9, 15))
	h.s.OnDue(func(models.Trigger) { panic("boom") })
	h.s.Start()
	h.clk.Set(at(9, 30))

	next, ok := h.s.Next()
	if !ok || !next.FiresAt.Equal(at(10, 0)) {
		t.Errorf("next = %v, %v", next.FiresAt, ok)
	}
	if h.s.State() != Armed {
		t.Errorf("state = %v", h.s.State())
	}
}

func TestStateDuringCallback(t *testing.T) {
	h := newHarness(at(9, 15))
	var seen State
	h.s.OnDue(func(models.Trigger) { seen = h.s.State() })
	h.s.Start()
	h.clk.Set(at(9, 30))
	if seen != Firing {
		t.Errorf("state in callback = %v, want firing", seen)
	}
}

func TestRepeatedHourDoesNotRefire(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatal(err)
	}
	// 01:29:59 CST on 2026-11-01, the second pass through the 01:00 hour.
	start := time.Date(2026, 11, 1, 7, 29, 59, 0, time.UTC).In(loc)
	h := newHarness(start)
	h.cfg.Window = models.ActiveWindow{StartHour: 0, EndHour: 23}
	h.cfg.IntervalMinutes = 60
	h.s.Start()

	want := time.Date(2026, 11, 1, 8, 0, 0, 0, time.UTC)
	if next, ok := h.s.Next(); !ok || !next.FiresAt.Equal(want) {
		t.Fatalf("next = %v, want 02:00 CST", next.FiresAt)
	}

	h.clk.Advance(2 * time.Second)
	if got := h.firedAt(); len(got) != 0 {
		t.Fatalf("fired %d times before the slot: %v", len(got), got)
	}

	h.clk.Set(want.In(loc))
	if got := h.firedAt(); len(got) != 1 {
		t.Fatalf("fired %d times at 02:00 CST, want 1", len(got))
	}
	if next, _ := h.s.Next(); !next.FiresAt.Equal(want.Add(time.Hour)) {
		t.Errorf("next = %v, want 03:00 CST", next.FiresAt)
	}
	if h.clk.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", h.clk.Pending())
	}
}
