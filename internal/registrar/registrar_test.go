package registrar

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fitremind/internal/clock"
	"fitremind/internal/models"
)

func enabled() models.ReminderConfig {
	return models.ReminderConfig{
		Enabled:         true,
		Window:          models.ActiveWindow{StartHour: 9, EndHour: 17},
		IntervalMinutes: 30,
		Exercises:       []models.Exercise{{Type: "squats", Count: 10}},
	}
}

type counter struct{ n atomic.Int32 }

func (c *counter) wake(ctx context.Context) { c.n.Add(1) }

func TestPrefersPeriodic(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	var c counter
	ticker := NewTicker(c.wake, clk, nil, time.Minute)
	r := New([]WakeupSource{ticker, NewReconnect(c.wake)}, 5*time.Minute, clk, nil)

	st, err := r.Register(context.Background(), enabled())
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != models.CapabilityPeriodicSync || st.Interval != 5*time.Minute {
		t.Fatalf("state = %+v", st)
	}

	clk.Advance(5 * time.Minute)
	clk.Advance(5 * time.Minute)
	if c.n.Load() != 2 {
		t.Errorf("woke %d times, want 2", c.n.Load())
	}
}

func TestFallsBackWithoutPermission(t *testing.T) {
	clk := clock.NewManual(time.Now())
	var c counter
	ticker := NewTicker(c.wake, clk, func() bool { return false }, 0)
	reconnect := NewReconnect(c.wake)
	r := New([]WakeupSource{ticker, reconnect}, 0, clk, nil)

	st, err := r.Register(context.Background(), enabled())
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if st.Kind != models.CapabilityBackgroundSyncOnly {
		t.Fatalf("kind = %s", st.Kind)
	}
	if st.LastError == "" {
		t.Error("skipped periodic source not surfaced for diagnostics")
	}
	if clk.Pending() != 0 {
		t.Error("ticker armed without permission")
	}

	if !reconnect.Reconnected(context.Background()) || c.n.Load() != 1 {
		t.Errorf("reconnect did not wake the agent")
	}
}

func TestNoCapability(t *testing.T) {
	ticker := NewTicker(func(context.Context) {}, clock.NewManual(time.Now()), func() bool { return false }, 0)
	r := New([]WakeupSource{ticker}, 0, nil, nil)

	st, err := r.Register(context.Background(), enabled())
	if !errors.Is(err, ErrCapabilityUnsupported) {
		t.Fatalf("got %v", err)
	}
	if st.Active() {
		t.Errorf("state = %+v", st)
	}
}

func TestDisableUnregisters(t *testing.T) {
	clk := clock.NewManual(time.Now())
	var c counter
	ticker := NewTicker(c.wake, clk, nil, 0)
	reconnect := NewReconnect(c.wake)
	r := New([]WakeupSource{ticker, reconnect}, time.Minute, clk, nil)

	r.Register(context.Background(), enabled())

	cfg := enabled()
	cfg.Enabled = false
	st, err := r.Register(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if st.Active() || r.CapabilityState().Active() {
		t.Fatalf("still registered: %+v", st)
	}

	clk.Advance(time.Hour)
	if c.n.Load() != 0 {
		t.Errorf("woke %d times after unregister", c.n.Load())
	}
	if ticker.Interval() != 0 {
		t.Error("ticker still registered")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := New(nil, 0, nil, nil)
	for i := 0; i < 3; i++ {
		if err := r.Unregister(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if r.CapabilityState().Kind != models.CapabilityNone {
		t.Errorf("state = %+v", r.CapabilityState())
	}
}

func TestTickerClampsToMinimum(t *testing.T) {
	clk := clock.NewManual(time.Now())
	ticker := NewTicker(func(context.Context) {}, clk, nil, 12*time.Hour)
	if _, err := ticker.Register(context.Background(), time.Minute); err != nil {
		t.Fatal(err)
	}
	if ticker.Interval() != 12*time.Hour {
		t.Errorf("interval = %s", ticker.Interval())
	}
}

func TestReconnectRequiresRegistration(t *testing.T) {
	var c counter
	rc := NewReconnect(c.wake)
	if rc.Reconnected(context.Background()) {
		t.Error("woke while unregistered")
	}
}

// stubbornSource registers fine but the host refuses to unregister it.
type stubbornSource struct{ unregistered int }

func (f *stubbornSource) Kind() models.CapabilityKind { return models.CapabilityPeriodicSync }

func (f *stubbornSource) Register(ctx context.Context, d time.Duration) (models.CapabilityKind, error) {
	return models.CapabilityPeriodicSync, nil
}

func (f *stubbornSource) Unregister(ctx context.Context) error {
	f.unregistered++
	return errors.New("host refused")
}

func TestSwitchingSourceUnregistersPrevious(t *testing.T) {
	clk := clock.NewManual(time.Now())
	permitted := true
	var c counter
	ticker := NewTicker(c.wake, clk, func() bool { return permitted }, 0)
	r := New([]WakeupSource{ticker, NewReconnect(c.wake)}, time.Minute, clk, nil)

	r.Register(context.Background(), enabled())
	permitted = false
	st, _ := r.Register(context.Background(), enabled())

	if st.Kind != models.CapabilityBackgroundSyncOnly {
		t.Fatalf("kind = %s", st.Kind)
	}
	clk.Advance(time.Hour)
	if c.n.Load() != 0 {
		t.Errorf("old periodic registration still waking: %d", c.n.Load())
	}
}

func TestFailingUnregisterIsSwallowed(t *testing.T) {
	src := &stubbornSource{}
	r := New([]WakeupSource{src}, time.Minute, nil, nil)
	r.Register(context.Background(), enabled())
	if err := r.Unregister(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.unregistered != 1 || r.CapabilityState().Active() {
		t.Errorf("unregistered = %d, state = %+v", src.unregistered, r.CapabilityState())
	}
}
