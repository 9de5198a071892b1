package trigger

import (
	"testing"
	"time"
	_ "time/tzdata"

	"fitremind/internal/models"
)

func at(day, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
}

func cfg(start, end, interval int, exercises ...models.Exercise) models.ReminderConfig {
	if len(exercises) == 0 {
		exercises = []models.Exercise{{Type: "squats", Count: 10}}
	}
	return models.ReminderConfig{
		Enabled:         true,
		Window:          models.ActiveWindow{StartHour: start, EndHour: end},
		IntervalMinutes: interval,
		Exercises:       exercises,
	}
}

func TestNextSlot(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.ReminderConfig
		now  time.Time
		want time.Time
	}{
		{"start boundary inclusive", cfg(8, 20, 60), at(10, 8, 0), at(10, 8, 0)},
		{"past end rolls to next day", cfg(8, 20, 60), at(10, 20, 1), at(11, 8, 0)},
		{"end hour exactly on slot", cfg(8, 20, 60), at(10, 20, 0), at(10, 20, 0)},
		{"before window", cfg(8, 20, 60), at(10, 6, 42), at(10, 8, 0)},
		{"late night", cfg(8, 20, 60), at(10, 23, 59), at(11, 8, 0)},
		{"mid hour", cfg(8, 20, 60), at(10, 13, 1), at(10, 14, 0)},
		{"half hour cadence", cfg(9, 17, 30), at(10, 9, 15), at(10, 9, 30)},
		{"end boundary 17:00", cfg(9, 17, 30), at(10, 17, 0), at(10, 17, 0)},
		{"end boundary 17:05", cfg(9, 17, 30), at(10, 17, 5), at(11, 9, 0)},
		{"last slot inside end hour rejected", cfg(9, 17, 45), at(10, 16, 50), at(11, 9, 0)},
		{"single hour window", cfg(12, 12, 15), at(10, 11, 59), at(10, 12, 0)},
		{"single hour window past", cfg(12, 12, 15), at(10, 12, 1), at(11, 12, 0)},
		{"month rollover", cfg(8, 20, 60), time.Date(2026, 3, 31, 21, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextSlot(tc.now, tc.cfg)
			if !ok {
				t.Fatal("expected a slot")
			}
			if !got.Equal(tc.want) {
				t.Errorf("NextSlot(%s) = %s, want %s", tc.now.Format("01-02 15:04"), got.Format("01-02 15:04"), tc.want.Format("01-02 15:04"))
			}
		})
	}
}

func TestNextIgnoresSeconds(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 20, 0, time.UTC)
	got, ok := NextSlot(now, cfg(9, 17, 30))
	if !ok || !got.Equal(at(10, 9, 30)) {
		t.Fatalf("expected current minute slot, got %s", got)
	}
}

func TestNextDisabled(t *testing.T) {
	c := New(NewSeededSource(1))

	disabled := cfg(8, 20, 60)
	disabled.Enabled = false
	if _, ok := c.Next(at(10, 9, 0), disabled); ok {
		t.Error("disabled config must yield no trigger")
	}

	empty := cfg(8, 20, 60)
	empty.Exercises = nil
	if _, ok := c.Next(at(10, 9, 0), empty); ok {
		t.Error("empty catalog must yield no trigger")
	}
}

func TestNextDeterministic(t *testing.T) {
	catalog := []models.Exercise{
		{Type: "pushups", Count: 10},
		{Type: "squats", Count: 15},
		{Type: "lunges", Count: 12},
		{Type: "situps", Count: 20},
	}
	config := cfg(8, 20, 60, catalog...)
	now := at(10, 9, 10)

	a := New(NewSeededSource(42))
	b := New(NewSeededSource(42))
	for i := 0; i < 20; i++ {
		ta, _ := a.Next(now, config)
		tb, _ := b.Next(now, config)
		if !ta.FiresAt.Equal(tb.FiresAt) || ta.Exercise != tb.Exercise {
			t.Fatalf("call %d diverged: %+v vs %+v", i, ta, tb)
		}
	}
}

func TestNextPicksFromCatalog(t *testing.T) {
	catalog := []models.Exercise{{Type: "pushups", Count: 10}, {Type: "squats", Count: 15}}
	c := New(NewSeededSource(7))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		tr, ok := c.Next(at(10, 9, 10), cfg(8, 20, 60, catalog...))
		if !ok {
			t.Fatal("expected trigger")
		}
		seen[tr.Exercise.Type] = true
	}
	if !seen["pushups"] || !seen["squats"] {
		t.Errorf("expected both exercises to be drawn, saw %v", seen)
	}
}

func TestSingleExerciseScenario(t *testing.T) {
	c := New(nil)
	tr, ok := c.Next(at(10, 9, 15), cfg(9, 17, 30))
	if !ok {
		t.Fatal("expected trigger")
	}
	if !tr.FiresAt.Equal(at(10, 9, 30)) {
		t.Errorf("firesAt = %s", tr.FiresAt)
	}
	if tr.Exercise != (models.Exercise{Type: "squats", Count: 10}) {
		t.Errorf("exercise = %+v", tr.Exercise)
	}
}

func TestNextAfter(t *testing.T) {
	c := New(nil)
	tr, _ := c.NextAfter(time.Date(2026, 3, 10, 8, 0, 30, 0, time.UTC), cfg(8, 20, 60))
	if !tr.FiresAt.Equal(at(10, 9, 0)) {
		t.Errorf("NextAfter 08:00:30 = %s, want 09:00", tr.FiresAt)
	}
	tr, _ = c.NextAfter(at(10, 20, 0), cfg(8, 20, 60))
	if !tr.FiresAt.Equal(at(11, 8, 0)) {
		t.Errorf("NextAfter 20:00 = %s, want next day 08:00", tr.FiresAt)
	}
}

func TestSnoozeBypassesWindow(t *testing.T) {
	c := New(nil)
	now := at(10, 21, 0)
	ex := models.Exercise{Type: "squats", Count: 10}
	tr := c.Snooze(now, 15, ex)
	if !tr.FiresAt.Equal(at(10, 21, 15)) {
		t.Errorf("snooze firesAt = %s, want 21:15", tr.FiresAt)
	}
	if !tr.Snooze || tr.Exercise != ex {
		t.Errorf("unexpected snooze trigger %+v", tr)
	}
}

func TestInWindow(t *testing.T) {
	w := models.ActiveWindow{StartHour: 8, EndHour: 20}
	cases := map[time.Time]bool{
		at(10, 7, 59):  false,
		at(10, 8, 0):   true,
		at(10, 19, 59): true,
		at(10, 20, 0):  true,
		at(10, 20, 1):  false,
	}
	for tm, want := range cases {
		if got := InWindow(tm, w); got != want {
			t.Errorf("InWindow(%s) = %v, want %v", tm.Format("15:04"), got, want)
		}
	}
}

// Slots are counted from startHour:00, not restarted every hour.
func TestNextSlotNonDivisorInterval(t *testing.T) {
	c := cfg(9, 17, 45)
	cases := []struct{ now, want time.Time }{
		{at(10, 9, 0), at(10, 9, 0)},
		{at(10, 9, 50), at(10, 10, 30)},
		{at(10, 10, 0), at(10, 10, 30)},
		{at(10, 11, 15), at(10, 11, 15)},
		{at(10, 16, 31), at(11, 9, 0)},
	}
	for _, tc := range cases {
		got, _ := NextSlot(tc.now, c)
		if !got.Equal(tc.want) {
			t.Errorf("NextSlot(%s) = %s, want %s", tc.now.Format("15:04"), got.Format("01-02 15:04"), tc.want.Format("01-02 15:04"))
		}
	}
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func utc(month time.Month, day, hour, min int) time.Time {
	return time.Date(2026, month, day, hour, min, 0, 0, time.UTC)
}

func TestNextSlotAcrossDaylightSaving(t *testing.T) {
	loc := chicago(t)
	allDay := cfg(0, 23, 60)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		// 2026-11-01: 02:00 CDT becomes 01:00 CST (07:00 UTC).
		{"fall back, first 01:30", utc(11, 1, 6, 30), utc(11, 1, 8, 0)},
		{"fall back, repeated 01:30", utc(11, 1, 7, 30), utc(11, 1, 8, 0)},
		{"fall back, repeated 01:00:30", utc(11, 1, 7, 0).Add(30 * time.Second), utc(11, 1, 8, 0)},
		{"fall back, afternoon", utc(11, 1, 20, 10), utc(11, 1, 21, 0)},
		// 2026-03-08: 02:00 CST becomes 03:00 CDT (08:00 UTC).
		{"spring forward, 01:30", utc(3, 8, 7, 30), utc(3, 8, 8, 0)},
		{"spring forward, 03:10", utc(3, 8, 8, 10), utc(3, 8, 9, 0)},
		{"spring forward, afternoon", utc(3, 8, 19, 10), utc(3, 8, 20, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextSlot(tc.now.In(loc), allDay)
			if !ok {
				t.Fatal("expected a slot")
			}
			if !got.Equal(tc.want) {
				t.Errorf("NextSlot(%s) = %s, want %s", tc.now.In(loc), got, tc.want.In(loc))
			}
		})
	}
}

func TestSlotsNeverPrecedeNowAcrossDaylightSaving(t *testing.T) {
	loc := chicago(t)
	c := New(nil)

	for _, day := range []time.Time{utc(3, 8, 5, 0), utc(11, 1, 5, 0)} {
		for _, interval := range []int{15, 45, 60} {
			rc := cfg(0, 23, interval)
			for now := day.In(loc); now.Before(day.Add(24 * time.Hour)); now = now.Add(7 * time.Minute) {
				got, _ := NextSlot(now, rc)
				if got.Before(now.Truncate(time.Minute)) {
					t.Fatalf("interval %d: NextSlot(%s) = %s is in the past", interval, now, got)
				}
			}

			prev := day.In(loc)
			for i := 0; i < 200; i++ {
				tr, _ := c.NextAfter(prev, rc)
				if !tr.FiresAt.After(prev) {
					t.Fatalf("interval %d: NextAfter(%s) = %s does not advance", interval, prev, tr.FiresAt)
				}
				prev = tr.FiresAt
			}
		}
	}
}
