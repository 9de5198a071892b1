package actions

import (
	"errors"
	"testing"
	"time"

	"fitremind/internal/clock"
	"fitremind/internal/models"
)

type completion struct {
	exercise string
	count    int
}

type fakeSnoozer struct {
	accept bool
	got    []models.Trigger
}

func (f *fakeSnoozer) ScheduleOnce(t models.Trigger) bool {
	f.got = append(f.got, t)
	return f.accept
}

func notification(id string) models.DeliveredNotification {
	return models.DeliveredNotification{ID: id, Exercise: "squats", Count: 10}
}

func newTestHandler(now time.Time) (*Handler, *[]completion, *fakeSnoozer) {
	var done []completion
	sn := &fakeSnoozer{accept: true}
	h := NewHandler(Config{
		Log:     ExerciseLogFunc(func(e string, c int) { done = append(done, completion{e, c}) }),
		Snoozer: sn,
		Clock:   clock.NewManual(now),
	})
	return h, &done, sn
}

func TestTransitions(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		action string
		want   State
	}{
		{models.ActionComplete, Completed},
		{models.ActionSnooze, Snoozed},
		{models.ActionDismiss, Dismissed},
		{models.ActionOpen, Opened},
		{"", Opened},
	}
	for _, tt := range tests {
		t.Run(string(tt.want)+"/"+tt.action, func(t *testing.T) {
			h, _, _ := newTestHandler(now)
			h.Track(notification("a"))
			res, err := h.Handle(notification("a"), tt.action)
			if err != nil {
				t.Fatal(err)
			}
			if res.State != tt.want || res.Duplicate {
				t.Fatalf("result = %+v", res)
			}
			if st, _ := h.Registry().State("a"); st != tt.want {
				t.Errorf("registry state = %s", st)
			}
		})
	}
}

func TestCompleteNotifiesExerciseLog(t *testing.T) {
	h, done, sn := newTestHandler(time.Now())
	h.Handle(notification("a"), models.ActionComplete)

	if len(*done) != 1 || (*done)[0] != (completion{"squats", 10}) {
		t.Fatalf("exercise log = %+v", *done)
	}
	if len(sn.got) != 0 {
		t.Error("complete must not reschedule")
	}
}

func TestSnoozeBypassesWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	h, done, sn := newTestHandler(now)

	res, err := h.Handle(notification("a"), models.ActionSnooze)
	if err != nil {
		t.Fatal(err)
	}
	want := now.Add(15 * time.Minute)
	if res.Snooze == nil || !res.Snooze.FiresAt.Equal(want) || !res.Snooze.Snooze {
		t.Fatalf("snooze = %+v", res.Snooze)
	}
	if !res.Scheduled || len(sn.got) != 1 {
		t.Errorf("snooze not handed to scheduler: %+v", sn.got)
	}
	if sn.got[0].Exercise != (models.Exercise{Type: "squats", Count: 10}) {
		t.Errorf("exercise = %+v", sn.got[0].Exercise)
	}
	if len(*done) != 0 {
		t.Error("snooze must not log an exercise")
	}
}

func TestSnoozeWithoutScheduler(t *testing.T) {
	h := NewHandler(Config{SnoozeMinutes: 5, Clock: clock.NewManual(time.Now())})
	res, err := h.Handle(notification("a"), models.ActionSnooze)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Snoozed || res.Scheduled {
		t.Fatalf("result = %+v", res)
	}
}

func TestActionsAreIdempotent(t *testing.T) {
	h, done, _ := newTestHandler(time.Now())

	h.Handle(notification("a"), models.ActionComplete)
	res, err := h.Handle(notification("a"), models.ActionComplete)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Duplicate || res.State != Completed {
		t.Fatalf("second action = %+v", res)
	}
	res, _ = h.Handle(notification("a"), models.ActionSnooze)
	if !res.Duplicate || res.State != Completed {
		t.Fatalf("action after terminal state = %+v", res)
	}
	if len(*done) != 1 {
		t.Errorf("exercise logged %d times", len(*done))
	}
}

func TestActionOnUntrackedNotification(t *testing.T) {
	h, done, _ := newTestHandler(time.Now())
	res, err := h.Handle(notification("gone"), models.ActionComplete)
	if err != nil || res.State != Completed {
		t.Fatalf("res = %+v err = %v", res, err)
	}
	if len(*done) != 1 {
		t.Error("untracked notification not completed")
	}
}

func TestUnknownAction(t *testing.T) {
	h, _, _ := newTestHandler(time.Now())
	if _, err := h.Handle(notification("a"), "explode"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("got %v", err)
	}
	if _, ok := h.Registry().State("a"); ok {
		t.Error("unknown action created an entry")
	}
}

func TestOpenRoutesToEntry(t *testing.T) {
	h := NewHandler(Config{EntryRoute: "/workout"})
	res, _ := h.Handle(notification("a"), models.ActionOpen)
	if res.Route != "/workout" {
		t.Errorf("route = %q", res.Route)
	}
}

func TestRegistryBounds(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	r := NewRegistry(2, time.Hour, func() time.Time { return now })

	r.Track(notification("a"))
	now = now.Add(time.Minute)
	r.Track(notification("b"))
	now = now.Add(time.Minute)
	r.Track(notification("c"))

	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}
	if _, ok := r.State("a"); ok {
		t.Error("oldest entry not evicted")
	}
	if len(r.Pending()) != 2 {
		t.Errorf("pending = %d", len(r.Pending()))
	}

	now = now.Add(2 * time.Hour)
	if _, ok := r.State("c"); ok {
		t.Error("expired entry still visible")
	}
	if len(r.Pending()) != 0 || r.Len() != 0 {
		t.Error("expired entries not evicted")
	}
}
