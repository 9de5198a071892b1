// Package trigger computes when the next exercise reminder is due.
//
// Slots are whole minutes. A slot at exactly endHour:00 is inside the
// window; anything past it rolls over to startHour:00 on the next day.
package trigger

import (
	"math/rand/v2"
	"sync"
	"time"

	"fitremind/internal/models"
)

// RandomSource picks exercises from the catalog.
type RandomSource interface {
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// lockedRand makes a *rand.Rand safe for the scheduler and agent goroutines.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewSeededSource returns a deterministic RandomSource.
func NewSeededSource(seed uint64) RandomSource {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

type Calculator struct {
	rnd RandomSource
}

// New creates a Calculator. A nil source uses the process-wide generator.
func New(rnd RandomSource) *Calculator {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Calculator{rnd: rnd}
}

// Next returns the first slot at or after the minute containing now, or false
// when reminders are disabled or the catalog is empty.
func (c *Calculator) Next(now time.Time, cfg models.ReminderConfig) (models.Trigger, bool) {
	at, ok := NextSlot(now, cfg)
	if !ok {
		return models.Trigger{}, false
	}
	return models.Trigger{FiresAt: at, Exercise: c.pick(cfg.Exercises)}, true
}

// NextAfter returns the first slot strictly after the minute containing t.
func (c *Calculator) NextAfter(t time.Time, cfg models.ReminderConfig) (models.Trigger, bool) {
	return c.Next(floorMinute(t).Add(time.Minute), cfg)
}

// Snooze returns a one-off trigger at now+minutes. The active window is not
// consulted: the user asked for it.
func (c *Calculator) Snooze(now time.Time, minutes int, exercise models.Exercise) models.Trigger {
	return models.Trigger{
		FiresAt:  now.Add(time.Duration(minutes) * time.Minute),
		Exercise: exercise,
		Snooze:   true,
	}
}

func (c *Calculator) pick(catalog []models.Exercise) models.Exercise {
	if len(catalog) == 1 {
		return catalog[0]
	}
	return catalog[c.rnd.IntN(len(catalog))]
}

// NextSlot is the time part of Next, without exercise selection.
func NextSlot(now time.Time, cfg models.ReminderConfig) (time.Time, bool) {
	if !cfg.Enabled || len(cfg.Exercises) == 0 || cfg.IntervalMinutes <= 0 {
		return time.Time{}, false
	}

	start, end := cfg.Window.StartHour, cfg.Window.EndHour
	h, m := now.Hour(), now.Minute()

	switch {
	case h < start:
		return atHour(now, 0, start), true
	case h > end || (h == end && m > 0):
		return atHour(now, 1, start), true
	}

	// Inside the window. Count slots from startHour:00 in wall-clock minutes
	// so the cadence stays on the hour for intervals that divide 60 and a
	// daylight saving change neither repeats nor skips a slot.
	floor := floorMinute(now)
	elapsed := (h-start)*60 + m
	k := (elapsed + cfg.IntervalMinutes - 1) / cfg.IntervalMinutes
	for offset := k * cfg.IntervalMinutes; offset <= (end-start)*60; offset += cfg.IntervalMinutes {
		// Inside a repeated hour the wall-clock slot can resolve to the
		// earlier offset; never hand out a slot before now.
		if slot := atMinute(now, start, offset); !slot.Before(floor) {
			return slot, true
		}
	}
	return atHour(now, 1, start), true
}

// InWindow reports whether t is inside the active window with the
// boundary-sensitive end: endHour:00 is in, endHour:01 is out.
func InWindow(t time.Time, w models.ActiveWindow) bool {
	h, m := t.Hour(), t.Minute()
	if h < w.StartHour || h > w.EndHour {
		return false
	}
	return h < w.EndHour || m == 0
}

func atHour(t time.Time, dayOffset, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+dayOffset, hour, 0, 0, 0, t.Location())
}

// atMinute is startHour:00 plus offset wall-clock minutes on t's day.
func atMinute(t time.Time, hour, offset int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, offset, 0, 0, t.Location())
}

// floorMinute truncates on the absolute time line. Rebuilding from the wall
// clock would be ambiguous inside a repeated hour.
func floorMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
