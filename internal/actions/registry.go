package actions

import (
	"sync"
	"time"

	"fitremind/internal/models"
)

type State string

const (
	Delivered State = "delivered"
	Completed State = "completed"
	Snoozed   State = "snoozed"
	Dismissed State = "dismissed"
	Opened    State = "opened"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s != Delivered && s != ""
}

type entry struct {
	n       models.DeliveredNotification
	state   State
	touched time.Time
}

// Registry remembers recently delivered notifications and what became of
// them. It is bounded: entries expire after ttl and the oldest entry goes
// when max is reached.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int
	ttl     time.Duration
	now     func() time.Time
}

func NewRegistry(max int, ttl time.Duration, now func() time.Time) *Registry {
	if max <= 0 {
		max = 256
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{entries: make(map[string]*entry), max: max, ttl: ttl, now: now}
}

// Track records n as Delivered. Tracking an id twice keeps the first state.
func (r *Registry) Track(n models.DeliveredNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evictLocked(now)
	if _, ok := r.entries[n.ID]; ok {
		return
	}
	if len(r.entries) >= r.max {
		r.evictOldestLocked()
	}
	r.entries[n.ID] = &entry{n: n, state: Delivered, touched: now}
}

// State returns the recorded state of id.
func (r *Registry) State(id string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || r.now().Sub(e.touched) > r.ttl {
		return "", false
	}
	return e.state, true
}

// Pending returns notifications still awaiting a response.
func (r *Registry) Pending() []models.DeliveredNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(r.now())
	var out []models.DeliveredNotification
	for _, e := range r.entries {
		if e.state == Delivered {
			out = append(out, e.n)
		}
	}
	return out
}

// transition moves id to the terminal state to. An id the registry never
// saw, or already forgot, is tracked from n first. It returns the previous
// state and whether the transition was applied.
func (r *Registry) transition(n models.DeliveredNotification, to State) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evictLocked(now)

	e, ok := r.entries[n.ID]
	if !ok {
		if len(r.entries) >= r.max {
			r.evictOldestLocked()
		}
		e = &entry{n: n, state: Delivered}
		r.entries[n.ID] = e
	}
	prev := e.state
	e.touched = now
	if prev.Terminal() {
		return prev, false
	}
	e.state = to
	return prev, true
}

func (r *Registry) lookup(id string) (models.DeliveredNotification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return models.DeliveredNotification{}, false
	}
	return e.n, true
}

func (r *Registry) evictLocked(now time.Time) {
	for id, e := range r.entries {
		if now.Sub(e.touched) > r.ttl {
			delete(r.entries, id)
		}
	}
}

func (r *Registry) evictOldestLocked() {
	var oldest string
	var at time.Time
	for id, e := range r.entries {
		if oldest == "" || e.touched.Before(at) {
			oldest, at = id, e.touched
		}
	}
	delete(r.entries, oldest)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
