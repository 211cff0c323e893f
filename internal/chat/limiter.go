package chat

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window message guard keyed by participant ID.
// Each participant may send at most maxEvents messages per window; rejected
// sends carry the time until the oldest recorded event leaves the window.
type RateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	maxEvents int
	events    map[string][]time.Time
	now       func() time.Time
}

func NewRateLimiter(window time.Duration, maxEvents int) *RateLimiter {
	return &RateLimiter{
		window:    window,
		maxEvents: maxEvents,
		events:    map[string][]time.Time{},
		now:       time.Now,
	}
}

// Check records the event and admits it if the participant sent fewer than
// the allowed number within the window. On rejection nothing is recorded and
// retryAfter reports how long until the oldest event expires.
func (r *RateLimiter) Check(id string) (allowed bool, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	recent := r.events[id][:0]
	for _, t := range r.events[id] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.maxEvents {
		r.events[id] = recent
		return false, recent[0].Sub(cutoff)
	}

	r.events[id] = append(recent, now)
	return true, 0
}

// Forget drops all recorded state for a participant, for use when their
// match closes.
func (r *RateLimiter) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
}
