package realtime

import (
	"sync"
	"time"
)

// RateLimiter is a per-connection fixed-window event limiter.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	winFrom time.Time
	count   int
}

// NewRateLimiter constructs a RateLimiter, substituting defaults for
// invalid inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{limit: limit, window: window}
}

// Allow reports whether an event at time now should be permitted.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.winFrom.IsZero() || now.Sub(r.winFrom) >= r.window {
		r.winFrom = now
		r.count = 0
	}
	if r.count >= r.limit {
		return false
	}
	r.count++
	return true
}
