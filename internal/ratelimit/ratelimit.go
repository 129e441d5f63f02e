// Package ratelimit implements per-user fixed-window request limiting.
// State is in-memory only; a restart resets all windows.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the length of the fixed rate limit window.
const Window = time.Minute

// Result is the outcome of a rate limit check, carrying everything the
// X-RateLimit response headers need.
type Result struct {
	Allowed      bool
	Limit        int64
	Remaining    int64
	ResetSeconds int64
}

// window tracks one user's request count within the current window.
type window struct {
	start time.Time
	count int64
}

// Limiter counts requests per user in fixed one-minute windows. A limit of
// 0 disables limiting entirely.
type Limiter struct {
	mu      sync.Mutex
	limit   int64
	windows map[int64]*window
	now     func() time.Time // overridable in tests
}

// New creates a Limiter allowing limit requests per user per minute.
func New(limit int64) *Limiter {
	return &Limiter{
		limit:   limit,
		windows: make(map[int64]*window),
		now:     time.Now,
	}
}

// SetLimit replaces the per-minute limit. Existing window counts carry over
// so an admin lowering the limit takes effect immediately.
func (l *Limiter) SetLimit(limit int64) {
	l.mu.Lock()
	l.limit = limit
	l.mu.Unlock()
}

// Limit returns the configured per-minute limit.
func (l *Limiter) Limit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Allow records a request for userID and reports whether it fits in the
// current window. Rejected requests are not counted against the window.
func (l *Limiter) Allow(userID int64) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return Result{Allowed: true, Remaining: -1}
	}

	now := l.now()
	w, ok := l.windows[userID]
	if !ok || now.Sub(w.start) >= Window {
		w = &window{start: now}
		l.windows[userID] = w
	}

	reset := int64(Window.Seconds() - now.Sub(w.start).Seconds())
	if reset < 1 {
		reset = 1
	}

	if w.count >= l.limit {
		return Result{Limit: l.limit, Remaining: 0, ResetSeconds: reset}
	}
	w.count++
	return Result{
		Allowed:      true,
		Limit:        l.limit,
		Remaining:    l.limit - w.count,
		ResetSeconds: reset,
	}
}

// EvictStale drops windows that ended before now, bounding memory across
// many short-lived users. Returns the number of windows removed.
func (l *Limiter) EvictStale() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for id, w := range l.windows {
		if now.Sub(w.start) >= Window {
			delete(l.windows, id)
			evicted++
		}
	}
	return evicted
}
