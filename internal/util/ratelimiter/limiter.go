package ratelimiter

import (
	"sync"
	"time"
)

// Limiter lets one action through per interval and is safe for concurrent
// use. The progress reporter uses it to bound log volume across workers.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	now         func() time.Time
}

// New creates a limiter allowing at most one action per interval.
// A non-positive interval allows every action.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether an action may run now, and records it if so.
// When blocked it also returns the remaining wait.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.lastAllowed.IsZero() || now.Sub(l.lastAllowed) >= l.interval {
		l.lastAllowed = now
		return true, 0
	}
	return false, l.interval - now.Sub(l.lastAllowed)
}

// Reset allows the next action immediately
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.mu.Unlock()
}
