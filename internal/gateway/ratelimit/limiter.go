// Package ratelimit implements the process-wide client request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Config defines the sliding window.
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig admits 150 requests per rolling minute.
var DefaultConfig = Config{Limit: 150, Window: time.Minute}

// Limiter is a sliding-log limiter shared by all clients of the process.
type Limiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	cfg        Config
	now        func() time.Time
}

// New creates a limiter; zero fields take DefaultConfig values.
func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig.Window
	}
	return &Limiter{cfg: cfg, now: time.Now}
}

// SetClock replaces the time source.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// IsRateLimited drops timestamps older than the window and reports whether
// the remaining count has reached the limit.
func (l *Limiter) IsRateLimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitedLocked(l.now())
}

// TrackRequest appends the current time to the log.
func (l *Limiter) TrackRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = append(l.timestamps, l.now())
}

// Allow checks and tracks atomically. Rejected requests are not tracked.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.limitedLocked(now) {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// Count returns the number of requests inside the current window.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return len(l.timestamps)
}

func (l *Limiter) limitedLocked(now time.Time) bool {
	l.pruneLocked(now)
	return len(l.timestamps) >= l.cfg.Limit
}

// pruneLocked drops timestamps older than the window.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.timestamps) && l.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
