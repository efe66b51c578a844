// Package ratelimit caps scan throughput per session over a sliding window.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the sliding window length
const Window = time.Minute

// DefaultMaxPerWindow is the default scans allowed per window
const DefaultMaxPerWindow = 30

// Limiter keeps the accepted scan timestamps of each session for the
// trailing window. Entries are pruned lazily on each check. One session's
// burst never affects another.
type Limiter struct {
	mu        sync.Mutex
	max       int
	now       func() time.Time
	windows   map[string][]time.Time
	lastSweep time.Time
}

// New creates a Limiter allowing max scans per session per minute
func New(max int) *Limiter {
	if max <= 0 {
		max = DefaultMaxPerWindow
	}
	return &Limiter{
		max:     max,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
}

// WithClock replaces the time source and returns the limiter
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a scan for sessionID and reports whether it is within the
// limit. Rejected scans are not recorded.
func (l *Limiter) Allow(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	stamps := prune(l.windows[sessionID], now)

	if len(stamps) >= l.max {
		l.windows[sessionID] = stamps
		return false
	}

	l.windows[sessionID] = append(stamps, now)
	return true
}

// Count returns the scans recorded for sessionID in the current window
func (l *Limiter) Count(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := prune(l.windows[sessionID], l.now())
	if len(stamps) == 0 {
		delete(l.windows, sessionID)
		return 0
	}
	l.windows[sessionID] = stamps
	return len(stamps)
}

// Sessions returns the number of sessions with a tracked window
func (l *Limiter) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweep drops the windows of sessions that have not scanned for a full
// window, at most once per window. Must be called with l.mu held.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < Window {
		return
	}
	l.lastSweep = now
	for id, stamps := range l.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(now.Add(-Window)) {
			delete(l.windows, id)
		}
	}
}

// Reset clears the window of a session
func (l *Limiter) Reset(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, sessionID)
}

// prune drops timestamps older than the window. stamps is ordered.
func prune(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
