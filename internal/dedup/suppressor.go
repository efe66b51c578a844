// Package dedup filters repeated physical scans before they reach the
// inspection state machine.
//
// Three checks run in order, each keyed by the code value alone:
//
//  1. immediate repeat: the same code as the last processed scan, within the
//     repeat window (hardware chatter)
//  2. cooldown: the code was accepted within the cooldown window
//  3. in-flight: the code is still being processed
//
// Rejections are silent. The store's (session, code) uniqueness remains the
// authoritative guard; this layer is best-effort and process-local.
package dedup

import (
	"sync"
	"time"
)

// Reason explains why a scan was suppressed
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonImmediateRepeat Reason = "immediate_repeat"
	ReasonCooldown        Reason = "cooldown"
	ReasonInFlight        Reason = "in_flight"
)

// Default windows
const (
	DefaultRepeatWindow = 2 * time.Second
	DefaultCooldown     = 3 * time.Second
)

// Suppressor tracks recent scans. It is safe for concurrent use.
type Suppressor struct {
	mu sync.Mutex

	repeatWindow time.Duration
	cooldown     time.Duration
	now          func() time.Time

	lastCode string
	lastAt   time.Time
	accepted map[string]time.Time
	inFlight map[string]struct{}
}

// Option configures a Suppressor
type Option func(*Suppressor)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *Suppressor) {
		s.now = now
	}
}

// WithRepeatWindow sets the immediate-repeat window
func WithRepeatWindow(d time.Duration) Option {
	return func(s *Suppressor) {
		s.repeatWindow = d
	}
}

// New creates a Suppressor with the given per-code cooldown
func New(cooldown time.Duration, opts ...Option) *Suppressor {
	s := &Suppressor{
		repeatWindow: DefaultRepeatWindow,
		cooldown:     cooldown,
		now:          time.Now,
		accepted:     make(map[string]time.Time),
		inFlight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit runs the three checks for code. When the scan is admitted it is
// marked in-flight and release must be called once processing finished.
// A rejected scan returns a nil release and the reason.
func (s *Suppressor) Admit(code string) (release func(), reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	if code == s.lastCode && !s.lastAt.IsZero() && now.Sub(s.lastAt) < s.repeatWindow {
		return nil, ReasonImmediateRepeat
	}
	if at, ok := s.accepted[code]; ok && now.Sub(at) < s.cooldown {
		return nil, ReasonCooldown
	}
	if _, busy := s.inFlight[code]; busy {
		return nil, ReasonInFlight
	}

	s.lastCode = code
	s.lastAt = now
	s.accepted[code] = now
	s.inFlight[code] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inFlight, code)
			s.mu.Unlock()
		})
	}, ReasonNone
}

// InFlight reports the number of codes currently being processed
func (s *Suppressor) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Reset forgets all history
func (s *Suppressor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCode = ""
	s.lastAt = time.Time{}
	s.accepted = make(map[string]time.Time)
	s.inFlight = make(map[string]struct{})
}

// prune drops accepted entries that can no longer reject anything
func (s *Suppressor) prune(now time.Time) {
	horizon := s.cooldown
	if s.repeatWindow > horizon {
		horizon = s.repeatWindow
	}
	for code, at := range s.accepted {
		if now.Sub(at) >= horizon {
			delete(s.accepted, code)
		}
	}
}
