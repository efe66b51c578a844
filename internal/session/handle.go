package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/balkashynov/qcscan/internal/models"
)

// Direction is what the next scan of a code is expected to be
type Direction string

const (
	ExpectEntry Direction = "entry"
	ExpectExit  Direction = "exit"
)

// Snapshot is a point-in-time view of a session's scan expectation
type Snapshot struct {
	Session      models.WorkerSession `json:"session"`
	ActiveCount  int                  `json:"active_count"`
	PendingCodes []string             `json:"pending_codes"` // codes awaiting their exit scan
	LastCode     string               `json:"last_code,omitempty"`
	LastScanTime *time.Time           `json:"last_scan_time,omitempty"`
}

// Expect returns the expected direction for the next scan of code
func (s Snapshot) Expect(code string) Direction {
	for _, pending := range s.PendingCodes {
		if pending == code {
			return ExpectExit
		}
	}
	return ExpectEntry
}

// handle owns the in-process resources of one active session: the lock
// that serializes its scans with restart/end, the derived expectation
// view and the overdue watcher. It is released exactly once, on end.
type handle struct {
	id string // immutable; safe to read without mu

	mu sync.Mutex

	session  models.WorkerSession
	pending  map[string]uint // code -> active item id
	lastCode string
	lastScan time.Time
	closed   bool

	// set before the handle is registered, never written afterwards
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newHandle(session models.WorkerSession, active []models.InspectionItem) *handle {
	h := &handle{
		id:      session.ID,
		session: session,
		pending: make(map[string]uint, len(active)),
	}
	for _, item := range active {
		h.pending[item.Code] = item.ID
	}
	return h
}

// snapshot must be called with h.mu held
func (h *handle) snapshot() Snapshot {
	codes := make([]string, 0, len(h.pending))
	for code := range h.pending {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	snap := Snapshot{
		Session:      h.session,
		ActiveCount:  len(h.pending),
		PendingCodes: codes,
		LastCode:     h.lastCode,
	}
	if !h.lastScan.IsZero() {
		last := h.lastScan
		snap.LastScanTime = &last
	}
	return snap
}

// reset must be called with h.mu held
func (h *handle) reset(session models.WorkerSession) {
	h.session = session
	h.pending = make(map[string]uint)
	h.lastCode = ""
	h.lastScan = time.Time{}
}

// stopWatcher cancels the overdue watcher and waits for it to exit. Safe to
// call more than once and from several goroutines.
func (h *handle) stopWatcher() {
	h.stopOnce.Do(func() {
		if h.cancel == nil {
			return
		}
		h.cancel()
		<-h.done
	})
}
