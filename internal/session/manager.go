// Package session owns the lifecycle of worker sessions and links each one
// to the inspection state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/logging"
	"github.com/balkashynov/qcscan/internal/metrics"
	"github.com/balkashynov/qcscan/internal/models"
	"github.com/balkashynov/qcscan/internal/ratelimit"
)

// Abort reasons recorded on items
const (
	ReasonRestart = "session restarted"
	ReasonEnd     = "session ended"
)

var (
	ErrSessionNotActive = errors.New("session is not active")
	ErrDuplicateSession = db.ErrDuplicateSession
	ErrWorkerMismatch   = db.ErrWorkerMismatch
)

// Store is the session registry the manager persists through
type Store interface {
	CreateSession(ctx context.Context, workerID string, startedAt time.Time) (*models.WorkerSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.WorkerSession, error)
	ActiveSessionForWorker(ctx context.Context, workerID string) (*models.WorkerSession, error)
	ActiveSessions(ctx context.Context) ([]models.WorkerSession, error)
	RestartSession(ctx context.Context, sessionID, workerID, reason string, at time.Time) (*models.WorkerSession, []models.InspectionItem, error)
	EndSession(ctx context.Context, sessionID, workerID, reason string, at time.Time) (*models.WorkerSession, []models.InspectionItem, error)
	GetItem(ctx context.Context, id uint) (*models.InspectionItem, error)
	CountActive(ctx context.Context, sessionID string) (int, error)
	ListItems(ctx context.Context, sessionID, status string) ([]models.InspectionItem, error)
}

// Manager owns the set of active sessions
type Manager struct {
	store   Store
	machine *inspection.Machine
	limiter *ratelimit.Limiter
	metrics *metrics.Collector
	logger  zerolog.Logger
	now     func() time.Time

	overdueEvery time.Duration
	stepTimeout  time.Duration

	mu      sync.Mutex
	handles map[string]*handle
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithOverdueCheck enables the advisory overdue watcher for each session
func WithOverdueCheck(every time.Duration) Option {
	return func(m *Manager) {
		m.overdueEvery = every
	}
}

// WithMetrics reports session gauges and aborts to c
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// NewManager creates a session manager
func NewManager(store Store, machine *inspection.Machine, limiter *ratelimit.Limiter, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		machine:     machine,
		limiter:     limiter,
		logger:      logging.Component(logger, "session"),
		now:         time.Now,
		stepTimeout: machine.Options().StepTimeout,
		handles:     make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load rebuilds the handles of every active session from the store. Used
// on process start so that expectations reflect durable state.
func (m *Manager) Load(ctx context.Context) error {
	sessions, err := m.store.ActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	for _, s := range sessions {
		if _, err := m.acquire(ctx, s.ID); err != nil {
			return err
		}
	}

	m.logger.Info().Int("sessions", len(sessions)).Msg("sessions loaded")
	return nil
}

// CreateSession starts a session for workerID. It fails with
// ErrDuplicateSession if the worker already has one.
func (m *Manager) CreateSession(ctx context.Context, workerID string) (*models.WorkerSession, error) {
	session, err := m.store.CreateSession(ctx, workerID, m.now())
	if err != nil {
		return nil, err
	}

	h := newHandle(*session, nil)
	m.register(h)

	m.logger.Info().Str("session_id", session.ID).Str("worker_id", workerID).Msg("session created")
	return session, nil
}

// Login creates a session for workerID, or restarts the worker's active
// session when one exists. restarted reports which happened.
func (m *Manager) Login(ctx context.Context, workerID string) (session *models.WorkerSession, restarted bool, err error) {
	session, err = m.CreateSession(ctx, workerID)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, ErrDuplicateSession) {
		return nil, false, err
	}

	existing, err := m.store.ActiveSessionForWorker(ctx, workerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find active session for worker %s: %w", workerID, err)
	}

	session, _, err = m.RestartSession(ctx, existing.ID, workerID)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// RestartSession aborts every active item of the session and resets its
// start time and scan expectation as one operation. Scans of the session
// are held back until the restart finished.
func (m *Manager) RestartSession(ctx context.Context, sessionID, workerID string) (*models.WorkerSession, int, error) {
	h, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, 0, ErrSessionNotActive
	}

	session, aborted, err := m.store.RestartSession(ctx, sessionID, workerID, ReasonRestart, m.now())
	if err != nil {
		if errors.Is(err, db.ErrSessionInactive) {
			return nil, 0, ErrSessionNotActive
		}
		return nil, 0, fmt.Errorf("restart failed, session %s may still have active items: %w", sessionID, err)
	}

	m.machine.RecordAborted(ctx, aborted, ReasonRestart)
	h.reset(*session)
	if m.metrics != nil {
		m.metrics.RecordAborted(len(aborted))
	}

	m.logger.Info().Str("session_id", sessionID).Int("aborted", len(aborted)).Msg("session restarted")
	return session, len(aborted), nil
}

// EndSession aborts every active item and marks the session inactive.
// Ending an already inactive session is a no-op.
func (m *Manager) EndSession(ctx context.Context, sessionID, workerID string) (int, error) {
	m.mu.Lock()
	h := m.handles[sessionID]
	m.mu.Unlock()

	if h != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}

	_, aborted, err := m.store.EndSession(ctx, sessionID, workerID, ReasonEnd, m.now())
	if err != nil {
		return 0, fmt.Errorf("end failed, session %s may still have active items: %w", sessionID, err)
	}

	m.machine.RecordAborted(ctx, aborted, ReasonEnd)
	if h != nil {
		m.release(h)
	}
	m.limiter.Reset(sessionID)
	if m.metrics != nil {
		m.metrics.RecordAborted(len(aborted))
	}

	m.logger.Info().Str("session_id", sessionID).Int("aborted", len(aborted)).Msg("session ended")
	return len(aborted), nil
}

// GetActiveStepsCount returns the number of active items of a session as
// the store sees it
func (m *Manager) GetActiveStepsCount(ctx context.Context, sessionID string) (int, error) {
	return m.store.CountActive(ctx, sessionID)
}

// HandleScan rate-limits the scan and hands it to the state machine while
// holding the session's lock. Scans of one session are processed in
// arrival order; scans of different sessions run concurrently.
func (m *Manager) HandleScan(ctx context.Context, sessionID, code, scanRef string) (inspection.Outcome, error) {
	h, err := m.acquire(ctx, sessionID)
	if err != nil {
		return inspection.Outcome{}, err
	}

	if !m.limiter.Allow(sessionID) {
		m.logger.Info().Str("session_id", sessionID).Str("code", code).Msg("scan rate limit reached")
		return inspection.Outcome{
			Type:    inspection.OutcomeRateLimit,
			Message: "Too many scans, please wait a moment",
		}, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return inspection.Outcome{}, ErrSessionNotActive
	}

	outcome, err := m.machine.HandleScan(ctx, sessionID, code, scanRef)
	if err != nil {
		if errors.Is(err, db.ErrSessionInactive) {
			// ended elsewhere; this handle is stale
			m.logger.Info().Str("session_id", sessionID).Msg("session ended outside this manager")
			m.release(h)
			m.limiter.Reset(sessionID)
			return inspection.Outcome{}, ErrSessionNotActive
		}
		return inspection.Outcome{}, err
	}

	h.lastCode = code
	h.lastScan = m.now()
	switch outcome.Type {
	case inspection.OutcomeEntranceStarted:
		h.pending[code] = outcome.Item.ID
	case inspection.OutcomeExitCompleted:
		delete(h.pending, code)
	case inspection.OutcomeExitError:
		// the item may have been aborted or completed elsewhere
		if err := m.refresh(ctx, h); err != nil {
			m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to refresh expectation")
		}
	}

	return outcome, nil
}

// AbortItem aborts one active item and drops it from its session's
// expectation. It reports false when the item was not active.
func (m *Manager) AbortItem(ctx context.Context, itemID uint, reason string) (bool, error) {
	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	h := m.handles[item.SessionID]
	m.mu.Unlock()
	if h != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}

	aborted, err := m.machine.AbortItem(ctx, itemID, reason)
	if err != nil || !aborted {
		return false, err
	}
	if h != nil {
		delete(h.pending, item.Code)
	}
	if m.metrics != nil {
		m.metrics.RecordAborted(1)
	}
	return true, nil
}

// Snapshot returns the current expectation view of an active session
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	h, err := m.acquire(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Snapshot{}, ErrSessionNotActive
	}
	return h.snapshot(), nil
}

// Refresh rebuilds a session's expectation from the store
func (m *Manager) Refresh(ctx context.Context, sessionID string) error {
	h, err := m.acquire(ctx, sessionID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return m.refresh(ctx, h)
}

// ActiveSessions returns the sessions currently held by the manager
func (m *Manager) ActiveSessions() []models.WorkerSession {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	// h.mu is taken after m.mu is released; release holds h.mu then m.mu
	sessions := make([]models.WorkerSession, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		if !h.closed {
			sessions = append(sessions, h.session)
		}
		h.mu.Unlock()
	}
	return sessions
}

// Close stops every session watcher. Sessions stay active in the store.
func (m *Manager) Close() {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.handles))
	for id, h := range m.handles {
		handles = append(handles, h)
		delete(m.handles, id)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.stopWatcher()
	}
}

// acquire returns the handle of an active session, loading it from the
// store when the manager has not seen the session yet
func (m *Manager) acquire(ctx context.Context, sessionID string) (*handle, error) {
	m.mu.Lock()
	h, ok := m.handles[sessionID]
	m.mu.Unlock()
	if ok {
		return h, nil
	}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrSessionNotActive
		}
		return nil, err
	}
	if !session.Active {
		return nil, ErrSessionNotActive
	}

	active, err := m.store.ListItems(ctx, sessionID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to load active items: %w", err)
	}

	return m.register(newHandle(*session, active)), nil
}

// register stores h unless another goroutine registered the session first
func (m *Manager) register(h *handle) *handle {
	m.mu.Lock()
	if existing, ok := m.handles[h.id]; ok {
		m.mu.Unlock()
		return existing
	}
	m.startWatcher(h)
	m.handles[h.id] = h
	count := len(m.handles)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
	return h
}

// release must be called with h.mu held
func (m *Manager) release(h *handle) {
	h.closed = true

	m.mu.Lock()
	if m.handles[h.id] == h {
		delete(m.handles, h.id)
	}
	count := len(m.handles)
	m.mu.Unlock()

	h.stopWatcher()
	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
}

// refresh must be called with h.mu held
func (m *Manager) refresh(ctx context.Context, h *handle) error {
	active, err := m.store.ListItems(ctx, h.id, models.StatusActive)
	if err != nil {
		return err
	}
	h.pending = make(map[string]uint, len(active))
	for _, item := range active {
		h.pending[item.Code] = item.ID
	}
	return nil
}
