// Package inspection implements the entry/exit state machine for scanned
// codes. An item moves active -> completed on a matching exit scan, or
// active -> aborted when its session restarts or ends. Both are terminal.
package inspection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/logging"
	"github.com/balkashynov/qcscan/internal/models"
	"github.com/balkashynov/qcscan/internal/parser"
)

// Store is the persistence the machine needs
type Store interface {
	LatestItem(ctx context.Context, sessionID, code string) (*models.InspectionItem, error)
	LatestCompletedItem(ctx context.Context, code string) (*models.InspectionItem, error)
	CountActive(ctx context.Context, sessionID string) (int, error)
	CreateActiveItem(ctx context.Context, item *models.InspectionItem, maxActive int) error
	CompleteItem(ctx context.Context, id uint, endScanRef string, endTime time.Time) (*models.InspectionItem, error)
	AbortActiveForSession(ctx context.Context, sessionID, reason string, at time.Time) ([]models.InspectionItem, error)
	AbortItem(ctx context.Context, id uint, reason string, at time.Time) (*models.InspectionItem, error)
	SetQuality(ctx context.Context, id uint, q db.Quality) (*models.InspectionItem, error)
	AppendAudit(ctx context.Context, event *models.AuditEvent) error
}

// Options holds the policy knobs of the machine
type Options struct {
	MaxParallelItems int
	StepTimeout      time.Duration
	RequireBothScans bool
	AllowRework      bool
	Reentry          parser.ReentryWindow
	DefaultPriority  int
	AuditEnabled     bool
}

// DefaultOptions returns the stock policy
func DefaultOptions() Options {
	return Options{
		MaxParallelItems: 10,
		StepTimeout:      120 * time.Minute,
		RequireBothScans: true,
		AllowRework:      true,
		Reentry:          parser.ReentryWindow{Kind: parser.WindowCalendarDay},
		DefaultPriority:  models.PriorityMedium,
		AuditEnabled:     true,
	}
}

var (
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrInvalidPriority  = errors.New("priority must be between 1 and 3")
	ErrReworkNotAllowed = errors.New("rework is disabled")
)

// Machine classifies scans and advances inspection items
type Machine struct {
	store  Store
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewMachine creates a state machine over store
func NewMachine(store Store, opts Options, logger zerolog.Logger) *Machine {
	if opts.DefaultPriority == 0 {
		opts.DefaultPriority = models.PriorityMedium
	}
	if opts.MaxParallelItems <= 0 {
		opts.MaxParallelItems = DefaultOptions().MaxParallelItems
	}
	return &Machine{
		store:  store,
		opts:   opts,
		logger: logging.Component(logger, "inspection"),
		now:    time.Now,
	}
}

// WithClock replaces the time source and returns the machine
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Options returns the active policy
func (m *Machine) Options() Options {
	return m.opts
}

// HandleScan decides whether the scan opens or closes an item.
// A scan opens an item unless the most recent item for (session, code) is
// still active, in which case it closes that item. Only a failed lookup
// and an entry into an ended session (db.ErrSessionInactive) are returned
// as errors; every other result is an Outcome.
func (m *Machine) HandleScan(ctx context.Context, sessionID, code, scanRef string) (Outcome, error) {
	latest, err := m.store.LatestItem(ctx, sessionID, code)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return Outcome{}, fmt.Errorf("failed to look up item for %s: %w", code, err)
	}

	if latest == nil || !latest.IsActive() {
		return m.StartItem(ctx, sessionID, code, scanRef)
	}
	return m.CompleteItem(ctx, latest, code, scanRef), nil
}

// StartItem opens a new active item for (session, code). It returns
// db.ErrSessionInactive when the store refused the insert because the
// session ended; every other result is an Outcome.
func (m *Machine) StartItem(ctx context.Context, sessionID, code, scanRef string) (Outcome, error) {
	log := m.logger.With().Str("session_id", sessionID).Str("code", code).Logger()
	now := m.now()

	active, err := m.store.CountActive(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to count active items")
		return entranceError(code, err), nil
	}
	if active >= m.opts.MaxParallelItems {
		log.Info().Int("active", active).Msg("parallel item limit reached")
		return limitExceeded(code, m.opts.MaxParallelItems), nil
	}

	if blocked, err := m.completedInWindow(ctx, code, now); err != nil {
		log.Error().Err(err).Msg("failed to check completed items")
		return entranceError(code, err), nil
	} else if blocked != nil {
		log.Info().Uint("item_id", blocked.ID).Msg("code already completed")
		return Outcome{
			Type:    OutcomeAlreadyCompleted,
			Message: fmt.Sprintf("%s was already inspected at %s", code, blocked.EndTime.Local().Format("15:04:05")),
			Item:    blocked,
		}, nil
	}

	item := &models.InspectionItem{
		SessionID:    sessionID,
		Code:         code,
		StartScanRef: scanRef,
		StartTime:    now,
		Priority:     m.opts.DefaultPriority,
	}

	if err := m.store.CreateActiveItem(ctx, item, m.opts.MaxParallelItems); err != nil {
		switch {
		case errors.Is(err, db.ErrSessionInactive):
			log.Info().Msg("session ended before the item was created")
			return Outcome{}, err
		case errors.Is(err, db.ErrLimitExceeded):
			log.Info().Msg("parallel item limit reached")
			return limitExceeded(code, m.opts.MaxParallelItems), nil
		case errors.Is(err, db.ErrActiveItemExists):
			log.Info().Msg("concurrent entry for code lost the race")
		default:
			log.Error().Err(err).Msg("failed to create item")
		}
		return entranceError(code, err), nil
	}

	m.audit(ctx, item.ID, models.AuditCreated, map[string]interface{}{
		"session_id": sessionID,
		"code":       code,
		"scan_ref":   scanRef,
	})
	log.Info().Uint("item_id", item.ID).Msg("inspection started")

	if !m.opts.RequireBothScans {
		return m.CompleteItem(ctx, item, code, scanRef), nil
	}

	return Outcome{
		Type:    OutcomeEntranceStarted,
		Message: fmt.Sprintf("Inspection started for %s", code),
		Item:    item,
	}, nil
}

// CompleteItem closes the active item with an exit scan of code
func (m *Machine) CompleteItem(ctx context.Context, item *models.InspectionItem, code, scanRef string) Outcome {
	log := m.logger.With().Str("session_id", item.SessionID).Uint("item_id", item.ID).Logger()

	if item.Code != code {
		log.Info().Str("expected", item.Code).Str("actual", code).Msg("exit scan does not match item")
		return Outcome{
			Type:         OutcomeQRMismatch,
			Message:      fmt.Sprintf("Scanned %s but %s is awaiting its exit scan", code, item.Code),
			Item:         item,
			ExpectedCode: item.Code,
			ActualCode:   code,
		}
	}

	now := m.now()
	overdue := m.opts.StepTimeout > 0 && now.Sub(item.StartTime) > m.opts.StepTimeout
	if overdue {
		log.Warn().
			Dur("elapsed", now.Sub(item.StartTime)).
			Dur("timeout", m.opts.StepTimeout).
			Msg("item exceeded step timeout")
	}

	completed, err := m.store.CompleteItem(ctx, item.ID, scanRef, now)
	if err != nil {
		if errors.Is(err, db.ErrItemNotActive) {
			log.Warn().Msg("item left the active state before the exit scan was stored")
		} else {
			log.Error().Err(err).Msg("failed to complete item")
		}
		return Outcome{
			Type:    OutcomeExitError,
			Message: fmt.Sprintf("Exit scan for %s could not be stored: %v", code, err),
			Item:    item,
		}
	}

	m.audit(ctx, completed.ID, models.AuditCompleted, map[string]interface{}{
		"session_id":       completed.SessionID,
		"code":             code,
		"scan_ref":         scanRef,
		"duration_seconds": completed.DurationSeconds,
		"overdue":          overdue,
	})
	log.Info().Int64("duration_seconds", completed.DurationSeconds).Msg("inspection completed")

	return Outcome{
		Type:            OutcomeExitCompleted,
		Message:         fmt.Sprintf("Inspection of %s completed in %s", code, formatSeconds(completed.DurationSeconds)),
		Item:            completed,
		DurationSeconds: completed.DurationSeconds,
		Overdue:         overdue,
	}
}

// AbortActiveForSession aborts every active item of a session and returns
// how many were aborted. The abort is all-or-nothing; on error no item was
// aborted and the session may still hold active items.
func (m *Machine) AbortActiveForSession(ctx context.Context, sessionID, reason string) (int, error) {
	items, err := m.store.AbortActiveForSession(ctx, sessionID, reason, m.now())
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).Msg("bulk abort failed")
		return 0, fmt.Errorf("abort failed, session %s may still have active items: %w", sessionID, err)
	}
	m.RecordAborted(ctx, items, reason)
	return len(items), nil
}

// AbortItem aborts a single active item. It reports false when the item was
// not active.
func (m *Machine) AbortItem(ctx context.Context, itemID uint, reason string) (bool, error) {
	item, err := m.store.AbortItem(ctx, itemID, reason, m.now())
	if err != nil {
		if errors.Is(err, db.ErrItemNotActive) {
			return false, nil
		}
		return false, err
	}
	m.RecordAborted(ctx, []models.InspectionItem{*item}, reason)
	return true, nil
}

// RecordAborted emits the audit trail for items aborted by the store
func (m *Machine) RecordAborted(ctx context.Context, items []models.InspectionItem, reason string) {
	for _, item := range items {
		m.audit(ctx, item.ID, models.AuditAborted, map[string]interface{}{
			"session_id": item.SessionID,
			"code":       item.Code,
			"reason":     reason,
		})
	}
	if len(items) > 0 {
		m.logger.Info().Int("count", len(items)).Str("reason", reason).Msg("items aborted")
	}
}

// Quality carries the quality fields recorded during an inspection
type Quality struct {
	Rating            *int
	DefectsFound      bool
	DefectDescription string
	ReworkRequired    bool
	Priority          int
}

// RecordQuality stores quality fields on an active item
func (m *Machine) RecordQuality(ctx context.Context, itemID uint, q Quality) (*models.InspectionItem, error) {
	if q.Rating != nil && (*q.Rating < 1 || *q.Rating > 5) {
		return nil, ErrInvalidRating
	}
	if q.Priority < 0 || q.Priority > 3 {
		return nil, ErrInvalidPriority
	}
	if q.ReworkRequired && !m.opts.AllowRework {
		return nil, ErrReworkNotAllowed
	}

	return m.store.SetQuality(ctx, itemID, db.Quality{
		Rating:            q.Rating,
		DefectsFound:      q.DefectsFound,
		DefectDescription: q.DefectDescription,
		ReworkRequired:    q.ReworkRequired,
		Priority:          q.Priority,
	})
}

// completedInWindow returns the completed item that blocks a new entry of
// code, or nil
func (m *Machine) completedInWindow(ctx context.Context, code string, now time.Time) (*models.InspectionItem, error) {
	if m.opts.Reentry.Kind == parser.WindowOff {
		return nil, nil
	}

	done, err := m.store.LatestCompletedItem(ctx, code)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if done.EndTime == nil || !m.opts.Reentry.Blocks(*done.EndTime, now) {
		return nil, nil
	}
	if m.opts.AllowRework && done.ReworkRequired {
		return nil, nil
	}
	return done, nil
}

// audit appends an audit event. Failures are logged and swallowed.
func (m *Machine) audit(ctx context.Context, itemID uint, action string, payload map[string]interface{}) {
	if !m.opts.AuditEnabled {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error().Err(err).Uint("item_id", itemID).Msg("failed to encode audit payload")
		return
	}

	event := &models.AuditEvent{
		ItemID:    itemID,
		Action:    action,
		Payload:   string(body),
		Timestamp: m.now(),
	}
	if err := m.store.AppendAudit(ctx, event); err != nil {
		m.logger.Error().Err(err).Uint("item_id", itemID).Str("action", action).Msg("failed to write audit event")
	}
}

func entranceError(code string, err error) Outcome {
	return Outcome{
		Type:    OutcomeEntranceError,
		Message: fmt.Sprintf("Entry scan for %s could not be stored: %v", code, err),
	}
}

func limitExceeded(code string, max int) Outcome {
	return Outcome{
		Type:    OutcomeLimitExceeded,
		Message: fmt.Sprintf("Cannot start %s: %d items already in progress", code, max),
	}
}

// formatSeconds formats a duration in a human-readable way
func formatSeconds(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	} else if d.Minutes() >= 1 {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}
