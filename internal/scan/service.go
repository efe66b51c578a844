// Package scan is the ingestion boundary: it turns a decoded code and a
// session id into an inspection outcome.
package scan

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/balkashynov/qcscan/internal/dedup"
	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/logging"
	"github.com/balkashynov/qcscan/internal/metrics"
	"github.com/balkashynov/qcscan/internal/parser"
	"github.com/balkashynov/qcscan/internal/session"
)

// SessionRegistry answers whether a session may receive scans
type SessionRegistry interface {
	IsSessionActive(ctx context.Context, sessionID string) (bool, error)
}

// Dispatcher hands an admitted scan to the state machine
type Dispatcher interface {
	HandleScan(ctx context.Context, sessionID, code, scanRef string) (inspection.Outcome, error)
}

// Result is what a submission produced. A suppressed scan has no outcome.
type Result struct {
	Outcome    inspection.Outcome
	Suppressed dedup.Reason
}

// Accepted reports whether the scan reached the state machine
func (r Result) Accepted() bool {
	return r.Suppressed == dedup.ReasonNone
}

// Service runs the ingestion pipeline
type Service struct {
	registry   SessionRegistry
	dispatcher Dispatcher
	suppressor *dedup.Suppressor
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

// NewService wires the pipeline. collector may be nil.
func NewService(registry SessionRegistry, dispatcher Dispatcher, suppressor *dedup.Suppressor, collector *metrics.Collector, logger zerolog.Logger) *Service {
	return &Service{
		registry:   registry,
		dispatcher: dispatcher,
		suppressor: suppressor,
		metrics:    collector,
		logger:     logging.Component(logger, "scan"),
	}
}

// SubmitScan processes one decoded scan. ok is false when the scan was
// dropped by duplicate suppression.
func (s *Service) SubmitScan(ctx context.Context, sessionID, code, scanRecordID string) (inspection.Outcome, bool) {
	res := s.Submit(ctx, sessionID, code, scanRecordID)
	return res.Outcome, res.Accepted()
}

// Submit validates the code and the session, filters duplicates and
// dispatches the scan
func (s *Service) Submit(ctx context.Context, sessionID, code, scanRecordID string) Result {
	log := s.logger.With().Str("session_id", sessionID).Logger()

	normalized, err := parser.NormalizeCode(code)
	if err != nil {
		log.Info().Err(err).Msg("malformed code rejected")
		return s.finish(log, Result{Outcome: inspection.Outcome{
			Type:    inspection.OutcomeError,
			Message: "Invalid code: " + err.Error(),
		}})
	}
	log = log.With().Str("code", normalized).Logger()

	active, err := s.registry.IsSessionActive(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("session lookup failed")
		return s.finish(log, Result{Outcome: inspection.ErrorOutcome(err)})
	}
	if !active {
		log.Info().Msg("scan for inactive session rejected")
		return s.finish(log, Result{Outcome: sessionNotActive(sessionID)})
	}

	release, reason := s.suppressor.Admit(normalized)
	if reason != dedup.ReasonNone {
		log.Debug().Str("reason", string(reason)).Msg("scan suppressed")
		if s.metrics != nil {
			s.metrics.RecordSuppressed(string(reason))
		}
		return Result{Suppressed: reason}
	}
	defer release()

	outcome, err := s.dispatcher.HandleScan(ctx, sessionID, normalized, scanRecordID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotActive) {
			log.Info().Msg("session ended before scan was processed")
			return s.finish(log, Result{Outcome: sessionNotActive(sessionID)})
		}
		log.Error().Err(err).Msg("scan failed")
		return s.finish(log, Result{Outcome: inspection.ErrorOutcome(err)})
	}

	return s.finish(log, Result{Outcome: outcome})
}

func (s *Service) finish(log zerolog.Logger, res Result) Result {
	o := res.Outcome

	switch {
	case o.IsTransition(), o.IsPolicyRejection():
		log.Info().Str("outcome", string(o.Type)).Msg(o.Message)
	default:
		log.Warn().Str("outcome", string(o.Type)).Msg(o.Message)
	}

	if s.metrics != nil {
		s.metrics.RecordOutcome(string(o.Type))
		if o.Type == inspection.OutcomeExitCompleted {
			s.metrics.RecordInspectionDuration(time.Duration(o.DurationSeconds) * time.Second)
		}
	}
	return res
}

func sessionNotActive(sessionID string) inspection.Outcome {
	return inspection.Outcome{
		Type:    inspection.OutcomeError,
		Message: "Session " + sessionID + " is not active",
	}
}
