package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/balkashynov/qcscan/internal/models"
)

// CreateSession starts a new session for a worker. It fails with
// ErrDuplicateSession if the worker already has an active one.
func (s *Store) CreateSession(ctx context.Context, workerID string, startedAt time.Time) (*models.WorkerSession, error) {
	session := models.WorkerSession{
		ID:        uuid.New().String(),
		WorkerID:  workerID,
		StartedAt: startedAt,
		Active:    true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&models.WorkerSession{}).
			Where("worker_id = ? AND active = ?", workerID, true).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateSession
		}

		if err := tx.Create(&session).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateSession
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.WorkerSession, error) {
	var session models.WorkerSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// ActiveSessionForWorker returns the worker's active session, or ErrNotFound
func (s *Store) ActiveSessionForWorker(ctx context.Context, workerID string) (*models.WorkerSession, error) {
	var session models.WorkerSession
	err := s.db.WithContext(ctx).
		Where("worker_id = ? AND active = ?", workerID, true).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// ActiveSessions returns every active session
func (s *Store) ActiveSessions(ctx context.Context) ([]models.WorkerSession, error) {
	var sessions []models.WorkerSession
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("started_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// IsSessionActive reports whether sessionID names an active session
func (s *Store) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.Active, nil
}

// RestartSession aborts the session's active items and resets its start
// time in one transaction
func (s *Store) RestartSession(ctx context.Context, sessionID, workerID, reason string, at time.Time) (*models.WorkerSession, []models.InspectionItem, error) {
	var session models.WorkerSession
	var aborted []models.InspectionItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockActiveSession(tx, &session, sessionID, workerID); err != nil {
			return err
		}

		var err error
		aborted, err = abortActive(tx, tx.Where("session_id = ?", sessionID), reason, at)
		if err != nil {
			return err
		}

		session.StartedAt = at
		return tx.Model(&models.WorkerSession{}).
			Where("session_id = ?", sessionID).
			Update("started_at", at).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &session, aborted, nil
}

// EndSession aborts the session's active items and marks it inactive in one
// transaction. Ending an inactive session is a no-op.
func (s *Store) EndSession(ctx context.Context, sessionID, workerID, reason string, at time.Time) (*models.WorkerSession, []models.InspectionItem, error) {
	var session models.WorkerSession
	var aborted []models.InspectionItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockActiveSession(tx, &session, sessionID, workerID)
		if errors.Is(err, ErrSessionInactive) {
			return nil
		}
		if err != nil {
			return err
		}

		aborted, err = abortActive(tx, tx.Where("session_id = ?", sessionID), reason, at)
		if err != nil {
			return err
		}

		session.Active = false
		session.EndedAt = &at
		return tx.Model(&models.WorkerSession{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"active":   false,
				"ended_at": at,
			}).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &session, aborted, nil
}

// lockActiveSession loads the session into dest and checks ownership and state
func lockActiveSession(tx *gorm.DB, dest *models.WorkerSession, sessionID, workerID string) error {
	err := lockRow(tx, clause.LockingStrengthUpdate).Where("session_id = ?", sessionID).First(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if workerID != "" && dest.WorkerID != workerID {
		return ErrWorkerMismatch
	}
	if !dest.Active {
		return ErrSessionInactive
	}
	return nil
}
