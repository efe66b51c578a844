package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/balkashynov/qcscan/internal/models"
)

// Quality holds the optional quality fields of an item
type Quality struct {
	Rating            *int
	DefectsFound      bool
	DefectDescription string
	ReworkRequired    bool
	Priority          int // 0 leaves the priority unchanged
}

// LatestItem returns the most recent item for (sessionID, code) regardless
// of status, or ErrNotFound
func (s *Store) LatestItem(ctx context.Context, sessionID, code string) (*models.InspectionItem, error) {
	var item models.InspectionItem
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND code = ?", sessionID, code).
		Order("id DESC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// LatestCompletedItem returns the most recently completed item for code in
// any session, or ErrNotFound
func (s *Store) LatestCompletedItem(ctx context.Context, code string) (*models.InspectionItem, error) {
	var item models.InspectionItem
	err := s.db.WithContext(ctx).
		Where("code = ? AND status = ?", code, models.StatusCompleted).
		Order("id DESC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GetItem retrieves an item by ID
func (s *Store) GetItem(ctx context.Context, id uint) (*models.InspectionItem, error) {
	var item models.InspectionItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CountActive returns the number of active items in a session
func (s *Store) CountActive(ctx context.Context, sessionID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.InspectionItem{}).
		Where("session_id = ? AND status = ?", sessionID, models.StatusActive).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListItems returns the items of a session, oldest first. An empty status
// returns every item.
func (s *Store) ListItems(ctx context.Context, sessionID, status string) ([]models.InspectionItem, error) {
	var items []models.InspectionItem

	query := s.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListActiveItems returns the active items across all sessions
func (s *Store) ListActiveItems(ctx context.Context) ([]models.InspectionItem, error) {
	var items []models.InspectionItem
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateActiveItem inserts item as active if its session is still active,
// holds fewer than maxActive active items and has no active item for the
// code. The checks and the insert share one transaction; the partial unique
// index is the authority on the (session, code) rule. The session row is
// share-locked so that a concurrent end or restart either sees the new item
// or makes the insert fail with ErrSessionInactive.
func (s *Store) CreateActiveItem(ctx context.Context, item *models.InspectionItem, maxActive int) error {
	item.Status = models.StatusActive
	item.Completed = false
	item.EndTime = nil
	item.EndScanRef = nil

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.WorkerSession
		err := lockRow(tx, clause.LockingStrengthShare).
			Where("session_id = ?", item.SessionID).
			First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionInactive
			}
			return err
		}
		if !session.Active {
			return ErrSessionInactive
		}

		var count int64
		err = tx.Model(&models.InspectionItem{}).
			Where("session_id = ? AND status = ?", item.SessionID, models.StatusActive).
			Count(&count).Error
		if err != nil {
			return err
		}
		if maxActive > 0 && int(count) >= maxActive {
			return ErrLimitExceeded
		}

		if err := tx.Create(item).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrActiveItemExists
			}
			return err
		}
		return nil
	})
}

// CompleteItem marks an active item completed. The update is conditional on
// the item still being active; ErrItemNotActive reports a lost update.
func (s *Store) CompleteItem(ctx context.Context, id uint, endScanRef string, endTime time.Time) (*models.InspectionItem, error) {
	var item models.InspectionItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotActive
			}
			return err
		}
		if item.Status != models.StatusActive {
			return ErrItemNotActive
		}

		duration := int64(endTime.Sub(item.StartTime) / time.Second)
		if duration < 0 {
			duration = 0
		}

		result := tx.Model(&models.InspectionItem{}).
			Where("id = ? AND status = ?", id, models.StatusActive).
			Updates(map[string]interface{}{
				"end_time":         endTime,
				"end_scan_ref":     endScanRef,
				"completed":        true,
				"status":           models.StatusCompleted,
				"duration_seconds": duration,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrItemNotActive
		}

		return tx.First(&item, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AbortActiveForSession aborts every active item of a session in a single
// transaction and returns the aborted items. On failure nothing is aborted.
func (s *Store) AbortActiveForSession(ctx context.Context, sessionID, reason string, at time.Time) ([]models.InspectionItem, error) {
	var aborted []models.InspectionItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		aborted, err = abortActive(tx, tx.Where("session_id = ?", sessionID), reason, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return aborted, nil
}

// AbortItem aborts a single item. It returns ErrItemNotActive when the item
// is missing or already left the active state.
func (s *Store) AbortItem(ctx context.Context, id uint, reason string, at time.Time) (*models.InspectionItem, error) {
	var aborted []models.InspectionItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		aborted, err = abortActive(tx, tx.Where("id = ?", id), reason, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(aborted) == 0 {
		return nil, ErrItemNotActive
	}
	return &aborted[0], nil
}

// abortActive aborts the active items matched by scope inside tx
func abortActive(tx *gorm.DB, scope *gorm.DB, reason string, at time.Time) ([]models.InspectionItem, error) {
	var items []models.InspectionItem
	if err := scope.Where("status = ?", models.StatusActive).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}

	for i := range items {
		item := &items[i]
		notes := appendNote(item.Notes, fmt.Sprintf("aborted: %s", reason))

		result := tx.Model(&models.InspectionItem{}).
			Where("id = ? AND status = ?", item.ID, models.StatusActive).
			Updates(map[string]interface{}{
				"status":   models.StatusAborted,
				"end_time": at,
				"notes":    notes,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("item #%d changed during abort: %w", item.ID, ErrItemNotActive)
		}

		item.Status = models.StatusAborted
		item.EndTime = &at
		item.Notes = notes
	}

	return items, nil
}

// SetQuality writes the quality fields of an active item
func (s *Store) SetQuality(ctx context.Context, id uint, q Quality) (*models.InspectionItem, error) {
	var item models.InspectionItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"rating":             q.Rating,
			"defects_found":      q.DefectsFound,
			"defect_description": strings.TrimSpace(q.DefectDescription),
			"rework_required":    q.ReworkRequired,
		}
		if q.Priority != 0 {
			updates["priority"] = q.Priority
		}

		result := tx.Model(&models.InspectionItem{}).
			Where("id = ? AND status = ?", id, models.StatusActive).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrItemNotActive
		}
		return tx.First(&item, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// appendNote adds a line to the notes field
func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
