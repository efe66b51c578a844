package db

import (
	"context"

	"github.com/balkashynov/qcscan/internal/models"
)

// AppendAudit appends an event to the audit log
func (s *Store) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// AuditTrail returns the audit events of an item in order
func (s *Store) AuditTrail(ctx context.Context, itemID uint) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
