package models

import "time"

// Audit actions
const (
	AuditCreated   = "created"
	AuditCompleted = "completed"
	AuditAborted   = "aborted"
)

// AuditEvent is an append-only record of an item state transition
type AuditEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ItemID    uint      `gorm:"not null;index" json:"item_id"`
	Action    string    `gorm:"type:varchar(20);not null" json:"action"` // created, completed, aborted
	Payload   string    `gorm:"type:text" json:"payload"`                // JSON
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}
