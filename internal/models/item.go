package models

import (
	"time"
)

// Item statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Item priorities
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// InspectionItem is one entry->exit cycle of a scanned code within a session.
//
// Completed is true iff EndTime and EndScanRef are both set. An active item
// has neither. An aborted item carries an EndTime but no EndScanRef.
type InspectionItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SessionID    string     `gorm:"column:session_id;type:varchar(64);not null;index" json:"session_id"`
	Code         string     `gorm:"type:varchar(500);not null;index" json:"code"`
	StartScanRef string     `gorm:"type:varchar(128);not null" json:"start_scan_ref"`
	EndScanRef   *string    `gorm:"type:varchar(128)" json:"end_scan_ref"`
	StartTime    time.Time  `gorm:"not null" json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Completed    bool       `gorm:"not null;default:false" json:"completed"`
	Status       string     `gorm:"type:varchar(20);not null;default:active;index" json:"status"` // active, completed, aborted
	Priority     int        `gorm:"not null;default:2" json:"priority"`                          // 1=low, 2=medium, 3=high

	DurationSeconds int64 `json:"duration_seconds"` // set on completion

	// Quality fields, only writable while the item is active
	Rating            *int   `json:"rating"` // 1-5
	DefectsFound      bool   `gorm:"not null;default:false" json:"defects_found"`
	DefectDescription string `gorm:"type:text" json:"defect_description"`
	ReworkRequired    bool   `gorm:"not null;default:false" json:"rework_required"`
	Notes             string `gorm:"type:text" json:"notes"`

	// Relationships
	AuditEvents []AuditEvent `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE;" json:"-"`
}

// IsActive reports whether the item is still awaiting its exit scan
func (i *InspectionItem) IsActive() bool {
	return i.Status == StatusActive
}

// Elapsed returns how long the item has been (or was) in inspection
func (i *InspectionItem) Elapsed(now time.Time) time.Duration {
	if i.EndTime != nil {
		return i.EndTime.Sub(i.StartTime)
	}
	return now.Sub(i.StartTime)
}
