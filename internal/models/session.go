package models

import (
	"time"
)

// WorkerSession represents one worker's active work period at a scanner station
type WorkerSession struct {
	ID        string    `gorm:"column:session_id;primaryKey;type:varchar(64)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	WorkerID  string     `gorm:"column:worker_id;type:varchar(64);not null;index" json:"worker_id"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Active    bool       `gorm:"not null;default:true" json:"active"`

	// Relationships
	Items []InspectionItem `gorm:"foreignKey:SessionID;references:ID" json:"-"`
}
