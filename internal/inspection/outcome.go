package inspection

import (
	"github.com/balkashynov/qcscan/internal/models"
)

// OutcomeType classifies the result of a scan
type OutcomeType string

const (
	OutcomeEntranceStarted  OutcomeType = "entrance_started"
	OutcomeExitCompleted    OutcomeType = "exit_completed"
	OutcomeAlreadyCompleted OutcomeType = "already_completed"
	OutcomeLimitExceeded    OutcomeType = "limit_exceeded"
	OutcomeQRMismatch       OutcomeType = "qr_mismatch"
	OutcomeRateLimit        OutcomeType = "rate_limit"
	OutcomeEntranceError    OutcomeType = "entrance_error"
	OutcomeExitError        OutcomeType = "exit_error"
	OutcomeError            OutcomeType = "error"
)

// Outcome is the typed result handed back to the presentation layer
type Outcome struct {
	Type    OutcomeType            `json:"type"`
	Message string                 `json:"message"`
	Item    *models.InspectionItem `json:"item,omitempty"`

	// Set on qr_mismatch
	ExpectedCode string `json:"expected_code,omitempty"`
	ActualCode   string `json:"actual_code,omitempty"`

	// Set on exit_completed
	DurationSeconds int64 `json:"duration_seconds,omitempty"`
	Overdue         bool  `json:"overdue,omitempty"`
}

// IsTransition reports whether the outcome changed an item's state
func (o Outcome) IsTransition() bool {
	return o.Type == OutcomeEntranceStarted || o.Type == OutcomeExitCompleted
}

// IsPolicyRejection reports whether the outcome is an expected rejection
func (o Outcome) IsPolicyRejection() bool {
	switch o.Type {
	case OutcomeAlreadyCompleted, OutcomeLimitExceeded, OutcomeQRMismatch, OutcomeRateLimit:
		return true
	}
	return false
}

// ErrorOutcome wraps an infrastructure failure for the caller
func ErrorOutcome(err error) Outcome {
	return Outcome{
		Type:    OutcomeError,
		Message: "Scan could not be processed: " + err.Error(),
	}
}
