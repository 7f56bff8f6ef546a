package models

import "time"

const (
	SessionAvailable = "available"
	SessionRequested = "requested"
	SessionScheduled = "scheduled"
	SessionConfirmed = "confirmed"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

type Session struct {
	ID                 int64      `json:"id"`
	TrainerID          *int64     `json:"trainer_id"`
	ClientID           *int64     `json:"client_id"`
	SessionTypeID      int64      `json:"session_type_id"`
	StartsAt           time.Time  `json:"starts_at"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             string     `json:"status"`
	SessionDeducted    bool       `json:"session_deducted"`
	DeductionDate      *time.Time `json:"deduction_date"`
	Notes              *string    `json:"notes"`
	CancelledBy        *int64     `json:"cancelled_by"`
	CancellationReason *string    `json:"cancellation_reason"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Occupies reports whether the session holds its trainer's time.
// Cancelled and completed sessions never conflict, and neither do
// unclaimed open slots.
func (s *Session) Occupies() bool {
	switch s.Status {
	case SessionRequested, SessionScheduled, SessionConfirmed:
		return true
	default:
		return false
	}
}
