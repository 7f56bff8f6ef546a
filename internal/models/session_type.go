package models

import "time"

// SessionType is the canonical template for a booking. Duration plus the
// two buffers define the exclusive span a session occupies on a trainer's
// calendar. Rows are deactivated, never deleted, so historical sessions
// keep a valid reference.
type SessionType struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	BufferBeforeMin int       `json:"buffer_before_minutes"`
	BufferAfterMin  int       `json:"buffer_after_minutes"`
	CreditsRequired int       `json:"credits_required"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
