package models

import "time"

type AvailabilityKind string

const (
	AvailabilityAvailable AvailabilityKind = "available"
	AvailabilityBlocked   AvailabilityKind = "blocked"
	AvailabilityVacation  AvailabilityKind = "vacation"
)

// AvailabilityRule is a schedule rule, not a booking. A recurring rule
// carries a day of week and no date range; an override carries a date
// range and no day of week. Start/end are minutes from midnight.
type AvailabilityRule struct {
	ID            int64            `json:"id"`
	TrainerID     int64            `json:"trainer_id"`
	DayOfWeek     *int             `json:"day_of_week"`
	EffectiveFrom *time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time       `json:"effective_to"`
	StartMinute   int              `json:"start_minute"`
	EndMinute     int              `json:"end_minute"`
	IsRecurring   bool             `json:"is_recurring"`
	Kind          AvailabilityKind `json:"kind"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
}
