package scheduling

import (
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
)

type ConflictReason string

const (
	ReasonOutsideAvailability ConflictReason = "outside_availability"
	ReasonDoubleBooked        ConflictReason = "double_booked"
)

// Conflict describes why a proposed booking cannot take the requested time.
type Conflict struct {
	Reason ConflictReason `json:"reason"`
	// With is the id of the colliding session for double bookings.
	With *int64 `json:"with,omitempty"`
}

// BookedSpan is an existing session's occupied span, computed with that
// session's own buffers.
type BookedSpan struct {
	SessionID int64     `json:"session_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// OccupiedSpan computes the exclusive span a booking holds on the
// trainer's calendar: the session itself plus its buffers, half-open.
func OccupiedSpan(start time.Time, durationMin, bufferBeforeMin, bufferAfterMin int) (time.Time, time.Time) {
	spanStart := start.UTC().Add(-time.Duration(bufferBeforeMin) * time.Minute)
	spanEnd := start.UTC().
		Add(time.Duration(durationMin) * time.Minute).
		Add(time.Duration(bufferAfterMin) * time.Minute)
	return spanStart, spanEnd
}

// CheckConflict validates a proposed occupied span against the resolved
// availability partition and the trainer's existing booked spans. It
// returns nil when the span fits. The intervals must cover the span
// (resolve a window at least as wide as the span before calling).
//
// The same rules run for a read-only preview and inside the booking
// transaction, so the two paths cannot drift.
func CheckConflict(
	intervals []Interval,
	booked []BookedSpan,
	spanStart time.Time,
	spanEnd time.Time,
) *Conflict {
	spanStart = spanStart.UTC()
	spanEnd = spanEnd.UTC()

	// A span outside the resolved window is uncovered time, which is blocked.
	if len(intervals) == 0 ||
		spanStart.Before(intervals[0].Start) ||
		spanEnd.After(intervals[len(intervals)-1].End) {
		return &Conflict{Reason: ReasonOutsideAvailability}
	}
	for _, iv := range intervals {
		if !overlaps(iv.Start, iv.End, spanStart, spanEnd) {
			continue
		}
		if iv.Kind != models.AvailabilityAvailable {
			return &Conflict{Reason: ReasonOutsideAvailability}
		}
	}

	for _, b := range booked {
		if overlaps(b.Start, b.End, spanStart, spanEnd) {
			with := b.SessionID
			return &Conflict{Reason: ReasonDoubleBooked, With: &with}
		}
	}
	return nil
}

// overlaps reports half-open overlap: a span ending exactly when another
// begins does not collide.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
