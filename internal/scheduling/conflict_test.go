package scheduling

import (
	"testing"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
)

func mondayWorkday() []Interval {
	return []Interval{
		{Start: monday, End: monday.Add(9 * time.Hour), Kind: models.AvailabilityBlocked},
		{Start: monday.Add(9 * time.Hour), End: monday.Add(17 * time.Hour), Kind: models.AvailabilityAvailable},
		{Start: monday.Add(17 * time.Hour), End: monday.AddDate(0, 0, 1), Kind: models.AvailabilityBlocked},
	}
}

func TestOccupiedSpanIncludesBuffers(t *testing.T) {
	start := monday.Add(10 * time.Hour)
	spanStart, spanEnd := OccupiedSpan(start, 60, 10, 15)

	if !spanStart.Equal(start.Add(-10 * time.Minute)) {
		t.Fatalf("expected span start 09:50, got %v", spanStart)
	}
	if !spanEnd.Equal(start.Add(75 * time.Minute)) {
		t.Fatalf("expected span end 11:15, got %v", spanEnd)
	}
}

func TestCheckConflictFitsInsideAvailability(t *testing.T) {
	spanStart, spanEnd := OccupiedSpan(monday.Add(10*time.Hour), 60, 0, 15)

	if c := CheckConflict(mondayWorkday(), nil, spanStart, spanEnd); c != nil {
		t.Fatalf("expected no conflict, got %+v", c)
	}
}

func TestCheckConflictOutsideAvailability(t *testing.T) {
	// 60 minute session with a 15 minute tail buffer starting 16:30 runs
	// past the 17:00 close.
	spanStart, spanEnd := OccupiedSpan(monday.Add(16*time.Hour+30*time.Minute), 60, 0, 15)

	c := CheckConflict(mondayWorkday(), nil, spanStart, spanEnd)
	if c == nil || c.Reason != ReasonOutsideAvailability {
		t.Fatalf("expected outside availability, got %+v", c)
	}
}

func TestCheckConflictSpanOutsideResolvedWindow(t *testing.T) {
	intervals := mondayWorkday()
	spanStart := monday.AddDate(0, 0, 1)
	spanEnd := spanStart.Add(time.Hour)

	c := CheckConflict(intervals, nil, spanStart, spanEnd)
	if c == nil || c.Reason != ReasonOutsideAvailability {
		t.Fatalf("uncovered time must be blocked, got %+v", c)
	}
}

func TestCheckConflictBufferAwareDoubleBooking(t *testing.T) {
	// Existing session 10:00-11:00 with a 15 minute tail buffer occupies
	// until 11:15.
	existingStart, existingEnd := OccupiedSpan(monday.Add(10*time.Hour), 60, 0, 15)
	booked := []BookedSpan{{SessionID: 77, Start: existingStart, End: existingEnd}}

	// Starting exactly at 11:15 is legal under half-open spans.
	okStart, okEnd := OccupiedSpan(monday.Add(11*time.Hour+15*time.Minute), 60, 0, 15)
	if c := CheckConflict(mondayWorkday(), booked, okStart, okEnd); c != nil {
		t.Fatalf("back-to-back after buffer must fit, got %+v", c)
	}

	// One minute earlier collides with the buffer.
	badStart, badEnd := OccupiedSpan(monday.Add(11*time.Hour+14*time.Minute), 60, 0, 15)
	c := CheckConflict(mondayWorkday(), booked, badStart, badEnd)
	if c == nil || c.Reason != ReasonDoubleBooked {
		t.Fatalf("expected double booked, got %+v", c)
	}
	if c.With == nil || *c.With != 77 {
		t.Fatalf("expected colliding session 77, got %+v", c.With)
	}
}

func TestCheckConflictLeadingBufferCollides(t *testing.T) {
	existingStart, existingEnd := OccupiedSpan(monday.Add(10*time.Hour), 60, 0, 0)
	booked := []BookedSpan{{SessionID: 5, Start: existingStart, End: existingEnd}}

	// New session starts after the existing one ends, but its 10 minute
	// lead buffer reaches back into it.
	spanStart, spanEnd := OccupiedSpan(monday.Add(11*time.Hour+5*time.Minute), 60, 10, 0)
	c := CheckConflict(mondayWorkday(), booked, spanStart, spanEnd)
	if c == nil || c.Reason != ReasonDoubleBooked {
		t.Fatalf("expected lead buffer collision, got %+v", c)
	}
}

func TestCheckConflictAvailabilityBeforeDoubleBooking(t *testing.T) {
	// A span that is both blocked and colliding reports availability first.
	existingStart, existingEnd := OccupiedSpan(monday.Add(8*time.Hour), 120, 0, 0)
	booked := []BookedSpan{{SessionID: 9, Start: existingStart, End: existingEnd}}

	spanStart, spanEnd := OccupiedSpan(monday.Add(8*time.Hour+30*time.Minute), 60, 0, 0)
	c := CheckConflict(mondayWorkday(), booked, spanStart, spanEnd)
	if c == nil || c.Reason != ReasonOutsideAvailability {
		t.Fatalf("expected outside availability to win, got %+v", c)
	}
}

func TestResolveAndCheckComposedWorkday(t *testing.T) {
	// Recurring Monday workday with a blocked lunch override: a booking
	// whose tail buffer reaches into the block fails, an earlier one fits.
	created := monday.AddDate(0, -1, 0)
	rules := []models.AvailabilityRule{
		recurringRule(1, 1, 9*60, 17*60, models.AvailabilityAvailable, created),
		overrideRule(2, datePtr(2024, time.June, 10), datePtr(2024, time.June, 10),
			12*60, 13*60, models.AvailabilityBlocked, created.Add(time.Hour)),
	}
	r := NewResolver(nil)
	intervals := r.Resolve(1, rules, monday, monday.AddDate(0, 0, 1))

	// 11:30 + 60 + 10 tail buffer runs to 12:40, inside the block.
	spanStart, spanEnd := OccupiedSpan(monday.Add(11*time.Hour+30*time.Minute), 60, 0, 10)
	c := CheckConflict(intervals, nil, spanStart, spanEnd)
	if c == nil || c.Reason != ReasonOutsideAvailability {
		t.Fatalf("expected 11:30 to be outside availability, got %+v", c)
	}

	// 10:00 clears the block with its buffer ending at 11:10.
	spanStart, spanEnd = OccupiedSpan(monday.Add(10*time.Hour), 60, 0, 10)
	if c := CheckConflict(intervals, nil, spanStart, spanEnd); c != nil {
		t.Fatalf("expected 10:00 to fit, got %+v", c)
	}
}
