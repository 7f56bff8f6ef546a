package repository

import (
	"testing"
	"time"
)

func TestWindowDayBoundsUseUTCDates(t *testing.T) {
	// 2030-03-14 19:30 -05:00 is already 2030-03-15 00:30 UTC; the fetch
	// bounds must land on the UTC day, not the local one.
	eastern := time.FixedZone("UTC-5", -5*3600)
	start := time.Date(2030, time.March, 14, 19, 30, 0, 0, eastern)
	end := start.Add(time.Hour)

	first, last := windowDayBounds(start, end)

	want := time.Date(2030, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !first.Equal(want) || !last.Equal(want) {
		t.Fatalf("expected bounds [%v, %v], got [%v, %v]", want, want, first, last)
	}
	if first.Location() != time.UTC || last.Location() != time.UTC {
		t.Fatalf("expected UTC bounds, got %v and %v", first.Location(), last.Location())
	}
}

func TestWindowDayBoundsSpanMultipleDays(t *testing.T) {
	start := time.Date(2030, time.March, 15, 23, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	first, last := windowDayBounds(start, end)

	if !first.Equal(time.Date(2030, time.March, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first day %v", first)
	}
	if !last.Equal(time.Date(2030, time.March, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last day %v", last)
	}
}
