package services

import (
	"context"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/SeanSwan/StudioAppBack/internal/scheduling"
)

const maxPreviewWindow = 31 * 24 * time.Hour

type PublishSlotsInput struct {
	TrainerID     int64
	SessionTypeID int64
	Starts        []time.Time
	// RepeatWeeks repeats every start weekly that many additional times,
	// the original bulk slot creation behavior.
	RepeatWeeks int
	Notes       *string
}

// PublishOpenSlots creates claimable open slots on a trainer's calendar.
// Every slot is validated against effective availability and existing
// bookings under the trainer's advisory lock, so a published slot is
// legal at publish time.
func (s *SessionService) PublishOpenSlots(
	ctx context.Context,
	actorID int64,
	role string,
	input PublishSlotsInput,
) ([]models.Session, error) {
	switch role {
	case "trainer":
		if input.TrainerID != 0 && input.TrainerID != actorID {
			return nil, ErrForbidden
		}
		input.TrainerID = actorID
	case "admin":
		if input.TrainerID <= 0 {
			return nil, ErrInvalidInput
		}
	default:
		return nil, ErrForbidden
	}

	if len(input.Starts) == 0 || input.SessionTypeID <= 0 ||
		input.RepeatWeeks < 0 || input.RepeatWeeks > 52 {
		return nil, ErrInvalidInput
	}

	starts := expandWeekly(input.Starts, input.RepeatWeeks)
	now := time.Now().UTC()
	for _, start := range starts {
		if start.Before(now) {
			return nil, ErrInvalidInput
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := acquireTrainerLock(ctx, tx, input.TrainerID, s.lockWait); err != nil {
		return nil, err
	}

	sessionType, err := s.activeSessionType(ctx, tx, input.SessionTypeID)
	if err != nil {
		return nil, err
	}

	txSessions := repository.NewSessionRepository(tx)
	created := make([]models.Session, 0, len(starts))
	for _, start := range starts {
		if err := s.checkCalendar(ctx, tx, input.TrainerID, start, sessionType); err != nil {
			return nil, err
		}
		// Open slots do not occupy the calendar until claimed, so guard
		// against overlap within this batch explicitly.
		if err := s.checkBatchOverlap(created, start, sessionType); err != nil {
			return nil, err
		}

		session, err := txSessions.Create(ctx, repository.CreateSessionInput{
			TrainerID:       &input.TrainerID,
			SessionTypeID:   sessionType.ID,
			StartsAt:        start.UTC(),
			DurationMinutes: sessionType.DurationMinutes,
			Status:          models.SessionAvailable,
			Notes:           input.Notes,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, *session)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	for i := range created {
		s.broadcast("slot_published", &created[i])
	}
	return created, nil
}

func (s *SessionService) checkBatchOverlap(
	created []models.Session,
	start time.Time,
	sessionType *models.SessionType,
) error {
	spanStart, spanEnd := scheduling.OccupiedSpan(
		start,
		sessionType.DurationMinutes,
		sessionType.BufferBeforeMin,
		sessionType.BufferAfterMin,
	)
	booked := make([]scheduling.BookedSpan, 0, len(created))
	for _, c := range created {
		bStart, bEnd := scheduling.OccupiedSpan(
			c.StartsAt,
			sessionType.DurationMinutes,
			sessionType.BufferBeforeMin,
			sessionType.BufferAfterMin,
		)
		booked = append(booked, scheduling.BookedSpan{SessionID: c.ID, Start: bStart, End: bEnd})
	}
	for _, b := range booked {
		if spanStart.Before(b.End) && spanEnd.After(b.Start) {
			return ErrDoubleBooked
		}
	}
	return nil
}

func expandWeekly(starts []time.Time, repeatWeeks int) []time.Time {
	expanded := make([]time.Time, 0, len(starts)*(repeatWeeks+1))
	for _, start := range starts {
		for week := 0; week <= repeatWeeks; week++ {
			expanded = append(expanded, start.UTC().AddDate(0, 0, 7*week))
		}
	}
	return expanded
}

type AvailabilityPreview struct {
	TrainerID   int64                   `json:"trainer_id"`
	WindowStart time.Time               `json:"window_start"`
	WindowEnd   time.Time               `json:"window_end"`
	Intervals   []scheduling.Interval   `json:"intervals"`
	Booked      []scheduling.BookedSpan `json:"booked"`
	OpenSlots   []models.Session        `json:"open_slots"`
}

// PreviewAvailability runs the resolver and conflict inputs read-only for
// calendar rendering. The result is advisory: booking re-runs the same
// checks inside the transaction.
func (s *SessionService) PreviewAvailability(
	ctx context.Context,
	trainerID int64,
	windowStart time.Time,
	windowEnd time.Time,
) (*AvailabilityPreview, error) {
	if trainerID <= 0 || !windowEnd.After(windowStart) ||
		windowEnd.Sub(windowStart) > maxPreviewWindow {
		return nil, ErrInvalidInput
	}

	rules, err := s.availabilityRepo.ListForWindow(ctx, trainerID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	intervals := s.resolver.Resolve(trainerID, rules, windowStart, windowEnd)

	occupied, err := s.sessionRepo.ListOccupied(ctx, trainerID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	booked := make([]scheduling.BookedSpan, 0, len(occupied))
	for _, o := range occupied {
		bStart, bEnd := scheduling.OccupiedSpan(
			o.Session.StartsAt,
			o.Session.DurationMinutes,
			o.BufferBeforeMin,
			o.BufferAfterMin,
		)
		booked = append(booked, scheduling.BookedSpan{SessionID: o.Session.ID, Start: bStart, End: bEnd})
	}

	openSlots, err := s.sessionRepo.ListOpenSlots(ctx, trainerID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	return &AvailabilityPreview{
		TrainerID:   trainerID,
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd.UTC(),
		Intervals:   intervals,
		Booked:      booked,
		OpenSlots:   openSlots,
	}, nil
}
