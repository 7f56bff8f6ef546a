package services

import (
	"context"
	"errors"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/events"
	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/SeanSwan/StudioAppBack/internal/scheduling"
	calendarws "github.com/SeanSwan/StudioAppBack/internal/websocket"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrForbidden              = errors.New("forbidden")
	ErrOutsideAvailability    = errors.New("outside trainer availability")
	ErrDoubleBooked           = errors.New("double booked")
	ErrInsufficientCredits    = errors.New("insufficient session credits")
	ErrBusy                   = errors.New("trainer calendar is busy, retry")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrSessionTypeNotFound    = errors.New("session type not found")
	ErrTrainerNotFound        = errors.New("trainer not found")

	// ErrNotAssigned is the gate's decision, re-exported so handlers map
	// every booking failure from one package.
	ErrNotAssigned = scheduling.ErrNotAssigned
)

const lockPollInterval = 50 * time.Millisecond

type eventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type calendarBroadcaster interface {
	Broadcast(update *calendarws.Update)
}

// SessionService is the booking transaction manager. BookSession is the
// only concurrency-sensitive entry point: the gate check, availability
// resolution, conflict check, credit deduction, and session write all run
// inside one transaction under a per-trainer advisory lock.
type SessionService struct {
	db               *pgxpool.Pool
	sessionRepo      *repository.SessionRepository
	sessionTypeRepo  *repository.SessionTypeRepository
	availabilityRepo *repository.AvailabilityRepository
	assignmentRepo   *repository.AssignmentRepository
	userRepo         *repository.UserRepository
	resolver         *scheduling.Resolver
	publisher        eventPublisher
	hub              calendarBroadcaster
	logger           *zap.Logger

	lockWait           time.Duration
	lowCreditThreshold int
}

type SessionServiceOpts struct {
	// Publisher and Hub are optional; events and broadcasts are skipped
	// when nil.
	Publisher eventPublisher
	Hub       calendarBroadcaster
	Logger    *zap.Logger
	// LockWait bounds how long a booking waits for the trainer's
	// advisory lock before failing with ErrBusy.
	LockWait           time.Duration
	LowCreditThreshold int
}

func NewSessionService(db *pgxpool.Pool, opts SessionServiceOpts) *SessionService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 3 * time.Second
	}
	return &SessionService{
		db:                 db,
		sessionRepo:        repository.NewSessionRepository(db),
		sessionTypeRepo:    repository.NewSessionTypeRepository(db),
		availabilityRepo:   repository.NewAvailabilityRepository(db),
		assignmentRepo:     repository.NewAssignmentRepository(db),
		userRepo:           repository.NewUserRepository(db),
		resolver:           scheduling.NewResolver(opts.Logger),
		publisher:          opts.Publisher,
		hub:                opts.Hub,
		logger:             opts.Logger,
		lockWait:           opts.LockWait,
		lowCreditThreshold: opts.LowCreditThreshold,
	}
}

type BookSessionInput struct {
	// SlotID claims a trainer-published open slot; TrainerID,
	// SessionTypeID and StartsAt describe a fresh request when SlotID is
	// nil.
	SlotID        *int64
	TrainerID     int64
	SessionTypeID int64
	StartsAt      time.Time
	Notes         *string
}

type BookingResult struct {
	Session       *models.Session `json:"session"`
	CreditBalance int             `json:"credit_balance"`
}

// BookSession books a session for a client and settles the credit in the
// same transaction. On any failure no partial state remains. For two
// concurrent attempts on overlapping spans of the same trainer at most
// one succeeds; the loser sees ErrDoubleBooked or ErrBusy.
func (s *SessionService) BookSession(
	ctx context.Context,
	clientID int64,
	input BookSessionInput,
) (*BookingResult, error) {
	if input.SlotID != nil {
		return s.claimOpenSlot(ctx, clientID, *input.SlotID, input.Notes)
	}
	return s.requestSession(ctx, clientID, input)
}

func (s *SessionService) requestSession(
	ctx context.Context,
	clientID int64,
	input BookSessionInput,
) (*BookingResult, error) {
	if input.TrainerID <= 0 || input.SessionTypeID <= 0 {
		return nil, ErrInvalidInput
	}
	if input.StartsAt.Before(time.Now().Add(-1 * time.Minute)) {
		return nil, ErrInvalidInput
	}
	if clientID == input.TrainerID {
		return nil, ErrInvalidInput
	}

	trainer, err := s.userRepo.GetByID(ctx, input.TrainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTrainerNotFound
		}
		return nil, err
	}
	if trainer.Role != "trainer" {
		return nil, ErrTrainerNotFound
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

	gate := scheduling.NewGate(repository.NewAssignmentRepository(tx))
	if err := gate.Authorize(ctx, clientID, input.TrainerID, nil); err != nil {
		return nil, err
	}

	sessionType, err := s.activeSessionType(ctx, tx, input.SessionTypeID)
	if err != nil {
		return nil, err
	}

	if err := s.checkCalendar(ctx, tx, input.TrainerID, input.StartsAt, sessionType); err != nil {
		return nil, err
	}

	txUsers := repository.NewUserRepository(tx)
	newBalance, ok, err := txUsers.DeductCredits(ctx, clientID, sessionType.CreditsRequired)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientCredits
	}

	txSessions := repository.NewSessionRepository(tx)
	session, err := txSessions.Create(ctx, repository.CreateSessionInput{
		TrainerID:       &input.TrainerID,
		ClientID:        &clientID,
		SessionTypeID:   sessionType.ID,
		StartsAt:        input.StartsAt.UTC(),
		DurationMinutes: sessionType.DurationMinutes,
		Status:          models.SessionScheduled,
		Notes:           input.Notes,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := txSessions.MarkDeducted(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.SessionDeducted = true
	session.DeductionDate = &now

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.emitBooked(session, newBalance, sessionType.CreditsRequired)
	return &BookingResult{Session: session, CreditBalance: newBalance}, nil
}

func (s *SessionService) claimOpenSlot(
	ctx context.Context,
	clientID int64,
	slotID int64,
	notes *string,
) (*BookingResult, error) {
	if slotID <= 0 {
		return nil, ErrInvalidInput
	}

	// The trainer id keys the advisory lock, so peek at the slot before
	// opening the transaction scope that takes it.
	slot, err := s.sessionRepo.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.TrainerID == nil {
		return nil, ErrInvalidStateTransition
	}
	trainerID := *slot.TrainerID
	if clientID == trainerID {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := acquireTrainerLock(ctx, tx, trainerID, s.lockWait); err != nil {
		return nil, err
	}

	txSessions := repository.NewSessionRepository(tx)
	slot, err = txSessions.GetByIDForUpdate(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SessionAvailable || slot.ClientID != nil {
		return nil, ErrDoubleBooked
	}
	if slot.StartsAt.Before(time.Now().UTC()) {
		return nil, ErrInvalidInput
	}

	gate := scheduling.NewGate(repository.NewAssignmentRepository(tx))
	if err := gate.Authorize(ctx, clientID, trainerID, slot); err != nil {
		return nil, err
	}

	sessionType, err := repository.NewSessionTypeRepository(tx).GetByID(ctx, slot.SessionTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionTypeNotFound
		}
		return nil, err
	}

	// A published slot can be invalidated by a later override or by a
	// booking that grew around it; re-check against the committed state.
	if err := s.checkCalendar(ctx, tx, trainerID, slot.StartsAt, sessionType); err != nil {
		return nil, err
	}

	txUsers := repository.NewUserRepository(tx)
	newBalance, ok, err := txUsers.DeductCredits(ctx, clientID, sessionType.CreditsRequired)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientCredits
	}

	session, err := txSessions.ClaimOpenSlot(ctx, slotID, clientID, notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoubleBooked
		}
		return nil, err
	}

	now := time.Now().UTC()
	if err := txSessions.MarkDeducted(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.SessionDeducted = true
	session.DeductionDate = &now

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.emitBooked(session, newBalance, sessionType.CreditsRequired)
	return &BookingResult{Session: session, CreditBalance: newBalance}, nil
}

// checkCalendar re-resolves availability and re-checks conflicts against
// committed state. Must run while the trainer's advisory lock is held.
func (s *SessionService) checkCalendar(
	ctx context.Context,
	tx pgx.Tx,
	trainerID int64,
	startsAt time.Time,
	sessionType *models.SessionType,
) error {
	spanStart, spanEnd := scheduling.OccupiedSpan(
		startsAt,
		sessionType.DurationMinutes,
		sessionType.BufferBeforeMin,
		sessionType.BufferAfterMin,
	)

	rules, err := repository.NewAvailabilityRepository(tx).ListForWindow(ctx, trainerID, spanStart, spanEnd)
	if err != nil {
		return err
	}
	intervals := s.resolver.Resolve(trainerID, rules, spanStart, spanEnd)

	occupied, err := repository.NewSessionRepository(tx).ListOccupied(ctx, trainerID, spanStart, spanEnd)
	if err != nil {
		return err
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

	if conflict := scheduling.CheckConflict(intervals, booked, spanStart, spanEnd); conflict != nil {
		switch conflict.Reason {
		case scheduling.ReasonDoubleBooked:
			return ErrDoubleBooked
		default:
			return ErrOutsideAvailability
		}
	}
	return nil
}

func (s *SessionService) activeSessionType(
	ctx context.Context,
	tx pgx.Tx,
	sessionTypeID int64,
) (*models.SessionType, error) {
	sessionType, err := repository.NewSessionTypeRepository(tx).GetByID(ctx, sessionTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionTypeNotFound
		}
		return nil, err
	}
	if !sessionType.IsActive {
		return nil, ErrSessionTypeNotFound
	}
	return sessionType, nil
}

// acquireTrainerLock serializes bookings per trainer. The advisory lock
// is transaction-scoped and releases on commit or rollback; a booking
// that cannot get it within the wait budget fails with ErrBusy instead
// of queueing behind the holder.
func acquireTrainerLock(ctx context.Context, tx pgx.Tx, trainerID int64, wait time.Duration) error {
	backoff := retry.WithMaxDuration(wait, retry.NewConstant(lockPollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var locked bool
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, trainerID).Scan(&locked); err != nil {
			return err
		}
		if !locked {
			return retry.RetryableError(ErrBusy)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBusy) {
			return ErrBusy
		}
		return err
	}
	return nil
}

func (s *SessionService) emitBooked(session *models.Session, newBalance, credits int) {
	s.emitSessionEvent(events.RKSessionBooked, session)
	if session.ClientID != nil {
		s.emitCreditEvent(session.ID, *session.ClientID, -credits, newBalance)
	}
	if newBalance <= s.lowCreditThreshold {
		s.logger.Info("client credit balance low",
			zap.Int64("session_id", session.ID),
			zap.Int("remaining_credits", newBalance),
		)
	}
	s.broadcast("booked", session)
}

func (s *SessionService) emitSessionEvent(key string, session *models.Session) {
	if s.publisher == nil {
		return
	}
	event := events.SessionEvent{
		EventID:   uuid.NewString(),
		SessionID: session.ID,
		TrainerID: session.TrainerID,
		ClientID:  session.ClientID,
		Status:    session.Status,
		StartsAt:  session.StartsAt.Unix(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.PublishJSON(ctx, key, event); err != nil {
		s.logger.Error("publish session event",
			zap.String("routing_key", key),
			zap.Int64("session_id", session.ID),
			zap.Error(err),
		)
	}
}

func (s *SessionService) emitCreditEvent(sessionID, clientID int64, delta, remaining int) {
	if s.publisher == nil {
		return
	}
	event := events.CreditDeducted{
		EventID:          uuid.NewString(),
		SessionID:        sessionID,
		ClientID:         clientID,
		Delta:            delta,
		RemainingCredits: remaining,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.PublishJSON(ctx, events.RKCreditDeducted, event); err != nil {
		s.logger.Error("publish credit event",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (s *SessionService) broadcast(updateType string, session *models.Session) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(&calendarws.Update{
		Type:      updateType,
		SessionID: session.ID,
		TrainerID: session.TrainerID,
		ClientID:  session.ClientID,
		Status:    session.Status,
	})
}
