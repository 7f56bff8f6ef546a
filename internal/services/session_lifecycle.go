package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/events"
	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/jackc/pgx/v5"
)

// refundCutoff is how far before the start a cancellation still refunds
// the deducted credit for non-admin actors.
const refundCutoff = 24 * time.Hour

func (s *SessionService) GetSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canAccessSession(role, actorID, session) {
		return nil, ErrForbidden
	}
	return session, nil
}

func (s *SessionService) ListSessions(
	ctx context.Context,
	actorID int64,
	role string,
	filter repository.SessionListFilter,
) ([]models.Session, error) {
	filter.ActorID = actorID
	filter.Role = role
	return s.sessionRepo.List(ctx, filter)
}

// UpdateStatus drives the session state machine:
// available|requested|scheduled -> confirmed -> completed, with cancelled
// reachable from any non-terminal state. Cancellation settles the credit
// refund in its own transaction.
func (s *SessionService) UpdateStatus(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	requestedStatus string,
	reason *string,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canAccessSession(role, actorID, session) {
		return nil, ErrForbidden
	}

	nextStatus, err := normalizeRequestedStatus(requestedStatus)
	if err != nil {
		return nil, err
	}
	if err := validateStatusTransition(role, session, nextStatus); err != nil {
		return nil, err
	}

	if nextStatus == models.SessionCancelled {
		return s.cancelSession(ctx, actorID, role, sessionID, reason)
	}

	updated, err := s.sessionRepo.UpdateStatusIfCurrent(ctx, sessionID, session.Status, nextStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	switch nextStatus {
	case models.SessionConfirmed:
		s.broadcast("confirmed", updated)
	case models.SessionCompleted:
		s.broadcast("completed", updated)
	}
	return updated, nil
}

// cancelSession locates the row under a row lock, reverses the credit
// debit when policy allows, and cancels, all in one transaction. It never
// touches other sessions, so it does not take the trainer advisory lock.
func (s *SessionService) cancelSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	reason *string,
) (*models.Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessions := repository.NewSessionRepository(tx)
	session, err := txSessions.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionCompleted || session.Status == models.SessionCancelled {
		return nil, ErrInvalidStateTransition
	}

	refunded := 0
	newBalance := 0
	if session.SessionDeducted && session.ClientID != nil && refundAllowed(role, session, time.Now().UTC()) {
		sessionType, err := repository.NewSessionTypeRepository(tx).GetByID(ctx, session.SessionTypeID)
		if err != nil {
			return nil, err
		}
		newBalance, err = repository.NewUserRepository(tx).AddCredits(ctx, *session.ClientID, sessionType.CreditsRequired)
		if err != nil {
			return nil, err
		}
		if err := txSessions.ClearDeduction(ctx, sessionID); err != nil {
			return nil, err
		}
		refunded = sessionType.CreditsRequired
	}

	cancelled, err := txSessions.Cancel(ctx, sessionID, session.Status, actorID, reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.emitSessionEvent(events.RKSessionCancelled, cancelled)
	if refunded > 0 && cancelled.ClientID != nil {
		s.emitCreditEvent(cancelled.ID, *cancelled.ClientID, refunded, newBalance)
	}
	s.broadcast("cancelled", cancelled)
	return cancelled, nil
}

// refundAllowed applies the cancellation policy: admins always refund,
// clients and trainers only when cancelling at least refundCutoff before
// the start.
func refundAllowed(role string, session *models.Session, now time.Time) bool {
	if role == "admin" {
		return true
	}
	return session.StartsAt.UTC().Sub(now) >= refundCutoff
}

func canAccessSession(role string, actorID int64, session *models.Session) bool {
	switch role {
	case "admin":
		return true
	case "client":
		return session.ClientID != nil && *session.ClientID == actorID
	case "trainer":
		return session.TrainerID != nil && *session.TrainerID == actorID
	default:
		return false
	}
}

func normalizeRequestedStatus(status string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "confirm", "confirmed":
		return models.SessionConfirmed, nil
	case "complete", "completed":
		return models.SessionCompleted, nil
	case "cancel", "cancelled", "canceled":
		return models.SessionCancelled, nil
	default:
		return "", ErrInvalidStatus
	}
}

func validateStatusTransition(role string, session *models.Session, nextStatus string) error {
	switch nextStatus {
	case models.SessionCancelled:
		if role == "client" && session.Status == models.SessionAvailable {
			return ErrForbidden
		}
		if session.Status == models.SessionCompleted || session.Status == models.SessionCancelled {
			return ErrInvalidStateTransition
		}
		return nil
	case models.SessionConfirmed:
		if role == "client" {
			return ErrForbidden
		}
		if session.Status != models.SessionRequested && session.Status != models.SessionScheduled {
			return ErrInvalidStateTransition
		}
		return nil
	case models.SessionCompleted:
		if role == "client" {
			return ErrForbidden
		}
		if session.Status != models.SessionConfirmed && session.Status != models.SessionScheduled {
			return ErrInvalidStateTransition
		}
		sessionEnd := session.StartsAt.UTC().Add(time.Duration(session.DurationMinutes) * time.Minute)
		if sessionEnd.After(time.Now().UTC()) {
			return ErrInvalidStateTransition
		}
		return nil
	default:
		return ErrInvalidStatus
	}
}
