package services

import (
	"context"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"go.uber.org/zap"
)

const sweepBatchSize = 200

// SweepResult summarizes one pass of the credit deduction sweep.
type SweepResult struct {
	Processed int `json:"processed"`
	Deducted  int `json:"deducted"`
	NoCredit  int `json:"noCredit"`
}

type creditEmission struct {
	sessionID int64
	clientID  int64
	delta     int
	balance   int
}

// SweepDeductions settles past sessions that were booked without an
// upfront debit (slots granted by admins, imported data). Each eligible
// session is charged against the client's balance and moved to completed;
// clients with no credits left still get the session completed so the
// sweep does not revisit it, with the shortfall logged for follow-up.
func (s *SessionService) SweepDeductions(ctx context.Context) (*SweepResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessions := repository.NewSessionRepository(tx)
	txTypes := repository.NewSessionTypeRepository(tx)
	txUsers := repository.NewUserRepository(tx)

	eligible, err := txSessions.ListDeductionEligible(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	typeCache := map[int64]*models.SessionType{}
	var emissions []creditEmission

	for i := range eligible {
		session := &eligible[i]
		result.Processed++

		sessionType, ok := typeCache[session.SessionTypeID]
		if !ok {
			sessionType, err = txTypes.GetByID(ctx, session.SessionTypeID)
			if err != nil {
				return nil, err
			}
			typeCache[session.SessionTypeID] = sessionType
		}

		balance, deducted, err := txUsers.DeductCredits(ctx, *session.ClientID, sessionType.CreditsRequired)
		if err != nil {
			return nil, err
		}
		if deducted {
			if err := txSessions.MarkDeducted(ctx, session.ID, time.Now().UTC()); err != nil {
				return nil, err
			}
			result.Deducted++
			emissions = append(emissions, creditEmission{
				sessionID: session.ID,
				clientID:  *session.ClientID,
				delta:     -sessionType.CreditsRequired,
				balance:   balance,
			})
		} else {
			result.NoCredit++
			s.logger.Warn("deduction sweep found client without credits",
				zap.Int64("sessionId", session.ID),
				zap.Int64("clientId", *session.ClientID),
				zap.Int("creditsRequired", sessionType.CreditsRequired))
		}

		if _, err := txSessions.UpdateStatusIfCurrent(ctx, session.ID, session.Status, models.SessionCompleted); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	for _, e := range emissions {
		s.emitCreditEvent(e.sessionID, e.clientID, e.delta, e.balance)
	}
	if result.Processed > 0 {
		s.logger.Info("deduction sweep finished",
			zap.Int("processed", result.Processed),
			zap.Int("deducted", result.Deducted),
			zap.Int("noCredit", result.NoCredit))
	}
	return result, nil
}
