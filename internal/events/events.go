package events

// Routing keys for post-commit scheduling events. Consumers (notifications,
// gamification) must be idempotent keyed by session id + event type, since
// delivery is at-least-once.
const (
	RKSessionBooked    = "session.booked"
	RKSessionCancelled = "session.cancelled"
	RKCreditDeducted   = "credit.deducted"
)

// SessionEvent is the envelope shared by session.booked and
// session.cancelled.
type SessionEvent struct {
	EventID   string `json:"event_id"`
	SessionID int64  `json:"session_id"`
	TrainerID *int64 `json:"trainer_id"`
	ClientID  *int64 `json:"client_id"`
	Status    string `json:"status"`
	StartsAt  int64  `json:"starts_at"` // unix seconds
}

// CreditDeducted carries the credit delta: negative for a deduction,
// positive for a cancellation refund.
type CreditDeducted struct {
	EventID          string `json:"event_id"`
	SessionID        int64  `json:"session_id"`
	ClientID         int64  `json:"client_id"`
	Delta            int    `json:"delta"`
	RemainingCredits int    `json:"remaining_credits"`
}
