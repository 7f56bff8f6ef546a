package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, trainer_id, client_id, session_type_id, starts_at, duration_min,
	status, session_deducted, deduction_date, notes, cancelled_by, cancellation_reason,
	created_at, updated_at`

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

type CreateSessionInput struct {
	TrainerID       *int64
	ClientID        *int64
	SessionTypeID   int64
	StartsAt        time.Time
	DurationMinutes int
	Status          string
	Notes           *string
}

// OccupiedSession pairs a session with its session type's buffers so the
// conflict checker can compute the occupied span the same way for every
// existing booking.
type OccupiedSession struct {
	Session         models.Session
	BufferBeforeMin int
	BufferAfterMin  int
}

type SessionListFilter struct {
	ActorID   int64
	Role      string
	Status    string
	Timeframe string
}

func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := `
		INSERT INTO sessions (trainer_id, client_id, session_type_id, starts_at, duration_min, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sessionColumns
	row := r.db.QueryRow(
		ctx,
		query,
		input.TrainerID,
		input.ClientID,
		input.SessionTypeID,
		input.StartsAt.UTC(),
		input.DurationMinutes,
		input.Status,
		input.Notes,
	)
	return scanSession(row)
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.db.QueryRow(ctx, query, id))
}

func (r *SessionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	return scanSession(r.db.QueryRow(ctx, query, id))
}

// ClaimOpenSlot assigns a client to a trainer-published open slot. It
// returns pgx.ErrNoRows when the slot is gone or already claimed.
func (r *SessionRepository) ClaimOpenSlot(
	ctx context.Context,
	sessionID int64,
	clientID int64,
	notes *string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET client_id = $2, status = 'scheduled',
			notes = COALESCE($3, notes), updated_at = NOW()
		WHERE id = $1 AND status = 'available' AND client_id IS NULL
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, sessionID, clientID, notes))
}

// ListOccupied returns the trainer's conflict-relevant sessions whose
// buffer-padded spans intersect the window, each with its own session
// type's buffers.
func (r *SessionRepository) ListOccupied(
	ctx context.Context,
	trainerID int64,
	windowStart time.Time,
	windowEnd time.Time,
) ([]OccupiedSession, error) {
	query := `
		SELECT s.id, s.trainer_id, s.client_id, s.session_type_id, s.starts_at, s.duration_min,
			s.status, s.session_deducted, s.deduction_date, s.notes, s.cancelled_by, s.cancellation_reason,
			s.created_at, s.updated_at,
			st.buffer_before_min, st.buffer_after_min
		FROM sessions s
		JOIN session_types st ON st.id = s.session_type_id
		WHERE s.trainer_id = $1
		  AND s.status IN ('requested', 'scheduled', 'confirmed')
		  AND (s.starts_at - st.buffer_before_min * INTERVAL '1 minute') < $3
		  AND (s.starts_at + (s.duration_min + st.buffer_after_min) * INTERVAL '1 minute') > $2
		ORDER BY s.starts_at ASC, s.id ASC
	`
	rows, err := r.db.Query(ctx, query, trainerID, windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := make([]OccupiedSession, 0)
	for rows.Next() {
		var o OccupiedSession
		if err := rows.Scan(
			&o.Session.ID,
			&o.Session.TrainerID,
			&o.Session.ClientID,
			&o.Session.SessionTypeID,
			&o.Session.StartsAt,
			&o.Session.DurationMinutes,
			&o.Session.Status,
			&o.Session.SessionDeducted,
			&o.Session.DeductionDate,
			&o.Session.Notes,
			&o.Session.CancelledBy,
			&o.Session.CancellationReason,
			&o.Session.CreatedAt,
			&o.Session.UpdatedAt,
			&o.BufferBeforeMin,
			&o.BufferAfterMin,
		); err != nil {
			return nil, err
		}
		occupied = append(occupied, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return occupied, nil
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, error) {
	args := []any{}
	whereParts := []string{}
	switch filter.Role {
	case "admin":
		// Admins see every session.
	case "trainer":
		args = append(args, filter.ActorID)
		whereParts = append(whereParts, "trainer_id = $1")
	default:
		args = append(args, filter.ActorID)
		whereParts = append(whereParts, "client_id = $1")
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(whereParts, "(starts_at + (duration_min * INTERVAL '1 minute')) > NOW()")
	case "past":
		whereParts = append(whereParts, "(starts_at + (duration_min * INTERVAL '1 minute')) <= NOW()")
	}

	if len(whereParts) == 0 {
		whereParts = append(whereParts, "TRUE")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY starts_at ASC, id ASC
	`, sessionColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListOpenSlots returns unclaimed open slots for a trainer in a window.
func (r *SessionRepository) ListOpenSlots(
	ctx context.Context,
	trainerID int64,
	windowStart time.Time,
	windowEnd time.Time,
) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE trainer_id = $1 AND status = 'available' AND client_id IS NULL
		  AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, trainerID, windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	sessionID int64,
	currentStatus string,
	nextStatus string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus))
}

func (r *SessionRepository) Cancel(
	ctx context.Context,
	sessionID int64,
	currentStatus string,
	cancelledBy int64,
	reason *string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'cancelled', cancelled_by = $3, cancellation_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, cancelledBy, reason))
}

// MarkDeducted records that the session's credit was settled.
func (r *SessionRepository) MarkDeducted(
	ctx context.Context,
	sessionID int64,
	at time.Time,
) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE sessions SET session_deducted = TRUE, deduction_date = $2, updated_at = NOW() WHERE id = $1`,
		sessionID,
		at.UTC(),
	)
	return err
}

// ClearDeduction reverses the settlement flag on a refunded cancellation.
func (r *SessionRepository) ClearDeduction(ctx context.Context, sessionID int64) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE sessions SET session_deducted = FALSE, deduction_date = NULL, updated_at = NOW() WHERE id = $1`,
		sessionID,
	)
	return err
}

// ListDeductionEligible locks and returns past scheduled or confirmed
// client sessions whose credit has not been settled yet.
func (r *SessionRepository) ListDeductionEligible(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status IN ('scheduled', 'confirmed')
		  AND starts_at + (duration_min * INTERVAL '1 minute') < $1
		  AND NOT session_deducted
		  AND client_id IS NOT NULL
		ORDER BY starts_at ASC, id ASC
		LIMIT $2
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.TrainerID,
		&s.ClientID,
		&s.SessionTypeID,
		&s.StartsAt,
		&s.DurationMinutes,
		&s.Status,
		&s.SessionDeducted,
		&s.DeductionDate,
		&s.Notes,
		&s.CancelledBy,
		&s.CancellationReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
