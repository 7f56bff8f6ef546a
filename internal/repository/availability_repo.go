package repository

import (
	"context"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
)

type AvailabilityRepository struct {
	db DBTX
}

func NewAvailabilityRepository(db DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

type CreateAvailabilityInput struct {
	TrainerID     int64
	DayOfWeek     *int
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	StartMinute   int
	EndMinute     int
	IsRecurring   bool
	Kind          models.AvailabilityKind
}

func (r *AvailabilityRepository) Create(
	ctx context.Context,
	input CreateAvailabilityInput,
) (*models.AvailabilityRule, error) {
	query := `
		INSERT INTO trainer_availability
			(trainer_id, day_of_week, effective_from, effective_to, start_minute, end_minute, is_recurring, kind, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING id, trainer_id, day_of_week, effective_from, effective_to,
			start_minute, end_minute, is_recurring, kind, is_active, created_at
	`
	var rule models.AvailabilityRule
	err := r.db.QueryRow(
		ctx,
		query,
		input.TrainerID,
		input.DayOfWeek,
		input.EffectiveFrom,
		input.EffectiveTo,
		input.StartMinute,
		input.EndMinute,
		input.IsRecurring,
		input.Kind,
	).Scan(
		&rule.ID,
		&rule.TrainerID,
		&rule.DayOfWeek,
		&rule.EffectiveFrom,
		&rule.EffectiveTo,
		&rule.StartMinute,
		&rule.EndMinute,
		&rule.IsRecurring,
		&rule.Kind,
		&rule.IsActive,
		&rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListForWindow returns the trainer's active recurring rules plus any
// overrides whose effective date range intersects the window. The
// resolver does the rest in memory.
func (r *AvailabilityRepository) ListForWindow(
	ctx context.Context,
	trainerID int64,
	windowStart time.Time,
	windowEnd time.Time,
) ([]models.AvailabilityRule, error) {
	// Effective dates are UTC days. Compute the day bounds here rather
	// than casting timestamps in SQL: a timestamptz::date cast follows the
	// server's TimeZone setting and can shift a day at window edges,
	// dropping an override the caller needed.
	firstDay, lastDay := windowDayBounds(windowStart, windowEnd)
	query := `
		SELECT id, trainer_id, day_of_week, effective_from, effective_to,
			start_minute, end_minute, is_recurring, kind, is_active, created_at
		FROM trainer_availability
		WHERE trainer_id = $1
		  AND is_active
		  AND (is_recurring OR (effective_from <= $3 AND effective_to >= $2))
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, trainerID, firstDay, lastDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]models.AvailabilityRule, 0)
	for rows.Next() {
		var rule models.AvailabilityRule
		if err := rows.Scan(
			&rule.ID,
			&rule.TrainerID,
			&rule.DayOfWeek,
			&rule.EffectiveFrom,
			&rule.EffectiveTo,
			&rule.StartMinute,
			&rule.EndMinute,
			&rule.IsRecurring,
			&rule.Kind,
			&rule.IsActive,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *AvailabilityRepository) ListByTrainer(
	ctx context.Context,
	trainerID int64,
) ([]models.AvailabilityRule, error) {
	query := `
		SELECT id, trainer_id, day_of_week, effective_from, effective_to,
			start_minute, end_minute, is_recurring, kind, is_active, created_at
		FROM trainer_availability
		WHERE trainer_id = $1 AND is_active
		ORDER BY is_recurring DESC, day_of_week ASC NULLS LAST, effective_from ASC NULLS LAST, start_minute ASC
	`
	rows, err := r.db.Query(ctx, query, trainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]models.AvailabilityRule, 0)
	for rows.Next() {
		var rule models.AvailabilityRule
		if err := rows.Scan(
			&rule.ID,
			&rule.TrainerID,
			&rule.DayOfWeek,
			&rule.EffectiveFrom,
			&rule.EffectiveTo,
			&rule.StartMinute,
			&rule.EndMinute,
			&rule.IsRecurring,
			&rule.Kind,
			&rule.IsActive,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Deactivate soft-deletes a rule. A non-nil ownerID restricts the update
// to rules belonging to that trainer.
func (r *AvailabilityRepository) Deactivate(ctx context.Context, id int64, ownerID *int64) (bool, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE trainer_availability
		 SET is_active = FALSE
		 WHERE id = $1 AND is_active AND ($2::bigint IS NULL OR trainer_id = $2)`,
		id,
		ownerID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// windowDayBounds returns the UTC calendar days the window touches, as
// midnight timestamps suitable for comparison against date columns.
func windowDayBounds(windowStart, windowEnd time.Time) (time.Time, time.Time) {
	return startOfDayUTC(windowStart), startOfDayUTC(windowEnd)
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
