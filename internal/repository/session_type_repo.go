package repository

import (
	"context"

	"github.com/SeanSwan/StudioAppBack/internal/models"
)

type SessionTypeRepository struct {
	db DBTX
}

func NewSessionTypeRepository(db DBTX) *SessionTypeRepository {
	return &SessionTypeRepository{db: db}
}

type SessionTypeInput struct {
	Name            string
	DurationMinutes int
	BufferBeforeMin int
	BufferAfterMin  int
	CreditsRequired int
}

func (r *SessionTypeRepository) Create(
	ctx context.Context,
	input SessionTypeInput,
) (*models.SessionType, error) {
	query := `
		INSERT INTO session_types (name, duration_min, buffer_before_min, buffer_after_min, credits_required, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, name, duration_min, buffer_before_min, buffer_after_min, credits_required, is_active, created_at, updated_at
	`
	var st models.SessionType
	err := r.db.QueryRow(
		ctx,
		query,
		input.Name,
		input.DurationMinutes,
		input.BufferBeforeMin,
		input.BufferAfterMin,
		input.CreditsRequired,
	).Scan(
		&st.ID,
		&st.Name,
		&st.DurationMinutes,
		&st.BufferBeforeMin,
		&st.BufferAfterMin,
		&st.CreditsRequired,
		&st.IsActive,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *SessionTypeRepository) GetByID(ctx context.Context, id int64) (*models.SessionType, error) {
	query := `
		SELECT id, name, duration_min, buffer_before_min, buffer_after_min, credits_required, is_active, created_at, updated_at
		FROM session_types
		WHERE id = $1
	`
	var st models.SessionType
	err := r.db.QueryRow(ctx, query, id).Scan(
		&st.ID,
		&st.Name,
		&st.DurationMinutes,
		&st.BufferBeforeMin,
		&st.BufferAfterMin,
		&st.CreditsRequired,
		&st.IsActive,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *SessionTypeRepository) List(ctx context.Context, activeOnly bool) ([]models.SessionType, error) {
	query := `
		SELECT id, name, duration_min, buffer_before_min, buffer_after_min, credits_required, is_active, created_at, updated_at
		FROM session_types
		WHERE NOT $1::bool OR is_active
		ORDER BY name ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]models.SessionType, 0)
	for rows.Next() {
		var st models.SessionType
		if err := rows.Scan(
			&st.ID,
			&st.Name,
			&st.DurationMinutes,
			&st.BufferBeforeMin,
			&st.BufferAfterMin,
			&st.CreditsRequired,
			&st.IsActive,
			&st.CreatedAt,
			&st.UpdatedAt,
		); err != nil {
			return nil, err
		}
		types = append(types, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

func (r *SessionTypeRepository) Update(
	ctx context.Context,
	id int64,
	input SessionTypeInput,
) (*models.SessionType, error) {
	query := `
		UPDATE session_types
		SET name = $2, duration_min = $3, buffer_before_min = $4, buffer_after_min = $5,
			credits_required = $6, updated_at = NOW()
		WHERE id = $1 AND is_active
		RETURNING id, name, duration_min, buffer_before_min, buffer_after_min, credits_required, is_active, created_at, updated_at
	`
	var st models.SessionType
	err := r.db.QueryRow(
		ctx,
		query,
		id,
		input.Name,
		input.DurationMinutes,
		input.BufferBeforeMin,
		input.BufferAfterMin,
		input.CreditsRequired,
	).Scan(
		&st.ID,
		&st.Name,
		&st.DurationMinutes,
		&st.BufferBeforeMin,
		&st.BufferAfterMin,
		&st.CreditsRequired,
		&st.IsActive,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Deactivate soft-deletes the template so historical sessions keep a
// valid reference.
func (r *SessionTypeRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE session_types SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`,
		id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
