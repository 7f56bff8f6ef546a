package repository

import (
	"context"

	"github.com/SeanSwan/StudioAppBack/internal/models"
)

type AssignmentRepository struct {
	db DBTX
}

func NewAssignmentRepository(db DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Create(
	ctx context.Context,
	clientID int64,
	trainerID int64,
	status string,
	assignedBy *int64,
) (*models.ClientTrainerAssignment, error) {
	query := `
		INSERT INTO client_trainer_assignments (client_id, trainer_id, status, assigned_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, client_id, trainer_id, status, assigned_by, created_at, updated_at
	`
	var a models.ClientTrainerAssignment
	err := r.db.QueryRow(ctx, query, clientID, trainerID, status, assignedBy).Scan(
		&a.ID,
		&a.ClientID,
		&a.TrainerID,
		&a.Status,
		&a.AssignedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// HasActive reports whether the pair has an active assignment. The
// partial unique index guarantees at most one.
func (r *AssignmentRepository) HasActive(
	ctx context.Context,
	clientID int64,
	trainerID int64,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM client_trainer_assignments
			WHERE client_id = $1 AND trainer_id = $2 AND status = 'active'
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, clientID, trainerID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *AssignmentRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	status string,
) (*models.ClientTrainerAssignment, error) {
	query := `
		UPDATE client_trainer_assignments
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, client_id, trainer_id, status, assigned_by, created_at, updated_at
	`
	var a models.ClientTrainerAssignment
	err := r.db.QueryRow(ctx, query, id, status).Scan(
		&a.ID,
		&a.ClientID,
		&a.TrainerID,
		&a.Status,
		&a.AssignedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssignmentRepository) ListByTrainer(
	ctx context.Context,
	trainerID int64,
) ([]models.ClientTrainerAssignment, error) {
	return r.list(ctx, `trainer_id = $1`, trainerID)
}

func (r *AssignmentRepository) ListByClient(
	ctx context.Context,
	clientID int64,
) ([]models.ClientTrainerAssignment, error) {
	return r.list(ctx, `client_id = $1`, clientID)
}

func (r *AssignmentRepository) list(
	ctx context.Context,
	where string,
	arg any,
) ([]models.ClientTrainerAssignment, error) {
	query := `
		SELECT id, client_id, trainer_id, status, assigned_by, created_at, updated_at
		FROM client_trainer_assignments
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make([]models.ClientTrainerAssignment, 0)
	for rows.Next() {
		var a models.ClientTrainerAssignment
		if err := rows.Scan(
			&a.ID,
			&a.ClientID,
			&a.TrainerID,
			&a.Status,
			&a.AssignedBy,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}
