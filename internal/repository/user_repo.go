package repository

import (
	"context"
	"errors"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, role, available_sessions)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, user.Email, user.PasswordHash, user.Role, user.AvailableSessions).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, available_sessions, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.AvailableSessions, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, available_sessions, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.AvailableSessions, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeductCredits atomically decrements the credit balance. The conditional
// UPDATE refuses to go below zero; ok reports whether the deduction
// happened, and newBalance is only valid when it did.
func (r *UserRepository) DeductCredits(
	ctx context.Context,
	userID int64,
	credits int,
) (newBalance int, ok bool, err error) {
	query := `
		UPDATE users
		SET available_sessions = available_sessions - $2, updated_at = NOW()
		WHERE id = $1 AND available_sessions >= $2
		RETURNING available_sessions
	`
	err = r.db.QueryRow(ctx, query, userID, credits).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return newBalance, true, nil
}

// AddCredits increases the balance, used for refunds on cancellation and
// admin credit grants.
func (r *UserRepository) AddCredits(
	ctx context.Context,
	userID int64,
	credits int,
) (newBalance int, err error) {
	query := `
		UPDATE users
		SET available_sessions = available_sessions + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING available_sessions
	`
	err = r.db.QueryRow(ctx, query, userID, credits).Scan(&newBalance)
	return newBalance, err
}
