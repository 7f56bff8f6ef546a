package models

import "time"

const (
	AssignmentActive   = "active"
	AssignmentInactive = "inactive"
	AssignmentPending  = "pending"
)

// ClientTrainerAssignment is the only pairing that lets a client request
// a specific trainer directly. At most one active row per pair.
type ClientTrainerAssignment struct {
	ID         int64     `json:"id"`
	ClientID   int64     `json:"client_id"`
	TrainerID  int64     `json:"trainer_id"`
	Status     string    `json:"status"`
	AssignedBy *int64    `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
