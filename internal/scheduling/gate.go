package scheduling

import (
	"context"
	"errors"

	"github.com/SeanSwan/StudioAppBack/internal/models"
)

// ErrNotAssigned is returned when a client requests a trainer without an
// active client-trainer assignment.
var ErrNotAssigned = errors.New("client is not assigned to trainer")

type assignmentSource interface {
	HasActive(ctx context.Context, clientID, trainerID int64) (bool, error)
}

// Gate decides whether a client may book a given trainer. Claiming a
// trainer-published open slot is allowed for any client; a fresh request
// naming a specific trainer requires an active assignment.
type Gate struct {
	assignments assignmentSource
}

func NewGate(assignments assignmentSource) *Gate {
	return &Gate{assignments: assignments}
}

// Authorize passes unconditionally when target is an unclaimed open slot.
// target is nil for a client-initiated request with no pre-published slot.
func (g *Gate) Authorize(
	ctx context.Context,
	clientID int64,
	trainerID int64,
	target *models.Session,
) error {
	if target != nil && target.Status == models.SessionAvailable && target.ClientID == nil {
		return nil
	}

	assigned, err := g.assignments.HasActive(ctx, clientID, trainerID)
	if err != nil {
		return err
	}
	if !assigned {
		return ErrNotAssigned
	}
	return nil
}
