package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/SeanSwan/StudioAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

type SessionHandler struct {
	service sessionApplicationService
}

type sessionApplicationService interface {
	BookSession(ctx context.Context, clientID int64, input services.BookSessionInput) (*services.BookingResult, error)
	PublishOpenSlots(ctx context.Context, actorID int64, role string, input services.PublishSlotsInput) ([]models.Session, error)
	ListSessions(ctx context.Context, actorID int64, role string, filter repository.SessionListFilter) ([]models.Session, error)
	GetSession(ctx context.Context, actorID int64, role string, sessionID int64) (*models.Session, error)
	UpdateStatus(ctx context.Context, actorID int64, role string, sessionID int64, requestedStatus string, reason *string) (*models.Session, error)
}

func NewSessionHandler(service *services.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type bookSessionRequest struct {
	SlotID        *int64  `json:"slot_id"`
	TrainerID     int64   `json:"trainer_id"`
	SessionTypeID int64   `json:"session_type_id"`
	StartsAt      string  `json:"starts_at"`
	Notes         *string `json:"notes"`
}

type publishSlotsRequest struct {
	TrainerID     int64    `json:"trainer_id"`
	SessionTypeID int64    `json:"session_type_id"`
	Starts        []string `json:"starts"`
	RepeatWeeks   int      `json:"repeat_weeks"`
	Notes         *string  `json:"notes"`
}

type updateSessionStatusRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

func (h *SessionHandler) BookSession(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "client" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req bookSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input := services.BookSessionInput{
		SlotID: req.SlotID,
		Notes:  req.Notes,
	}
	if req.SlotID == nil {
		startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartsAt))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "starts_at must be a valid RFC3339 timestamp"})
		}
		input.TrainerID = req.TrainerID
		input.SessionTypeID = req.SessionTypeID
		input.StartsAt = startsAt
	}
	if req.Notes != nil && strings.TrimSpace(*req.Notes) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "notes must not be empty"})
	}

	result, err := h.service.BookSession(c.Context(), userID, input)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session":        result.Session,
		"credit_balance": result.CreditBalance,
	})
}

func (h *SessionHandler) PublishSlots(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "trainer" && role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req publishSlotsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.Starts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "starts must not be empty"})
	}

	starts := make([]time.Time, 0, len(req.Starts))
	for _, raw := range req.Starts {
		startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "starts must contain valid RFC3339 timestamps"})
		}
		starts = append(starts, startsAt)
	}

	slots, err := h.service.PublishOpenSlots(c.Context(), userID, role, services.PublishSlotsInput{
		TrainerID:     req.TrainerID,
		SessionTypeID: req.SessionTypeID,
		Starts:        starts,
		RepeatWeeks:   req.RepeatWeeks,
		Notes:         req.Notes,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"slots": slots})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "client" && role != "trainer" && role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timeframe must be upcoming or past"})
	}

	sessions, err := h.service.ListSessions(c.Context(), userID, role, repository.SessionListFilter{
		Status:    strings.TrimSpace(c.Query("status")),
		Timeframe: timeframe,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), userID, role, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req updateSessionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.service.UpdateStatus(c.Context(), userID, role, sessionID, req.Status, req.Reason)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

// mapSessionError translates booking failures into distinct status codes
// so clients can react without string-matching error text.
func mapSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInsufficientCredits):
		return c.Status(fiber.StatusPaymentRequired).
			JSON(fiber.Map{"error": "Not enough session credits"})
	case errors.Is(err, services.ErrNotAssigned):
		return c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"error": "No active assignment with this trainer"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrDoubleBooked):
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "Requested time conflicts with another session"})
	case errors.Is(err, services.ErrOutsideAvailability):
		return c.Status(fiber.StatusUnprocessableEntity).
			JSON(fiber.Map{"error": "Requested time is outside trainer availability"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrBusy):
		c.Set("Retry-After", "1")
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(fiber.Map{"error": "Trainer calendar is busy, retry shortly"})
	case errors.Is(err, services.ErrSessionTypeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session type not found"})
	case errors.Is(err, services.ErrTrainerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Trainer not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
