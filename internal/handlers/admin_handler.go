package handlers

import (
	"errors"
	"strings"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/SeanSwan/StudioAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AdminHandler covers back-office management: session type catalog,
// client-trainer assignments, credit grants, and the deduction sweep.
type AdminHandler struct {
	sessionTypeRepo *repository.SessionTypeRepository
	assignmentRepo  *repository.AssignmentRepository
	userRepo        *repository.UserRepository
	service         *services.SessionService
}

func NewAdminHandler(
	sessionTypeRepo *repository.SessionTypeRepository,
	assignmentRepo *repository.AssignmentRepository,
	userRepo *repository.UserRepository,
	service *services.SessionService,
) *AdminHandler {
	return &AdminHandler{
		sessionTypeRepo: sessionTypeRepo,
		assignmentRepo:  assignmentRepo,
		userRepo:        userRepo,
		service:         service,
	}
}

type sessionTypeRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferBeforeMin int    `json:"buffer_before_min"`
	BufferAfterMin  int    `json:"buffer_after_min"`
	CreditsRequired int    `json:"credits_required"`
}

func (r *sessionTypeRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("name must not be empty")
	}
	if r.DurationMinutes <= 0 {
		return errors.New("duration_minutes must be greater than 0")
	}
	if r.BufferBeforeMin < 0 || r.BufferAfterMin < 0 {
		return errors.New("buffers must not be negative")
	}
	if r.CreditsRequired < 1 {
		return errors.New("credits_required must be at least 1")
	}
	return nil
}

func (h *AdminHandler) CreateSessionType(c *fiber.Ctx) error {
	var req sessionTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := req.validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sessionType, err := h.sessionTypeRepo.Create(c.Context(), repository.SessionTypeInput{
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		BufferBeforeMin: req.BufferBeforeMin,
		BufferAfterMin:  req.BufferAfterMin,
		CreditsRequired: req.CreditsRequired,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to create session type"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_type": sessionType})
}

// ListSessionTypes is readable by every authenticated role so clients can
// pick a type when booking.
func (h *AdminHandler) ListSessionTypes(c *fiber.Ctx) error {
	_, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	activeOnly := role != "admin" || c.Query("include_inactive") != "true"
	types, err := h.sessionTypeRepo.List(c.Context(), activeOnly)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to list session types"})
	}

	return c.JSON(fiber.Map{"session_types": types})
}

func (h *AdminHandler) UpdateSessionType(c *fiber.Ctx) error {
	typeID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session type id"})
	}

	var req sessionTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := req.validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sessionType, err := h.sessionTypeRepo.Update(c.Context(), typeID, repository.SessionTypeInput{
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		BufferBeforeMin: req.BufferBeforeMin,
		BufferAfterMin:  req.BufferAfterMin,
		CreditsRequired: req.CreditsRequired,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session type not found"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to update session type"})
	}

	return c.JSON(fiber.Map{"session_type": sessionType})
}

func (h *AdminHandler) DeactivateSessionType(c *fiber.Ctx) error {
	typeID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session type id"})
	}

	deactivated, err := h.sessionTypeRepo.Deactivate(c.Context(), typeID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to deactivate session type"})
	}
	if !deactivated {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session type not found"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type createAssignmentRequest struct {
	ClientID  int64  `json:"client_id"`
	TrainerID int64  `json:"trainer_id"`
	Status    string `json:"status"`
}

func (h *AdminHandler) CreateAssignment(c *fiber.Ctx) error {
	adminID, _, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ClientID <= 0 || req.TrainerID <= 0 || req.ClientID == req.TrainerID {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "client_id and trainer_id must be distinct positive ids"})
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = models.AssignmentActive
	}
	if status != models.AssignmentActive && status != models.AssignmentPending {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "status must be active or pending"})
	}

	assignment, err := h.assignmentRepo.Create(c.Context(), req.ClientID, req.TrainerID, status, &adminID)
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.Code == "23505":
			return c.Status(fiber.StatusConflict).
				JSON(fiber.Map{"error": "Client already has an active assignment with this trainer"})
		case errors.As(err, &pgErr) && pgErr.Code == "23503":
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Client or trainer not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).
				JSON(fiber.Map{"error": "Failed to create assignment"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"assignment": assignment})
}

type updateAssignmentRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) UpdateAssignment(c *fiber.Ctx) error {
	assignmentID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid assignment id"})
	}

	var req updateAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	status := strings.TrimSpace(req.Status)
	if status != models.AssignmentActive && status != models.AssignmentInactive && status != models.AssignmentPending {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "status must be active, inactive or pending"})
	}

	assignment, err := h.assignmentRepo.UpdateStatus(c.Context(), assignmentID, status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Assignment not found"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to update assignment"})
	}

	return c.JSON(fiber.Map{"assignment": assignment})
}

// ListOwnAssignments returns the caller's assignments: a trainer's roster
// or a client's trainers.
func (h *AdminHandler) ListOwnAssignments(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var assignments []models.ClientTrainerAssignment
	switch role {
	case "trainer":
		assignments, err = h.assignmentRepo.ListByTrainer(c.Context(), userID)
	case "client":
		assignments, err = h.assignmentRepo.ListByClient(c.Context(), userID)
	default:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to list assignments"})
	}

	return c.JSON(fiber.Map{"assignments": assignments})
}

func (h *AdminHandler) ListTrainerAssignments(c *fiber.Ctx) error {
	trainerID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid trainer id"})
	}

	assignments, err := h.assignmentRepo.ListByTrainer(c.Context(), trainerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to list assignments"})
	}

	return c.JSON(fiber.Map{"assignments": assignments})
}

type grantCreditsRequest struct {
	Credits int `json:"credits"`
}

func (h *AdminHandler) GrantCredits(c *fiber.Ctx) error {
	userID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	var req grantCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Credits <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "credits must be greater than 0"})
	}

	newBalance, err := h.userRepo.AddCredits(c.Context(), userID, req.Credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to grant credits"})
	}

	return c.JSON(fiber.Map{"user_id": userID, "available_sessions": newBalance})
}

func (h *AdminHandler) RunDeductionSweep(c *fiber.Ctx) error {
	result, err := h.service.SweepDeductions(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to run deduction sweep"})
	}
	return c.JSON(result)
}
