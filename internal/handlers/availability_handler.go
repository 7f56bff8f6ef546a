package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/SeanSwan/StudioAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
)

const minutesPerDay = 24 * 60

type AvailabilityHandler struct {
	service          *services.SessionService
	availabilityRepo *repository.AvailabilityRepository
}

func NewAvailabilityHandler(
	service *services.SessionService,
	availabilityRepo *repository.AvailabilityRepository,
) *AvailabilityHandler {
	return &AvailabilityHandler{
		service:          service,
		availabilityRepo: availabilityRepo,
	}
}

// Preview returns the effective calendar for a trainer over a window:
// resolved availability intervals, buffer-padded booked spans, and
// claimable open slots.
func (h *AvailabilityHandler) Preview(c *fiber.Ctx) error {
	if _, _, err := actorFromCtx(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	trainerID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid trainer id"})
	}

	from, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("from")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "from must be a valid RFC3339 timestamp"})
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("to")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "to must be a valid RFC3339 timestamp"})
	}

	preview, err := h.service.PreviewAvailability(c.Context(), trainerID, from, to)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(preview)
}

type createAvailabilityRequest struct {
	TrainerID     int64   `json:"trainer_id"`
	Kind          string  `json:"kind"`
	Recurring     bool    `json:"recurring"`
	DayOfWeek     *int    `json:"day_of_week"`
	EffectiveFrom *string `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to"`
	StartMinute   int     `json:"start_minute"`
	EndMinute     int     `json:"end_minute"`
}

func (h *AvailabilityHandler) CreateRule(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "trainer" && role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req createAvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	trainerID := userID
	if role == "admin" {
		if req.TrainerID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "trainer_id is required"})
		}
		trainerID = req.TrainerID
	} else if req.TrainerID != 0 && req.TrainerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	kind := models.AvailabilityKind(strings.TrimSpace(req.Kind))
	switch kind {
	case models.AvailabilityAvailable, models.AvailabilityBlocked, models.AvailabilityVacation:
	default:
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "kind must be available, blocked or vacation"})
	}

	if req.StartMinute < 0 || req.EndMinute > minutesPerDay || req.EndMinute <= req.StartMinute {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "start_minute and end_minute must form a window within one day"})
	}

	input := repository.CreateAvailabilityInput{
		TrainerID:   trainerID,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		IsRecurring: req.Recurring,
		Kind:        kind,
	}
	if req.Recurring {
		if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "day_of_week must be 0-6 for recurring rules"})
		}
		input.DayOfWeek = req.DayOfWeek
	} else {
		from, to, err := parseDateRange(req.EffectiveFrom, req.EffectiveTo)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		input.EffectiveFrom = &from
		input.EffectiveTo = &to
	}

	rule, err := h.availabilityRepo.Create(c.Context(), input)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to create availability rule"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"rule": rule})
}

func (h *AvailabilityHandler) ListRules(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	trainerID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid trainer id"})
	}
	if role == "trainer" && trainerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	if role != "trainer" && role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	rules, err := h.availabilityRepo.ListByTrainer(c.Context(), trainerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to list availability rules"})
	}

	return c.JSON(fiber.Map{"rules": rules})
}

func (h *AvailabilityHandler) DeactivateRule(c *fiber.Ctx) error {
	userID, role, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "trainer" && role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	ruleID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid rule id"})
	}

	var owner *int64
	if role == "trainer" {
		owner = &userID
	}
	deactivated, err := h.availabilityRepo.Deactivate(c.Context(), ruleID, owner)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to deactivate rule"})
	}
	if !deactivated {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Rule not found"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseDateRange(fromRaw, toRaw *string) (time.Time, time.Time, error) {
	if fromRaw == nil || toRaw == nil {
		return time.Time{}, time.Time{}, errors.New("effective_from and effective_to are required for overrides")
	}
	from, err := time.Parse("2006-01-02", strings.TrimSpace(*fromRaw))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("effective_from must be a YYYY-MM-DD date")
	}
	to, err := time.Parse("2006-01-02", strings.TrimSpace(*toRaw))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("effective_to must be a YYYY-MM-DD date")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("effective_to must not be before effective_from")
	}
	return from, to, nil
}
