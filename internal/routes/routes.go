package routes

import (
	"github.com/SeanSwan/StudioAppBack/internal/config"
	"github.com/SeanSwan/StudioAppBack/internal/events"
	"github.com/SeanSwan/StudioAppBack/internal/handlers"
	"github.com/SeanSwan/StudioAppBack/internal/middleware"
	"github.com/SeanSwan/StudioAppBack/internal/repository"
	"github.com/SeanSwan/StudioAppBack/internal/services"
	calendarws "github.com/SeanSwan/StudioAppBack/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RegisterRoutes wires repositories, services and handlers onto the app
// and returns the session service so the caller can drive the periodic
// deduction sweep.
func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	logger *zap.Logger,
	publisher *events.Publisher,
) *services.SessionService {
	userRepo := repository.NewUserRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	sessionTypeRepo := repository.NewSessionTypeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)

	hub := calendarws.NewHub()
	go hub.Run()

	opts := services.SessionServiceOpts{
		Hub:                hub,
		Logger:             logger,
		LockWait:           cfg.BookingLockWait,
		LowCreditThreshold: cfg.LowCreditThreshold,
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	sessionService := services.NewSessionService(db, opts)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	availabilityHandler := handlers.NewAvailabilityHandler(sessionService, availabilityRepo)
	adminHandler := handlers.NewAdminHandler(sessionTypeRepo, assignmentRepo, userRepo, sessionService)
	calendarHandler := handlers.NewCalendarHandler(hub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	// The websocket route authenticates via query token, so it is wired
	// before the bearer-guarded v1 group claims the /api/v1 prefix.
	ws := api.Group("/v1/ws")
	ws.Use("/calendar", calendarHandler.WebSocketAuth)
	ws.Get("/calendar", websocket.New(calendarHandler.HandleWebSocket))

	v1 := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := v1.Group("/sessions")
	sessions.Post("/", sessionHandler.BookSession)
	sessions.Post("/slots", sessionHandler.PublishSlots)
	sessions.Get("/", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Put("/:id/status", sessionHandler.UpdateStatus)

	trainers := v1.Group("/trainers")
	trainers.Get("/:id/availability", availabilityHandler.Preview)
	trainers.Get("/:id/availability/rules", availabilityHandler.ListRules)

	availability := v1.Group("/availability")
	availability.Post("/rules", availabilityHandler.CreateRule)
	availability.Delete("/rules/:id", availabilityHandler.DeactivateRule)

	v1.Get("/session-types", adminHandler.ListSessionTypes)
	v1.Get("/assignments", adminHandler.ListOwnAssignments)

	admin := v1.Group("/admin", middleware.RequireRoles("admin"))
	admin.Post("/session-types", adminHandler.CreateSessionType)
	admin.Put("/session-types/:id", adminHandler.UpdateSessionType)
	admin.Delete("/session-types/:id", adminHandler.DeactivateSessionType)
	admin.Post("/assignments", adminHandler.CreateAssignment)
	admin.Put("/assignments/:id", adminHandler.UpdateAssignment)
	admin.Get("/trainers/:id/assignments", adminHandler.ListTrainerAssignments)
	admin.Post("/users/:id/credits", adminHandler.GrantCredits)
	admin.Post("/deductions/sweep", adminHandler.RunDeductionSweep)

	return sessionService
}
