package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/SeanSwan/StudioAppBack/internal/config"
	"github.com/SeanSwan/StudioAppBack/internal/database"
	"github.com/SeanSwan/StudioAppBack/internal/events"
	"github.com/SeanSwan/StudioAppBack/internal/routes"
	"github.com/SeanSwan/StudioAppBack/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := buildLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	if cfg.DBUrl == "" {
		zapLogger.Fatal("DB_URL is required")
	}
	db, err := database.Connect(context.Background(), cfg.DBUrl)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	zapLogger.Info("Connected to PostgreSQL")

	var publisher *events.Publisher
	if cfg.RabbitURL != "" {
		publisher, err = events.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer publisher.Close()
		zapLogger.Info("Connected to RabbitMQ", zap.String("exchange", cfg.RabbitExchange))
	} else {
		zapLogger.Warn("RABBITMQ_URL not set, booking events are disabled")
	}

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	sessionService := routes.RegisterRoutes(app, cfg, db, zapLogger, publisher)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runDeductionSweep(sweepCtx, sessionService, cfg.DeductionSweepEvery, zapLogger)

	go func() {
		zapLogger.Info("Server starting", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zapLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down")
	stopSweep()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zapLogger.Error("Shutdown error", zap.Error(err))
	}
}

// runDeductionSweep periodically settles credits for past sessions that
// were never charged up front.
func runDeductionSweep(
	ctx context.Context,
	service *services.SessionService,
	every time.Duration,
	logger *zap.Logger,
) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if _, err := service.SweepDeductions(sweepCtx); err != nil {
				logger.Error("Deduction sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func buildLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
