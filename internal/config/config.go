package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	DBUrl     string
	JWTSecret string
	AppEnv    string

	RabbitURL      string
	RabbitExchange string

	// BookingLockWait bounds how long a booking waits for a trainer's
	// calendar lock before returning busy.
	BookingLockWait     time.Duration
	DeductionSweepEvery time.Duration
	LowCreditThreshold  int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		DBUrl:     getEnv("DB_URL", ""),
		JWTSecret: jwtSecret,
		AppEnv:    normalizeEnv(getEnv("APP_ENV", "production")),

		RabbitURL:      getEnv("RABBITMQ_URL", ""),
		RabbitExchange: getEnv("RABBITMQ_EXCHANGE", "studio.events"),

		BookingLockWait:     time.Duration(getEnvInt("BOOKING_LOCK_WAIT_MS", 3000)) * time.Millisecond,
		DeductionSweepEvery: time.Duration(getEnvInt("DEDUCTION_SWEEP_MINUTES", 60)) * time.Minute,
		LowCreditThreshold:  getEnvInt("LOW_CREDIT_THRESHOLD", 2),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
