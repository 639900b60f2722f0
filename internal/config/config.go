package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Ops HTTP surface (health + metrics)
	OpsAddr string

	// Firebase
	FirebaseProjectID string
	FirebaseCredJSON  string

	// Push Notifications
	PushEnabled bool // Enable/disable FCM push notifications (default: true)

	// Delivery Queue Worker
	SweepInterval  time.Duration // Cadence of queue and planner sweeps (default: 5m)
	QueueBatchSize int           // Max queue records claimed per sweep (default: 200)
	MaxAttempts    int           // Delivery attempts before dead-lettering (default: 5)
	RetryBaseDelay time.Duration // Base delay for exponential backoff (default: 5m)
	RetryCap       time.Duration // Ceiling for backoff delay (default: 6h)

	// Reminder Planner
	PlannerBatchSize int    // Max active tasks planned per sweep (default: 500)
	DefaultTimezone  string // Fallback zone for households without one (default: Europe/Oslo)

	// Server
	ShutdownTimeoutSeconds int

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	AppConfig *Config

	DefaultSweepInterval  = 5 * time.Minute
	DefaultRetryBaseDelay = 5 * time.Minute
	DefaultRetryCap       = 6 * time.Hour
)

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		OpsAddr: getEnvOrDefault("OPS_ADDR", ":9090"),

		// Firebase
		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:  getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		// Push Notifications
		PushEnabled: getEnvOrDefault("PUSH_NOTIFICATIONS_ENABLED", "true") == "true",

		// Delivery Queue Worker
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		QueueBatchSize: getEnvAsInt("QUEUE_BATCH_SIZE", 200),
		MaxAttempts:    getEnvAsInt("DELIVERY_MAX_ATTEMPTS", 5),
		RetryBaseDelay: getEnvAsDuration("RETRY_BASE_DELAY", DefaultRetryBaseDelay),
		RetryCap:       getEnvAsDuration("RETRY_CAP", DefaultRetryCap),

		// Reminder Planner
		PlannerBatchSize: getEnvAsInt("PLANNER_BATCH_SIZE", 500),
		DefaultTimezone:  getEnvOrDefault("DEFAULT_TIMEZONE", "Europe/Oslo"),

		// Server
		ShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration for %s: %s, using default %s", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
