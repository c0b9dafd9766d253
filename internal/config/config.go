package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port        string
	FrontendURL string
	CORSOrigins string

	// Database configuration
	DBType            string // mysql, postgres, sqlite, sqlite-pure, sqlserver
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int
	DBLogLevel        string

	// Credential signing
	JWTSecret string
	JWTTTL    time.Duration

	// Evidence storage
	EvidenceDir string

	// SMTP defaults, overridable through the email_settings system config
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPSecure   bool

	// Email retry queue
	EmailRetrySchedule string
	EmailMaxAttempts   int

	// Login throttling
	LoginRatePerMinute int
}

// Load loads configuration from environment variables, reading a .env file first when present
func Load() (*Config, error) {
	if envFile := getEnv("ENV_FILE", ".env"); envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		Port:               getEnv("PORT", "3000"),
		FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		CORSOrigins:        getEnv("CORS_ORIGINS", "*"),
		DBType:             getEnv("DB_TYPE", "sqlite-pure"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "3306"),
		DBDatabase:         getEnv("DB_DATABASE", "qatrack.db"),
		DBUser:             getEnv("DB_USER", ""),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:  getEnvAsInt("DB_CONNECTION_LIMIT", 10),
		DBLogLevel:         getEnv("DB_LOG_LEVEL", "warn"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTTTL:             time.Duration(getEnvAsInt("JWT_TTL_HOURS", 8)) * time.Hour,
		EvidenceDir:        getEnv("EVIDENCE_DIR", "./uploads/evidences"),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:           getEnv("SMTP_FROM", ""),
		SMTPSecure:         getEnvAsBool("SMTP_SECURE", false),
		EmailRetrySchedule: getEnv("EMAIL_RETRY_SCHEDULE", "@every 5m"),
		EmailMaxAttempts:   getEnvAsInt("EMAIL_MAX_ATTEMPTS", 5),
		LoginRatePerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
	}

	// Validate required fields
	if cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EmailMaxAttempts < 1 {
		return nil, fmt.Errorf("EMAIL_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
