package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_TYPE", "")
	t.Setenv("SMTP_SECURE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBType != "sqlite-pure" {
		t.Errorf("Expected default DB type sqlite-pure, got %q", cfg.DBType)
	}
	if cfg.JWTTTL != 8*time.Hour {
		t.Errorf("Expected 8h token ttl, got %v", cfg.JWTTTL)
	}
	if cfg.EmailRetrySchedule != "@every 5m" {
		t.Errorf("Expected default retry schedule, got %q", cfg.EmailRetrySchedule)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected an error without JWT_SECRET")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_SECURE", "true")
	t.Setenv("FRONTEND_URL", "https://qa.example.com/")
	t.Setenv("EMAIL_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTPPort != 465 || !cfg.SMTPSecure {
		t.Errorf("Expected SMTP overrides, got port=%d secure=%v", cfg.SMTPPort, cfg.SMTPSecure)
	}
	if cfg.FrontendURL != "https://qa.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %q", cfg.FrontendURL)
	}
	if cfg.EmailMaxAttempts != 5 {
		t.Errorf("Expected fallback to default attempts, got %d", cfg.EmailMaxAttempts)
	}
}
