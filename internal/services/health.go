package services

import (
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Email        string            `json:"email"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

// HealthCheck checks the database and, when configured, the SMTP server.
// An unreachable SMTP server degrades the result without failing it, since
// email is queued for retry.
func HealthCheck(cfg *config.Config, db *gorm.DB, email EmailSettings) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Status = "unhealthy"
		result.Database = "error"
		result.Details["database_error"] = err.Error()
		result.ErrorMessage = fmt.Sprintf("Database connection error: %v", err)
		log.Printf("Health check failed - database connection: %v", err)
	} else {
		if err := sqlDB.Ping(); err != nil {
			result.Status = "unhealthy"
			result.Database = "unreachable"
			result.Details["database_ping_error"] = err.Error()
			result.ErrorMessage = fmt.Sprintf("Database ping failed: %v", err)
			log.Printf("Health check failed - database ping: %v", err)
		} else {
			result.Database = "ok"
			result.Details["database_type"] = cfg.DBType
			result.Details["database_name"] = cfg.DBDatabase
		}
	}

	// Check SMTP reachability
	if email.Host == "" {
		result.Email = "not configured"
	} else {
		addr := net.JoinHostPort(email.Host, strconv.Itoa(email.Port))
		if err := utils.PingSMTP(addr); err != nil {
			if result.Status == "healthy" {
				result.Status = "degraded"
			}
			result.Email = "unreachable"
			result.Details["email_error"] = err.Error()
			log.Printf("Health check degraded - smtp ping: %v", err)
		} else {
			result.Email = "ok"
			result.Details["email_host"] = addr
		}
	}

	if result.Status == "healthy" {
		log.Println("Health check passed - all systems operational")
	}

	return result
}
