package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/services"
	"gorm.io/gorm"
)

// HealthHandler handles the health route
type HealthHandler struct {
	Config *config.Config
	DB     *gorm.DB
	Mailer *services.Mailer
}

// Get handles GET /api/health
// @Summary Service health
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *HealthHandler) Get(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Config, h.DB, h.Mailer.Settings())
	status := fiber.StatusOK
	if result.Status == "unhealthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
