package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// StatsHandler handles the dashboard statistics route
type StatsHandler struct {
	DB *gorm.DB
}

// Get handles GET /api/stats
// @Summary Dashboard statistics
// @Description Ids that are not well formed are ignored.
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Param projectId query string false "Project id"
// @Param responsavelId query string false "Responsible id"
// @Success 200 {object} services.Stats
// @Router /stats [get]
func (h *StatsHandler) Get(c *fiber.Ctx) error {
	stats, err := services.ComputeStats(h.DB, services.StatsFilter{
		ProjectID:     c.Query("projectId"),
		ResponsibleID: c.Query("responsavelId"),
	})
	if err != nil {
		return serviceError(c, err, "stats")
	}
	return utils.SuccessResponse(c, stats, fiber.StatusOK)
}
