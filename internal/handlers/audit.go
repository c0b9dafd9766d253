package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// AuditHandler handles the audit trail route
type AuditHandler struct {
	DB *gorm.DB
}

// List handles GET /api/audit
// @Summary Query the audit trail
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page, from 1"
// @Param limit query int false "Page size, at most 100"
// @Param action query string false "CREATE, UPDATE or DELETE"
// @Param menu query string false "Entity type"
// @Param user query string false "User name or username search"
// @Param startDate query string false "YYYY-MM-DD"
// @Param endDate query string false "YYYY-MM-DD"
// @Param startTime query string false "HH:MM"
// @Param endTime query string false "HH:MM"
// @Param sortBy query string false "createdAt, action, menu or user"
// @Param order query string false "asc or desc"
// @Success 200 {object} services.AuditPage
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /audit [get]
func (h *AuditHandler) List(c *fiber.Ctx) error {
	page, err := services.QueryAudit(h.DB, services.AuditQuery{
		Page:      c.QueryInt("page", 1),
		Limit:     c.QueryInt("limit", 20),
		Action:    c.Query("action"),
		Menu:      c.Query("menu"),
		User:      c.Query("user"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		StartTime: c.Query("startTime"),
		EndTime:   c.Query("endTime"),
		SortBy:    c.Query("sortBy"),
		Order:     c.Query("order"),
	})
	if err != nil {
		return serviceError(c, err, "audit")
	}
	return utils.SuccessResponse(c, page, fiber.StatusOK)
}
