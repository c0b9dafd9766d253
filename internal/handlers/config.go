package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// ConfigHandler handles system configuration routes
type ConfigHandler struct {
	DB       *gorm.DB
	Audit    *services.Recorder
	Mailer   *services.Mailer
	Email    *services.Dispatcher
	Defaults services.EmailSettings
}

// GetEmail handles GET /api/config/email
// @Summary Read the SMTP settings
// @Description The password is masked.
// @Tags Config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.EmailSettings
// @Router /config/email [get]
func (h *ConfigHandler) GetEmail(c *fiber.Ctx) error {
	settings, err := services.LoadEmailSettings(h.DB, h.Defaults)
	if err != nil {
		return serviceError(c, err, "config.email")
	}
	return utils.SuccessResponse(c, settings.Masked(), fiber.StatusOK)
}

// PutEmail handles PUT /api/config/email
// The transport is rebuilt and queued email is retried with the new settings.
// @Summary Update the SMTP settings
// @Description A masked or empty password keeps the stored one.
// @Tags Config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.EmailSettings true "SMTP settings"
// @Success 200 {object} services.EmailSettings
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /config/email [put]
func (h *ConfigHandler) PutEmail(c *fiber.Ctx) error {
	var body services.EmailSettings
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "config.email")
	}

	before, after, err := services.SaveEmailSettings(h.DB, h.Defaults, body)
	if err != nil {
		return serviceError(c, err, "config.email")
	}
	h.Mailer.Reconfigure(after)

	go func() {
		if _, err := h.Email.RetryPending(context.Background()); err != nil {
			log.Printf("email: retry after reconfigure: %v", err)
		}
	}()

	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuConfig, services.EmailSettingsKey, middleware.CurrentUserID(c),
		services.Updated(before.Masked(), after.Masked()))
	return utils.SuccessResponse(c, after.Masked(), fiber.StatusOK)
}

// TestEmail handles POST /api/config/email/test
// @Summary Send a test email with the current settings
// @Tags Config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object false "to, defaults to the caller's email"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Router /config/email/test [post]
func (h *ConfigHandler) TestEmail(c *fiber.Ctx) error {
	var body struct {
		To string `json:"to"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return invalidBody(c, "config.email.test")
		}
	}
	to := strings.TrimSpace(body.To)
	if to == "" {
		to = middleware.CurrentUser(c).Email
	}

	if err := h.Mailer.Send(c.UserContext(), services.TestMessage(to)); err != nil {
		return utils.ErrorResponse(c, "Test email failed: "+err.Error(), fiber.StatusBadGateway, "config.email.test")
	}
	return utils.MessageResponse(c, "Test email sent to "+to)
}
