package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/auth"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// AuthHandler handles sign-in, password recovery and invitations
type AuthHandler struct {
	DB          *gorm.DB
	Issuer      *auth.Issuer
	Email       *services.Dispatcher
	Audit       *services.Recorder
	FrontendURL string
}

// LoginResponse is returned on a successful login
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login handles POST /api/auth/login
// @Summary Sign in
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body object true "username and password"
// @Success 200 {object} handlers.LoginResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 429 {object} utils.ErrorResponseStruct
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "auth.login")
	}

	token, user, err := services.Login(h.DB, h.Issuer, body.Username, body.Password)
	if err != nil {
		return serviceError(c, err, "auth.login")
	}
	return utils.SuccessResponse(c, LoginResponse{Token: token, User: user}, fiber.StatusOK)
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, middleware.CurrentUser(c), fiber.StatusOK)
}

// ForgotPassword handles POST /api/auth/forgot-password
// The response never reveals whether the email belongs to an account.
// @Summary Request a password reset email
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body object true "email"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "auth.forgot")
	}

	user, token, err := services.ForgotPassword(h.DB, body.Email)
	if err != nil {
		return serviceError(c, err, "auth.forgot")
	}
	if user != nil {
		if _, err := h.Email.Dispatch(c.UserContext(), services.ResetMessage(h.FrontendURL, user, token)); err != nil {
			log.Printf("email: reset for %s was lost: %v", user.Email, err)
		}
	}
	return utils.MessageResponse(c, "If the email is registered, a reset link has been sent")
}

// ValidateResetToken handles GET /api/auth/validate-reset-token/:token
// @Summary Check a reset token
// @Tags Auth
// @Produce json
// @Param token path string true "Reset token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /auth/validate-reset-token/{token} [get]
func (h *AuthHandler) ValidateResetToken(c *fiber.Ctx) error {
	user, err := services.ValidateResetToken(h.DB, c.Params("token"))
	if err != nil {
		return serviceError(c, err, "auth.reset")
	}
	return c.JSON(fiber.Map{
		"valid":    true,
		"username": user.Username,
		"email":    user.Email,
	})
}

// ResetPassword handles POST /api/auth/reset-password
// @Summary Set a new password with a reset token
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body object true "token and password"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "auth.reset")
	}

	user, err := services.ResetPassword(h.DB, body.Token, body.Password)
	if err != nil {
		return serviceError(c, err, "auth.reset")
	}
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuUsers, user.ID, user.ID,
		services.AuditDetails{Summary: "Password reset"})
	return utils.MessageResponse(c, "Password updated")
}

// Register handles POST /api/auth/register
// @Summary Invite a user
// @Description Creates the account without a usable password and emails a setup link.
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object true "username, email, name, role"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var body services.UserInput
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "auth.register")
	}

	actor := middleware.CurrentUser(c)
	user, token, err := services.Register(h.DB, actor.Role, body)
	if err != nil {
		return serviceError(c, err, "auth.register")
	}
	h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuUsers, user.ID, actor.ID, services.Created(user))

	queued, err := h.Email.Dispatch(c.UserContext(), services.InviteMessage(h.FrontendURL, user, token))
	if err != nil {
		log.Printf("email: invite for %s was lost: %v", user.Email, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":        user,
		"emailQueued": queued || err != nil,
	})
}
