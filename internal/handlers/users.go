package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// UserHandler handles user administration routes
type UserHandler struct {
	DB    *gorm.DB
	Audit *services.Recorder
}

// List handles GET /api/users
// @Summary List users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param search query string false "Username, name or email search"
// @Success 200 {array} models.User
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /users [get]
func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := services.ListUsers(h.DB, c.Query("search"))
	if err != nil {
		return serviceError(c, err, "users.list")
	}
	return utils.SuccessResponse(c, users, fiber.StatusOK)
}

// Get handles GET /api/users/:id
// @Summary Get a user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User id"
// @Success 200 {object} models.User
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *fiber.Ctx) error {
	user, err := services.GetUser(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "users.get")
	}
	return utils.SuccessResponse(c, user, fiber.StatusOK)
}

// Update handles PUT /api/users/:id
// @Summary Update a user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User id"
// @Param body body services.UserInput true "Fields to change"
// @Success 200 {object} models.User
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *fiber.Ctx) error {
	var body services.UserInput
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "users.update")
	}

	before, after, err := services.UpdateUser(h.DB, c.Params("id"), body)
	if err != nil {
		return serviceError(c, err, "users.update")
	}
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuUsers, after.ID, middleware.CurrentUserID(c), services.Updated(before, after))
	return utils.SuccessResponse(c, after, fiber.StatusOK)
}

// Delete handles DELETE /api/users/:id
// @Summary Delete a user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User id"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *fiber.Ctx) error {
	user, err := services.DeleteUser(h.DB, c.Params("id"), middleware.CurrentUserID(c))
	if err != nil {
		return serviceError(c, err, "users.delete")
	}
	h.Audit.Record(c.UserContext(), models.ActionDelete, services.MenuUsers, user.ID, middleware.CurrentUserID(c), services.Deleted(user))
	return utils.MessageResponse(c, "User deleted")
}

// Import handles POST /api/users/import
// Every row is created independently; the response lists each row's outcome.
// @Summary Bulk import users
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body []services.UserInput true "Users to create"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /users/import [post]
func (h *UserHandler) Import(c *fiber.Ctx) error {
	var body struct {
		Users []services.UserInput `json:"users"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "users.import")
	}
	if len(body.Users) == 0 {
		return utils.ErrorResponse(c, "No users to import", fiber.StatusBadRequest, "users.import")
	}

	results := services.ImportUsers(h.DB, body.Users)
	succeeded := 0
	for _, r := range results {
		if r.OK {
			succeeded++
			h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuUsers, r.User.ID, middleware.CurrentUserID(c), services.Created(r.User))
		}
	}

	return c.JSON(fiber.Map{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	})
}
