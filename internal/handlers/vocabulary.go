package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// VocabHandler handles one reference vocabulary: tags, responsibles,
// versions or servers
type VocabHandler[T services.Vocab, PT services.Named[T]] struct {
	DB    *gorm.DB
	Audit *services.Recorder
	Menu  string
}

// List handles GET /api/{tags,responsaveis,versions,servers}
// @Summary List a reference vocabulary
// @Tags Vocabulary
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Vocabulary
// @Router /tags [get]
// @Router /responsaveis [get]
// @Router /versions [get]
// @Router /servers [get]
func (h *VocabHandler[T, PT]) List(c *fiber.Ctx) error {
	records, err := services.ListVocab[T](h.DB)
	if err != nil {
		return serviceError(c, err, h.Menu+".list")
	}
	return utils.SuccessResponse(c, records, fiber.StatusOK)
}

// Create handles POST /api/{tags,responsaveis,versions,servers}
// @Summary Add a name to a reference vocabulary
// @Tags Vocabulary
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object true "name"
// @Success 201 {object} models.Vocabulary
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /tags [post]
// @Router /responsaveis [post]
// @Router /versions [post]
// @Router /servers [post]
func (h *VocabHandler[T, PT]) Create(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, h.Menu+".create")
	}

	record, err := services.CreateVocab[T, PT](h.DB, body.Name)
	if err != nil {
		return serviceError(c, err, h.Menu+".create")
	}
	h.Audit.Record(c.UserContext(), models.ActionCreate, h.Menu, PT(record).GetID(), middleware.CurrentUserID(c), services.Created(record))
	return utils.SuccessResponse(c, record, fiber.StatusCreated)
}

// Update handles PUT /api/{tags,responsaveis,versions,servers}/:id
// @Summary Rename a vocabulary entry
// @Tags Vocabulary
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record id"
// @Param body body object true "name"
// @Success 200 {object} models.Vocabulary
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /tags/{id} [put]
// @Router /responsaveis/{id} [put]
// @Router /versions/{id} [put]
// @Router /servers/{id} [put]
func (h *VocabHandler[T, PT]) Update(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, h.Menu+".update")
	}

	before, after, err := services.RenameVocab[T, PT](h.DB, c.Params("id"), body.Name)
	if err != nil {
		return serviceError(c, err, h.Menu+".update")
	}
	h.Audit.Record(c.UserContext(), models.ActionUpdate, h.Menu, PT(after).GetID(), middleware.CurrentUserID(c), services.Updated(before, after))
	return utils.SuccessResponse(c, after, fiber.StatusOK)
}

// Delete handles DELETE /api/{tags,responsaveis,versions,servers}/:id
// The entry is first pulled out of every project and demand using it.
// @Summary Delete a vocabulary entry
// @Tags Vocabulary
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record id"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /tags/{id} [delete]
// @Router /responsaveis/{id} [delete]
// @Router /versions/{id} [delete]
// @Router /servers/{id} [delete]
func (h *VocabHandler[T, PT]) Delete(c *fiber.Ctx) error {
	record, err := services.DeleteVocab[T](h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, h.Menu+".delete")
	}
	h.Audit.Record(c.UserContext(), models.ActionDelete, h.Menu, PT(record).GetID(), middleware.CurrentUserID(c), services.Deleted(record))
	return utils.MessageResponse(c, "Deleted")
}
