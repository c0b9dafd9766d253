package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/evidence"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/types"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// ProjectHandler handles project routes
type ProjectHandler struct {
	DB       *gorm.DB
	Audit    *services.Recorder
	Evidence *evidence.Store
}

type projectBody struct {
	SourceID     string          `json:"sourceId"`
	Title        *string         `json:"title"`
	Status       *string         `json:"status"`
	Tags         *types.NameList `json:"tags"`
	Responsibles *types.NameList `json:"responsaveis"`
	Versions     *types.NameList `json:"versions"`
	Servers      *types.NameList `json:"servers"`
}

func (b projectBody) input() services.ProjectInput {
	return services.ProjectInput{
		Title:        b.Title,
		Status:       b.Status,
		Tags:         b.Tags.Ptr(),
		Responsibles: b.Responsibles.Ptr(),
		Versions:     b.Versions.Ptr(),
		Servers:      b.Servers.Ptr(),
	}
}

// List handles GET /api/projects
// @Summary List projects
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param status query string false "Project status"
// @Param tagId query string false "Tag id"
// @Param responsavelId query string false "Responsible id"
// @Param search query string false "Title search"
// @Success 200 {array} models.Project
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /projects [get]
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := services.ListProjects(h.DB, services.ProjectFilter{
		Status:        c.Query("status"),
		TagID:         c.Query("tagId"),
		ResponsibleID: c.Query("responsavelId"),
		Search:        c.Query("search"),
	})
	if err != nil {
		return serviceError(c, err, "projects.list")
	}
	return utils.SuccessResponse(c, projects, fiber.StatusOK)
}

// Get handles GET /api/projects/:id
// @Summary Get a project
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Success 200 {object} models.Project
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := services.GetProjectWithRefs(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "projects.get")
	}
	return utils.SuccessResponse(c, project, fiber.StatusOK)
}

// Create handles POST /api/projects
// With a sourceId the project is deep cloned from the source.
// @Summary Create or clone a project
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object true "Project fields, optional sourceId"
// @Success 201 {object} models.Project
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /projects [post]
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var body projectBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "projects.create")
	}

	if body.SourceID != "" {
		project, source, err := services.CloneProject(h.DB, body.SourceID, body.input())
		if err != nil {
			return serviceError(c, err, "projects.clone")
		}
		details := services.Created(project)
		details.Summary = "Duplicated from project: " + source.Title
		h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuProjects, project.ID, middleware.CurrentUserID(c), details)
		return utils.SuccessResponse(c, project, fiber.StatusCreated)
	}

	project, err := services.CreateProject(h.DB, body.input())
	if err != nil {
		return serviceError(c, err, "projects.create")
	}
	h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuProjects, project.ID, middleware.CurrentUserID(c), services.Created(project))
	return utils.SuccessResponse(c, project, fiber.StatusCreated)
}

// Update handles PUT /api/projects/:id
// @Summary Update a project
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param body body object true "Fields to change"
// @Success 200 {object} models.Project
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /projects/{id} [put]
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	var body projectBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "projects.update")
	}

	before, after, err := services.UpdateProject(h.DB, c.Params("id"), body.input())
	if err != nil {
		return serviceError(c, err, "projects.update")
	}
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuProjects, after.ID, middleware.CurrentUserID(c), services.Updated(before, after))
	return utils.SuccessResponse(c, after, fiber.StatusOK)
}

// Delete handles DELETE /api/projects/:id
// Demands and scenarios of the project are deleted first.
// @Summary Delete a project and everything under it
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	deleted, err := services.DeleteProject(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "projects.delete")
	}

	for i := range deleted.Demands {
		if err := h.Evidence.RemoveDirectory(folderOf(h.DB, &deleted.Demands[i])); err != nil {
			log.Printf("evidence: remove folder of demand %s: %v", deleted.Demands[i].ID, err)
		}
	}

	h.Audit.Record(c.UserContext(), models.ActionDelete, services.MenuProjects, deleted.Project.ID, middleware.CurrentUserID(c), services.Deleted(deleted.Project))
	return utils.MessageResponse(c, "Project deleted")
}
