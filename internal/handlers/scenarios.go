package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// ScenarioHandler handles scenario routes
type ScenarioHandler struct {
	DB    *gorm.DB
	Audit *services.Recorder
}

type scenarioBody struct {
	SourceID       string    `json:"sourceId"`
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	Steps          *[]string `json:"steps"`
	ExpectedResult *string   `json:"expectedResult"`
	DemandID       *string   `json:"demandId"`
	Status         *string   `json:"status"`
	MantisLink     *string   `json:"mantisLink"`
}

func (b scenarioBody) input() services.ScenarioInput {
	return services.ScenarioInput{
		Title:          b.Title,
		Description:    b.Description,
		Steps:          b.Steps,
		ExpectedResult: b.ExpectedResult,
		DemandID:       b.DemandID,
		Status:         b.Status,
		MantisLink:     b.MantisLink,
	}
}

// List handles GET /api/scenarios
// @Summary List scenarios
// @Tags Scenarios
// @Produce json
// @Security BearerAuth
// @Param demandId query string false "Demand id"
// @Param status query string false "Scenario status"
// @Param search query string false "Title or description search"
// @Success 200 {array} models.Scenario
// @Router /scenarios [get]
func (h *ScenarioHandler) List(c *fiber.Ctx) error {
	scenarios, err := services.ListScenarios(h.DB, services.ScenarioFilter{
		DemandID: c.Query("demandId"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
	})
	if err != nil {
		return serviceError(c, err, "scenarios.list")
	}
	return utils.SuccessResponse(c, scenarios, fiber.StatusOK)
}

// Get handles GET /api/scenarios/:id
// @Summary Get a scenario
// @Tags Scenarios
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scenario id"
// @Success 200 {object} models.Scenario
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /scenarios/{id} [get]
func (h *ScenarioHandler) Get(c *fiber.Ctx) error {
	scenario, err := services.GetScenario(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "scenarios.get")
	}
	return utils.SuccessResponse(c, scenario, fiber.StatusOK)
}

// Create handles POST /api/scenarios
// @Summary Create or clone a scenario
// @Tags Scenarios
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object true "Scenario fields, optional sourceId"
// @Success 201 {object} models.Scenario
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /scenarios [post]
func (h *ScenarioHandler) Create(c *fiber.Ctx) error {
	var body scenarioBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "scenarios.create")
	}

	if body.SourceID != "" {
		scenario, source, err := services.CloneScenario(h.DB, body.SourceID, body.input())
		if err != nil {
			return serviceError(c, err, "scenarios.clone")
		}
		details := services.Created(scenario)
		details.Summary = "Duplicated from scenario: " + source.Title
		h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuScenarios, scenario.ID, middleware.CurrentUserID(c), details)
		return utils.SuccessResponse(c, scenario, fiber.StatusCreated)
	}

	scenario, err := services.CreateScenario(h.DB, body.input())
	if err != nil {
		return serviceError(c, err, "scenarios.create")
	}
	h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuScenarios, scenario.ID, middleware.CurrentUserID(c), services.Created(scenario))
	return utils.SuccessResponse(c, scenario, fiber.StatusCreated)
}

// Update handles PUT /api/scenarios/:id
// @Summary Update a scenario
// @Tags Scenarios
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scenario id"
// @Param body body object true "Fields to change"
// @Success 200 {object} models.Scenario
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /scenarios/{id} [put]
func (h *ScenarioHandler) Update(c *fiber.Ctx) error {
	var body scenarioBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "scenarios.update")
	}

	before, after, err := services.UpdateScenario(h.DB, c.Params("id"), body.input())
	if err != nil {
		return serviceError(c, err, "scenarios.update")
	}
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuScenarios, after.ID, middleware.CurrentUserID(c), services.Updated(before, after))
	return utils.SuccessResponse(c, after, fiber.StatusOK)
}

// UpdateStatus handles PATCH /api/scenarios/:id/status
// The mantis link is only kept when the status is Failed.
// @Summary Change a scenario status
// @Tags Scenarios
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scenario id"
// @Param body body object true "status and optional mantisLink"
// @Success 200 {object} models.Scenario
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /scenarios/{id}/status [patch]
func (h *ScenarioHandler) UpdateStatus(c *fiber.Ctx) error {
	var body struct {
		Status     string  `json:"status"`
		MantisLink *string `json:"mantisLink"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "scenarios.status")
	}

	before, after, err := services.UpdateScenarioStatus(h.DB, c.Params("id"), body.Status, body.MantisLink)
	if err != nil {
		return serviceError(c, err, "scenarios.status")
	}
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuScenarios, after.ID, middleware.CurrentUserID(c), services.Updated(before, after))
	return utils.SuccessResponse(c, after, fiber.StatusOK)
}

// Delete handles DELETE /api/scenarios/:id
// @Summary Delete a scenario
// @Tags Scenarios
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scenario id"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /scenarios/{id} [delete]
func (h *ScenarioHandler) Delete(c *fiber.Ctx) error {
	scenario, err := services.DeleteScenario(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "scenarios.delete")
	}
	h.Audit.Record(c.UserContext(), models.ActionDelete, services.MenuScenarios, scenario.ID, middleware.CurrentUserID(c), services.Deleted(scenario))
	return utils.MessageResponse(c, "Scenario deleted")
}
