package handlers

import (
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/localnerve/qatrack/internal/evidence"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/types"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// MaxEvidenceSize is the largest accepted evidence file.
const MaxEvidenceSize = 50 << 20

// DemandHandler handles demand and evidence routes
type DemandHandler struct {
	DB       *gorm.DB
	Audit    *services.Recorder
	Evidence *evidence.Store
}

type demandBody struct {
	SourceID       string             `json:"sourceId"`
	DisplayID      *string            `json:"demandId"`
	Name           *string            `json:"name"`
	EstimatedHours *types.FlexFloat64 `json:"estimatedHours"`
	Link           *string            `json:"link"`
	Status         *string            `json:"status"`
	ProjectID      *string            `json:"projectId"`
	Responsibles   *types.NameList    `json:"responsaveis"`
}

func (b demandBody) input() services.DemandInput {
	in := services.DemandInput{
		DisplayID:    b.DisplayID,
		Name:         b.Name,
		Link:         b.Link,
		Status:       b.Status,
		ProjectID:    b.ProjectID,
		Responsibles: b.Responsibles.Ptr(),
	}
	if b.EstimatedHours != nil {
		hours := b.EstimatedHours.Float64()
		in.EstimatedHours = &hours
	}
	return in
}

// List handles GET /api/demandas
// @Summary List demands
// @Tags Demands
// @Produce json
// @Security BearerAuth
// @Param projectId query string false "Project id"
// @Param status query string false "Demand status"
// @Param responsavelId query string false "Responsible id"
// @Param search query string false "Name or demand id search"
// @Success 200 {array} models.Demand
// @Router /demandas [get]
func (h *DemandHandler) List(c *fiber.Ctx) error {
	demands, err := services.ListDemands(h.DB, services.DemandFilter{
		ProjectID:     c.Query("projectId"),
		Status:        c.Query("status"),
		ResponsibleID: c.Query("responsavelId"),
		Search:        c.Query("search"),
	})
	if err != nil {
		return serviceError(c, err, "demandas.list")
	}
	return utils.SuccessResponse(c, demands, fiber.StatusOK)
}

// Get handles GET /api/demandas/:id
// @Summary Get a demand
// @Tags Demands
// @Produce json
// @Security BearerAuth
// @Param id path string true "Demand id"
// @Success 200 {object} models.Demand
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /demandas/{id} [get]
func (h *DemandHandler) Get(c *fiber.Ctx) error {
	demand, err := services.GetDemand(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "demandas.get")
	}
	return utils.SuccessResponse(c, demand, fiber.StatusOK)
}

// Create handles POST /api/demandas
// With a sourceId the demand and its scenarios are cloned from the source.
// @Summary Create or clone a demand
// @Tags Demands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body object true "Demand fields, optional sourceId"
// @Success 201 {object} models.Demand
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /demandas [post]
func (h *DemandHandler) Create(c *fiber.Ctx) error {
	var body demandBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "demandas.create")
	}

	if body.SourceID != "" {
		demand, source, err := services.CloneDemand(h.DB, body.SourceID, body.input())
		if err != nil {
			return serviceError(c, err, "demandas.clone")
		}
		details := services.Created(demand)
		details.Summary = "Duplicated from demand: " + source.Name
		h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuDemands, demand.ID, middleware.CurrentUserID(c), details)
		return utils.SuccessResponse(c, demand, fiber.StatusCreated)
	}

	demand, err := services.CreateDemand(h.DB, body.input())
	if err != nil {
		return serviceError(c, err, "demandas.create")
	}
	h.Audit.Record(c.UserContext(), models.ActionCreate, services.MenuDemands, demand.ID, middleware.CurrentUserID(c), services.Created(demand))
	return utils.SuccessResponse(c, demand, fiber.StatusCreated)
}

// Update handles PUT /api/demandas/:id
// @Summary Update a demand
// @Tags Demands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Demand id"
// @Param body body object true "Fields to change"
// @Success 200 {object} models.Demand
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /demandas/{id} [put]
func (h *DemandHandler) Update(c *fiber.Ctx) error {
	var body demandBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c, "demandas.update")
	}

	in := body.input()
	if err := h.pinEvidenceDir(c.Params("id"), in); err != nil {
		return serviceError(c, err, "demandas.update")
	}
	before, after, err := services.UpdateDemand(h.DB, c.Params("id"), in)
	if err != nil {
		return serviceError(c, err, "demandas.update")
	}
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuDemands, after.ID, middleware.CurrentUserID(c), services.Updated(before, after))
	return utils.SuccessResponse(c, after, fiber.StatusOK)
}

// pinEvidenceDir records the current evidence folder of a demand before a
// rename moves its name-based folder out of reach.
func (h *DemandHandler) pinEvidenceDir(id string, in services.DemandInput) error {
	if in.DisplayID == nil && in.Name == nil {
		return nil
	}
	demand, err := services.GetDemand(h.DB, id)
	if err != nil || demand.EvidenceDir != "" {
		return err
	}
	dir, err := h.Evidence.ResolveDirectory(folderOf(h.DB, demand))
	if err != nil || dir == "" {
		return err
	}
	return services.SetEvidenceDir(h.DB, id, filepath.Base(dir))
}

// Delete handles DELETE /api/demandas/:id
// @Summary Delete a demand and its scenarios
// @Tags Demands
// @Produce json
// @Security BearerAuth
// @Param id path string true "Demand id"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /demandas/{id} [delete]
func (h *DemandHandler) Delete(c *fiber.Ctx) error {
	demand, err := services.DeleteDemand(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "demandas.delete")
	}
	if err := h.Evidence.RemoveDirectory(folderOf(h.DB, demand)); err != nil {
		log.Printf("evidence: remove folder of demand %s: %v", demand.ID, err)
	}
	h.Audit.Record(c.UserContext(), models.ActionDelete, services.MenuDemands, demand.ID, middleware.CurrentUserID(c), services.Deleted(demand))
	return utils.MessageResponse(c, "Demand deleted")
}

// UploadEvidence handles POST /api/demandas/:id/evidence
// @Summary Upload evidence files
// @Tags Evidence
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "Demand id"
// @Param files formData file true "Evidence files"
// @Success 201 {object} models.Demand
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 413 {object} utils.ErrorResponseStruct
// @Router /demandas/{id}/evidence [post]
func (h *DemandHandler) UploadEvidence(c *fiber.Ctx) error {
	demand, err := services.GetDemand(h.DB, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "evidence.upload")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.ErrorResponse(c, "Expected a multipart upload", fiber.StatusBadRequest, "evidence.upload")
	}
	var files []*multipart.FileHeader
	for _, field := range []string{"files", "file", "evidences"} {
		files = append(files, form.File[field]...)
	}
	if len(files) == 0 {
		return utils.ErrorResponse(c, "No files uploaded", fiber.StatusBadRequest, "evidence.upload")
	}
	for _, fh := range files {
		if fh.Size > MaxEvidenceSize {
			return utils.ErrorResponse(c, fmt.Sprintf("%s exceeds the 50MB limit", fh.Filename), fiber.StatusRequestEntityTooLarge, "evidence.upload")
		}
	}

	folder := folderOf(h.DB, demand)
	dir, err := h.Evidence.EnsureDirectory(folder)
	if err != nil {
		log.Printf("evidence: folder for demand %s: %v", demand.ID, err)
		return utils.ErrorResponse(c, "Failed to store evidence", fiber.StatusInternalServerError, "evidence.upload")
	}
	folder.Dir = filepath.Base(dir)
	records := make([]models.Evidence, 0, len(files))
	cleanup := func() {
		for _, r := range records {
			_ = h.Evidence.Remove(folder, r.Filename)
		}
	}

	for _, fh := range files {
		record, err := h.saveFile(folder, fh)
		if err != nil {
			cleanup()
			log.Printf("evidence: save %s for demand %s: %v", fh.Filename, demand.ID, err)
			return utils.ErrorResponse(c, "Failed to store evidence", fiber.StatusInternalServerError, "evidence.upload")
		}
		records = append(records, record)
	}

	after, err := services.AddEvidence(h.DB, demand.ID, folder.Dir, records)
	if err != nil {
		cleanup()
		return serviceError(c, err, "evidence.upload")
	}

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.OriginalName)
	}
	details := services.Updated(demand, after)
	details.Summary = "Uploaded evidence: " + strings.Join(names, ", ")
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuEvidence, demand.ID, middleware.CurrentUserID(c), details)

	return utils.SuccessResponse(c, after, fiber.StatusCreated)
}

func (h *DemandHandler) saveFile(folder evidence.Folder, fh *multipart.FileHeader) (models.Evidence, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Evidence{}, err
	}
	defer f.Close()

	filename, size, err := h.Evidence.Save(folder, fh.Filename, f)
	if err != nil {
		return models.Evidence{}, err
	}

	mimeType := fh.Header.Get(fiber.HeaderContentType)
	if mimeType == "" {
		mimeType = fiber.MIMEOctetStream
	}
	return models.Evidence{
		ID:           uuid.NewString(),
		Filename:     filename,
		OriginalName: fh.Filename,
		MimeType:     mimeType,
		Size:         size,
		UploadedAt:   time.Now(),
	}, nil
}

// DeleteEvidence handles DELETE /api/demandas/:id/evidence/:evidenceId
// Removing the last evidence of a Tested demand sets it back to Pending.
// @Summary Delete one evidence file
// @Tags Evidence
// @Produce json
// @Security BearerAuth
// @Param id path string true "Demand id"
// @Param evidenceId path string true "Evidence id"
// @Success 200 {object} models.Demand
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /demandas/{id}/evidence/{evidenceId} [delete]
func (h *DemandHandler) DeleteEvidence(c *fiber.Ctx) error {
	removal, err := services.RemoveEvidence(h.DB, c.Params("id"), c.Params("evidenceId"))
	if err != nil {
		return serviceError(c, err, "evidence.delete")
	}

	if err := h.Evidence.Remove(folderOf(h.DB, removal.Before), removal.Evidence.Filename); err != nil {
		log.Printf("evidence: remove %s: %v", removal.Evidence.Filename, err)
	}

	details := services.Updated(removal.Before, removal.After)
	details.Summary = "Removed evidence: " + removal.Evidence.OriginalName
	h.Audit.Record(c.UserContext(), models.ActionUpdate, services.MenuEvidence, removal.After.ID, middleware.CurrentUserID(c), details)

	return utils.SuccessResponse(c, removal.After, fiber.StatusOK)
}

// ServeEvidence handles GET /api/demandas/:id/evidence/:evidenceId/file
// @Summary Download one evidence file
// @Tags Evidence
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Demand id"
// @Param evidenceId path string true "Evidence id"
// @Param token query string false "Bearer token for browser links"
// @Success 200 {file} file
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /demandas/{id}/evidence/{evidenceId}/file [get]
func (h *DemandHandler) ServeEvidence(c *fiber.Ctx) error {
	demand, record, err := services.GetEvidence(h.DB, c.Params("id"), c.Params("evidenceId"))
	if err != nil {
		return serviceError(c, err, "evidence.file")
	}

	path, err := h.Evidence.Path(folderOf(h.DB, demand), record.Filename)
	if err != nil {
		return serviceError(c, err, "evidence.file")
	}
	if path == "" {
		return utils.NotFoundResponse(c, "Evidence file is missing from storage")
	}

	if err := c.SendFile(path); err != nil {
		return err
	}
	// SendFile derives the type from the extension; the uploaded type wins.
	c.Set(fiber.HeaderContentType, record.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", record.OriginalName))
	return nil
}
