// common.go
//
// Shared handler helpers and the error handler for qatrack
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/qatrack/internal/evidence"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/types"
	"github.com/localnerve/qatrack/internal/utils"
	"gorm.io/gorm"
)

// serviceError maps a service error onto the error response format.
func serviceError(c *fiber.Ctx, err error, errorType string) error {
	for _, m := range []struct {
		target error
		status int
	}{
		{services.ErrInvalidInput, fiber.StatusBadRequest},
		{services.ErrNotFound, fiber.StatusNotFound},
		{services.ErrConflict, fiber.StatusConflict},
		{services.ErrForbidden, fiber.StatusForbidden},
		{services.ErrUnauthorized, fiber.StatusUnauthorized},
	} {
		if errors.Is(err, m.target) {
			message := strings.TrimPrefix(err.Error(), m.target.Error()+": ")
			return utils.ErrorResponse(c, message, m.status, errorType)
		}
	}

	if errors.Is(err, services.ErrPartialFailure) {
		log.Printf("%s: partial failure, data needs reconciliation: %v", errorType, err)
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "partial_failure")
	}

	log.Printf("%s: %v", errorType, err)
	return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, errorType)
}

// invalidBody is the response for an unparsable request body.
func invalidBody(c *fiber.Ctx, errorType string) error {
	return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, errorType)
}

// folderOf identifies a demand's evidence folder. Folders owned by other
// demands are reported as taken so they are never shared or removed.
func folderOf(db *gorm.DB, d *models.Demand) evidence.Folder {
	return evidence.Folder{
		ID:        d.ID,
		DisplayID: d.DisplayID,
		Name:      d.Name,
		Dir:       d.EvidenceDir,
		Taken: func(name string) bool {
			taken, err := services.EvidenceDirTaken(db, d, name)
			if err != nil {
				log.Printf("evidence: ownership of %s: %v", name, err)
				return true
			}
			return taken
		},
	}
}

// ErrorHandler renders every error reaching fiber in the standard error format
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	// Check if it's a Fiber error
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	// Middleware errors carry their own status and type
	var ce *types.CustomError
	if errors.As(err, &ce) {
		code = ce.Code
		message = ce.Message
		errorType = ce.Type
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}
