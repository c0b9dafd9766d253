// demands.go
//
// Demand and evidence record operations for qatrack
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

package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/localnerve/qatrack/internal/evidence"
	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/gorm"
)

// DemandInput carries demand fields. Nil fields are left untouched on update
// and inherited from the source on clone. Responsibles holds free-text names.
type DemandInput struct {
	DisplayID      *string
	Name           *string
	EstimatedHours *float64
	Link           *string
	Status         *string
	ProjectID      *string
	Responsibles   *[]string
}

// DemandFilter narrows ListDemands.
type DemandFilter struct {
	ProjectID     string
	Status        string
	ResponsibleID string
	Search        string
}

func preloadDemand(db *gorm.DB) *gorm.DB {
	return db.Preload("Project").Preload("Responsibles").
		Preload("Evidences", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploaded_at ASC, id ASC")
		})
}

// ListDemands returns demands with project, responsibles and evidence, newest first.
func ListDemands(db *gorm.DB, f DemandFilter) ([]models.Demand, error) {
	query := preloadDemand(db).Model(&models.Demand{})

	if models.IsID(f.ProjectID) {
		query = query.Where("project_id = ?", f.ProjectID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if models.IsID(f.ResponsibleID) {
		query = query.Where("id IN (?)", db.Table("demand_responsibles").Select("demand_id").Where("responsible_id = ?", f.ResponsibleID))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(display_id) LIKE ?", like, like)
	}

	var demands []models.Demand
	if err := query.Order("created_at DESC").Find(&demands).Error; err != nil {
		return nil, err
	}
	return demands, nil
}

// GetDemand loads a demand with its project, responsibles and ordered evidence.
func GetDemand(db *gorm.DB, id string) (*models.Demand, error) {
	var demand models.Demand
	if err := preloadDemand(db).Where("id = ?", id).First(&demand).Error; err != nil {
		return nil, findOr404(err, "demand")
	}
	return &demand, nil
}

func validateDemandInput(db *gorm.DB, in DemandInput, creating bool) error {
	if creating && (in.Name == nil || strings.TrimSpace(*in.Name) == "") {
		return invalid("name is required")
	}
	if !creating && in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return invalid("name cannot be empty")
	}
	if in.EstimatedHours != nil && *in.EstimatedHours < 0 {
		return invalid("estimatedHours must not be negative")
	}
	if in.Status != nil && !contains(models.DemandStatuses, *in.Status) {
		return invalid("status must be one of %s", strings.Join(models.DemandStatuses, ", "))
	}
	if in.Link != nil && strings.TrimSpace(*in.Link) != "" {
		u, err := url.ParseRequestURI(strings.TrimSpace(*in.Link))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("link must be an http(s) URL")
		}
	}
	if creating && (in.ProjectID == nil || *in.ProjectID == "") {
		return invalid("projectId is required")
	}
	if in.ProjectID != nil {
		if !models.IsID(*in.ProjectID) {
			return invalid("projectId is not a valid id")
		}
		var count int64
		if err := db.Model(&models.Project{}).Where("id = ?", *in.ProjectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return notFound("project")
		}
	}
	return nil
}

// applyDemandInput copies the present input fields onto d.
func applyDemandInput(d *models.Demand, in DemandInput) {
	if in.DisplayID != nil {
		d.DisplayID = strings.TrimSpace(*in.DisplayID)
	}
	if in.Name != nil {
		d.Name = strings.TrimSpace(*in.Name)
	}
	if in.EstimatedHours != nil {
		d.EstimatedHours = *in.EstimatedHours
	}
	if in.Link != nil {
		d.Link = strings.TrimSpace(*in.Link)
	}
	if in.Status != nil {
		d.Status = *in.Status
	}
	if in.ProjectID != nil {
		d.ProjectID = *in.ProjectID
	}
}

// CreateDemand creates a demand under an existing project.
func CreateDemand(db *gorm.DB, in DemandInput) (*models.Demand, error) {
	if err := validateDemandInput(db, in, true); err != nil {
		return nil, err
	}

	demand := models.Demand{Status: models.DemandPending}
	applyDemandInput(&demand, in)

	if in.Responsibles != nil {
		responsibles, err := resolveRecords[models.Responsible](db, *in.Responsibles)
		if err != nil {
			return nil, fmt.Errorf("resolve responsibles: %w", err)
		}
		demand.Responsibles = responsibles
	}

	if err := db.Create(&demand).Error; err != nil {
		return nil, err
	}
	return GetDemand(db, demand.ID)
}

// UpdateDemand applies a partial update and returns the before and after states.
func UpdateDemand(db *gorm.DB, id string, in DemandInput) (*models.Demand, *models.Demand, error) {
	before, err := GetDemand(db, id)
	if err != nil {
		return nil, nil, err
	}
	if err := validateDemandInput(db, in, false); err != nil {
		return nil, nil, err
	}

	var responsibles []models.Responsible
	if in.Responsibles != nil {
		if responsibles, err = resolveRecords[models.Responsible](db, *in.Responsibles); err != nil {
			return nil, nil, fmt.Errorf("resolve responsibles: %w", err)
		}
	}

	updated := *before
	applyDemandInput(&updated, in)

	err = db.Transaction(func(tx *gorm.DB) error {
		target := &models.Demand{Entity: models.Entity{ID: id}}
		if err := tx.Model(target).Select("display_id", "name", "estimated_hours", "link", "status", "project_id").
			Updates(&models.Demand{
				DisplayID:      updated.DisplayID,
				Name:           updated.Name,
				EstimatedHours: updated.EstimatedHours,
				Link:           updated.Link,
				Status:         updated.Status,
				ProjectID:      updated.ProjectID,
			}).Error; err != nil {
			return err
		}
		if in.Responsibles != nil {
			if err := tx.Model(target).Association("Responsibles").Replace(responsibles); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	after, err := GetDemand(db, id)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// DeleteDemand removes the demand's scenarios, then the demand. The returned
// demand is the pre-delete state.
func DeleteDemand(db *gorm.DB, id string) (*models.Demand, error) {
	demand, err := GetDemand(db, id)
	if err != nil {
		return nil, err
	}

	err = commit(db, func(tx *gorm.DB) error {
		if err := tx.Where("demand_id = ?", id).Delete(&models.Scenario{}).Error; err != nil {
			return fmt.Errorf("delete scenarios: %w", err)
		}
		if err := tx.Select("Responsibles", "Evidences").Delete(&models.Demand{Entity: models.Entity{ID: id}}).Error; err != nil {
			return fmt.Errorf("delete demand: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return demand, nil
}

// CloneDemand creates a demand from the input, inheriting absent fields from
// the source, then duplicates the source's scenarios under it. The clone starts
// with no evidence. Responsibles are copied by id unless the input names them.
func CloneDemand(db *gorm.DB, sourceID string, in DemandInput) (*models.Demand, *models.Demand, error) {
	source, err := GetDemand(db, sourceID)
	if err != nil {
		return nil, nil, err
	}
	if err := validateDemandInput(db, in, false); err != nil {
		return nil, nil, err
	}

	clone := copyDemand(source, source.ProjectID)
	clone.Name = source.Name + " (Copy)"
	applyDemandInput(clone, in)

	if in.Responsibles != nil {
		if clone.Responsibles, err = resolveRecords[models.Responsible](db, *in.Responsibles); err != nil {
			return nil, nil, fmt.Errorf("resolve responsibles: %w", err)
		}
	}

	var created *models.Demand
	err = commit(db, func(tx *gorm.DB) error {
		created, err = cloneDemandTree(tx, source, clone)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := GetDemand(db, created.ID)
	if err != nil {
		return nil, nil, err
	}
	return result, source, nil
}

// copyDemand duplicates the demand's fields under projectID, without identity
// or evidence. A Tested status cannot survive without evidence.
func copyDemand(src *models.Demand, projectID string) *models.Demand {
	status := src.Status
	if status == models.DemandTested {
		status = models.DemandPending
	}
	return &models.Demand{
		DisplayID:      src.DisplayID,
		Name:           src.Name,
		EstimatedHours: src.EstimatedHours,
		Link:           src.Link,
		Status:         status,
		ProjectID:      projectID,
		Responsibles:   append([]models.Responsible(nil), src.Responsibles...),
	}
}

// cloneDemandTree inserts clone, then one copy of every scenario of source
// in their natural read order.
func cloneDemandTree(tx *gorm.DB, source, clone *models.Demand) (*models.Demand, error) {
	clone.Evidences = nil
	if err := tx.Create(clone).Error; err != nil {
		return nil, fmt.Errorf("create demand: %w", err)
	}

	var scenarios []models.Scenario
	if err := tx.Where("demand_id = ?", source.ID).Order("created_at ASC, id ASC").Find(&scenarios).Error; err != nil {
		return nil, err
	}
	for i := range scenarios {
		copied := copyScenario(&scenarios[i], clone.ID)
		if err := tx.Create(copied).Error; err != nil {
			return nil, fmt.Errorf("create scenario: %w", err)
		}
	}
	return clone, nil
}

// AddEvidence appends uploaded evidence records to a demand. A non-empty dir
// is recorded as the demand's evidence folder.
func AddEvidence(db *gorm.DB, demandID, dir string, files []models.Evidence) (*models.Demand, error) {
	if _, err := GetDemand(db, demandID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, invalid("no files uploaded")
	}
	for i := range files {
		files[i].DemandID = demandID
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if dir != "" {
			if err := SetEvidenceDir(tx, demandID, dir); err != nil {
				return err
			}
		}
		return tx.Create(&files).Error
	})
	if err != nil {
		return nil, err
	}
	return GetDemand(db, demandID)
}

// SetEvidenceDir records the demand's evidence folder name.
func SetEvidenceDir(db *gorm.DB, demandID, dir string) error {
	return db.Model(&models.Demand{Entity: models.Entity{ID: demandID}}).
		UpdateColumn("evidence_dir", dir).Error
}

// EvidenceDirTaken reports whether the evidence folder name belongs to a
// demand other than d: either recorded on it, or its current name for an
// older demand that has no recorded folder yet.
func EvidenceDirTaken(db *gorm.DB, d *models.Demand, dir string) (bool, error) {
	var count int64
	if err := db.Model(&models.Demand{}).
		Where("id <> ? AND evidence_dir = ?", d.ID, dir).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	var older []models.Demand
	if err := db.Select("id", "display_id", "name").
		Where("id <> ? AND COALESCE(evidence_dir, '') = ''", d.ID).
		Where("created_at < ? OR (created_at = ? AND id < ?)", d.CreatedAt, d.CreatedAt, d.ID).
		Find(&older).Error; err != nil {
		return false, err
	}
	for i := range older {
		if (evidence.Folder{DisplayID: older[i].DisplayID, Name: older[i].Name}).DirName() == dir {
			return true, nil
		}
	}
	return false, nil
}

// EvidenceRemoval is the outcome of RemoveEvidence.
type EvidenceRemoval struct {
	Evidence models.Evidence
	Before   *models.Demand
	After    *models.Demand
}

// RemoveEvidence deletes one evidence record. Removing the last evidence of a
// Tested demand reverts it to Pending.
func RemoveEvidence(db *gorm.DB, demandID, evidenceID string) (*EvidenceRemoval, error) {
	before, err := GetDemand(db, demandID)
	if err != nil {
		return nil, err
	}

	var evidence models.Evidence
	found := false
	for _, e := range before.Evidences {
		if e.ID == evidenceID {
			evidence, found = e, true
			break
		}
	}
	if !found {
		return nil, notFound("evidence")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Evidence{}, "id = ? AND demand_id = ?", evidenceID, demandID).Error; err != nil {
			return err
		}
		var remaining int64
		if err := tx.Model(&models.Evidence{}).Where("demand_id = ?", demandID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 && before.Status == models.DemandTested {
			return tx.Model(&models.Demand{Entity: models.Entity{ID: demandID}}).
				Update("status", models.DemandPending).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	after, err := GetDemand(db, demandID)
	if err != nil {
		return nil, err
	}
	return &EvidenceRemoval{Evidence: evidence, Before: before, After: after}, nil
}

// GetEvidence finds one evidence record of a demand.
func GetEvidence(db *gorm.DB, demandID, evidenceID string) (*models.Demand, *models.Evidence, error) {
	demand, err := GetDemand(db, demandID)
	if err != nil {
		return nil, nil, err
	}
	for i := range demand.Evidences {
		if demand.Evidences[i].ID == evidenceID {
			return demand, &demand.Evidences[i], nil
		}
	}
	return nil, nil, notFound("evidence")
}
