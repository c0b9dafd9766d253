// projects.go
//
// Project operations: lookup-or-create, cascade delete and deep clone
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
	"strings"

	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/gorm"
)

// ProjectInput carries project fields. Nil fields are left untouched on update
// and inherited from the source on clone. Reference lists hold free-text names.
type ProjectInput struct {
	Title        *string
	Status       *string
	Tags         *[]string
	Responsibles *[]string
	Versions     *[]string
	Servers      *[]string
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	Status        string
	TagID         string
	ResponsibleID string
	Search        string
}

// ProjectDeletion is what a project cascade removed.
type ProjectDeletion struct {
	Project models.Project
	Demands []models.Demand
}

type projectRefs struct {
	tags         []models.Tag
	responsibles []models.Responsible
	versions     []models.Version
	servers      []models.Server
}

func preloadProjectRefs(db *gorm.DB) *gorm.DB {
	return db.Preload("Tags").Preload("Responsibles").Preload("Versions").Preload("Servers")
}

// ListProjects returns projects with their references, newest first.
func ListProjects(db *gorm.DB, f ProjectFilter) ([]models.Project, error) {
	query := preloadProjectRefs(db).Model(&models.Project{})

	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if models.IsID(f.TagID) {
		query = query.Where("id IN (?)", db.Table("project_tags").Select("project_id").Where("tag_id = ?", f.TagID))
	}
	if models.IsID(f.ResponsibleID) {
		query = query.Where("id IN (?)", db.Table("project_responsibles").Select("project_id").Where("responsible_id = ?", f.ResponsibleID))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	var projects []models.Project
	if err := query.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProjectWithRefs loads a project hydrated with every reference list.
func GetProjectWithRefs(db *gorm.DB, id string) (*models.Project, error) {
	var project models.Project
	if err := preloadProjectRefs(db).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, findOr404(err, "project")
	}
	return &project, nil
}

func validateProjectStatus(status *string) error {
	if status != nil && !contains(models.ProjectStatuses, *status) {
		return invalid("status must be one of %s", strings.Join(models.ProjectStatuses, ", "))
	}
	return nil
}

// resolveProjectRefs resolves the name lists present in the input. It runs
// outside of any transaction so a lost creation race can be retried.
func resolveProjectRefs(db *gorm.DB, in ProjectInput) (projectRefs, error) {
	var refs projectRefs
	var err error
	if in.Tags != nil {
		if refs.tags, err = resolveRecords[models.Tag](db, *in.Tags); err != nil {
			return refs, fmt.Errorf("resolve tags: %w", err)
		}
	}
	if in.Responsibles != nil {
		if refs.responsibles, err = resolveRecords[models.Responsible](db, *in.Responsibles); err != nil {
			return refs, fmt.Errorf("resolve responsibles: %w", err)
		}
	}
	if in.Versions != nil {
		if refs.versions, err = resolveRecords[models.Version](db, *in.Versions); err != nil {
			return refs, fmt.Errorf("resolve versions: %w", err)
		}
	}
	if in.Servers != nil {
		if refs.servers, err = resolveRecords[models.Server](db, *in.Servers); err != nil {
			return refs, fmt.Errorf("resolve servers: %w", err)
		}
	}
	return refs, nil
}

// CreateProject creates a project, growing the reference vocabularies as needed.
func CreateProject(db *gorm.DB, in ProjectInput) (*models.Project, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, invalid("title is required")
	}
	if err := validateProjectStatus(in.Status); err != nil {
		return nil, err
	}

	refs, err := resolveProjectRefs(db, in)
	if err != nil {
		return nil, err
	}

	project := models.Project{
		Title:        strings.TrimSpace(*in.Title),
		Status:       models.ProjectNotStarted,
		Tags:         refs.tags,
		Responsibles: refs.responsibles,
		Versions:     refs.versions,
		Servers:      refs.servers,
	}
	if in.Status != nil {
		project.Status = *in.Status
	}

	if err := db.Create(&project).Error; err != nil {
		return nil, err
	}
	return GetProjectWithRefs(db, project.ID)
}

// UpdateProject applies a partial update and returns the before and after states.
func UpdateProject(db *gorm.DB, id string, in ProjectInput) (*models.Project, *models.Project, error) {
	before, err := GetProjectWithRefs(db, id)
	if err != nil {
		return nil, nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, nil, invalid("title cannot be empty")
	}
	if err := validateProjectStatus(in.Status); err != nil {
		return nil, nil, err
	}

	refs, err := resolveProjectRefs(db, in)
	if err != nil {
		return nil, nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if in.Title != nil {
			updates["title"] = strings.TrimSpace(*in.Title)
		}
		if in.Status != nil {
			updates["status"] = *in.Status
		}
		target := &models.Project{Entity: models.Entity{ID: id}}
		if len(updates) > 0 {
			if err := tx.Model(target).Updates(updates).Error; err != nil {
				return err
			}
		}
		if in.Tags != nil {
			if err := tx.Model(target).Association("Tags").Replace(refs.tags); err != nil {
				return err
			}
		}
		if in.Responsibles != nil {
			if err := tx.Model(target).Association("Responsibles").Replace(refs.responsibles); err != nil {
				return err
			}
		}
		if in.Versions != nil {
			if err := tx.Model(target).Association("Versions").Replace(refs.versions); err != nil {
				return err
			}
		}
		if in.Servers != nil {
			if err := tx.Model(target).Association("Servers").Replace(refs.servers); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	after, err := GetProjectWithRefs(db, id)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// DeleteProject removes the project's scenarios, then its demands, then the
// project itself. The returned deletion holds the pre-delete state.
func DeleteProject(db *gorm.DB, id string) (*ProjectDeletion, error) {
	project, err := GetProjectWithRefs(db, id)
	if err != nil {
		return nil, err
	}

	var demands []models.Demand
	if err := db.Where("project_id = ?", id).Find(&demands).Error; err != nil {
		return nil, err
	}

	err = commit(db, func(tx *gorm.DB) error {
		demandIDs := make([]string, 0, len(demands))
		for _, d := range demands {
			demandIDs = append(demandIDs, d.ID)
		}

		if len(demandIDs) > 0 {
			if err := tx.Where("demand_id IN ?", demandIDs).Delete(&models.Scenario{}).Error; err != nil {
				return fmt.Errorf("delete scenarios: %w", err)
			}
		}
		for i := range demands {
			if err := tx.Select("Responsibles", "Evidences").Delete(&demands[i]).Error; err != nil {
				return fmt.Errorf("delete demand %s: %w", demands[i].ID, err)
			}
		}
		if err := tx.Select("Tags", "Responsibles", "Versions", "Servers").Delete(&models.Project{Entity: models.Entity{ID: id}}).Error; err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ProjectDeletion{Project: *project, Demands: demands}, nil
}

// CloneProject creates a new project from the input, inheriting absent fields
// from the source, then duplicates every demand and scenario under it.
// Evidence is never duplicated.
func CloneProject(db *gorm.DB, sourceID string, in ProjectInput) (*models.Project, *models.Project, error) {
	source, err := GetProjectWithRefs(db, sourceID)
	if err != nil {
		return nil, nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, nil, invalid("title cannot be empty")
	}
	if err := validateProjectStatus(in.Status); err != nil {
		return nil, nil, err
	}

	refs, err := resolveProjectRefs(db, in)
	if err != nil {
		return nil, nil, err
	}

	clone := models.Project{
		Title:        source.Title + " (Copy)",
		Status:       source.Status,
		Tags:         source.Tags,
		Responsibles: source.Responsibles,
		Versions:     source.Versions,
		Servers:      source.Servers,
	}
	if in.Title != nil {
		clone.Title = strings.TrimSpace(*in.Title)
	}
	if in.Status != nil {
		clone.Status = *in.Status
	}
	if in.Tags != nil {
		clone.Tags = refs.tags
	}
	if in.Responsibles != nil {
		clone.Responsibles = refs.responsibles
	}
	if in.Versions != nil {
		clone.Versions = refs.versions
	}
	if in.Servers != nil {
		clone.Servers = refs.servers
	}

	err = commit(db, func(tx *gorm.DB) error {
		if err := tx.Create(&clone).Error; err != nil {
			return fmt.Errorf("create project: %w", err)
		}

		var demands []models.Demand
		if err := tx.Preload("Responsibles").Where("project_id = ?", source.ID).
			Order("created_at ASC, id ASC").Find(&demands).Error; err != nil {
			return err
		}
		for i := range demands {
			if _, err := cloneDemandTree(tx, &demands[i], copyDemand(&demands[i], clone.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	created, err := GetProjectWithRefs(db, clone.ID)
	if err != nil {
		return nil, nil, err
	}
	return created, source, nil
}

// commit runs fn in one transaction. A failing commit after every step
// succeeded is reported as ErrPartialFailure.
func commit(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPartialFailure, err)
	}
	return nil
}
