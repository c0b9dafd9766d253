package services

import (
	"strings"

	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScenarioInput carries scenario fields. Nil fields are left untouched on
// update and inherited from the source on clone.
type ScenarioInput struct {
	Title          *string
	Description    *string
	Steps          *[]string
	ExpectedResult *string
	DemandID       *string
	Status         *string
	MantisLink     *string
}

// ScenarioFilter narrows ListScenarios.
type ScenarioFilter struct {
	DemandID string
	Status   string
	Search   string
}

// ListScenarios returns scenarios in their natural read order.
func ListScenarios(db *gorm.DB, f ScenarioFilter) ([]models.Scenario, error) {
	query := db.Model(&models.Scenario{})
	if models.IsID(f.DemandID) {
		query = query.Where("demand_id = ?", f.DemandID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var scenarios []models.Scenario
	if err := query.Order("created_at ASC, id ASC").Find(&scenarios).Error; err != nil {
		return nil, err
	}
	return scenarios, nil
}

// GetScenario loads one scenario.
func GetScenario(db *gorm.DB, id string) (*models.Scenario, error) {
	var scenario models.Scenario
	if err := db.Where("id = ?", id).First(&scenario).Error; err != nil {
		return nil, findOr404(err, "scenario")
	}
	return &scenario, nil
}

func validateScenarioInput(db *gorm.DB, in ScenarioInput, creating bool) error {
	if creating && (in.Title == nil || strings.TrimSpace(*in.Title) == "") {
		return invalid("title is required")
	}
	if !creating && in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return invalid("title cannot be empty")
	}
	if in.Status != nil && !contains(models.ScenarioStatuses, *in.Status) {
		return invalid("status must be one of %s", strings.Join(models.ScenarioStatuses, ", "))
	}
	if creating && (in.DemandID == nil || *in.DemandID == "") {
		return invalid("demandId is required")
	}
	if in.DemandID != nil {
		if !models.IsID(*in.DemandID) {
			return invalid("demandId is not a valid id")
		}
		var count int64
		if err := db.Model(&models.Demand{}).Where("id = ?", *in.DemandID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return notFound("demand")
		}
	}
	return nil
}

func applyScenarioInput(s *models.Scenario, in ScenarioInput) {
	if in.Title != nil {
		s.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		s.Description = *in.Description
	}
	if in.Steps != nil {
		steps := make([]string, 0, len(*in.Steps))
		for _, step := range *in.Steps {
			if step = strings.TrimSpace(step); step != "" {
				steps = append(steps, step)
			}
		}
		s.Steps = datatypes.JSONSlice[string](steps)
	}
	if in.ExpectedResult != nil {
		s.ExpectedResult = *in.ExpectedResult
	}
	if in.DemandID != nil {
		s.DemandID = *in.DemandID
	}
	if in.Status != nil {
		s.Status = *in.Status
	}
	if in.MantisLink != nil {
		s.MantisLink = strings.TrimSpace(*in.MantisLink)
	}
	if s.Status != models.ScenarioFailed {
		s.MantisLink = ""
	}
}

// CreateScenario creates a scenario under an existing demand.
func CreateScenario(db *gorm.DB, in ScenarioInput) (*models.Scenario, error) {
	if err := validateScenarioInput(db, in, true); err != nil {
		return nil, err
	}

	scenario := models.Scenario{Status: models.ScenarioAwaiting, Steps: datatypes.JSONSlice[string]{}}
	applyScenarioInput(&scenario, in)

	if err := db.Create(&scenario).Error; err != nil {
		return nil, err
	}
	return &scenario, nil
}

// CloneScenario copies a scenario, overriding the fields present in the input.
// Without a demandId the copy stays under the source's demand.
func CloneScenario(db *gorm.DB, sourceID string, in ScenarioInput) (*models.Scenario, *models.Scenario, error) {
	source, err := GetScenario(db, sourceID)
	if err != nil {
		return nil, nil, err
	}
	if err := validateScenarioInput(db, in, false); err != nil {
		return nil, nil, err
	}

	clone := copyScenario(source, source.DemandID)
	clone.Title = source.Title + " (Copy)"
	applyScenarioInput(clone, in)

	if err := db.Create(clone).Error; err != nil {
		return nil, nil, err
	}
	return clone, source, nil
}

// copyScenario duplicates every field of src under demandID, without identity.
func copyScenario(src *models.Scenario, demandID string) *models.Scenario {
	return &models.Scenario{
		Title:          src.Title,
		Description:    src.Description,
		Steps:          append(datatypes.JSONSlice[string]{}, src.Steps...),
		ExpectedResult: src.ExpectedResult,
		DemandID:       demandID,
		Status:         src.Status,
		MantisLink:     src.MantisLink,
	}
}

// UpdateScenario applies a partial update and returns the before and after states.
func UpdateScenario(db *gorm.DB, id string, in ScenarioInput) (*models.Scenario, *models.Scenario, error) {
	before, err := GetScenario(db, id)
	if err != nil {
		return nil, nil, err
	}
	if err := validateScenarioInput(db, in, false); err != nil {
		return nil, nil, err
	}

	after := *before
	applyScenarioInput(&after, in)

	if err := db.Model(&models.Scenario{Entity: models.Entity{ID: id}}).
		Select("title", "description", "steps", "expected_result", "demand_id", "status", "mantis_link").
		Updates(&after).Error; err != nil {
		return nil, nil, err
	}
	return before, &after, nil
}

// UpdateScenarioStatus sets the status. The mantis link is kept only for
// Failed and cleared for every other status, whatever was supplied.
func UpdateScenarioStatus(db *gorm.DB, id, status string, mantisLink *string) (*models.Scenario, *models.Scenario, error) {
	if status == "" {
		return nil, nil, invalid("status is required")
	}
	return UpdateScenario(db, id, ScenarioInput{Status: &status, MantisLink: mantisLink})
}

// DeleteScenario removes one scenario and returns its pre-delete state.
func DeleteScenario(db *gorm.DB, id string) (*models.Scenario, error) {
	scenario, err := GetScenario(db, id)
	if err != nil {
		return nil, err
	}
	if err := db.Delete(&models.Scenario{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return scenario, nil
}
