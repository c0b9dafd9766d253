package models

import "gorm.io/datatypes"

// Scenario statuses.
const (
	ScenarioAwaiting = "Awaiting"
	ScenarioPassed   = "Passed"
	ScenarioFailed   = "Failed"
)

// ScenarioStatuses lists the accepted scenario statuses.
var ScenarioStatuses = []string{ScenarioAwaiting, ScenarioPassed, ScenarioFailed}

// Scenario is a single test case belonging to a demand.
type Scenario struct {
	Entity
	Title          string                      `gorm:"size:255;not null" json:"title"`
	Description    string                      `gorm:"type:text" json:"description"`
	Steps          datatypes.JSONSlice[string] `json:"steps"`
	ExpectedResult string                      `gorm:"type:text" json:"expectedResult"`
	DemandID       string                      `gorm:"type:char(36);not null;index" json:"demandId"`
	Status         string                      `gorm:"size:32;not null;default:Awaiting;index" json:"status"`
	MantisLink     string                      `gorm:"size:1024" json:"mantisLink"`
}

// TableName overrides the table name for Scenario
func (Scenario) TableName() string {
	return "scenarios"
}
