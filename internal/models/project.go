package models

// Project statuses.
const (
	ProjectNotStarted = "NotStarted"
	ProjectInProgress = "InProgress"
	ProjectDone       = "Done"
	ProjectHalted     = "Halted"
)

// ProjectStatuses lists the accepted project statuses.
var ProjectStatuses = []string{ProjectNotStarted, ProjectInProgress, ProjectDone, ProjectHalted}

// Project is the top level unit of work grouping demands.
type Project struct {
	Entity
	Title        string        `gorm:"size:255;not null" json:"title"`
	Status       string        `gorm:"size:32;not null;default:NotStarted;index" json:"status"`
	Tags         []Tag         `gorm:"many2many:project_tags;constraint:OnDelete:CASCADE" json:"tags"`
	Responsibles []Responsible `gorm:"many2many:project_responsibles;constraint:OnDelete:CASCADE" json:"responsaveis"`
	Versions     []Version     `gorm:"many2many:project_versions;constraint:OnDelete:CASCADE" json:"versions"`
	Servers      []Server      `gorm:"many2many:project_servers;constraint:OnDelete:CASCADE" json:"servers"`
}

// TableName overrides the table name for Project
func (Project) TableName() string {
	return "projects"
}
