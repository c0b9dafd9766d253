package models

import "time"

// Demand statuses.
const (
	DemandPending     = "Pending"
	DemandTesting     = "Testing"
	DemandAwaitingFix = "AwaitingFix"
	DemandTested      = "Tested"
)

// DemandStatuses lists the accepted demand statuses.
var DemandStatuses = []string{DemandPending, DemandTesting, DemandAwaitingFix, DemandTested}

// Demand is a unit of work under test. It belongs to one project and owns
// scenarios and evidence files.
type Demand struct {
	Entity
	DisplayID      string        `gorm:"size:128;index" json:"demandId"`
	Name           string        `gorm:"size:255;not null" json:"name"`
	EstimatedHours float64       `gorm:"not null;default:0" json:"estimatedHours"`
	Link           string        `gorm:"size:1024" json:"link"`
	Status         string        `gorm:"size:32;not null;default:Pending;index" json:"status"`
	ProjectID      string        `gorm:"type:char(36);not null;index" json:"projectId"`
	Project        *Project      `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Responsibles   []Responsible `gorm:"many2many:demand_responsibles;constraint:OnDelete:CASCADE" json:"responsaveis"`
	Evidences      []Evidence    `gorm:"foreignKey:DemandID;constraint:OnDelete:CASCADE" json:"evidences"`
	// EvidenceDir is the evidence folder name fixed at the first upload.
	EvidenceDir    string        `gorm:"size:512" json:"-"`
}

// Evidence is an uploaded file proving a demand was tested.
type Evidence struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"id"`
	DemandID     string    `gorm:"type:char(36);not null;index" json:"-"`
	Filename     string    `gorm:"size:512;not null" json:"filename"`
	OriginalName string    `gorm:"size:512;not null" json:"originalName"`
	MimeType     string    `gorm:"size:255" json:"mimetype"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `gorm:"index" json:"uploadedAt"`
}

// TableName overrides the table name for Demand
func (Demand) TableName() string {
	return "demands"
}

// TableName overrides the table name for Evidence
func (Evidence) TableName() string {
	return "evidences"
}
