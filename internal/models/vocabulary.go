package models

// Vocabulary is a free-text reference name grown on demand by project and
// demand writes. Names are stored trimmed and lowercased.
type Vocabulary struct {
	Entity
	Name string `gorm:"size:255;not null;uniqueIndex" json:"name"`
}

// GetID returns the record id.
func (v *Vocabulary) GetID() string { return v.ID }

// SetName sets the stored name.
func (v *Vocabulary) SetName(name string) { v.Name = name }

// Responsible is a person assignable to projects and demands.
type Responsible struct {
	Vocabulary
}

// Tag labels projects.
type Tag struct {
	Vocabulary
}

// Version is a release version a project targets.
type Version struct {
	Vocabulary
}

// Server is an environment a project is tested on.
type Server struct {
	Vocabulary
}

// TableName overrides the table name for Responsible
func (Responsible) TableName() string {
	return "responsibles"
}

// TableName overrides the table name for Tag
func (Tag) TableName() string {
	return "tags"
}

// TableName overrides the table name for Version
func (Version) TableName() string {
	return "versions"
}

// TableName overrides the table name for Server
func (Server) TableName() string {
	return "servers"
}
