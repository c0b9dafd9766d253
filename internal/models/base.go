package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entity carries the identity and timestamps shared by every stored record.
type Entity struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a new UUID when the record has none.
func (e *Entity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// IsID reports whether s is syntactically a record identifier.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
