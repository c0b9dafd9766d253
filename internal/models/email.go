package models

import "time"

// Pending email statuses.
const (
	EmailPending = "pending"
	EmailFailed  = "failed"
	EmailSent    = "sent"
)

// PendingEmail is a transactional email whose first send failed.
type PendingEmail struct {
	Entity
	To        string `gorm:"size:255;not null" json:"to"`
	Subject   string `gorm:"size:512;not null" json:"subject"`
	Body      string `gorm:"type:text" json:"body"`
	Type      string `gorm:"size:32;index" json:"type"`
	Status    string `gorm:"size:16;not null;default:pending;index" json:"status"`
	Attempts  int    `gorm:"not null;default:0" json:"attempts"`
	LastError string `gorm:"type:text" json:"lastError"`
}

// SystemConfig holds one configuration blob per key.
type SystemConfig struct {
	Key       string    `gorm:"size:128;primaryKey" json:"key"`
	Value     JSON      `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName overrides the table name for PendingEmail
func (PendingEmail) TableName() string {
	return "pending_emails"
}

// TableName overrides the table name for SystemConfig
func (SystemConfig) TableName() string {
	return "system_configs"
}
