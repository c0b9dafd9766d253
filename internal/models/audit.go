package models

import "time"

// Audit actions.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// AuditLog is an append-only record of a create, update or delete.
type AuditLog struct {
	ID        string    `gorm:"type:char(26);primaryKey" json:"id"`
	Action    string    `gorm:"size:16;not null;index" json:"action"`
	Menu      string    `gorm:"size:64;not null;index" json:"menu"`
	TargetID  string    `gorm:"size:64;index" json:"targetId"`
	UserID    *string   `gorm:"type:char(36);index" json:"userId"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
	Details   JSON      `json:"details"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// TableName overrides the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
