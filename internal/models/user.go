package models

import "time"

// User roles.
const (
	RoleAdmin  = "admin"
	RoleQA     = "qa"
	RoleViewer = "viewer"
)

// Roles lists the accepted user roles.
var Roles = []string{RoleAdmin, RoleQA, RoleViewer}

// User is an account able to sign in. Secrets never leave the server.
type User struct {
	Entity
	Username             string     `gorm:"size:128;not null;uniqueIndex" json:"username"`
	Email                string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name                 string     `gorm:"size:255" json:"name"`
	Role                 string     `gorm:"size:16;not null;default:viewer" json:"role"`
	PasswordHash         string     `gorm:"size:255;not null" json:"-"`
	ResetPasswordToken   string     `gorm:"size:128;index" json:"-"`
	ResetPasswordExpires *time.Time `json:"-"`
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}
