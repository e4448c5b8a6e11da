package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role distinguishes conference admins from paper authors. It drives visual
// treatment and conversation visibility.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleParticipant
}

// User is the minimal identity record chat messages point at
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null;size:255" json:"-"`
	Role      Role      `gorm:"not null;size:20;default:participant" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID when none was set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
