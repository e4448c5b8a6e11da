package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Paper is a submitted paper. Each paper carries at most one conversation
// between its author and the admins.
type Paper struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"not null;size:500" json:"title"`
	AuthorID  string    `gorm:"not null;size:36;index" json:"authorId"`
	Status    string    `gorm:"not null;size:50;default:submitted" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	// Relationships
	Author *User `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
}

// TableName returns the table name for Paper
func (Paper) TableName() string {
	return "papers"
}

// BeforeCreate assigns a UUID when none was set
func (p *Paper) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// VisibleTo reports whether the user may see this paper's conversation
func (p *Paper) VisibleTo(u *User) bool {
	if u == nil {
		return false
	}
	return u.IsAdmin() || p.AuthorID == u.ID
}
