package models

import (
	"time"

	"github.com/welldanyogia/webrana-confchat/internal/attachment"
)

// ChatMessage is one immutable message in a paper's conversation. A
// conversation is simply every ChatMessage sharing a PaperID.
type ChatMessage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PaperID    string    `gorm:"not null;size:36;index" json:"paperId"`
	SenderID   string    `gorm:"not null;size:36;index" json:"-"`
	SenderRole Role      `gorm:"not null;size:20" json:"senderRole"`
	Body       string    `gorm:"type:text" json:"body"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"timestamp"`

	// Relationships
	Paper       Paper            `gorm:"foreignKey:PaperID;constraint:OnDelete:CASCADE" json:"-"`
	Sender      User             `gorm:"foreignKey:SenderID" json:"sender"`
	Attachments []ChatAttachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments"`
}

// TableName returns the table name for ChatMessage
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// ChatAttachment is a file attached to a ChatMessage. Position is the
// attachment index used in view/download URLs.
type ChatAttachment struct {
	ID        uint                `gorm:"primaryKey" json:"-"`
	MessageID uint                `gorm:"not null;uniqueIndex:idx_chat_attachment_position" json:"-"`
	Position  int                 `gorm:"not null;uniqueIndex:idx_chat_attachment_position" json:"index"`
	FileName  string              `gorm:"not null;size:255" json:"fileName"`
	FileSize  int64               `gorm:"not null" json:"fileSize"`
	FileType  attachment.FileType `gorm:"not null;size:20" json:"fileType"`
	MimeType  string              `gorm:"not null;size:100" json:"mimeType"`
	FilePath  string              `gorm:"not null;size:500" json:"-"`
}

// TableName returns the table name for ChatAttachment
func (ChatAttachment) TableName() string {
	return "chat_attachments"
}
