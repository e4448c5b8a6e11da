package models

import "time"

// ChatReadState is a per-user read watermark for one conversation.
// LastReadMessageID only moves forward; everything above it sent by someone
// else counts as unread.
type ChatReadState struct {
	PaperID           string    `gorm:"primaryKey;size:36" json:"paperId"`
	UserID            string    `gorm:"primaryKey;size:36" json:"userId"`
	LastReadMessageID uint      `gorm:"not null;default:0" json:"lastReadMessageId"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for ChatReadState
func (ChatReadState) TableName() string {
	return "chat_read_states"
}

// UnreadSummaryEntry is the unread count of one conversation for the viewer
type UnreadSummaryEntry struct {
	PaperID     string `json:"paperId"`
	UnreadCount int64  `json:"unreadCount"`
}
