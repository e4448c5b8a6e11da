package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/welldanyogia/webrana-confchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for chat message, attachment and
// read-state data access
type ChatRepository interface {
	CreateWithAttachments(ctx context.Context, message *models.ChatMessage, attachments []models.ChatAttachment) error
	ListByPaper(ctx context.Context, paperID string) ([]models.ChatMessage, error)
	GetAttachment(ctx context.Context, paperID string, messageID uint, position int) (*models.ChatAttachment, error)
	LatestMessageID(ctx context.Context, paperID string) (uint, error)
	MarkRead(ctx context.Context, paperID, userID string, upTo uint) error
	CountUnread(ctx context.Context, paperID string, viewer *models.User) (int64, error)
	UnreadSummary(ctx context.Context, viewer *models.User) ([]models.UnreadSummaryEntry, error)
}

// chatRepository implements ChatRepository using GORM
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new ChatRepository instance
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// CreateWithAttachments creates a message with its attachments in a transaction.
// Attachment positions are assigned in slice order.
func (r *chatRepository) CreateWithAttachments(ctx context.Context, message *models.ChatMessage, attachments []models.ChatAttachment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(message).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		for i := range attachments {
			attachments[i].MessageID = message.ID
			attachments[i].Position = i
			if err := tx.Create(&attachments[i]).Error; err != nil {
				return fmt.Errorf("failed to create attachment: %w", err)
			}
		}
		message.Attachments = attachments

		return nil
	})
}

// ListByPaper returns the whole conversation of a paper in chronological order
func (r *chatRepository) ListByPaper(ctx context.Context, paperID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	result := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("paper_id = ?", paperID).
		Order("id ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list messages: %w", result.Error)
	}
	for i := range messages {
		if messages[i].Attachments == nil {
			messages[i].Attachments = []models.ChatAttachment{}
		}
	}
	return messages, nil
}

// GetAttachment retrieves one attachment addressed by paper, message and index
func (r *chatRepository) GetAttachment(ctx context.Context, paperID string, messageID uint, position int) (*models.ChatAttachment, error) {
	var att models.ChatAttachment
	result := r.db.WithContext(ctx).
		Joins("JOIN chat_messages ON chat_messages.id = chat_attachments.message_id").
		Where("chat_messages.paper_id = ? AND chat_attachments.message_id = ? AND chat_attachments.position = ?", paperID, messageID, position).
		First(&att)
	if result.Error != nil {
		return nil, lookupError("attachment", result.Error)
	}
	return &att, nil
}

// LatestMessageID returns the highest message ID in a conversation, 0 if empty
func (r *chatRepository) LatestMessageID(ctx context.Context, paperID string) (uint, error) {
	var latest sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("paper_id = ?", paperID).
		Select("MAX(id)").
		Row().
		Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest message: %w", err)
	}
	if !latest.Valid {
		return 0, nil
	}
	return uint(latest.Int64), nil
}

// MarkRead moves the user's watermark for a paper up to upTo. The watermark
// never moves backwards.
func (r *chatRepository) MarkRead(ctx context.Context, paperID, userID string, upTo uint) error {
	state := models.ChatReadState{
		PaperID:           paperID,
		UserID:            userID,
		LastReadMessageID: upTo,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "paper_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_read_message_id": gorm.Expr(
				"CASE WHEN chat_read_states.last_read_message_id < excluded.last_read_message_id " +
					"THEN excluded.last_read_message_id ELSE chat_read_states.last_read_message_id END"),
			"updated_at": time.Now(),
		}),
	}).Create(&state)
	if result.Error != nil {
		return fmt.Errorf("failed to mark messages as read: %w", result.Error)
	}
	return nil
}

// unreadScope filters messages that count as unread for the viewer: sent by
// the other side and above the viewer's watermark. Admins share one side, so
// another admin's message is never unread for an admin.
func unreadScope(db *gorm.DB, viewer *models.User) *gorm.DB {
	db = db.Table("chat_messages AS m").
		Joins("JOIN papers p ON p.id = m.paper_id").
		Joins("LEFT JOIN chat_read_states rs ON rs.paper_id = m.paper_id AND rs.user_id = ?", viewer.ID).
		Where("m.sender_id <> ?", viewer.ID).
		Where("m.id > COALESCE(rs.last_read_message_id, 0)")

	if viewer.IsAdmin() {
		db = db.Where("m.sender_role <> ?", models.RoleAdmin)
	} else {
		db = db.Where("p.author_id = ?", viewer.ID)
	}
	return db
}

// CountUnread counts unread messages in one conversation for the viewer
func (r *chatRepository) CountUnread(ctx context.Context, paperID string, viewer *models.User) (int64, error) {
	var count int64
	result := unreadScope(r.db.WithContext(ctx), viewer).
		Where("m.paper_id = ?", paperID).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", result.Error)
	}
	return count, nil
}

// UnreadSummary returns per-paper unread counts for the viewer. Papers with
// nothing unread are omitted.
func (r *chatRepository) UnreadSummary(ctx context.Context, viewer *models.User) ([]models.UnreadSummaryEntry, error) {
	var entries []models.UnreadSummaryEntry
	result := unreadScope(r.db.WithContext(ctx), viewer).
		Select("m.paper_id AS paper_id, COUNT(*) AS unread_count").
		Group("m.paper_id").
		Order("m.paper_id ASC").
		Scan(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to compute unread summary: %w", result.Error)
	}
	if entries == nil {
		entries = []models.UnreadSummaryEntry{}
	}
	return entries, nil
}
