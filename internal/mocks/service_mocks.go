package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/webrana-confchat/internal/models"
	"github.com/welldanyogia/webrana-confchat/internal/services"
)

// MockChatService implements services.ChatService
type MockChatService struct {
	mock.Mock
}

// GetPaper returns paper metadata
func (m *MockChatService) GetPaper(ctx context.Context, viewer *models.User, paperID string) (*models.Paper, error) {
	args := m.Called(ctx, viewer, paperID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Paper), args.Error(1)
}

// ListMessages returns a conversation
func (m *MockChatService) ListMessages(ctx context.Context, viewer *models.User, paperID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, viewer, paperID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

// SendMessage stores a message
func (m *MockChatService) SendMessage(ctx context.Context, viewer *models.User, paperID, body string, uploads []services.Upload) (*models.ChatMessage, error) {
	args := m.Called(ctx, viewer, paperID, body, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

// UnreadSummary returns unread counts
func (m *MockChatService) UnreadSummary(ctx context.Context, viewer *models.User) ([]models.UnreadSummaryEntry, int64, error) {
	args := m.Called(ctx, viewer)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.UnreadSummaryEntry), args.Get(1).(int64), args.Error(2)
}

// OpenAttachment returns attachment metadata and content
func (m *MockChatService) OpenAttachment(ctx context.Context, viewer *models.User, paperID string, messageID uint, index int) (*models.ChatAttachment, io.ReadCloser, error) {
	args := m.Called(ctx, viewer, paperID, messageID, index)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.ChatAttachment), args.Get(1).(io.ReadCloser), args.Error(2)
}
