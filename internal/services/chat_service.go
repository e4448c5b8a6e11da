package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	apperrors "github.com/welldanyogia/webrana-confchat/internal/errors"
	"github.com/welldanyogia/webrana-confchat/internal/metrics"
	"github.com/welldanyogia/webrana-confchat/internal/models"
	"github.com/welldanyogia/webrana-confchat/internal/notify"
	"github.com/welldanyogia/webrana-confchat/internal/repository"
	"github.com/welldanyogia/webrana-confchat/internal/storage"
	"github.com/welldanyogia/webrana-confchat/internal/validator"
)

// sniffLen is how much of an upload is inspected to detect its real type
const sniffLen = 3072

// Upload is one file received with a send request
type Upload struct {
	FileName string
	MIMEType string // as declared by the client
	Size     int64  // as declared by the client; storage enforces the real size
	Open     func() (io.ReadCloser, error)
}

// PushNotifier delivers unread_changed hints to connected viewers
type PushNotifier interface {
	NotifyUsers(paperID string, userIDs ...string)
	NotifyAdmins(paperID, exceptUserID string)
}

// ChatService defines the chat operations exposed over HTTP
type ChatService interface {
	// GetPaper returns paper metadata if the viewer may see its conversation
	GetPaper(ctx context.Context, viewer *models.User, paperID string) (*models.Paper, error)

	// ListMessages returns the conversation and acknowledges it as read
	ListMessages(ctx context.Context, viewer *models.User, paperID string) ([]models.ChatMessage, error)

	// SendMessage validates, stores and announces a new message
	SendMessage(ctx context.Context, viewer *models.User, paperID, body string, uploads []Upload) (*models.ChatMessage, error)

	// UnreadSummary returns the viewer's per-paper unread counts and their total
	UnreadSummary(ctx context.Context, viewer *models.User) ([]models.UnreadSummaryEntry, int64, error)

	// OpenAttachment returns attachment metadata and its content stream
	OpenAttachment(ctx context.Context, viewer *models.User, paperID string, messageID uint, index int) (*models.ChatAttachment, io.ReadCloser, error)
}

// ChatServiceConfig holds the dependencies of the chat service. Push,
// Notifier and Metrics are optional.
type ChatServiceConfig struct {
	ChatRepo  repository.ChatRepository
	PaperRepo repository.PaperRepository
	UserRepo  repository.UserRepository
	Storage   storage.FileStorage
	Push      PushNotifier
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Chat implements ChatService
type Chat struct {
	chatRepo  repository.ChatRepository
	paperRepo repository.PaperRepository
	userRepo  repository.UserRepository
	storage   storage.FileStorage
	push      PushNotifier
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// background notifications
	wg sync.WaitGroup
}

// NewChat creates the chat service
func NewChat(cfg ChatServiceConfig) *Chat {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Chat{
		chatRepo:  cfg.ChatRepo,
		paperRepo: cfg.PaperRepo,
		userRepo:  cfg.UserRepo,
		storage:   cfg.Storage,
		push:      cfg.Push,
		notifier:  notifier,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Wait blocks until background notifications have finished
func (s *Chat) Wait() {
	s.wg.Wait()
}

// visiblePaper loads a paper and hides it from viewers outside the
// conversation
func (s *Chat) visiblePaper(ctx context.Context, viewer *models.User, paperID string) (*models.Paper, error) {
	if viewer == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if err := validator.ValidateID(paperID); err != nil {
		return nil, apperrors.ErrPaperNotFound
	}

	paper, err := s.paperRepo.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrPaperNotFound
		}
		return nil, fmt.Errorf("failed to load paper: %w", err)
	}
	if !paper.VisibleTo(viewer) {
		return nil, apperrors.NewAppError(apperrors.ErrForbidden, apperrors.ErrPaperNotFound.Error(), apperrors.CodeNotFound)
	}
	return paper, nil
}

// GetPaper returns paper metadata
func (s *Chat) GetPaper(ctx context.Context, viewer *models.User, paperID string) (*models.Paper, error) {
	return s.visiblePaper(ctx, viewer, paperID)
}

// ListMessages returns every message of the conversation in order and moves
// the viewer's read watermark to the newest one
func (s *Chat) ListMessages(ctx context.Context, viewer *models.User, paperID string) ([]models.ChatMessage, error) {
	if _, err := s.visiblePaper(ctx, viewer, paperID); err != nil {
		return nil, err
	}

	messages, err := s.chatRepo.ListByPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}

	if len(messages) > 0 {
		latest := messages[len(messages)-1].ID
		if err := s.chatRepo.MarkRead(ctx, paperID, viewer.ID, latest); err != nil {
			return nil, err
		}
		s.metrics.ObserveReadAcknowledged()
	}

	return messages, nil
}

// SendMessage stores a message with its attachments. Every attachment is
// checked against the declared type, its sniffed content and the size limit;
// the first failure rejects the whole message and nothing is kept.
func (s *Chat) SendMessage(ctx context.Context, viewer *models.User, paperID, body string, uploads []Upload) (*models.ChatMessage, error) {
	paper, err := s.visiblePaper(ctx, viewer, paperID)
	if err != nil {
		return nil, err
	}

	sender, err := s.userRepo.GetByID(ctx, viewer.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load sender: %w", err)
	}

	body, err = validator.SanitizeMessageBody(body)
	if err != nil {
		return nil, apperrors.ErrMessageTooLong
	}
	if len(uploads) > attachment.MaxFiles {
		s.metrics.ObserveRejectedUpload("count")
		return nil, apperrors.NewAppError(attachment.ErrTooManyFiles, attachment.TooManyFilesMessage, apperrors.CodeTooManyFiles)
	}
	if body == "" && len(uploads) == 0 {
		return nil, apperrors.ErrEmptyMessage
	}

	for _, u := range uploads {
		if err := attachment.Validate(validator.SanitizeFilename(u.FileName), u.MIMEType, u.Size); err != nil {
			s.rejectUpload(err)
			return nil, err
		}
	}

	attachments := make([]models.ChatAttachment, 0, len(uploads))
	for _, u := range uploads {
		att, err := s.storeUpload(u)
		if err != nil {
			s.discard(attachments)
			s.rejectUpload(err)
			return nil, err
		}
		attachments = append(attachments, *att)
	}

	msg := &models.ChatMessage{
		PaperID:    paper.ID,
		SenderID:   sender.ID,
		SenderRole: sender.Role,
		Body:       body,
	}
	if err := s.chatRepo.CreateWithAttachments(ctx, msg, attachments); err != nil {
		s.discard(attachments)
		return nil, err
	}
	msg.Sender = *sender

	// The sender has obviously read everything up to their own message
	if err := s.chatRepo.MarkRead(ctx, paper.ID, sender.ID, msg.ID); err != nil {
		s.logger.Warn("failed to advance sender read state",
			slog.String("paper_id", paper.ID),
			slog.String("error", err.Error()),
		)
	}

	fileTypes := make([]string, len(msg.Attachments))
	sizes := make([]int64, len(msg.Attachments))
	for i, a := range msg.Attachments {
		fileTypes[i] = string(a.FileType)
		sizes[i] = a.FileSize
	}
	s.metrics.ObserveMessage(string(sender.Role), fileTypes, sizes)

	s.logger.Info("chat message sent",
		slog.String("paper_id", paper.ID),
		slog.Uint64("message_id", uint64(msg.ID)),
		slog.String("sender_role", string(sender.Role)),
		slog.Int("attachments", len(msg.Attachments)),
	)

	s.announce(ctx, paper, sender, msg)
	return msg, nil
}

// storeUpload sniffs and stores one upload
func (s *Chat) storeUpload(u Upload) (*models.ChatAttachment, error) {
	name := validator.SanitizeFilename(u.FileName)

	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", name, err)
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload %s: %w", name, err)
	}
	head = head[:n]

	sniffed, err := attachment.Sniff(bytes.NewReader(head))
	if err != nil || !attachment.ContentAllowed(sniffed) {
		return nil, &attachment.FileError{FileName: name, Err: attachment.ErrContentMismatch}
	}

	path, size, err := s.storage.Save(name, io.MultiReader(bytes.NewReader(head), rc))
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) {
			return nil, &attachment.FileError{FileName: name, Err: attachment.ErrFileTooLarge}
		}
		return nil, fmt.Errorf("failed to store upload %s: %w", name, err)
	}

	return &models.ChatAttachment{
		FileName: name,
		FileSize: size,
		FileType: attachment.Classify(sniffed),
		MimeType: sniffed,
		FilePath: path,
	}, nil
}

func (s *Chat) rejectUpload(err error) {
	switch {
	case errors.Is(err, attachment.ErrTypeNotAllowed):
		s.metrics.ObserveRejectedUpload("type")
	case errors.Is(err, attachment.ErrContentMismatch):
		s.metrics.ObserveRejectedUpload("content")
	case errors.Is(err, attachment.ErrFileTooLarge):
		s.metrics.ObserveRejectedUpload("size")
	}
}

// discard removes files stored for a message that was not created
func (s *Chat) discard(attachments []models.ChatAttachment) {
	for _, a := range attachments {
		if err := s.storage.Delete(a.FilePath); err != nil {
			s.logger.Warn("failed to remove orphaned attachment",
				slog.String("path", a.FilePath),
				slog.String("error", err.Error()),
			)
		}
	}
}

// announce pushes unread hints to the other side and e-mails them in the
// background
func (s *Chat) announce(ctx context.Context, paper *models.Paper, sender *models.User, msg *models.ChatMessage) {
	if s.push != nil {
		if sender.IsAdmin() {
			s.push.NotifyUsers(paper.ID, paper.AuthorID)
		} else {
			s.push.NotifyAdmins(paper.ID, sender.ID)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg := context.WithoutCancel(ctx)

		recipients, err := s.recipients(bg, paper, sender)
		if err != nil {
			s.logger.Warn("failed to resolve notification recipients",
				slog.String("paper_id", paper.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		if len(recipients) == 0 {
			return
		}

		// Delivery errors are logged by the notifier
		_ = s.notifier.MessagePosted(bg, notify.MessagePosted{
			Paper:           paper,
			Sender:          sender,
			Recipients:      recipients,
			Body:            msg.Body,
			AttachmentCount: len(msg.Attachments),
		})
	}()
}

// recipients is the other side of the conversation: the author for admin
// messages, every admin for author messages
func (s *Chat) recipients(ctx context.Context, paper *models.Paper, sender *models.User) ([]models.User, error) {
	if sender.IsAdmin() {
		author, err := s.userRepo.GetByID(ctx, paper.AuthorID)
		if err != nil {
			return nil, err
		}
		return []models.User{*author}, nil
	}
	return s.userRepo.ListAdmins(ctx)
}

// UnreadSummary returns the viewer's unread counts
func (s *Chat) UnreadSummary(ctx context.Context, viewer *models.User) ([]models.UnreadSummaryEntry, int64, error) {
	if viewer == nil {
		return nil, 0, apperrors.ErrUnauthorized
	}
	entries, err := s.chatRepo.UnreadSummary(ctx, viewer)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.UnreadCount
	}
	return entries, total, nil
}

// OpenAttachment resolves an attachment within a visible conversation
func (s *Chat) OpenAttachment(ctx context.Context, viewer *models.User, paperID string, messageID uint, index int) (*models.ChatAttachment, io.ReadCloser, error) {
	if _, err := s.visiblePaper(ctx, viewer, paperID); err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= attachment.MaxFiles {
		return nil, nil, apperrors.ErrAttachmentNotFound
	}

	att, err := s.chatRepo.GetAttachment(ctx, paperID, messageID, index)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.ErrAttachmentNotFound
		}
		return nil, nil, err
	}

	rc, err := s.storage.Get(att.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, nil, apperrors.ErrAttachmentNotFound
		}
		return nil, nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return att, rc, nil
}
