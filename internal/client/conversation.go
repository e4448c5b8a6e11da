package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	"github.com/welldanyogia/webrana-confchat/internal/models"
	"golang.org/x/sync/errgroup"
)

// User-visible messages of the conversation view
const (
	EmptyComposeMessage = "Please enter a message or attach a file"
	SendFailedMessage   = "Failed to send message"
	LoadFailedMessage   = "Failed to load messages"
)

// Conversation view errors
var (
	ErrEmptyCompose   = errors.New(EmptyComposeMessage)
	ErrNotReady       = errors.New("conversation is not ready")
	ErrSendInProgress = errors.New("a message is already being sent")
	ErrSuperseded     = errors.New("conversation was closed or reopened")
)

// ViewState is the lifecycle state of a ConversationView
type ViewState int

const (
	StateClosed ViewState = iota
	StateLoading
	StateReady
	StateSending
)

func (s ViewState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// ConversationAPI is what a ConversationView needs from the chat API
type ConversationAPI interface {
	Paper(ctx context.Context, paperID string) (*models.Paper, error)
	Messages(ctx context.Context, paperID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, paperID, body string, files []attachment.File) (*models.ChatMessage, error)
	AttachmentURL(paperID string, messageID uint, index int, download bool) string
}

// ConversationView is the view-model of one chat panel. Messages are kept
// in server order; sends append the message the server returned.
type ConversationView struct {
	api    ConversationAPI
	logger *slog.Logger

	mu         sync.Mutex
	state      ViewState
	paperID    string
	paper      *models.Paper
	messages   []models.ChatMessage
	draft      string
	pending    []attachment.File
	errMsg     string
	generation uint64

	onClose           func(paperID string)
	onMessagesChanged func(messages []models.ChatMessage)
}

// NewConversationView creates a closed view
func NewConversationView(api ConversationAPI, logger *slog.Logger) *ConversationView {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationView{
		api:    api,
		logger: logger.With(slog.String("component", "conversation_view")),
	}
}

// OnClose registers the hook run by Close, typically
// poller.RefreshAfter(CloseRefreshDelay)
func (v *ConversationView) OnClose(fn func(paperID string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onClose = fn
}

// OnMessagesChanged registers the hook run whenever the message sequence
// changes
func (v *ConversationView) OnMessagesChanged(fn func(messages []models.ChatMessage)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onMessagesChanged = fn
}

// Open loads a conversation. Paper metadata is best effort; a failed
// message fetch leaves the view Loading with an error so it can be retried.
// If another Open or Close happens meanwhile, this result is discarded.
func (v *ConversationView) Open(ctx context.Context, paperID string) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.state = StateLoading
	v.paperID = paperID
	v.paper = nil
	v.messages = nil
	v.draft = ""
	v.pending = nil
	v.errMsg = ""
	v.mu.Unlock()

	var (
		paper    *models.Paper
		messages []models.ChatMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := v.api.Paper(gctx, paperID)
		if err != nil {
			v.logger.Warn("failed to load paper metadata",
				slog.String("paper_id", paperID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		paper = p
		return nil
	})
	g.Go(func() error {
		m, err := v.api.Messages(gctx, paperID)
		if err != nil {
			return err
		}
		messages = m
		return nil
	})
	err := g.Wait()

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return ErrSuperseded
	}

	if err != nil {
		v.errMsg = ServerMessage(err, LoadFailedMessage)
		v.mu.Unlock()
		v.logger.Warn("failed to load messages",
			slog.String("paper_id", paperID),
			slog.String("error", err.Error()),
		)
		return err
	}

	v.paper = paper
	v.messages = messages
	v.state = StateReady
	v.mu.Unlock()

	v.messagesChanged()
	return nil
}

// Close closes the panel and runs the OnClose hook. In-flight loads and
// sends of the closed conversation are discarded.
func (v *ConversationView) Close() {
	v.mu.Lock()
	if v.state == StateClosed {
		v.mu.Unlock()
		return
	}
	paperID := v.paperID
	v.generation++
	v.state = StateClosed
	v.paperID = ""
	v.paper = nil
	v.messages = nil
	v.draft = ""
	v.pending = nil
	v.errMsg = ""
	hook := v.onClose
	v.mu.Unlock()

	if hook != nil {
		hook(paperID)
	}
}

// SelectFiles validates a selection and makes the accepted files the
// pending set. The first rejection becomes the error banner.
func (v *ConversationView) SelectFiles(files []attachment.File) attachment.Selection {
	sel := attachment.ValidateSelection(files)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.pending = append([]attachment.File(nil), sel.Accepted...)
	v.errMsg = sel.Message
	return sel
}

// RemovePending drops the pending attachment at index i
func (v *ConversationView) RemovePending(i int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if i < 0 || i >= len(v.pending) {
		return false
	}
	v.pending = append(v.pending[:i:i], v.pending[i+1:]...)
	return true
}

// SetDraft replaces the compose text
func (v *ConversationView) SetDraft(body string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draft = body
}

// Send posts the draft and pending attachments. Nothing is sent when both
// are empty. On failure the compose state is kept for a retry.
func (v *ConversationView) Send(ctx context.Context) (*models.ChatMessage, error) {
	v.mu.Lock()
	switch v.state {
	case StateReady:
	case StateSending:
		v.mu.Unlock()
		return nil, ErrSendInProgress
	default:
		v.mu.Unlock()
		return nil, ErrNotReady
	}

	body := strings.TrimSpace(v.draft)
	if body == "" && len(v.pending) == 0 {
		v.errMsg = EmptyComposeMessage
		v.mu.Unlock()
		return nil, ErrEmptyCompose
	}

	v.state = StateSending
	gen := v.generation
	paperID := v.paperID
	files := append([]attachment.File(nil), v.pending...)
	v.mu.Unlock()

	msg, err := v.api.SendMessage(ctx, paperID, body, files)

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return msg, ErrSuperseded
	}
	v.state = StateReady

	if err != nil {
		v.errMsg = ServerMessage(err, SendFailedMessage)
		v.mu.Unlock()
		return nil, err
	}

	v.messages = append(v.messages, *msg)
	v.draft = ""
	v.pending = nil
	v.errMsg = ""
	v.mu.Unlock()

	v.messagesChanged()
	return msg, nil
}

// DismissError clears the error banner
func (v *ConversationView) DismissError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errMsg = ""
}

// Error returns the error banner, empty when there is none
func (v *ConversationView) Error() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

// State returns the lifecycle state
func (v *ConversationView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// PaperID returns the open conversation's paper, empty when closed
func (v *ConversationView) PaperID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paperID
}

// Paper returns the header metadata, nil if it could not be loaded
func (v *ConversationView) Paper() *models.Paper {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paper
}

// Messages returns a copy of the conversation in server order
func (v *ConversationView) Messages() []models.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.ChatMessage(nil), v.messages...)
}

// Draft returns the compose text
func (v *ConversationView) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// Pending returns a copy of the pending attachments
func (v *ConversationView) Pending() []attachment.File {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]attachment.File(nil), v.pending...)
}

// EmptyState reports a loaded conversation without messages
func (v *ConversationView) EmptyState() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state != StateClosed && v.state != StateLoading && len(v.messages) == 0
}

// AttachmentURL returns the view or download URL of an attachment in the
// open conversation
func (v *ConversationView) AttachmentURL(messageID uint, index int, download bool) string {
	return v.api.AttachmentURL(v.PaperID(), messageID, index, download)
}

func (v *ConversationView) messagesChanged() {
	v.mu.Lock()
	hook := v.onMessagesChanged
	messages := append([]models.ChatMessage(nil), v.messages...)
	v.mu.Unlock()

	if hook != nil {
		hook(messages)
	}
}
