package handlers

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-confchat/internal/api/middleware"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	apperrors "github.com/welldanyogia/webrana-confchat/internal/errors"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
	"github.com/welldanyogia/webrana-confchat/internal/services"
	"github.com/welldanyogia/webrana-confchat/internal/storage"
)

// Multipart field names of a send request
const (
	FormFieldMessage     = "message"
	FormFieldAttachments = "attachments"
)

// multipartMemory is how much of a send request is buffered in memory;
// the rest spills to temporary files
const multipartMemory = 8 << 20

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	chat      services.ChatService
	secLogger *logger.SecurityLogger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(chat services.ChatService, secLogger *logger.SecurityLogger) *ChatHandler {
	return &ChatHandler{chat: chat, secLogger: secLogger}
}

// UnreadCounts handles GET /api/chat/unread-counts
func (h *ChatHandler) UnreadCounts(c echo.Context) error {
	entries, total, err := h.chat.UnreadSummary(c.Request().Context(), middleware.Viewer(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.UnreadSummary(c, entries, total)
}

// ListMessages handles GET /api/chat/papers/:paperId/messages. Fetching the
// list acknowledges every message in it as read.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	paperID := c.Param("paperId")

	messages, err := h.chat.ListMessages(c.Request().Context(), middleware.Viewer(c), paperID)
	if err != nil {
		return h.fail(c, paperID, err)
	}
	return response.Messages(c, messages)
}

// SendMessage handles POST /api/chat/papers/:paperId/messages
func (h *ChatHandler) SendMessage(c echo.Context) error {
	paperID := c.Param("paperId")

	body, files, cleanup, err := readSendForm(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return response.BadRequest(c, "invalid multipart form")
	}
	defer cleanup()

	uploads := make([]services.Upload, len(files))
	for i, fh := range files {
		uploads[i] = uploadFromHeader(fh)
	}

	msg, err := h.chat.SendMessage(c.Request().Context(), middleware.Viewer(c), paperID, body, uploads)
	if err != nil {
		var fe *attachment.FileError
		if errors.As(err, &fe) {
			h.secLogger.BlockedFileUpload(c.RealIP(), viewerID(c), fe.FileName, fe.Err.Error())
		}
		return h.fail(c, paperID, err)
	}
	return response.Created(c, msg)
}

// ViewAttachment handles GET .../attachments/:index/view
func (h *ChatHandler) ViewAttachment(c echo.Context) error {
	return h.serveAttachment(c, "inline")
}

// DownloadAttachment handles GET .../attachments/:index/download
func (h *ChatHandler) DownloadAttachment(c echo.Context) error {
	return h.serveAttachment(c, "attachment")
}

func (h *ChatHandler) serveAttachment(c echo.Context, disposition string) error {
	paperID := c.Param("paperId")

	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 32)
	if err != nil {
		return response.NotFound(c, apperrors.ErrAttachmentNotFound.Error())
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return response.NotFound(c, apperrors.ErrAttachmentNotFound.Error())
	}

	att, content, err := h.chat.OpenAttachment(c.Request().Context(), middleware.Viewer(c), paperID, uint(messageID), index)
	if err != nil {
		return h.fail(c, paperID, err)
	}
	defer content.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{"filename": att.FileName}))
	if att.FileSize > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(att.FileSize, 10))
	}

	return c.Stream(http.StatusOK, att.MimeType, content)
}

// fail renders err, recording attempts to reach conversations the viewer
// may not see
func (h *ChatHandler) fail(c echo.Context, paperID string, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrForbidden):
		h.secLogger.AccessDenied(c.RealIP(), viewerID(c), paperID)
	case errors.Is(err, storage.ErrPathTraversal):
		h.secLogger.PathTraversalAttempt(c.RealIP(), viewerID(c), c.Request().URL.Path)
	}
	return response.Error(c, err)
}

// readSendForm extracts the text body and attached files. Plain form posts
// without files are accepted too.
func readSendForm(c echo.Context) (string, []*multipart.FileHeader, func(), error) {
	req := c.Request()

	err := req.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return c.FormValue(FormFieldMessage), nil, func() {}, nil
	}
	if err != nil {
		return "", nil, func() {}, err
	}

	form := req.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }

	var body string
	if values := form.Value[FormFieldMessage]; len(values) > 0 {
		body = values[0]
	}
	return body, form.File[FormFieldAttachments], cleanup, nil
}

func uploadFromHeader(fh *multipart.FileHeader) services.Upload {
	return services.Upload{
		FileName: fh.Filename,
		MIMEType: fh.Header.Get(echo.HeaderContentType),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func viewerID(c echo.Context) string {
	if viewer := middleware.Viewer(c); viewer != nil {
		return viewer.ID
	}
	return ""
}
