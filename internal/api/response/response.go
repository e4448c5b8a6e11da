package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/welldanyogia/webrana-confchat/internal/errors"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// UnreadSummaryResponse is returned by GET /api/chat/unread-counts
type UnreadSummaryResponse struct {
	Success       bool                        `json:"success"`
	UnreadSummary []models.UnreadSummaryEntry `json:"unreadSummary"`
	TotalUnread   int64                       `json:"totalUnread"`
}

// PaperResponse is returned by GET /api/papers/:paperId
type PaperResponse struct {
	Success bool          `json:"success"`
	Paper   *models.Paper `json:"paper"`
}

// MessagesResponse is returned by GET /api/chat/papers/:paperId/messages
type MessagesResponse struct {
	Success  bool                 `json:"success"`
	Messages []models.ChatMessage `json:"messages"`
}

// ChatMessageResponse is returned by POST /api/chat/papers/:paperId/messages
type ChatMessageResponse struct {
	Success     bool                `json:"success"`
	ChatMessage *models.ChatMessage `json:"chatMessage"`
}

// UnreadSummary returns the viewer's unread counts
func UnreadSummary(c echo.Context, entries []models.UnreadSummaryEntry, total int64) error {
	if entries == nil {
		entries = []models.UnreadSummaryEntry{}
	}
	return c.JSON(http.StatusOK, UnreadSummaryResponse{
		Success:       true,
		UnreadSummary: entries,
		TotalUnread:   total,
	})
}

// Paper returns paper metadata
func Paper(c echo.Context, paper *models.Paper) error {
	return c.JSON(http.StatusOK, PaperResponse{Success: true, Paper: paper})
}

// Messages returns a conversation
func Messages(c echo.Context, messages []models.ChatMessage) error {
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return c.JSON(http.StatusOK, MessagesResponse{Success: true, Messages: messages})
}

// Created returns a 201 Created response carrying the new message
func Created(c echo.Context, message *models.ChatMessage) error {
	return c.JSON(http.StatusCreated, ChatMessageResponse{Success: true, ChatMessage: message})
}

// Error returns an error response with appropriate status code. Internal
// errors are not echoed to the client.
func Error(c echo.Context, err error) error {
	code := apperrors.GetErrorCode(err)
	status := HTTPStatus(code)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = apperrors.ErrInternal.Error()
	}

	return c.JSON(status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// BadRequest returns a 400 Bad Request response
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    apperrors.CodeInvalidInput,
	})
}

// NotFound returns a 404 Not Found response
func NotFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    apperrors.CodeNotFound,
	})
}

// Unauthorized returns a 401 Unauthorized response
func Unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    apperrors.CodeUnauthorized,
	})
}

// TooManyRequests returns a 429 Too Many Requests response
func TooManyRequests(c echo.Context, message string) error {
	return c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    apperrors.CodeRateLimited,
	})
}

// InternalError returns a 500 Internal Server Error response
func InternalError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    apperrors.CodeInternalError,
	})
}

// HTTPErrorHandler renders errors that escape handlers (unknown routes,
// body limit, bind failures) in the API error envelope
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = Error(c, err)
		return
	}

	message := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		message = m
	}

	resp := ErrorResponse{Success: false, Error: message, Code: codeForStatus(he.Code)}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, resp)
}

// HTTPStatus maps error codes to HTTP status codes
func HTTPStatus(code string) int {
	switch code {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeInvalidInput,
		apperrors.CodeEmptyMessage,
		apperrors.CodeTooManyFiles,
		apperrors.CodeFileTypeBlocked,
		apperrors.CodeFileTooLarge:
		return http.StatusBadRequest
	case apperrors.CodeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// codeForStatus is the inverse of HTTPStatus for errors raised by echo
func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperrors.CodeNotFound
	case http.StatusBadRequest:
		return apperrors.CodeInvalidInput
	case http.StatusRequestEntityTooLarge:
		return apperrors.CodeRequestTooLarge
	case http.StatusUnauthorized:
		return apperrors.CodeUnauthorized
	case http.StatusForbidden:
		return apperrors.CodeForbidden
	case http.StatusTooManyRequests:
		return apperrors.CodeRateLimited
	default:
		return apperrors.CodeInternalError
	}
}
