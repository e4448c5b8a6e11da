// Package errors holds the chat service's domain errors and the API codes
// they map to.
package errors

import (
	"errors"

	"github.com/welldanyogia/webrana-confchat/internal/attachment"
)

// Domain errors
var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrPaperNotFound covers both missing papers and papers the viewer may
	// not see, so the two are indistinguishable to clients
	ErrPaperNotFound      = errors.New("paper not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrUserNotFound       = errors.New("user not found")

	// ErrEmptyMessage rejects a send with neither text nor attachments
	ErrEmptyMessage   = errors.New("message must contain text or at least one attachment")
	ErrMessageTooLong = errors.New("message is too long")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal server error")
)

// Error codes for API responses
const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeEmptyMessage    = "EMPTY_MESSAGE"
	CodeTooManyFiles    = "TOO_MANY_ATTACHMENTS"
	CodeFileTypeBlocked = "ATTACHMENT_TYPE_NOT_ALLOWED"
	CodeFileTooLarge    = "ATTACHMENT_TOO_LARGE"
	CodeRequestTooLarge = "REQUEST_TOO_LARGE"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// AppError attaches a client-facing message and code to an error
type AppError struct {
	Err     error
	Message string
	Code    string
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{Err: err, Message: message, Code: code}
}

// codes is checked in order; the first sentinel found in the chain wins
var codes = []struct {
	err  error
	code string
}{
	{ErrPaperNotFound, CodeNotFound},
	{ErrAttachmentNotFound, CodeNotFound},
	{ErrUserNotFound, CodeNotFound},
	{ErrEmptyMessage, CodeEmptyMessage},
	{attachment.ErrTooManyFiles, CodeTooManyFiles},
	{attachment.ErrTypeNotAllowed, CodeFileTypeBlocked},
	{attachment.ErrContentMismatch, CodeFileTypeBlocked},
	{attachment.ErrFileTooLarge, CodeFileTooLarge},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrMessageTooLong, CodeInvalidInput},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrForbidden, CodeForbidden},
}

// GetErrorCode returns the API code for err. An AppError's own code takes
// precedence; anything unrecognised is internal.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternalError
}
