package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
)

func TestAppError(t *testing.T) {
	withMessage := NewAppError(ErrPaperNotFound, "no such paper", CodeNotFound)
	assert.Equal(t, "no such paper", withMessage.Error())
	assert.ErrorIs(t, withMessage, ErrPaperNotFound)

	bare := NewAppError(ErrUserNotFound, "", CodeNotFound)
	assert.Equal(t, "user not found", bare.Error())

	var target *AppError
	assert.True(t, errors.As(fmt.Errorf("send: %w", withMessage), &target))
	assert.Equal(t, CodeNotFound, target.Code)
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"hidden paper", ErrPaperNotFound, CodeNotFound},
		{"wrapped missing attachment", fmt.Errorf("open: %w", ErrAttachmentNotFound), CodeNotFound},
		{"unknown user", ErrUserNotFound, CodeNotFound},
		{"empty send", ErrEmptyMessage, CodeEmptyMessage},
		{"bad input", ErrInvalidInput, CodeInvalidInput},
		{"long body", fmt.Errorf("send: %w", ErrMessageTooLong), CodeInvalidInput},
		{"too many files", fmt.Errorf("send: %w", attachment.ErrTooManyFiles), CodeTooManyFiles},
		{"executable", &attachment.FileError{FileName: "rebuttal.exe", Err: attachment.ErrTypeNotAllowed}, CodeFileTypeBlocked},
		{"renamed binary", &attachment.FileError{FileName: "figure.png", Err: attachment.ErrContentMismatch}, CodeFileTypeBlocked},
		{"oversize scan", &attachment.FileError{FileName: "scan.png", Err: attachment.ErrFileTooLarge}, CodeFileTooLarge},
		{"no token", ErrUnauthorized, CodeUnauthorized},
		{"not a participant", ErrForbidden, CodeForbidden},
		{"explicit code wins", NewAppError(ErrInternal, "slow down", CodeRateLimited), CodeRateLimited},
		{"empty explicit code falls through", NewAppError(ErrForbidden, "nope", ""), CodeForbidden},
		{"database failure", errors.New("connection reset"), CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCode(tt.err))
		})
	}
}
