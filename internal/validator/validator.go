// Package validator provides input validation and sanitization for chat
// requests.
package validator

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Validation errors
var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrInvalidID    = errors.New("invalid identifier")
	ErrInputTooLong = errors.New("input exceeds maximum length")
	ErrEmptyInput   = errors.New("input cannot be empty")
)

// Length limits, counted in runes
const (
	MaxMessageLength  = 10000
	maxEmailLength    = 254
	maxFilenameLength = 255
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEmail checks a bare participant address after trimming and
// lowering it. Display-name forms like "Carol <carol@uni.edu>" are rejected.
func ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case email == "":
		return ErrEmptyInput
	case utf8.RuneCountInString(email) > maxEmailLength:
		return ErrInputTooLong
	}

	if err := validate.Var(email, "email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateID checks that a paper or user identifier is a UUID
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyInput
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

// SanitizeMessageBody normalizes line endings, strips control characters
// other than newline and tab and trims surrounding whitespace. An empty
// result is allowed; the caller decides whether attachments make up for it.
func SanitizeMessageBody(body string) (string, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.TrimSpace(stripControl(body, "\n\t"))

	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", ErrInputTooLong
	}
	return body, nil
}

// SanitizeFilename turns an uploaded file name into a display name that
// cannot address a directory. Empty names become "unnamed".
func SanitizeFilename(filename string) string {
	filename = strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(filename)
	filename = truncate(strings.TrimSpace(stripControl(filename, "")), maxFilenameLength)

	if filename == "" {
		return "unnamed"
	}
	return filename
}

// SanitizeString strips control characters and surrounding whitespace and
// truncates to maxLength runes. A maxLength of zero means no limit.
func SanitizeString(input string, maxLength int) string {
	return truncate(strings.TrimSpace(stripControl(input, "")), maxLength)
}

// stripControl drops ASCII control characters except those in keep
func stripControl(s, keep string) string {
	return strings.Map(func(r rune) rune {
		if (r < 32 || r == 127) && !strings.ContainsRune(keep, r) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	return string([]rune(s)[:maxLength])
}
