package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Repository errors. Callers match them with errors.Is.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrInvalidInput   = errors.New("invalid input")
)

// isDuplicateKeyError reports a unique constraint violation on either
// PostgreSQL (SQLSTATE 23505) or SQLite
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint")
}

// lookupError maps a failed single-row lookup to ErrNotFound or wraps it
// with what was being looked up
func lookupError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
