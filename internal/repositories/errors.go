package repositories

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrStaleWrite is returned when a conditional attempt write finds the
	// attempt no longer in progress.
	ErrStaleWrite = errors.New("attempt is no longer in progress")

	ErrNotFound = errors.New("record not found")
)

// IsNotFoundError reports whether err means the record does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound)
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
