// Package apperrors defines the error taxonomy shared across the oracle
// engine. Every error carries a stable machine-readable category so callers
// can map failures without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Category is the stable machine-readable classification of an error.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryPermission     Category = "permission"
	CategoryNotFound       Category = "not_found"
	CategoryConflict       Category = "conflict"
	CategoryInfrastructure Category = "infrastructure"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateImport  = errors.New("identical file already imported")
	ErrUnsupportedMode  = errors.New("import mode not supported")
	ErrInvalidRole      = errors.New("invalid role")
)

// Error is a categorized error with a human-readable message and optional
// detail lines (used by import validation to carry the error list).
type Error struct {
	Category Category
	Message  string
	Details  []string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return sentinelFor(e.Category)
}

// sentinelFor maps a category to its sentinel so errors.Is keeps working on
// categorized errors.
func sentinelFor(c Category) error {
	switch c {
	case CategoryValidation:
		return ErrValidation
	case CategoryPermission:
		return ErrPermissionDenied
	case CategoryNotFound:
		return ErrNotFound
	case CategoryConflict:
		return ErrConflict
	default:
		return nil
	}
}

// Validation creates a validation error with optional detail lines.
func Validation(msg string, details ...string) *Error {
	return &Error{Category: CategoryValidation, Message: msg, Details: details}
}

// Permission creates a permission error.
func Permission(msg string) *Error {
	return &Error{Category: CategoryPermission, Message: msg}
}

// NotFound creates a not-found error.
func NotFound(msg string) *Error {
	return &Error{Category: CategoryNotFound, Message: msg}
}

// Conflict creates a conflict error with an optional cause (e.g. the
// duplicate-import sentinel).
func Conflict(msg string, cause error) *Error {
	return &Error{Category: CategoryConflict, Message: msg, cause: cause}
}

// Infrastructure wraps a storage or transaction failure.
func Infrastructure(msg string, cause error) *Error {
	return &Error{Category: CategoryInfrastructure, Message: msg, cause: cause}
}

// CategoryOf returns the category of err, or CategoryInfrastructure when the
// error is not categorized.
func CategoryOf(err error) Category {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicateImport):
		return CategoryConflict
	case errors.Is(err, ErrPermissionDenied):
		return CategoryPermission
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedMode):
		return CategoryValidation
	default:
		return CategoryInfrastructure
	}
}
