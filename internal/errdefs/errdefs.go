// Package errdefs defines the categorized error taxonomy shared by every
// subsystem. Tool handlers render these as "<category>: <detail>" strings;
// everything below the tool boundary keeps them as wrapped errors.
package errdefs

import (
	"errors"
	"fmt"
)

// Category identifies the failure class of a coordination error.
type Category string

const (
	CategoryNotFound           Category = "NotFound"
	CategoryConflict           Category = "Conflict"
	CategoryValidation         Category = "Validation"
	CategoryPermission         Category = "Permission"
	CategoryPreconditionFailed Category = "PreconditionFailed"
	CategoryUnavailable        Category = "Unavailable"
	CategoryCorrupted          Category = "Corrupted"
)

// Error is a categorized error. Detail is the human-readable message;
// Cause (optional) preserves the underlying failure for errors.Is/As.
type Error struct {
	Category Category
	Detail   string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Detail: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error   { return newf(CategoryNotFound, format, args...) }
func Conflictf(format string, args ...any) *Error   { return newf(CategoryConflict, format, args...) }
func Validationf(format string, args ...any) *Error { return newf(CategoryValidation, format, args...) }
func Permissionf(format string, args ...any) *Error { return newf(CategoryPermission, format, args...) }
func Preconditionf(format string, args ...any) *Error {
	return newf(CategoryPreconditionFailed, format, args...)
}
func Unavailablef(format string, args ...any) *Error {
	return newf(CategoryUnavailable, format, args...)
}

// Corrupted wraps a read-time schema or decode failure.
func Corrupted(path string, cause error) *Error {
	return &Error{Category: CategoryCorrupted, Detail: fmt.Sprintf("%s: %v", path, cause), Cause: cause}
}

// CategoryOf returns the category of err, or "" for uncategorized errors.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

func IsNotFound(err error) bool     { return CategoryOf(err) == CategoryNotFound }
func IsConflict(err error) bool     { return CategoryOf(err) == CategoryConflict }
func IsValidation(err error) bool   { return CategoryOf(err) == CategoryValidation }
func IsPermission(err error) bool   { return CategoryOf(err) == CategoryPermission }
func IsPrecondition(err error) bool { return CategoryOf(err) == CategoryPreconditionFailed }
func IsUnavailable(err error) bool  { return CategoryOf(err) == CategoryUnavailable }
func IsCorrupted(err error) bool    { return CategoryOf(err) == CategoryCorrupted }
