package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors covering the registration error taxonomy.
var (
	ErrMissingFields     = New("MISSING_FIELDS", http.StatusBadRequest, "name and national id are required")
	ErrNoPhotos          = New("NO_PHOTOS", http.StatusBadRequest, "at least one photo is required")
	ErrMissingExpiry     = New("MISSING_EXPIRY", http.StatusBadRequest, "an expiry date and time is required")
	ErrInvalidExpiry     = New("INVALID_EXPIRY", http.StatusBadRequest, "invalid expiry date format")
	ErrInvalidPhoto      = New("INVALID_PHOTO", http.StatusBadRequest, "photo payload could not be decoded")
	ErrDuplicateIdentity = New("DUPLICATE_IDENTITY", http.StatusConflict, "national id already registered")
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "record not found")
	ErrInvalidKind       = New("INVALID_KIND", http.StatusBadRequest, "record kind must be resident or visit")
	ErrStorageIO         = New("STORAGE_IO", http.StatusInternalServerError, "storage operation failed")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrCacheMiss         = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error. Unknown errors fall back
// to the internal catch-all while staying reachable through Unwrap.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Is reports whether err carries the same taxonomy code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == target.Code
	}
	return false
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
