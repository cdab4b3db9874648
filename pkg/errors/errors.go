package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Standard error types
var (
	ErrNotFound      = errors.New("resource not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrBadRequest    = errors.New("bad request")
	ErrConflict      = errors.New("resource conflict")
	ErrInternal      = errors.New("internal server error")
	ErrValidation    = errors.New("validation error")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("invalid token")
	ErrConfiguration = errors.New("configuration error")
	ErrFileFormat    = errors.New("file format error")
	ErrCommit        = errors.New("commit error")
	ErrConcurrency   = errors.New("concurrency conflict")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an AppError
func (e *AppError) WithDetail(key, value string) *AppError {
	return e.WithDetails(map[string]string{key: value})
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       "TOKEN_EXPIRED",
		Message:    "token has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		StatusCode: http.StatusUnauthorized,
	}
}

// Inventory lifecycle errors

// Configuration reports an expiry category set that cannot be saved.
// Details are keyed by "<category>.<field>".
func Configuration(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrConfiguration,
		Code:       "CONFIGURATION_ERROR",
		Message:    "expiry category configuration is invalid",
		StatusCode: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// FileFormat reports an upload that could not be read as a catalog.
func FileFormat(fileName, reason string) *AppError {
	return &AppError{
		Err:        ErrFileFormat,
		Code:       "FILE_FORMAT_ERROR",
		Message:    fmt.Sprintf("catalog file %q could not be read: %s", fileName, reason),
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"file_name": fileName,
			"reason":    reason,
		},
	}
}

// Commit reports a failed catalog commit. The scope was rolled back.
func Commit(err error, fileName string, rowsAttempted int) *AppError {
	if err == nil {
		err = errors.New("commit failed")
	}
	reason := err.Error()
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrCommit, err),
		Code:       "COMMIT_ERROR",
		Message:    "catalog commit failed and was rolled back",
		StatusCode: http.StatusInternalServerError,
		Details: map[string]string{
			"file_name":      fileName,
			"rows_attempted": strconv.Itoa(rowsAttempted),
			"reason":         reason,
		},
	}
}

// CommitRejected reports a commit refused before anything was written.
func CommitRejected(fileName, reason string) *AppError {
	return &AppError{
		Err:        ErrCommit,
		Code:       "COMMIT_ERROR",
		Message:    reason,
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"file_name": fileName,
			"reason":    reason,
		},
	}
}

// ConcurrencyConflict reports a scope already held by another import.
func ConcurrencyConflict(scope string, retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrConcurrency,
		Code:       "CONCURRENCY_CONFLICT",
		Message:    fmt.Sprintf("another import is in progress for %s, retry later", scope),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"scope":               scope,
			"retry_after_seconds": strconv.Itoa(int(retryAfter.Seconds())),
		},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code returns the AppError code of err, or an empty string.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
