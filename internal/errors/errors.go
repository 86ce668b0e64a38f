package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound           = newInternal(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists      = newInternal(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict    = newInternal(ErrCodeVersionConflict, "version conflict")
	ErrValidation         = newInternal(ErrCodeValidation, "validation error")
	ErrInvalidOperation   = newInternal(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied   = newInternal(ErrCodePermissionDenied, "permission denied")
	ErrScope              = newInternal(ErrCodeScope, "tenant scope error")
	ErrSequenceExhausted  = newInternal(ErrCodeSequenceExhausted, "sequence exhausted")
	ErrSequenceContention = newInternal(ErrCodeSequenceContention, "sequence contention")
	ErrTransient          = newInternal(ErrCodeTransient, "transient error")
	ErrDatabase           = newInternal(ErrCodeDatabase, "database error")
	ErrSystem             = newInternal(ErrCodeSystemError, "system error")

	// maps errors to http status codes for the controller layer
	statusCodeMap = map[error]int{
		ErrNotFound:           http.StatusNotFound,
		ErrAlreadyExists:      http.StatusConflict,
		ErrVersionConflict:    http.StatusConflict,
		ErrValidation:         http.StatusBadRequest,
		ErrInvalidOperation:   http.StatusBadRequest,
		ErrPermissionDenied:   http.StatusForbidden,
		ErrScope:              http.StatusInternalServerError,
		ErrSequenceExhausted:  http.StatusConflict,
		ErrSequenceContention: http.StatusServiceUnavailable,
		ErrTransient:          http.StatusServiceUnavailable,
		ErrDatabase:           http.StatusInternalServerError,
		ErrSystem:             http.StatusInternalServerError,
	}
)

const (
	ErrCodeSystemError        = "system_error"
	ErrCodeNotFound           = "not_found"
	ErrCodeAlreadyExists      = "already_exists"
	ErrCodeVersionConflict    = "version_conflict"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidOperation   = "invalid_operation"
	ErrCodePermissionDenied   = "permission_denied"
	ErrCodeScope              = "scope_error"
	ErrCodeSequenceExhausted  = "sequence_exhausted"
	ErrCodeSequenceContention = "sequence_contention"
	ErrCodeTransient          = "transient_error"
	ErrCodeDatabase           = "database_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func newInternal(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Code returns the machine-readable code of the sentinel the error is marked
// with, falling back to the system error code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for sentinel := range statusCodeMap {
		if errors.Is(err, sentinel) {
			return sentinel.(*InternalError).Code
		}
	}
	return ErrCodeSystemError
}

// Hint returns the user-facing hint attached to the error, if any.
func Hint(err error) string {
	return errors.FlattenHints(err)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is a version conflict error
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsScope checks if an error is a tenant scope error
func IsScope(err error) bool {
	return errors.Is(err, ErrScope)
}

// IsSequenceExhausted checks if an error is a sequence exhaustion error
func IsSequenceExhausted(err error) bool {
	return errors.Is(err, ErrSequenceExhausted)
}

// IsSequenceContention checks if an error is a sequence contention error
func IsSequenceContention(err error) bool {
	return errors.Is(err, ErrSequenceContention)
}

// IsTransient checks if an error is retryable by the caller
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
