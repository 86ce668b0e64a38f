package service

import (
	ierr "github.com/bizcore/bizcore/internal/errors"
)

// ErrorDetail is the caller-facing error payload of a failed operation
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the uniform envelope every service operation returns to the
// controller layer. Errors raised inside an operation never escape as Go
// errors past the executor; they surface here instead.
type Result[T any] struct {
	Success bool         `json:"success"`
	Data    T            `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`

	// err keeps the underlying error for in-process propagation (rollback
	// decisions, retry classification); it is never serialized.
	err error
}

// Ok wraps a successful payload
func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail wraps an error into a failure envelope
func Fail[T any](err error) Result[T] {
	message := ierr.Hint(err)
	if message == "" {
		message = err.Error()
	}
	return Result[T]{
		Success: false,
		Error: &ErrorDetail{
			Code:    ierr.Code(err),
			Message: message,
		},
		err: err,
	}
}

// Err returns the underlying error of a failed result, nil otherwise
func (r Result[T]) Err() error {
	return r.err
}
