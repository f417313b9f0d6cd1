package utils

import (
	"fmt"
	"net/http"
)

// AppError is an error with the HTTP status and client message it maps to.
type AppError struct {
	Status  int
	Message string
	Details []string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// BadRequest reports invalid input.
func BadRequest(message string, details ...string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: message, Details: details}
}

// NotFound reports a missing resource.
func NotFound(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: message}
}

// Forbidden reports an action the caller may not perform.
func Forbidden(message string) *AppError {
	return &AppError{Status: http.StatusForbidden, Message: message}
}

// Unauthorized reports missing or wrong credentials.
func Unauthorized(message string) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Message: message}
}

// Internal wraps an unexpected failure behind a generic client message.
func Internal(message string, err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: message, Err: err}
}
