package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// ModelErrorMessage describes a failed language model invocation.
	ModelErrorMessage = "language model request failed"
	// ConfigErrorMessage describes invalid or missing configuration.
	ConfigErrorMessage = "invalid configuration"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapModel wraps a chat model or graph invocation failure.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, ModelErrorMessage)
}

// Config reports a configuration problem detected at startup.
func Config(format string, args ...any) error {
	return New(fmt.Errorf(format, args...), http.StatusInternalServerError, ConfigErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
