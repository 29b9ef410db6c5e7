package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows how it should be rendered over HTTP.
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails attaches client visible details.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Wrap records the underlying error. It is logged but not sent to clients.
func (e *AppError) Wrap(err error) *AppError {
	e.cause = err
	return e
}

// NewError creates a new application error.
func NewError(statusCode int, code, message string) *AppError {
	return &AppError{StatusCode: statusCode, Code: code, Message: message}
}

func NewBadRequestError(code, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

func NewUnauthorizedError(code, message string) *AppError {
	return NewError(http.StatusUnauthorized, code, message)
}

func NewForbiddenError(code, message string) *AppError {
	return NewError(http.StatusForbidden, code, message)
}

func NewNotFoundError(code, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

func NewConflictError(code, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

func NewTooManyRequestsError(code, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

func NewInternalServerError(code, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

func NewServiceUnavailableError(code, message string) *AppError {
	return NewError(http.StatusServiceUnavailable, code, message)
}

func NewBadGatewayError(code, message string) *AppError {
	return NewError(http.StatusBadGateway, code, message)
}

// FromError converts any error into an AppError. Unknown errors become
// a 500 with a generic code.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewInternalServerError("INTERNAL_ERROR", "An unexpected error occurred").Wrap(err)
}

// StatusCode returns the HTTP status carried by err, or 500.
func StatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}
