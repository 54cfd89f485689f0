// errors.go - Structured error handling for API responses
package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/session"
	"github.com/olx-analyzer/backend/internal/storage"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewFormatError creates a 400 error for input that is not the expected
// ASPEN document.
func NewFormatError(cause error) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "FORMAT_ERROR",
		Message: cause.Error(),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// mapError turns a domain error into an APIError. what names the resource
// for not-found messages.
func mapError(err error, what, id string) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, models.ErrInvalidArgument):
		return NewBadRequestError(err.Error(), nil)
	case errors.Is(err, models.ErrFormat):
		return NewFormatError(err)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, session.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return NewNotFoundError(what, id)
	case errors.Is(err, session.ErrNotReady):
		return NewConflictError(fmt.Sprintf("%s %s is not loaded yet", what, id))
	case errors.Is(err, session.ErrWrongKind):
		return NewConflictError(err.Error())
	}
	return NewInternalError("request failed", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = mapError(err, "resource", c.Request().URL.Path)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		glog.Errorf("[API] %s %s: %v (%s)", c.Request().Method, c.Request().URL.Path, apiErr, apiErr.Details)
	}
	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		glog.Warningf("[API] writing error response: %v", err)
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
