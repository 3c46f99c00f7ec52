// Package httputil provides HTTP utility functions for request and response handling.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/userevents/internal/errors"
)

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// errorMapping is the HTTP representation of an error category. When message is empty
// the error text itself is returned to the caller.
type errorMapping struct {
	statusCode int
	code       string
	message    string
}

var errorMappings = map[error]errorMapping{
	apperrors.ErrNotFound:     {http.StatusNotFound, "not_found", "The requested resource was not found"},
	apperrors.ErrConflict:     {http.StatusConflict, "conflict", ""},
	apperrors.ErrInvalidInput: {http.StatusUnprocessableEntity, "invalid_input", ""},
	apperrors.ErrUnavailable:  {http.StatusServiceUnavailable, "unavailable", "A dependency is unavailable, try again later"},
}

var internalError = errorMapping{
	statusCode: http.StatusInternalServerError,
	code:       "internal_error",
	message:    "An internal error occurred",
}

// mapError returns the status code and body for err. Unknown errors never leak details.
func mapError(err error) (int, ErrorResponse) {
	mapping, ok := errorMappings[apperrors.Kind(err)]
	if !ok {
		mapping = internalError
	}

	message := mapping.message
	if message == "" {
		message = err.Error()
	}

	return mapping.statusCode, ErrorResponse{Error: mapping.code, Message: message}
}

// HandleErrorGin maps domain errors to HTTP status codes and writes a JSON response.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	statusCode, response := mapError(err)

	if logger != nil {
		level := slog.LevelWarn
		if statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c, level, "request failed",
			slog.Int("status_code", statusCode),
			slog.String("error_code", response.Error),
			slog.Any("error", err),
		)
	}

	c.JSON(statusCode, response)
}

// HandleBadRequestGin writes a 400 Bad Request response for malformed parameters.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: err.Error(),
	})
}
