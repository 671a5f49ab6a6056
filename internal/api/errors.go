package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/p-arndt/leethack/internal/session"
)

// Error codes returned in API responses
const (
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeUnknownChallenge = "UNKNOWN_CHALLENGE"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeImageNotFound    = "IMAGE_NOT_FOUND"
	ErrCodeRuntimeError     = "RUNTIME_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string                 `json:"error_code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeAPIError writes a structured error response with appropriate HTTP status
func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr APIError
	statusCode := http.StatusInternalServerError

	switch {
	case errors.Is(err, session.ErrNotFound):
		apiErr = APIError{
			Code:    ErrCodeSessionNotFound,
			Message: err.Error(),
		}
		statusCode = http.StatusNotFound

	case errors.Is(err, session.ErrUnknownChallenge):
		apiErr = APIError{
			Code:    ErrCodeUnknownChallenge,
			Message: err.Error(),
		}
		statusCode = http.StatusBadRequest

	case errors.Is(err, session.ErrImageNotFound):
		apiErr = APIError{
			Code:    ErrCodeImageNotFound,
			Message: err.Error(),
		}
		statusCode = http.StatusServiceUnavailable

	case errors.Is(err, session.ErrRuntime):
		apiErr = APIError{
			Code:    ErrCodeRuntimeError,
			Message: err.Error(),
		}
		statusCode = http.StatusBadGateway

	default:
		apiErr = APIError{
			Code:    ErrCodeInternalError,
			Message: err.Error(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErr)
}

// writeValidationError writes a 400 Bad Request with validation details
func writeValidationError(w http.ResponseWriter, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	})
}
