package response

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/palms-parking/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	State   string            `json:"state,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// WriteFieldErrors reports a form that failed validation, one message per
// field.
func WriteFieldErrors(w http.ResponseWriter, message string, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: CodeInvalidInput, Fields: fields})
}

// Common error codes
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeInvalidWindow  = "INVALID_WINDOW"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeAccessDenied   = "ACCESS_DENIED"
	CodeIncorrectPin   = "INCORRECT_PIN"
	CodeNotVerified    = "PIN_NOT_VERIFIED"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRemote         = "REMOTE_ERROR"
	CodeInternalError  = "INTERNAL_ERROR"
	CodePayloadTooBig  = "PAYLOAD_TOO_LARGE"
	CodeSessionInvalid = "SESSION_INVALID"
	CodeRateLimit      = "RATE_LIMITED"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

// Unauthorized tells the browser to show the access screen. state is the
// gate state that caused it.
func Unauthorized(w http.ResponseWriter, message, state string) {
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: message, Code: CodeSessionInvalid, State: state})
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

func BadGateway(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, message, CodeRemote)
}
