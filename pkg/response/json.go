package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fkhayef/bankroll/internal/apperr"
)

// APIResponse is the standard response wrapper
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError represents an error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta contains pagination and other metadata
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// JSON sends a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(response)
}

// JSONWithMeta sends a JSON response with pagination metadata
func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	}

	json.NewEncoder(w).Encode(response)
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "FORBIDDEN", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

func Gone(w http.ResponseWriter, message string) {
	Error(w, http.StatusGone, "GONE", message)
}

// FromError writes the response matching err's kind. Errors without a known
// kind are reported as internal errors with the fallback message so driver
// details never reach the client.
func FromError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, apperr.ErrInvalidPassword):
		Error(w, http.StatusUnauthorized, "INVALID_PASSWORD", err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		Forbidden(w, err.Error())
	case errors.Is(err, apperr.ErrOwnerProtected):
		Error(w, http.StatusForbidden, "OWNER_PROTECTED", err.Error())
	case errors.Is(err, apperr.ErrIdentityMismatch):
		Error(w, http.StatusForbidden, "IDENTITY_MISMATCH", err.Error())
	case errors.Is(err, apperr.ErrExpired):
		Gone(w, err.Error())
	case errors.Is(err, apperr.ErrAlreadyResolved):
		Error(w, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
	case errors.Is(err, apperr.ErrAlreadyMember),
		errors.Is(err, apperr.ErrAlreadyInvited),
		errors.Is(err, apperr.ErrAlreadyRequested),
		errors.Is(err, apperr.ErrAlreadyExists):
		Conflict(w, err.Error())
	case errors.Is(err, apperr.ErrInvalidIdentifier), errors.Is(err, apperr.ErrInvalidInput):
		BadRequest(w, err.Error())
	default:
		InternalError(w, fallback)
	}
}
