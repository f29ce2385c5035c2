// Package response provides utilities for sending consistent HTTP responses.
// It includes helpers for JSON responses and standardized error responses.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/depotsync/internal/apperrors"
)

// ErrorResponse represents a structured error response returned by the API.
// The Details field is optional and can contain additional context about the error.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Sets the Content-Type header to application/json and writes the status code.
// If data is nil, only the status code is sent (useful for 204 No Content).
// Logs encoding errors but does not fail the response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// RespondError sends a structured error response with the given status code.
// The message should be a user-friendly error description.
// The details parameter can be an error string, additional context, or nil.
//
// Example:
//
//	response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
//	response.RespondError(w, http.StatusNotFound, "resource not found", "")
func RespondError(w http.ResponseWriter, status int, message string, details interface{}) {
	response := ErrorResponse{
		Error:   message,
		Details: details,
	}
	RespondJSON(w, status, response)
}

// statusKinds lists the service errors that are not server faults.
var statusKinds = []struct {
	kind   error
	status int
}{
	{apperrors.ErrIngestionInProgress, http.StatusConflict},
	{apperrors.ErrDividendNotFound, http.StatusNotFound},
	{apperrors.ErrNoIngestionRun, http.StatusNotFound},
	{apperrors.ErrAccountNotFound, http.StatusBadRequest},
	{apperrors.ErrInvalidAccount, http.StatusBadRequest},
	{apperrors.ErrInvalidDateRange, http.StatusBadRequest},
	{apperrors.ErrInvalidDate, http.StatusBadRequest},
	{apperrors.ErrInvalidUUID, http.StatusBadRequest},
	{apperrors.ErrInvalidAssetIdentifier, http.StatusBadRequest},
}

// RespondServiceError maps err from a service call to a status and writes it.
// Conflicts and missing resources are reported by their kind alone, bad input
// as "invalid request" with err as details. Anything else is a 500 carrying
// fallback as the message.
func RespondServiceError(w http.ResponseWriter, err error, fallback error) {
	for _, k := range statusKinds {
		if !errors.Is(err, k.kind) {
			continue
		}
		if k.status == http.StatusBadRequest {
			RespondError(w, k.status, "invalid request", err.Error())
			return
		}
		RespondError(w, k.status, k.kind.Error(), "")
		return
	}
	RespondError(w, http.StatusInternalServerError, fallback.Error(), err.Error())
}
