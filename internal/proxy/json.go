package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes a Messages API error envelope. The status comes from the
// envelope, falling back to the conventional status of its error type.
func writeJSONError(ctx context.Context, w http.ResponseWriter, errResp *types.ErrorResponse) {
	status := errResp.Status
	if status == 0 {
		status = statusForErrorType(errResp.Err.Type)
	}
	if errResp.Type == "" {
		errResp.Type = types.EventError
	}

	writeJSON(ctx, w, errResp, status)
}

func statusForErrorType(errType string) int {
	switch errType {
	case types.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case types.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case types.ErrorTypePermission:
		return http.StatusForbidden
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeRequestTooBig:
		return http.StatusRequestEntityTooLarge
	case types.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case types.ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
