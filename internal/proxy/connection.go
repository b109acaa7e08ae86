package proxy

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/florianilch/msgbridge/internal/upstream"
)

type connectionResult struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	ModelUsed   string    `json:"model_used,omitempty"`
	ResponseID  string    `json:"response_id,omitempty"`
	ErrorType   string    `json:"error_type,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

var connectionSuggestions = []string{
	"Check that the configured upstream API keys are valid",
	"Verify the keys have access to the configured models",
	"Check whether rate limits or quotas were reached",
}

// testConnectionHandler sends a minimal completion with model through the regular
// failover path and reports the outcome.
func testConnectionHandler(prober Prober, model string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := prober.Probe(ctx, model)
		if err != nil {
			slog.WarnContext(ctx, "upstream connection test failed", "model", model, "error", err)

			result := connectionResult{
				Status:      "failed",
				Message:     err.Error(),
				Timestamp:   time.Now().UTC(),
				ModelUsed:   model,
				ErrorType:   "unknown",
				Suggestions: connectionSuggestions,
			}
			var upstreamErr *upstream.Error
			if errors.As(err, &upstreamErr) {
				result.Message = upstreamErr.Message
				result.ErrorType = upstreamErr.Kind.String()
			}
			writeJSON(ctx, w, result, http.StatusServiceUnavailable)
			return
		}

		writeJSON(ctx, w, connectionResult{
			Status:     "success",
			Message:    "Successfully connected to the upstream API",
			Timestamp:  time.Now().UTC(),
			ModelUsed:  model,
			ResponseID: id,
		}, http.StatusOK)
	}
}
