package proxy

import (
	"log/slog"
	"net/http"
)

func keysStatusHandler(keys KeyPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(r.Context(), w, keys.Status(), http.StatusOK)
	}
}

// keysResetHandler clears every cooldown and returns the resulting status.
func keysResetHandler(keys KeyPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys.ResetAll()
		status := keys.Status()
		slog.InfoContext(r.Context(), "key cooldowns reset", "total_keys", status.TotalKeys)

		writeJSON(r.Context(), w, struct {
			Message string `json:"message"`
			Status  any    `json:"status"`
		}{
			Message: "All API keys have been reset to available",
			Status:  status,
		}, http.StatusOK)
	}
}
