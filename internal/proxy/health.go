package proxy

import (
	"net/http"
	"time"
)

// livenessHandler handles liveness probe requests.
// Always returns 200 OK to indicate the process is alive.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
}

// readinessHandler handles readiness probe requests.
// Returns 200 OK if the application is ready to serve traffic, 503 otherwise.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		if checker.IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
}

type healthKeys struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

type healthStatus struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	APIKeys   *healthKeys `json:"api_keys,omitempty"`
}

// healthHandler reports readiness together with key pool counts. It answers 503 when
// the application is not ready or no key is available.
func healthHandler(checker ReadinessChecker, keys KeyPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")

		resp := healthStatus{Status: "healthy", Timestamp: time.Now().UTC()}
		status := http.StatusOK

		if keys != nil {
			s := keys.Status()
			resp.APIKeys = &healthKeys{Total: s.TotalKeys, Available: s.AvailableKeys}
			if s.AvailableKeys == 0 {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		if !checker.IsReady() {
			resp.Status = "starting"
			if s, ok := checker.(interface{ State() string }); ok {
				resp.Status = s.State()
			}
			status = http.StatusServiceUnavailable
		}

		writeJSON(r.Context(), w, resp, status)
	}
}
