package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDContextKey is a context key for storing request IDs.
type RequestIDContextKey struct{}

// RequestIDFromContext returns the request ID stored by RequestIDGeneration.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey{}).(string)
	return id
}

// getRequestID reads the request ID from the X-Request-ID or Request-Id header or the
// context, and generates one if all are missing.
func getRequestID(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "Request-Id"} {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}
	if id := RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}

// RequestIDGeneration reads request ID from client header or context, generates if missing,
// and stores it in request context for downstream handlers. The ID also keys in-flight
// upstream calls for cancellation.
func RequestIDGeneration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		// Store in request context for downstream middlewares
		ctx := context.WithValue(r.Context(), RequestIDContextKey{}, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDPropagation echoes the request ID in the X-Request-ID and Request-Id
// response headers and adds it to the request log.
func RequestIDPropagation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestID := RequestIDFromContext(r.Context()); requestID != "" {
			// Set early to ensure it's present during recovery scenarios
			w.Header().Set("X-Request-ID", requestID)
			w.Header().Set("Request-Id", requestID)

			SetLogAttrs(r.Context(), slog.String("request_id", requestID))
		}

		next.ServeHTTP(w, r)
	})
}
