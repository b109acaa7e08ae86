package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration. Probe endpoints
// are logged at debug level only.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		Level: slog.LevelInfo,
		Skip: func(req *http.Request, respStatus int) bool {
			switch req.URL.Path {
			case "/livez", "/readyz":
				return respStatus < http.StatusBadRequest && !logger.Enabled(req.Context(), slog.LevelDebug)
			}
			return false
		},

		// Headers carry client and upstream credentials; bodies carry prompts.
		LogRequestHeaders:  []string{"Content-Type", "Origin", "Anthropic-Version"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
