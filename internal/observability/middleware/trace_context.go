package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextExtraction reads the W3C trace context a client sent with its Messages
// call and stores it on the request context. No spans are created: the gateway only
// carries the caller's trace. Request logs get trace_id, span_id and trace_sampled,
// slog records made with the request context are enriched by the log handler, and
// upstream calls forward the context via TraceHeaders.
func TraceContextExtraction(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			// No-op without the Logging middleware.
			SetLogAttrs(ctx,
				slog.String("trace_id", spanCtx.TraceID().String()),
				slog.String("span_id", spanCtx.SpanID().String()),
				slog.Bool("trace_sampled", spanCtx.IsSampled()),
			)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceHeaders renders the trace context of ctx as outbound request headers. It
// returns nil when ctx carries no valid trace context.
func TraceHeaders(ctx context.Context) http.Header {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return nil
	}
	headers := make(http.Header)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
	if len(headers) == 0 {
		return nil
	}
	return headers
}
