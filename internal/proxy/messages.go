package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/msgbridge/internal/messagesadapter"
	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
	"github.com/florianilch/msgbridge/internal/observability/middleware"
)

// CreateMessageHandler handles Messages API requests.
type CreateMessageHandler struct {
	Adapter  messagesadapter.CreateMessageAdapter
	Validate *validator.Validate
}

// Compile-time check to ensure CreateMessageHandler implements http.Handler
var _ http.Handler = (*CreateMessageHandler)(nil)

// ServeHTTP implements http.Handler interface for streaming or non-streaming requests.
func (h *CreateMessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req messagesadapter.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONError(ctx, w, types.NewErrorResponse(http.StatusRequestEntityTooLarge,
				types.ErrorTypeRequestTooBig, http.StatusText(http.StatusRequestEntityTooLarge)))
			return
		}
		slog.WarnContext(ctx, "failed to decode request", "error", err)
		writeJSONError(ctx, w, types.NewErrorResponse(http.StatusBadRequest,
			types.ErrorTypeInvalidRequest, fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			slog.DebugContext(ctx, "request validation failed", "error", err)
			writeJSONError(ctx, w, types.NewErrorResponse(http.StatusBadRequest,
				types.ErrorTypeInvalidRequest, validationMessage(err)))
			return
		}
	}

	requestID := middleware.RequestIDFromContext(ctx)
	middleware.SetLogAttrs(ctx,
		slog.String("model", req.Model),
		slog.Bool("stream", req.Stream),
	)

	if req.Stream {
		h.streamResponse(ctx, w, req, requestID)
	} else {
		h.writeResponse(ctx, w, req, requestID)
	}
}

// writeResponse handles non-streaming requests.
func (h *CreateMessageHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req messagesadapter.CreateMessageRequest,
	requestID string,
) {
	if ctx.Err() != nil {
		return
	}
	response, err := h.Adapter.ProcessRequest(ctx, req, requestID)
	if err != nil {
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeJSONError(ctx, w, asErrorResponse(err))
		return
	}

	writeJSON(ctx, w, response, http.StatusOK)
}

// streamResponse relays stream events as SSE.
func (h *CreateMessageHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req messagesadapter.CreateMessageRequest,
	requestID string,
) {
	if ctx.Err() != nil {
		return
	}
	// The writer is checked before the upstream call so a failure here leaves no open
	// stream behind.
	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONError(ctx, w, types.NewErrorResponse(http.StatusInternalServerError,
			types.ErrorTypeAPI, http.StatusText(http.StatusInternalServerError)))
		return
	}

	stream, err := h.Adapter.ProcessStreamingRequest(ctx, req, requestID)
	if err != nil {
		slog.ErrorContext(ctx, "streaming request failed", "error", err)
		writeJSONError(ctx, w, asErrorResponse(err))
		return
	}

	sse.Start()

	// The adapter checks for client disconnect itself and terminates the sequence with
	// a cancelled event, so the loop only stops early on write failures.
	events := 0
	for event := range stream {
		if err := sse.WriteEvent(event.EventType(), event); err != nil {
			slog.DebugContext(ctx, "failed to write stream event", "event", event.EventType(), "error", err)
			return
		}
		events++
		if errEvent, ok := event.(*types.ErrorEvent); ok {
			slog.WarnContext(ctx, "stream terminated with error",
				"error_type", errEvent.Err.Type, "error", errEvent.Err.Message)
		}
	}

	middleware.SetLogAttrs(ctx, slog.Int("stream_events", events))
}

// asErrorResponse maps adapter errors to a Messages API error envelope.
func asErrorResponse(err error) *types.ErrorResponse {
	var errResp *types.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp
	}
	return types.NewErrorResponse(http.StatusInternalServerError,
		types.ErrorTypeAPI, http.StatusText(http.StatusInternalServerError))
}

func validationMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err.Error()
	}
	fe := validationErrs[0]
	return fmt.Sprintf("%s: failed on '%s'", fe.Namespace(), fe.Tag())
}
