package openaichat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
	"github.com/florianilch/msgbridge/internal/upstream"
)

// NoChoicesError reports an upstream completion without any choice.
type NoChoicesError struct{}

func (e *NoChoicesError) Error() string {
	return "upstream response contained no choices"
}

// toErrorResponse converts any adapter error into a Messages error envelope.
// Classified upstream errors keep their status; everything else is a 500 api_error.
func toErrorResponse(err error) *types.ErrorResponse {
	if err == nil {
		return nil
	}

	var errResp *types.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp
	}

	var upstreamErr *upstream.Error
	if errors.As(err, &upstreamErr) {
		return types.NewErrorResponse(upstreamErr.Status, errorTypeForKind(upstreamErr.Kind), upstreamErr.Message)
	}

	var noChoices *NoChoicesError
	if errors.As(err, &noChoices) {
		return types.NewErrorResponse(http.StatusBadGateway, types.ErrorTypeAPI, noChoices.Error())
	}

	return types.NewErrorResponse(http.StatusInternalServerError, types.ErrorTypeAPI, err.Error())
}

// errorTypeForKind maps upstream failure classes to Messages error types.
func errorTypeForKind(kind upstream.Kind) string {
	switch kind {
	case upstream.KindAuth:
		return types.ErrorTypeAuthentication
	case upstream.KindRateLimit:
		return types.ErrorTypeRateLimit
	case upstream.KindBadRequest:
		return types.ErrorTypeInvalidRequest
	case upstream.KindPoolExhausted:
		return types.ErrorTypeOverloaded
	case upstream.KindCancelled:
		return types.ErrorTypeCancelled
	case upstream.KindServer, upstream.KindTransport:
		return types.ErrorTypeAPI
	default:
		return types.ErrorTypeAPI
	}
}

// streamingError is the terminal event for failures after the stream started.
func streamingError(err error) *types.ErrorEvent {
	return types.NewErrorResponse(http.StatusInternalServerError, types.ErrorTypeAPI, fmt.Sprintf("Streaming error: %v", err))
}

// cancelledEvent is the terminal event for client disconnects.
func cancelledEvent() *types.ErrorEvent {
	return types.NewErrorResponse(499, types.ErrorTypeCancelled, "Request was cancelled by client")
}
