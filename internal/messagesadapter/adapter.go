package messagesadapter

import (
	"context"
	"iter"

	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
)

// Adapter defines the contract for serving client requests through a provider API.
//
// Type parameters allow the interface to express transformation contracts for different
// request/response shapes while maintaining compile-time type safety.
//
// Type parameters:
//   - TRequest:  Client-specific request structure
//   - TResponse: Client-specific response structure
//   - TEvent:    Client-specific streaming event protocol
type Adapter[TRequest, TResponse, TEvent any] interface {
	// ProcessRequest transforms the client request, calls the provider API, and returns
	// the transformed response. requestID keys the call for cancellation.
	ProcessRequest(ctx context.Context, clientReq TRequest, requestID string) (*TResponse, error)

	// ProcessStreamingRequest transforms the client request and opens the provider stream.
	// Errors returned directly happen before any event was produced; failures after that
	// point are delivered as a terminal event in the sequence.
	ProcessStreamingRequest(ctx context.Context, clientReq TRequest, requestID string) (iter.Seq[TEvent], error)
}

// Type aliases for Messages API operations.
// CreateMessageAdapter is the concrete adapter interface for POST /v1/messages.
type (
	CreateMessageRequest  = types.CreateMessageRequest
	CreateMessageResponse = types.MessageResponse
	StreamEvent           = types.StreamEvent

	CreateMessageAdapter = Adapter[
		CreateMessageRequest,
		CreateMessageResponse,
		StreamEvent,
	]
)

// Type aliases for Messages API error responses.
type (
	Error         = types.Error
	ErrorResponse = types.ErrorResponse
)
