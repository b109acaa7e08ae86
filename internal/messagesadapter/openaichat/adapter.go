package openaichat

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"

	"github.com/florianilch/msgbridge/internal/messagesadapter"
	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
	"github.com/florianilch/msgbridge/internal/upstream"
)

// Dispatcher sends Chat Completions calls upstream. *upstream.Client implements it.
type Dispatcher interface {
	Complete(ctx context.Context, requestID string, params any) ([]byte, error)
	Stream(ctx context.Context, requestID string, params any) (*upstream.Stream, error)
	Cancel(requestID string) bool
}

// Adapter serves Messages requests through a Chat Completions upstream.
type Adapter struct {
	dispatcher Dispatcher
	models     ModelMapper
	opts       ConvertOptions
}

var _ messagesadapter.CreateMessageAdapter = (*Adapter)(nil)

// NewAdapter creates an Adapter. opts are shared read-only by all requests.
func NewAdapter(dispatcher Dispatcher, models ModelMapper, opts ConvertOptions) *Adapter {
	return &Adapter{dispatcher: dispatcher, models: models, opts: opts}
}

// ProcessRequest converts the request, performs the upstream call and converts the reply.
func (a *Adapter) ProcessRequest(
	ctx context.Context,
	clientReq types.CreateMessageRequest,
	requestID string,
) (*types.MessageResponse, error) {
	chatReq, err := a.convert(ctx, clientReq)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = false

	body, err := a.dispatcher.Complete(ctx, requestID, chatReq)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	var completion ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		slog.ErrorContext(ctx, "failed to decode upstream response", "error", err)
		return nil, types.NewErrorResponse(http.StatusBadGateway, types.ErrorTypeAPI, "invalid upstream response: "+err.Error())
	}

	resp, err := ConvertResponse(&completion, clientReq.Model, a.opts.PromptCache)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return resp, nil
}

// ProcessStreamingRequest opens the upstream stream and returns the translated events.
// The upstream call is cancelled when ctx ends or the consumer stops early.
func (a *Adapter) ProcessStreamingRequest(
	ctx context.Context,
	clientReq types.CreateMessageRequest,
	requestID string,
) (iter.Seq[types.StreamEvent], error) {
	chatReq, err := a.convert(ctx, clientReq)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true
	chatReq.StreamOptions = &StreamOptions{IncludeUsage: true}

	stream, err := a.dispatcher.Stream(ctx, requestID, chatReq)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	translator := NewStreamTranslator(clientReq.Model, a.opts.PromptCache,
		WithCancellation(
			func() bool { return ctx.Err() == nil },
			func() { a.dispatcher.Cancel(requestID) },
		),
	)

	return func(yield func(types.StreamEvent) bool) {
		defer stream.Close()

		for event := range translator.Translate(ctx, stream.Lines()) {
			if !yield(event) {
				return
			}
		}
	}, nil
}

func (a *Adapter) convert(ctx context.Context, clientReq types.CreateMessageRequest) (*ChatRequest, error) {
	chatReq, err := ConvertRequest(clientReq, a.models, a.opts)
	if err != nil {
		slog.WarnContext(ctx, "failed to convert request", "error", err)
		return nil, types.NewErrorResponse(http.StatusBadRequest, types.ErrorTypeInvalidRequest, err.Error())
	}

	slog.DebugContext(ctx, "converted request",
		"client_model", clientReq.Model,
		"upstream_model", chatReq.Model,
		"messages", len(chatReq.Messages),
		"tools", len(chatReq.Tools),
	)
	return chatReq, nil
}
