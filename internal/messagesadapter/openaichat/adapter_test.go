package openaichat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
	"github.com/florianilch/msgbridge/internal/upstream"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc, keys ...string) *Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := upstream.New(keypool.New(keys, time.Minute), upstream.Options{
		BaseURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
	})
	return NewAdapter(client, staticModels("gpt-4o"), defaultConvertOptions)
}

func helloRequest(stream bool) types.CreateMessageRequest {
	return types.CreateMessageRequest{
		Model:     "claude-3-5-sonnet",
		MaxTokens: 64,
		Messages:  []types.Message{{Role: types.RoleUser, Content: types.TextContent("Hello")}},
		Stream:    stream,
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestAdapter_ProcessRequest(t *testing.T) {
	var got map[string]any
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2}
		}`)
	}, "k1")

	resp, err := adapter.ProcessRequest(t.Context(), helloRequest(false), "req-1")
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "claude-3-5-sonnet", resp.Model)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "Hi there", resp.Content[0].OfText.Text)
	assert.Equal(t, types.Usage{InputTokens: 3, OutputTokens: 2}, resp.Usage)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.EqualValues(t, 64, got["max_tokens"])
	assert.NotContains(t, got, "stream")
}

func TestAdapter_ProcessRequestUpstreamError(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"max_tokens too large","type":"invalid_request_error"}}`)
	}, "k1")

	_, err := adapter.ProcessRequest(t.Context(), helloRequest(false), "req-1")
	require.Error(t, err)

	var errResp *types.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusBadRequest, errResp.Status)
	assert.Equal(t, types.ErrorTypeInvalidRequest, errResp.Err.Type)
}

func TestAdapter_ProcessRequestNoKeys(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})

	_, err := adapter.ProcessRequest(t.Context(), helloRequest(false), "req-1")

	var errResp *types.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusServiceUnavailable, errResp.Status)
	assert.Equal(t, types.ErrorTypeOverloaded, errResp.Err.Type)
	assert.Equal(t, "All API keys are temporarily unavailable", errResp.Err.Message)
}

func TestAdapter_ProcessRequestMalformedUpstreamBody(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices": "nope"}`)
	}, "k1")

	_, err := adapter.ProcessRequest(t.Context(), helloRequest(false), "req-1")

	var errResp *types.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusBadGateway, errResp.Status)
}

func TestAdapter_ProcessStreamingRequest(t *testing.T) {
	var got map[string]any
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":1}}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}, "k1")

	events, err := adapter.ProcessStreamingRequest(t.Context(), helloRequest(true), "req-1")
	require.NoError(t, err)

	var kinds []string
	var last types.StreamEvent
	for event := range events {
		kinds = append(kinds, event.EventType())
		last = event
		if event.EventType() == types.EventMessageDelta {
			delta := event.(types.MessageDeltaEvent)
			assert.Equal(t, types.Usage{InputTokens: 3, OutputTokens: 1}, delta.Usage)
		}
	}

	assert.Equal(t, []string{
		types.EventMessageStart,
		types.EventContentBlockStart,
		types.EventPing,
		types.EventContentBlockDelta,
		types.EventContentBlockStop,
		types.EventMessageDelta,
		types.EventMessageStop,
	}, kinds)
	assert.Equal(t, types.MessageStopEvent{Type: types.EventMessageStop}, last)

	assert.Equal(t, true, got["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, got["stream_options"])
}

func TestAdapter_ProcessStreamingRequestFailsBeforeFirstEvent(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
	}, "k1")

	_, err := adapter.ProcessStreamingRequest(t.Context(), helloRequest(true), "req-1")

	var errResp *types.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusTooManyRequests, errResp.Status)
	assert.Equal(t, types.ErrorTypeRateLimit, errResp.Err.Type)
}

func TestToErrorResponse(t *testing.T) {
	assert.Nil(t, toErrorResponse(nil))

	passthrough := types.NewErrorResponse(http.StatusNotFound, types.ErrorTypeNotFound, "missing")
	assert.Same(t, passthrough, toErrorResponse(passthrough))

	auth := toErrorResponse(&upstream.Error{Kind: upstream.KindAuth, Status: http.StatusUnauthorized, Message: "bad key"})
	assert.Equal(t, types.NewErrorResponse(http.StatusUnauthorized, types.ErrorTypeAuthentication, "bad key"), auth)

	generic := toErrorResponse(errors.New("kaput"))
	assert.Equal(t, types.NewErrorResponse(http.StatusInternalServerError, types.ErrorTypeAPI, "kaput"), generic)
}
