package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/messagesadapter/openaichat"
	"github.com/florianilch/msgbridge/internal/modelmap"
	"github.com/florianilch/msgbridge/internal/upstream"
)

// newGateway wires the real adapter stack against a fake Chat Completions upstream and
// returns a Messages API client pointed at it.
func newGateway(t *testing.T, upstreamHandler http.HandlerFunc, keys ...string) anthropic.Client {
	t.Helper()
	return newGatewayClient(newGatewayServer(t, upstreamHandler, keys...), "client-key")
}

func newGatewayClient(gatewayURL, apiKey string) anthropic.Client {
	return anthropic.NewClient(
		option.WithBaseURL(gatewayURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
}

func newGatewayServer(t *testing.T, upstreamHandler http.HandlerFunc, keys ...string) string {
	t.Helper()

	upstreamSrv := httptest.NewServer(upstreamHandler)
	t.Cleanup(upstreamSrv.Close)

	pool := keypool.New(keys, time.Minute)
	client := upstream.New(pool, upstream.Options{
		BaseURL:        upstreamSrv.URL + "/v1",
		RequestTimeout: 5 * time.Second,
	})
	adapter := openaichat.NewAdapter(client, modelmap.New("gpt-4o", "", "gpt-4o-mini"), openaichat.ConvertOptions{
		MinTokens: 1,
		MaxTokens: 4096,
	})

	p := newTestProxy(t, adapter, WithClientAPIKey("client-key"), WithKeyPool(pool), WithProber(client))
	gateway := httptest.NewServer(p)
	t.Cleanup(gateway.Close)

	return gateway.URL
}

func helloParams() anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model("claude-3-5-haiku-latest"),
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Hello")),
		},
	}
}

func TestEndToEnd_Message(t *testing.T) {
	var upstreamReq map[string]any
	client := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-upstream", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &upstreamReq)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "Let me check.",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Berlin\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7}
		}`)
	}, "sk-upstream")

	msg, err := client.Messages.New(t.Context(), helloParams())
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", upstreamReq["model"], "haiku maps to the small model")
	assert.Equal(t, "claude-3-5-haiku-latest", string(msg.Model))
	assert.Equal(t, anthropic.StopReasonToolUse, msg.StopReason)
	assert.EqualValues(t, 12, msg.Usage.InputTokens)
	assert.EqualValues(t, 7, msg.Usage.OutputTokens)

	require.Len(t, msg.Content, 2)
	assert.Equal(t, "text", msg.Content[0].Type)
	assert.Equal(t, "Let me check.", msg.Content[0].Text)
	assert.Equal(t, "tool_use", msg.Content[1].Type)
	assert.Equal(t, "call_1", msg.Content[1].ID)
	assert.Equal(t, "get_weather", msg.Content[1].Name)
	assert.JSONEq(t, `{"city":"Berlin"}`, string(msg.Content[1].Input))
}

func TestEndToEnd_Streaming(t *testing.T) {
	client := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range []string{
			`{"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo!"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"length"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
		} {
			_, _ = io.WriteString(w, "data: "+line+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}, "sk-upstream")

	stream := client.Messages.NewStreaming(t.Context(), helloParams())
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		require.NoError(t, message.Accumulate(stream.Current()))
	}
	require.NoError(t, stream.Err())

	assert.Equal(t, "claude-3-5-haiku-latest", string(message.Model))
	require.Len(t, message.Content, 1)
	assert.Equal(t, "Hello!", message.Content[0].Text)
	assert.Equal(t, anthropic.StopReasonMaxTokens, message.StopReason)
	assert.EqualValues(t, 2, message.Usage.OutputTokens)
}

func TestEndToEnd_Failover(t *testing.T) {
	var attempts []string
	client := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		attempts = append(attempts, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") == "Bearer sk-bad" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"chatcmpl-2","choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`)
	}, "sk-bad", "sk-good")

	msg, err := client.Messages.New(t.Context(), helloParams())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer sk-bad", "Bearer sk-good"}, attempts)
	assert.Equal(t, "ok", msg.Content[0].Text)
	assert.Equal(t, anthropic.StopReasonEndTurn, msg.StopReason)
}

func TestEndToEnd_Errors(t *testing.T) {
	t.Run("upstream rejects request", func(t *testing.T) {
		client := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"bad things","type":"invalid_request_error"}}`)
		}, "sk-upstream")

		_, err := client.Messages.New(t.Context(), helloParams())

		var apiErr *anthropic.Error
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("no upstream keys", func(t *testing.T) {
		client := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("upstream must not be called")
		})

		_, err := client.Messages.New(t.Context(), helloParams())

		var apiErr *anthropic.Error
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	})

	t.Run("wrong client key", func(t *testing.T) {
		gatewayURL := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("upstream must not be called")
		}, "sk-upstream")

		client := newGatewayClient(gatewayURL, "wrong")
		_, err := client.Messages.New(t.Context(), helloParams())

		var apiErr *anthropic.Error
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})
}
