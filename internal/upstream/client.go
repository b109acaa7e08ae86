// Package upstream dispatches Chat Completions calls across a pool of API keys.
//
// Each attempt uses a client scoped to one key. Authentication, rate-limit, server and
// transport failures put the key into cooldown and move on to the next key; request
// errors fail immediately. Streaming calls fail over only until the response headers
// arrive, never after the first byte was handed to the caller.
//
// Calls can be cancelled by request id from any goroutine via Client.Cancel.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/oauth2"

	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/observability/middleware"
)

const chatCompletionsPath = "chat/completions"

// Options configures how credential-scoped clients reach the upstream.
type Options struct {
	// BaseURL is the Chat Completions API root, e.g. https://api.openai.com/v1.
	// With AzureAPIVersion set it is the Azure resource endpoint instead.
	BaseURL string

	// AzureAPIVersion switches to Azure OpenAI routing and api-key authentication.
	AzureAPIVersion string

	// RequestTimeout bounds non-streaming calls. Streams are bounded by the caller's
	// context only.
	RequestTimeout time.Duration

	// MaxRetries is the number of SDK-level retries per key before failing over.
	MaxRetries int

	// Transport is the base round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client issues upstream calls with key failover and cancellation.
type Client struct {
	pool     *keypool.Pool
	opts     Options
	inflight *registry
}

// New creates a Client drawing keys from pool.
func New(pool *keypool.Pool, opts Options) *Client {
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	return &Client{
		pool:     pool,
		opts:     opts,
		inflight: newRegistry(),
	}
}

// Pool returns the key pool backing the client.
func (c *Client) Pool() *keypool.Pool {
	return c.pool
}

// Cancel aborts the in-flight call registered under requestID. It reports whether
// such a call existed.
func (c *Client) Cancel(requestID string) bool {
	found := c.inflight.cancel(requestID)
	if found {
		slog.Info("upstream request cancelled", "request_id", requestID)
	}
	return found
}

// Complete performs a non-streaming call and returns the raw response body.
func (c *Client) Complete(ctx context.Context, requestID string, params any) ([]byte, error) {
	ctx, release := c.inflight.register(ctx, requestID)
	defer release()

	reqOpts := append(traceOptions(ctx), option.WithRequestTimeout(c.opts.RequestTimeout))

	var body []byte
	err := c.dispatch(ctx, func(ctx context.Context, client openai.Client) error {
		body = nil
		return client.Post(ctx, chatCompletionsPath, params, &body, reqOpts...)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Stream performs a streaming call. stream and stream_options.include_usage are forced
// on in the request body. On success the caller owns the returned Stream and must
// Close it.
func (c *Client) Stream(ctx context.Context, requestID string, params any) (*Stream, error) {
	ctx, release := c.inflight.register(ctx, requestID)

	reqOpts := append(traceOptions(ctx),
		option.WithJSONSet("stream", true),
		option.WithJSONSet("stream_options.include_usage", true),
		option.WithHeader("Accept", "text/event-stream"),
	)

	var resp *http.Response
	err := c.dispatch(ctx, func(ctx context.Context, client openai.Client) error {
		resp = nil
		return client.Post(ctx, chatCompletionsPath, params, &resp, reqOpts...)
	})
	if err != nil {
		release()
		return nil, err
	}
	if resp == nil || resp.Body == nil {
		release()
		return nil, &Error{Kind: KindServer, Status: http.StatusBadGateway, Message: "upstream returned no stream body"}
	}

	return newStream(ctx, resp.Body, release), nil
}

// dispatch runs call once per available key until one succeeds or a non-retryable
// error occurs. The attempt budget is the number of keys available on entry.
func (c *Client) dispatch(ctx context.Context, call func(context.Context, openai.Client) error) error {
	var lastErr *Error

	attempts := c.pool.Available()
	if attempts == 0 {
		return poolUnavailableError()
	}

	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return classify(ctx, err)
		}

		key, ok := c.pool.Next()
		if !ok {
			if lastErr != nil {
				return lastErr
			}
			return poolUnavailableError()
		}

		err := call(ctx, c.newCredentialClient(key))
		if err == nil {
			if attempt > 0 {
				slog.InfoContext(ctx, "upstream call succeeded after failover",
					"attempt", attempt+1, "key", keypool.Mask(key))
			}
			return nil
		}

		classified := classify(ctx, err)
		switch {
		case classified.Kind == KindCancelled:
			return classified
		case !classified.Retryable():
			slog.WarnContext(ctx, "upstream call failed",
				"kind", classified.Kind, "status", classified.Status, "error", err)
			return classified
		}

		slog.WarnContext(ctx, "upstream call failed, trying next key",
			"kind", classified.Kind, "status", classified.Status,
			"key", keypool.Mask(key), "attempt", attempt+1, "error", err)
		c.pool.MarkFailed(key)
		lastErr = classified
	}

	if lastErr != nil {
		return lastErr
	}
	return poolFailedError()
}

// newCredentialClient builds an SDK client bound to a single key. Bearer auth is
// injected by an oauth2 transport carrying the key as a static token; Azure uses its
// api-key header instead.
func (c *Client) newCredentialClient(key string) openai.Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(c.opts.MaxRetries),
	}

	if c.opts.AzureAPIVersion != "" {
		opts = append(opts,
			option.WithHTTPClient(&http.Client{Transport: c.opts.Transport}),
			azure.WithEndpoint(c.opts.BaseURL, c.opts.AzureAPIVersion),
			option.WithHeaderDel("Authorization"),
			azure.WithAPIKey(key),
		)
		return openai.NewClient(opts...)
	}

	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}),
		Base:   c.opts.Transport,
	}
	opts = append(opts,
		option.WithBaseURL(c.opts.BaseURL),
		option.WithHTTPClient(&http.Client{Transport: transport}),
		// The SDK reads OPENAI_API_KEY on its own, which may hold the whole key list.
		option.WithHeaderDel("Authorization"),
	)
	return openai.NewClient(opts...)
}

// traceOptions forwards the caller's trace context to the upstream.
func traceOptions(ctx context.Context) []option.RequestOption {
	headers := middleware.TraceHeaders(ctx)
	opts := make([]option.RequestOption, 0, len(headers)+3)
	for name := range headers {
		opts = append(opts, option.WithHeader(name, headers.Get(name)))
	}
	return opts
}

// Probe performs a minimal completion against model to verify connectivity. It uses
// the regular failover path.
func (c *Client) Probe(ctx context.Context, model string) (string, error) {
	params := map[string]any{
		"model":      model,
		"messages":   []map[string]string{{"role": "user", "content": "Hello"}},
		"max_tokens": 5,
	}
	body, err := c.Complete(ctx, "", params)
	if err != nil {
		return "", err
	}

	var completion struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode probe response: %w", err)
	}
	if completion.ID == "" {
		return "", errors.New("probe response carried no completion id")
	}
	return completion.ID, nil
}
