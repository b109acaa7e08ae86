package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/messagesadapter/types"
	"github.com/florianilch/msgbridge/internal/upstream"
)

type fakeProber struct {
	id    string
	err   error
	model string
}

func (f *fakeProber) Probe(ctx context.Context, model string) (string, error) {
	f.model = model
	return f.id, f.err
}

func TestClientAuth(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{name: "missing", header: nil, want: http.StatusUnauthorized},
		{name: "wrong x-api-key", header: http.Header{"X-Api-Key": {"nope"}}, want: http.StatusUnauthorized},
		{name: "x-api-key", header: http.Header{"X-Api-Key": {"secret"}}, want: http.StatusOK},
		{name: "bearer", header: http.Header{"Authorization": {"Bearer secret"}}, want: http.StatusOK},
		{name: "basic", header: http.Header{"Authorization": {"Basic secret"}}, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProxy(t, &fakeAdapter{response: types.NewMessageResponse("msg_1", "m")}, WithClientAPIKey("secret"))

			rec := serve(p, http.MethodPost, "/v1/messages", helloBody, tt.header)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, types.ErrorTypeAuthentication, decodeError(t, rec).Err.Type)
			}
		})
	}
}

func TestClientAuth_ProbesStayOpen(t *testing.T) {
	p := newTestProxy(t, &fakeAdapter{}, WithClientAPIKey("secret"))

	assert.Equal(t, http.StatusOK, serve(p, http.MethodGet, "/livez", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(p, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(p, http.MethodGet, "/v1/models", "", nil).Code)
}

func TestRateLimit(t *testing.T) {
	p := newTestProxy(t, &fakeAdapter{response: types.NewMessageResponse("msg_1", "m")}, WithRateLimit(0.001, 1))

	first := serve(p, http.MethodPost, "/v1/messages", helloBody, nil)
	second := serve(p, http.MethodPost, "/v1/messages", helloBody, nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, types.ErrorTypeRateLimit, decodeError(t, second).Err.Type)
}

func TestProbes(t *testing.T) {
	ready, err := New(&fakeAdapter{}, readyChecker(true))
	require.NoError(t, err)
	notReady, err := New(&fakeAdapter{}, readyChecker(false))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(ready, http.MethodGet, "/livez", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(notReady, http.MethodGet, "/livez", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(ready, http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(notReady, http.MethodGet, "/readyz", "", nil).Code)
}

func TestHealth(t *testing.T) {
	now := time.Unix(1000, 0)
	pool := keypool.New([]string{"sk-one-1234567890", "sk-two-1234567890"}, time.Minute, keypool.WithClock(func() time.Time { return now }))
	p := newTestProxy(t, &fakeAdapter{}, WithKeyPool(pool))

	rec := serve(p, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"total": 2.0, "available": 2.0}, body["api_keys"])
	assert.NotEmpty(t, body["timestamp"])

	pool.MarkFailed("sk-one-1234567890")
	pool.MarkFailed("sk-two-1234567890")

	rec = serve(p, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestKeysEndpoints(t *testing.T) {
	now := time.Unix(1000, 0)
	pool := keypool.New([]string{"sk-one-1234567890", "sk-two-1234567890"}, time.Minute, keypool.WithClock(func() time.Time { return now }))
	pool.MarkFailed("sk-one-1234567890")
	p := newTestProxy(t, &fakeAdapter{}, WithKeyPool(pool))

	rec := serve(p, http.MethodGet, "/v1/keys/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status keypool.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 2, status.TotalKeys)
	assert.Equal(t, 1, status.AvailableKeys)
	assert.Equal(t, 1, status.FailedKeys)
	require.Len(t, status.Keys, 2)
	assert.Equal(t, "sk-one-123...", status.Keys[0].KeyPrefix)
	assert.NotContains(t, rec.Body.String(), "sk-one-1234567890")

	rec = serve(p, http.MethodPost, "/v1/keys/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, pool.Available())

	var reset struct {
		Message string         `json:"message"`
		Status  keypool.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reset))
	assert.Equal(t, 2, reset.Status.AvailableKeys)
	assert.NotEmpty(t, reset.Message)
}

func TestKeysEndpoints_DisabledWithoutPool(t *testing.T) {
	p := newTestProxy(t, &fakeAdapter{})

	assert.Equal(t, http.StatusNotFound, serve(p, http.MethodGet, "/v1/keys/status", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(p, http.MethodGet, "/test-connection", "", nil).Code)
}

func TestModels(t *testing.T) {
	p := newTestProxy(t, &fakeAdapter{}, WithModels(Models{Big: "gpt-4o", Middle: "gpt-4o", Small: "gpt-4o-mini"}))

	rec := serve(p, http.MethodGet, "/v1/models", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"data": [
			{"type": "model", "id": "gpt-4o", "display_name": "gpt-4o", "created_at": "1970-01-01T00:00:00Z"},
			{"type": "model", "id": "gpt-4o-mini", "display_name": "gpt-4o-mini", "created_at": "1970-01-01T00:00:00Z"}
		],
		"has_more": false,
		"first_id": "gpt-4o",
		"last_id": "gpt-4o-mini"
	}`, rec.Body.String())
}

func TestTestConnection(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		prober := &fakeProber{id: "chatcmpl-1"}
		p := newTestProxy(t, &fakeAdapter{}, WithProber(prober), WithModels(Models{Big: "gpt-4o", Small: "gpt-4o-mini"}))

		rec := serve(p, http.MethodGet, "/test-connection", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "gpt-4o-mini", prober.model)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, "chatcmpl-1", body["response_id"])
		assert.Equal(t, "gpt-4o-mini", body["model_used"])
	})

	t.Run("failure", func(t *testing.T) {
		prober := &fakeProber{err: &upstream.Error{Kind: upstream.KindAuth, Status: http.StatusUnauthorized, Message: "Invalid API key."}}
		p := newTestProxy(t, &fakeAdapter{}, WithProber(prober), WithModels(Models{Big: "gpt-4o", Small: "gpt-4o-mini"}))

		rec := serve(p, http.MethodGet, "/test-connection", "", nil)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "failed", body["status"])
		assert.Equal(t, "auth", body["error_type"])
		assert.Equal(t, "Invalid API key.", body["message"])
		assert.NotEmpty(t, body["suggestions"])
	})
}

func TestProxy_StartShutdown(t *testing.T) {
	p := newTestProxy(t, &fakeAdapter{})
	assert.Empty(t, p.Addr())

	errCh, err := p.Start(t.Context(), "127.0.0.1:0")
	require.NoError(t, err)
	require.NotEmpty(t, p.Addr())

	resp, err := http.Get("http://" + p.Addr() + "/livez")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, p.Shutdown(context.Background()))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok && err != nil, "unexpected serve error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not stop")
	}
}
