// Package proxy serves the Messages API over HTTP and hands requests to an adapter.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/messagesadapter"
	"github.com/florianilch/msgbridge/internal/observability/middleware"
)

// DefaultMaxRequestBytes bounds request bodies unless overridden.
const DefaultMaxRequestBytes int64 = 32 << 20

// ReadinessChecker reports whether the application accepts traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// KeyPool exposes key health for the status endpoints.
type KeyPool interface {
	Status() keypool.Status
	ResetAll()
}

// Prober verifies upstream connectivity with a minimal completion.
type Prober interface {
	Probe(ctx context.Context, model string) (string, error)
}

// Models lists the upstream models requests are routed to.
type Models struct {
	Big    string
	Middle string
	Small  string
}

type options struct {
	clientAPIKey    string
	maxRequestBytes int64
	rateLimit       float64
	rateBurst       int
	keys            KeyPool
	prober          Prober
	models          Models
	logger          *slog.Logger
}

// Option configures a Proxy.
type Option func(*options)

// WithClientAPIKey requires clients to present key via x-api-key or a bearer token.
func WithClientAPIKey(key string) Option {
	return func(o *options) {
		o.clientAPIKey = key
	}
}

// WithMaxRequestBytes overrides DefaultMaxRequestBytes.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRequestBytes = n
		}
	}
}

// WithRateLimit limits POST /v1/messages to rps requests per second. Zero disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rps
		o.rateBurst = burst
	}
}

// WithKeyPool enables /health key counts and the /v1/keys endpoints.
func WithKeyPool(pool KeyPool) Option {
	return func(o *options) {
		o.keys = pool
	}
}

// WithProber enables /test-connection.
func WithProber(p Prober) Option {
	return func(o *options) {
		o.prober = p
	}
}

// WithModels sets the models advertised by /v1/models and probed by /test-connection.
func WithModels(m Models) Option {
	return func(o *options) {
		o.models = m
	}
}

// WithLogger sets the request logger, slog.Default when unset.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Proxy is the HTTP front of the gateway.
type Proxy struct {
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

var _ http.Handler = (*Proxy)(nil)

// New builds the route table and middleware stack around adapter.
func New(adapter messagesadapter.CreateMessageAdapter, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if adapter == nil {
		return nil, errors.New("adapter cannot be nil")
	}
	if health == nil {
		return nil, errors.New("readiness checker cannot be nil")
	}

	o := options{maxRequestBytes: DefaultMaxRequestBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	messages := &CreateMessageHandler{
		Adapter:  adapter,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	apiMiddlewares := []func(http.Handler) http.Handler{
		ClientAuth(o.clientAPIKey),
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/messages", applyMiddlewares(messages,
		ClientAuth(o.clientAPIKey),
		RateLimit(o.rateLimit, o.rateBurst),
		RequestSizeLimit(o.maxRequestBytes),
	))
	mux.Handle("GET /v1/models", applyMiddlewares(modelsHandler(o.models), apiMiddlewares...))
	mux.Handle("GET /livez", livenessHandler())
	mux.Handle("GET /readyz", readinessHandler(health))
	mux.Handle("GET /health", healthHandler(health, o.keys))

	if o.keys != nil {
		mux.Handle("GET /v1/keys/status", applyMiddlewares(keysStatusHandler(o.keys), apiMiddlewares...))
		mux.Handle("POST /v1/keys/reset", applyMiddlewares(keysResetHandler(o.keys), apiMiddlewares...))
	}
	if o.prober != nil {
		mux.Handle("GET /test-connection", applyMiddlewares(testConnectionHandler(o.prober, o.models.Small), apiMiddlewares...))
	}

	handler := applyMiddlewares(mux,
		middleware.RequestIDGeneration,
		middleware.Logging(o.logger),
		middleware.TraceContextExtraction,
		middleware.RequestIDPropagation,
		Recovery,
	)

	return &Proxy{handler: handler}, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. The returned channel receives
// the terminal serve error, or nil after Shutdown.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	p.mu.Lock()
	p.server = server
	p.listener = listener
	p.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.InfoContext(ctx, "proxy listening", "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the bound listen address, or "" before Start.
func (p *Proxy) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx ends.
func (p *Proxy) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	server := p.server
	p.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}
