package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/messagesadapter/openaichat"
	"github.com/florianilch/msgbridge/internal/modelmap"
	"github.com/florianilch/msgbridge/internal/proxy"
	"github.com/florianilch/msgbridge/internal/upstream"
)

// ErrNoKeys reports that the configured key storage holds no upstream API key.
var ErrNoKeys = errors.New("no upstream API keys configured")

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *Config
	health *Health
	pool   *keypool.Pool
	proxy  *proxy.Proxy

	onShutdown []func(context.Context) error
}

// New loads the upstream keys from the configured storage and wires the gateway.
func New(ctx context.Context, cfg *Config) (*App, error) {
	store, err := cfg.Keys.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create key store: %w", err)
	}
	keys, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w in %s storage", ErrNoKeys, cfg.Keys.Storage)
	}

	pool := keypool.New(keys, cfg.Upstream.Cooldown)
	client := upstream.New(pool, upstream.Options{
		BaseURL:         cfg.Upstream.BaseURL,
		AzureAPIVersion: cfg.Upstream.AzureAPIVersion,
		RequestTimeout:  cfg.Upstream.RequestTimeout,
		MaxRetries:      cfg.Upstream.MaxRetries,
	})
	adapter := openaichat.NewAdapter(client,
		modelmap.New(cfg.Models.Big, cfg.Models.Middle, cfg.Models.Small),
		openaichat.ConvertOptions{
			PromptCache: cfg.Features.PromptCache,
			MinTokens:   cfg.Limits.MinTokens,
			MaxTokens:   cfg.Limits.MaxTokens,
		},
	)

	health := NewHealth()
	proxyServer, err := proxy.New(adapter, health,
		proxy.WithClientAPIKey(cfg.Client.APIKey),
		proxy.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
		proxy.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		proxy.WithKeyPool(pool),
		proxy.WithProber(client),
		proxy.WithModels(proxy.Models{
			Big:    cfg.Models.Big,
			Middle: cfg.Models.Middle,
			Small:  cfg.Models.Small,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	slog.InfoContext(ctx, "gateway configured",
		"upstream", cfg.Upstream.BaseURL,
		"azure", cfg.Upstream.AzureAPIVersion != "",
		"keys", pool.Len(),
		"big_model", cfg.Models.Big,
		"middle_model", cfg.Models.Middle,
		"small_model", cfg.Models.Small,
		"client_auth", cfg.Client.APIKey != "",
	)

	return &App{
		cfg:    cfg,
		health: health,
		pool:   pool,
		proxy:  proxyServer,
	}, nil
}

// OnShutdown registers fn to run during shutdown, after the proxy stopped. Hooks run
// in reverse registration order.
func (a *App) OnShutdown(fn func(context.Context) error) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Addr returns the address the proxy listens on once started.
func (a *App) Addr() string {
	return a.proxy.Addr()
}

// Health returns the readiness state shared with the probes.
func (a *App) Health() *Health {
	return a.health
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	shutdownFuncs := append([]func(context.Context) error(nil), a.onShutdown...)

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server")
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)
	a.health.Set(PhaseReady)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()
	a.health.Set(PhaseDraining)

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
