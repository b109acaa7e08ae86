// Package observability installs the process-wide slog logger and, optionally, an
// OpenTelemetry log pipeline that receives the same records.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Log exporters accepted by Options.Exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

const instrumentationName = "github.com/florianilch/msgbridge"

// Options configures Instrument.
type Options struct {
	Level  slog.Level
	Format string
	// Exporter selects the OpenTelemetry log exporter. Empty means none.
	Exporter string
	// Writer receives human-readable logs and the stdout exporter output, os.Stdout
	// when nil.
	Writer io.Writer
}

// Instrument installs the default slog logger and the W3C trace-context propagator.
// The returned function flushes and stops the log pipeline.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	stdout, err := newStdoutHandler(writer, opts.Level, opts.Format)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	provider, err := newLoggerProvider(ctx, opts.Exporter, opts.Level, writer)
	if err != nil {
		return nil, fmt.Errorf("failed to set up log exporter: %w", err)
	}

	if provider == nil {
		slog.SetDefault(slog.New(newTraceContextHandler(stdout)))
		return func(context.Context) error { return nil }, nil
	}

	global.SetLoggerProvider(provider)
	bridge := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(newFanoutHandler(newTraceContextHandler(stdout), bridge)))

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("log provider shutdown: %w", err)
		}
		return nil
	}, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newLoggerProvider builds the OpenTelemetry log pipeline for exporter, or returns nil
// when exporting is off. Records below level are dropped before export.
func newLoggerProvider(ctx context.Context, exporter string, level slog.Level, w io.Writer) (*sdklog.LoggerProvider, error) {
	var (
		exp sdklog.Exporter
		err error
	)
	switch strings.ToLower(exporter) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err = stdoutlog.New(stdoutlog.WithWriter(w))
	case ExporterOTLPHTTP:
		exp, err = otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		exp, err = otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q", exporter)
	}
	if err != nil {
		return nil, err
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exp), severityFor(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

func severityFor(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
