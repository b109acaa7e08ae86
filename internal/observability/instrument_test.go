package observability

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/trace"
)

// syncBuffer is written by the batch exporter goroutine and the test concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	return trace.ContextWithSpanContext(t.Context(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func TestInstrument_StdoutOnly(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(t.Context(), Options{Level: slog.LevelInfo, Format: "text", Writer: &buf})
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	slog.DebugContext(t.Context(), "hidden")
	slog.InfoContext(spanContext(t), "visible", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=visible")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "trace_id=4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Contains(t, out, "span_id=00f067aa0ba902b7")
}

func TestInstrument_JSONFormat(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	_, err := Instrument(t.Context(), Options{Level: slog.LevelDebug, Format: "json", Writer: &buf})
	require.NoError(t, err)

	slog.Debug("debug line")

	assert.Contains(t, buf.String(), `"msg":"debug line"`)
}

func TestInstrument_StdoutExporter(t *testing.T) {
	restoreDefaultLogger(t)
	var buf syncBuffer

	shutdown, err := Instrument(t.Context(), Options{
		Level:    slog.LevelInfo,
		Format:   "text",
		Exporter: ExporterStdout,
		Writer:   &buf,
	})
	require.NoError(t, err)

	slog.Info("exported record")
	slog.Debug("filtered record")
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "msg=\"exported record\"", "stdout handler output")
	assert.Contains(t, out, `"Body"`, "exporter output")
	assert.NotContains(t, out, "filtered record")
}

func TestInstrument_InvalidOptions(t *testing.T) {
	restoreDefaultLogger(t)

	_, err := Instrument(t.Context(), Options{Format: "xml"})
	assert.ErrorContains(t, err, "unsupported log format")

	_, err = Instrument(t.Context(), Options{Format: "text", Exporter: "jaeger"})
	assert.ErrorContains(t, err, "unsupported log exporter")
}

func TestFanoutHandler(t *testing.T) {
	var info, debug bytes.Buffer
	logger := slog.New(newFanoutHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)).With("component", "test").WithGroup("req")

	logger.Debug("details", "id", 1)
	logger.Info("summary", "id", 2)

	assert.NotContains(t, info.String(), "details")
	assert.Contains(t, info.String(), "component=test req.id=2")
	assert.Contains(t, debug.String(), "msg=details component=test req.id=1")
	assert.Contains(t, debug.String(), "msg=summary")
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, minsev.SeverityDebug, severityFor(slog.LevelDebug))
	assert.Equal(t, minsev.SeverityInfo, severityFor(slog.LevelInfo))
	assert.Equal(t, minsev.SeverityWarn, severityFor(slog.LevelWarn))
	assert.Equal(t, minsev.SeverityError, severityFor(slog.LevelError))
}
