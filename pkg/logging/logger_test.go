package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newBufferedLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultConfig("ingredient-stock")
	cfg.Level = level
	cfg.Output = &buf
	return New(cfg), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	logger, buf := newBufferedLogger(slog.LevelInfo)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	ctx = ContextWithUserID(ctx, "chef-1")
	logger.WithContext(ctx).
		WithStockKey("org-1", "site-1", "flour").
		WithError(errors.New("boom")).
		Info("stock consumed")

	line := decodeLine(t, buf)
	assert.Equal(t, "ingredient-stock", line["service"])
	assert.Equal(t, "req-42", line["requestId"])
	assert.Equal(t, "chef-1", line["userId"])
	assert.Equal(t, "flour", line["itemId"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "stock consumed", line["msg"])
	assert.NotContains(t, line, "traceId")
}

func TestWithContext_AddsTraceIDs(t *testing.T) {
	logger, buf := newBufferedLogger(slog.LevelInfo)
	ctx, span := sdktrace.NewTracerProvider().Tracer("test").Start(context.Background(), "consume")
	defer span.End()

	logger.WithContext(ctx).Info("traced")

	line := decodeLine(t, buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), line["traceId"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["spanId"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	logger, buf := newBufferedLogger(slog.LevelInfo)

	logger.Debug("hidden")
	logger.KafkaPublish(context.Background(), "stock", "StockConsumed", true, 0)
	assert.Zero(t, buf.Len())

	logger.KafkaPublish(context.Background(), "stock", "StockConsumed", false, 0)
	assert.Equal(t, "ERROR", decodeLine(t, buf)["level"])
}

func TestContextAccessors(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "corr-1")

	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
	assert.Empty(t, UserIDFromContext(ctx))
}
