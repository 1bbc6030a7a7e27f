// Package logging is the service's structured JSON logger: slog with fixed
// service attributes plus helpers for the lines every component writes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// ParseLevel maps a configuration string such as "debug" or "WARN" to a
// level. Anything unrecognised is Info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Config holds logger configuration
type Config struct {
	Level       slog.Level
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

func DefaultConfig(serviceName string) *Config {
	return &Config{
		Level:       slog.LevelInfo,
		ServiceName: serviceName,
		Environment: "development",
		Version:     "unknown",
		Output:      os.Stdout,
	}
}

// Logger wraps slog.Logger. Its With methods return *Logger so the helpers
// stay available on derived loggers.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger carrying service, environment and version on every line
func New(config *Config) *Logger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:       config.Level,
		AddSource:   config.AddSource,
		ReplaceAttr: utcTimestamps,
	})

	return &Logger{Logger: slog.New(handler).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)}
}

func utcTimestamps(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With adds attributes as key/value pairs
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext adds the request, correlation, user and trace ids found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.With("component", component)
}

func (l *Logger) WithOperation(operation string) *Logger {
	return l.With("operation", operation)
}

// WithStockKey adds the organization, site and item of a stock key
func (l *Logger) WithStockKey(organizationID, siteID, itemID string) *Logger {
	return l.With("organizationId", organizationID, "siteId", siteID, "itemId", itemID)
}

// Audit records an operator action at Info
func (l *Logger) Audit(ctx context.Context, action, resource, resourceID, userID string, details map[string]any) {
	attrs := make([]any, 0, 8+2*len(details))
	attrs = append(attrs,
		"auditAction", action,
		"resource", resource,
		"resourceId", resourceID,
		"userId", userID,
	)
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	l.WithContext(ctx).Info("Audit event", attrs...)
}

// DatabaseQuery logs a slow or failed database command
func (l *Logger) DatabaseQuery(ctx context.Context, collection, operation string, duration time.Duration, success bool) {
	l.WithContext(ctx).Log(ctx, outcomeLevel(success, slog.LevelWarn), "Database query",
		"collection", collection,
		"operation", operation,
		"durationMs", duration.Milliseconds(),
		"success", success,
	)
}

// KafkaPublish logs one publish; failures at Error, successes at Debug
func (l *Logger) KafkaPublish(ctx context.Context, topic, eventType string, success bool, duration time.Duration) {
	l.WithContext(ctx).Log(ctx, outcomeLevel(success, slog.LevelDebug), "Kafka publish",
		"topic", topic,
		"eventType", eventType,
		"success", success,
		"durationMs", duration.Milliseconds(),
	)
}

func outcomeLevel(success bool, ok slog.Level) slog.Level {
	if success {
		return ok
	}
	return slog.LevelError
}

func (l *Logger) WorkflowStart(ctx context.Context, workflowType, workflowID string) {
	l.WithContext(ctx).Info("Workflow started",
		"workflowType", workflowType,
		"workflowId", workflowID,
	)
}

// Panic logs a recovered panic with the goroutine's stack
func (l *Logger) Panic(ctx context.Context, recovered any) {
	stack := make([]byte, 8<<10)
	stack = stack[:runtime.Stack(stack, false)]
	l.WithContext(ctx).Error("Panic recovered", "panic", recovered, "stack", string(stack))
}

// SetDefault installs the logger as the slog default
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}
