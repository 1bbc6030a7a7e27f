package app

import (
	"context"
	"time"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/tracing"
)

// InitTracing installs the tracer provider for one binary. Failure is logged
// and the process keeps running untraced. The returned func flushes spans.
func InitTracing(ctx context.Context, cfg *Config, component string, logger *logging.Logger) func() {
	tracingConfig := tracing.DefaultConfig(ServiceName + "-" + component)
	tracingConfig.OTLPEndpoint = cfg.OTLPEndpoint
	tracingConfig.Environment = cfg.Environment
	tracingConfig.Enabled = cfg.TracingEnabled

	provider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing, continuing without it")
		return func() {}
	}
	logger.Info("Tracing initialized", "enabled", cfg.TracingEnabled, "endpoint", cfg.OTLPEndpoint)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to flush traces")
		}
	}
}
