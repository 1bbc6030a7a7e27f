package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/ingredient-stock/internal/app"
	"github.com/wms-platform/ingredient-stock/pkg/kafka"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/middleware"
	"github.com/wms-platform/ingredient-stock/pkg/outbox"
)

func main() {
	config, err := app.LoadConfig()
	if err != nil {
		logging.New(logging.DefaultConfig(app.ServiceName)).WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logger := app.NewLogger(config)
	logger.SetDefault()
	logger.Info("Starting ingredient-stock API", "storage", config.StorageDriver)

	ctx := context.Background()

	shutdownTracing := app.InitTracing(ctx, config, "api", logger)
	defer shutdownTracing()

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(app.ServiceName))

	services, err := app.NewServices(ctx, config, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize services")
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := services.Close(closeCtx); err != nil {
			logger.WithError(err).Error("Failed to close services")
		}
	}()

	// Relay stored stock facts to Kafka
	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = config.KafkaBrokers
	producer := kafka.NewProductionProducer(kafkaConfig, m, logger)
	defer producer.Close()

	outboxPublisher := outbox.NewPublisher(services.Outbox, producer, logger, m, &outbox.PublisherConfig{
		PollInterval: config.OutboxPollInterval,
		BatchSize:    100,
		Retention:    config.OutboxRetention,
	})
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started", "brokers", config.KafkaBrokers)

	router := newRouter(services, logger, m, config.TracingEnabled, map[string]middleware.DependencyCheck{
		"kafka": func(context.Context) error {
			if state := producer.State(); state == "open" {
				return fmt.Errorf("kafka producer circuit %s", state)
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// newRouter applies the standard middleware chain and mounts every route.
// extra adds readiness checks for dependencies only this binary uses.
func newRouter(services *app.Services, logger *logging.Logger, m *metrics.Metrics, tracingEnabled bool, extra map[string]middleware.DependencyCheck) *gin.Engine {
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(app.ServiceName, logger)
	middlewareConfig.EnableTracing = tracingEnabled
	middleware.Setup(router, middlewareConfig)

	if m != nil {
		router.Use(middleware.MetricsMiddleware(m))
		router.GET(middleware.PathMetrics, middleware.MetricsEndpoint(m))
	}

	checks := map[string]middleware.DependencyCheck{
		"storage": services.Ready,
		"ledger":  services.LedgerReachable,
	}
	for name, check := range extra {
		checks[name] = check
	}
	middleware.RegisterProbes(router, app.ServiceName, checks)

	registerRoutes(router, services, logger)
	return router
}
