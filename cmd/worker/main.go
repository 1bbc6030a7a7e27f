package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wms-platform/ingredient-stock/internal/activities"
	"github.com/wms-platform/ingredient-stock/internal/app"
	"github.com/wms-platform/ingredient-stock/internal/workflows"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/temporal"
)

// maintenanceWorkflowID keeps a single maintenance loop per namespace
const maintenanceWorkflowID = "ingredient-stock-maintenance"

func main() {
	config, err := app.LoadConfig()
	if err != nil {
		logging.New(logging.DefaultConfig(app.ServiceName)).WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logger := app.NewLogger(config)
	logger.SetDefault()
	logger.Info("Starting ingredient-stock worker")

	ctx := context.Background()
	shutdownTracing := app.InitTracing(ctx, config, "worker", logger)
	defer shutdownTracing()

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

	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = config.TemporalHost
	temporalConfig.Namespace = config.TemporalNamespace
	temporalClient, err := temporal.NewClient(ctx, temporalConfig, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", temporalConfig.HostPort, "namespace", temporalConfig.Namespace)

	w := temporalClient.NewWorker()
	w.RegisterWorkflow(workflows.StockMaintenanceWorkflow)
	w.RegisterActivity(activities.NewMaintenanceActivities(services.Stock, services.Reconciler, logger))
	logger.Info("Registered maintenance workflow and activities",
		"workflow", temporal.WorkflowNames.StockMaintenance,
		"activities", []string{
			workflows.FindExpiredStockActivity,
			workflows.WriteOffExpiredStockActivity,
			workflows.ReconcileStockActivity,
		},
	)

	if err := w.Start(); err != nil {
		logger.WithError(err).Error("Failed to start worker")
		os.Exit(1)
	}
	logger.Info("Worker started", "taskQueue", temporalConfig.TaskQueue)

	input := workflows.StockMaintenanceInput{Interval: config.MaintenanceInterval.String()}
	if _, err := temporalClient.EnsureRunning(ctx, maintenanceWorkflowID, temporal.WorkflowNames.StockMaintenance, input); err != nil {
		logger.WithError(err).Error("Stock maintenance loop is not running")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}
