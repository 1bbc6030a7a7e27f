package activities

import (
	"context"
	"net/http"

	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/ingredient-stock/internal/application"
	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/workflows"
	"github.com/wms-platform/ingredient-stock/pkg/errors"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
)

// MaintenanceActivities runs the stock maintenance steps against the application services
type MaintenanceActivities struct {
	stock      *application.StockService
	reconciler *application.Reconciler
	logger     *logging.Logger
}

// NewMaintenanceActivities creates a new MaintenanceActivities instance
func NewMaintenanceActivities(stock *application.StockService, reconciler *application.Reconciler, logger *logging.Logger) *MaintenanceActivities {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MaintenanceActivities{
		stock:      stock,
		reconciler: reconciler,
		logger:     logger.WithComponent("maintenance-activities"),
	}
}

// FindExpiredStock lists keys holding an active batch that expired before the cutoff
func (a *MaintenanceActivities) FindExpiredStock(ctx context.Context, input workflows.ExpiredStockInput) ([]domain.StockKey, error) {
	keys, err := a.stock.ExpiredKeys(ctx, input.Cutoff, input.Limit)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to find expired stock")
		return nil, toActivityError(err)
	}
	a.logger.WithContext(ctx).Info("Found expired stock", "count", len(keys), "cutoff", input.Cutoff)
	return keys, nil
}

// WriteOffExpiredStock writes off the expired batches of one key
func (a *MaintenanceActivities) WriteOffExpiredStock(ctx context.Context, input workflows.WriteOffInput) (*workflows.WriteOffOutcome, error) {
	asOf := input.AsOf
	result, err := a.stock.WriteOffExpiredBatches(ctx, application.WriteOffExpiredCommand{
		Key:         input.Key,
		PerformedBy: input.PerformedBy,
		AsOf:        &asOf,
	})
	if err != nil {
		return nil, toActivityError(err)
	}
	return &workflows.WriteOffOutcome{
		Key:      input.Key,
		Batches:  len(result.Batches),
		Quantity: result.TotalQuantity,
	}, nil
}

// ReconcileStock runs one reconciliation sweep over every key
func (a *MaintenanceActivities) ReconcileStock(ctx context.Context, input workflows.ReconcileInput) (*workflows.ReconcileSummary, error) {
	report, err := a.reconciler.ReconcileAll(ctx, application.ReconcileCommand{
		BatchSize: input.BatchSize,
		DryRun:    input.DryRun,
	})
	if err != nil {
		return nil, toActivityError(err)
	}
	return &workflows.ReconcileSummary{
		Checked:    report.Checked,
		InSync:     report.InSync,
		Realigned:  report.Realigned,
		Failed:     report.Failed,
		TotalDrift: report.TotalDrift,
	}, nil
}

// toActivityError marks business rejections as non-retryable; infrastructure
// errors are returned as-is so Temporal retries them.
func toActivityError(err error) error {
	appErr := errors.MapDomainError(err)
	switch {
	case appErr.HTTPStatus == http.StatusBadRequest:
		return temporal.NewNonRetryableApplicationError(appErr.Message, workflows.ValidationErrorType, err)
	case appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500:
		return temporal.NewNonRetryableApplicationError(appErr.Message, workflows.StockRejectedErrorType, err)
	default:
		return err
	}
}
