package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/wms-platform/ingredient-stock/internal/application"
	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/eventmapper"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/memory"
	"github.com/wms-platform/ingredient-stock/internal/workflows"
	"github.com/wms-platform/ingredient-stock/pkg/outbox"
)

func newMaintenanceActivities(t *testing.T) (*MaintenanceActivities, *application.StockService) {
	t.Helper()
	records := memory.NewInventoryRecordRepository(outbox.NewMemoryRepository(), eventmapper.New(nil, nil, ""))
	ledger := application.NewLedgerService(memory.NewLedgerRepository(), nil, nil, nil)
	stock := application.NewStockService(records, ledger, nil, nil, nil)
	reconciler := application.NewReconciler(stock, ledger, nil, nil)
	return NewMaintenanceActivities(stock, reconciler, nil), stock
}

func TestMaintenanceActivities_WriteOffAndReconcile(t *testing.T) {
	ctx := context.Background()
	acts, stock := newMaintenanceActivities(t)

	key := domain.StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: "milk"}
	_, err := stock.Initialize(ctx, application.InitializeCommand{
		Key: key, Name: "Milk", Unit: "l", ReorderPoint: decimal.NewFromInt(1), ParLevel: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	expired := now.Add(-time.Hour)
	fresh := now.Add(72 * time.Hour)
	for _, expiresAt := range []time.Time{expired, fresh} {
		expiresAt := expiresAt
		_, err := stock.ReceiveBatch(ctx, application.ReceiveBatchCommand{
			Key: key, Quantity: decimal.NewFromInt(6), UnitCost: decimal.NewFromInt(1), ExpiresAt: &expiresAt,
		})
		require.NoError(t, err)
	}

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.FindExpiredStock, workflows.ExpiredStockInput{Cutoff: now, Limit: 10})
	require.NoError(t, err)
	var keys []domain.StockKey
	require.NoError(t, val.Get(&keys))
	assert.Equal(t, []domain.StockKey{key}, keys)

	val, err = env.ExecuteActivity(acts.WriteOffExpiredStock, workflows.WriteOffInput{
		Key: key, AsOf: now, PerformedBy: workflows.MaintenancePerformer,
	})
	require.NoError(t, err)
	var outcome workflows.WriteOffOutcome
	require.NoError(t, val.Get(&outcome))
	assert.Equal(t, 1, outcome.Batches)
	assert.Equal(t, "6", outcome.Quantity.String())

	level, err := stock.GetLevelInfo(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "6", level.QuantityOnHand.String())

	val, err = env.ExecuteActivity(acts.ReconcileStock, workflows.ReconcileInput{BatchSize: 10})
	require.NoError(t, err)
	var summary workflows.ReconcileSummary
	require.NoError(t, val.Get(&summary))
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.InSync)
	assert.True(t, summary.TotalDrift.IsZero())
}

func TestMaintenanceActivities_BusinessErrorsAreNotRetried(t *testing.T) {
	acts, _ := newMaintenanceActivities(t)

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	tests := []struct {
		name      string
		key       domain.StockKey
		errorType string
	}{
		{
			name:      "uninitialized record",
			key:       domain.StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: "missing"},
			errorType: workflows.StockRejectedErrorType,
		},
		{
			name:      "invalid key",
			key:       domain.StockKey{OrganizationID: "org-1"},
			errorType: workflows.ValidationErrorType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ExecuteActivity(acts.WriteOffExpiredStock, workflows.WriteOffInput{Key: tt.key, AsOf: time.Now()})
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.errorType, appErr.Type())
			assert.True(t, appErr.NonRetryable())
		})
	}
}

func TestToActivityError_PassesInfrastructureErrorsThrough(t *testing.T) {
	cause := errors.New("connection reset")
	err := toActivityError(cause)

	var appErr *temporal.ApplicationError
	assert.False(t, errors.As(err, &appErr))
	assert.ErrorIs(t, err, cause)
}
