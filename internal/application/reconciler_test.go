package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/ingredient-stock/internal/domain"
)

func TestReconciler_ReconcileKey(t *testing.T) {
	tests := []struct {
		name    string
		drift   func(t *testing.T, env *testEnv)
		dryRun  bool
		outcome string
		balance string
	}{
		{
			name:    "in sync",
			drift:   func(*testing.T, *testEnv) {},
			outcome: OutcomeInSync,
			balance: "10",
		},
		{
			name: "ledger above batches",
			drift: func(t *testing.T, env *testEnv) {
				_, err := env.ledger.Credit(context.Background(), testKey(), dec("4"), domain.CategoryReceipt, "stray", nil)
				require.NoError(t, err)
			},
			outcome: OutcomeRealigned,
			balance: "10",
		},
		{
			name: "ledger below batches",
			drift: func(t *testing.T, env *testEnv) {
				_, err := env.ledger.Debit(context.Background(), testKey(), dec("3"), domain.CategoryConsumption, "lost commit", nil)
				require.NoError(t, err)
			},
			outcome: OutcomeRealigned,
			balance: "10",
		},
		{
			name: "dry run leaves drift in place",
			drift: func(t *testing.T, env *testEnv) {
				_, err := env.ledger.Debit(context.Background(), testKey(), dec("3"), domain.CategoryConsumption, "lost commit", nil)
				require.NoError(t, err)
			},
			dryRun:  true,
			outcome: OutcomeWouldRealign,
			balance: "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			key := testKey()
			env.initialize(t, key, "0", "0")
			env.receive(t, key, "10", "2", time.Now().UTC())
			tt.drift(t, env)

			reconciler := NewReconciler(env.stock, env.ledger, nil, nil)
			result, err := reconciler.ReconcileKey(context.Background(), key, tt.dryRun)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, result.Outcome)
			requireDecimal(t, tt.balance, env.balance(t, key))
			assert.True(t, result.EntriesDrift.IsZero())
		})
	}
}

func TestReconciler_RealignmentSupersedesPendingRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := testKey()
	env.initialize(t, key, "0", "0")
	env.receive(t, key, "5", "2", time.Now().UTC())

	// the ledger committed the debit but the record save never happened
	_, err := env.ledger.Debit(ctx, key, dec("2"), domain.CategoryConsumption, "consumption",
		map[string]string{domain.MetadataIdempotencyKey: "req-crash"})
	require.NoError(t, err)

	reconciler := NewReconciler(env.stock, env.ledger, nil, nil)
	result, err := reconciler.ReconcileKey(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRealigned, result.Outcome)
	requireDecimal(t, "5", env.balance(t, key))

	// the realignment undid the debit, so the retry must not draw the batches
	_, err = env.stock.Consume(ctx, ConsumeCommand{Key: key, Quantity: dec("2"), RequestID: "req-crash"})
	require.ErrorIs(t, err, domain.ErrRequestIDConflict)

	record, err := env.stock.GetRecord(ctx, key)
	require.NoError(t, err)
	requireDecimal(t, "5", record.QuantityOnHand)
	requireDecimal(t, "5", env.balance(t, key))

	result, err = reconciler.ReconcileKey(ctx, key, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInSync, result.Outcome)
}

func TestReconciler_ReopensMissingLedger(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	env.initialize(t, key, "0", "0")
	env.receive(t, key, "6", "1", time.Now().UTC())

	// a record whose ledger was lost
	other := domain.StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: "salt"}
	record := &domain.InventoryRecord{}
	require.NoError(t, record.Initialize(other, domain.ItemDetails{Name: "Salt", Unit: "kg"}, dec("0"), dec("0")))
	require.NoError(t, env.records.Save(context.Background(), record))

	reconciler := NewReconciler(env.stock, env.ledger, nil, nil)
	result, err := reconciler.ReconcileKey(context.Background(), other, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRealigned, result.Outcome)
	requireDecimal(t, "0", env.balance(t, other))
}

func TestReconciler_ReconcileAllPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		key := domain.StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: fmt.Sprintf("item-%02d", i)}
		env.initialize(t, key, "0", "0")
		env.receive(t, key, "5", "1", time.Now().UTC())
		if i%3 == 0 {
			_, err := env.ledger.Debit(ctx, key, dec("2"), domain.CategoryWaste, "lost commit", nil)
			require.NoError(t, err)
		}
	}

	reconciler := NewReconciler(env.stock, env.ledger, nil, nil)
	report, err := reconciler.ReconcileAll(ctx, ReconcileCommand{BatchSize: 3})
	require.NoError(t, err)

	assert.Equal(t, 7, report.Checked)
	assert.Equal(t, 4, report.InSync)
	assert.Equal(t, 3, report.Realigned)
	assert.Equal(t, 0, report.Failed)
	requireDecimal(t, "6", report.TotalDrift)
	assert.Len(t, report.Results, 3)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	again, err := reconciler.ReconcileAll(ctx, ReconcileCommand{BatchSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, again.InSync)
}

func TestReconciler_InvalidCommand(t *testing.T) {
	env := newTestEnv(t)
	reconciler := NewReconciler(env.stock, env.ledger, nil, nil)

	_, err := reconciler.ReconcileAll(context.Background(), ReconcileCommand{BatchSize: 5000})
	assert.Error(t, err)
}
