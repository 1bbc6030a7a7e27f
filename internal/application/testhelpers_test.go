package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/eventmapper"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/memory"
	"github.com/wms-platform/ingredient-stock/pkg/contracts/asyncapi"
	"github.com/wms-platform/ingredient-stock/pkg/outbox"
)

type testEnv struct {
	stock      *StockService
	ledger     *LedgerService
	records    *memory.InventoryRecordRepository
	ledgerRepo *memory.LedgerRepository
	outbox     *outbox.MemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	validator, err := asyncapi.NewStockEventValidator()
	require.NoError(t, err)

	outboxRepo := outbox.NewMemoryRepository()
	records := memory.NewInventoryRecordRepository(outboxRepo, eventmapper.New(nil, validator, ""))
	ledgerRepo := memory.NewLedgerRepository()
	ledger := NewLedgerService(ledgerRepo, nil, nil, nil)

	return &testEnv{
		stock:      NewStockService(records, ledger, nil, nil, nil),
		ledger:     ledger,
		records:    records,
		ledgerRepo: ledgerRepo,
		outbox:     outboxRepo,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testKey() domain.StockKey {
	return domain.StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: "flour"}
}

func (e *testEnv) initialize(t *testing.T, key domain.StockKey, reorderPoint, parLevel string) {
	t.Helper()
	_, err := e.stock.Initialize(context.Background(), InitializeCommand{
		Key:          key,
		Name:         "Flour",
		SKU:          "FLR-001",
		Unit:         "kg",
		Category:     "dry",
		ReorderPoint: dec(reorderPoint),
		ParLevel:     dec(parLevel),
	})
	require.NoError(t, err)
}

func (e *testEnv) receive(t *testing.T, key domain.StockKey, quantity, unitCost string, receivedAt time.Time) *domain.ReceiptResult {
	t.Helper()
	result, err := e.stock.ReceiveBatch(context.Background(), ReceiveBatchCommand{
		Key:        key,
		Quantity:   dec(quantity),
		UnitCost:   dec(unitCost),
		ReceivedAt: &receivedAt,
	})
	require.NoError(t, err)
	return result
}

func (e *testEnv) balance(t *testing.T, key domain.StockKey) decimal.Decimal {
	t.Helper()
	balance, err := e.ledger.Balance(context.Background(), key)
	require.NoError(t, err)
	return balance
}

func (e *testEnv) outboxTypes(t *testing.T) []string {
	t.Helper()
	events, err := e.outbox.Pending(context.Background(), 0)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.EventType)
	}
	return types
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}
