package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testKey() StockKey {
	return StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: "flour"}
}

func newTestRecord(t *testing.T, reorderPoint, parLevel string) *InventoryRecord {
	t.Helper()
	record := &InventoryRecord{}
	err := record.Initialize(testKey(), ItemDetails{Name: "Flour", SKU: "FLR-001", Unit: "kg", Category: "dry"}, d(reorderPoint), d(parLevel))
	require.NoError(t, err)
	return record
}

func receive(t *testing.T, record *InventoryRecord, quantity, unitCost string, receivedAt time.Time) *ReceiptResult {
	t.Helper()
	result, err := record.ReceiveBatch(ReceiptParams{
		Quantity:   d(quantity),
		UnitCost:   d(unitCost),
		ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	return result
}

func eventTypes(events []DomainEvent) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType())
	}
	return types
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, d(expected).Equal(actual), "expected %s, got %s %v", expected, actual, msgAndArgs)
}
