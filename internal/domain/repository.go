package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InventoryRecordRepository defines the port for batch costing persistence.
// Find methods return nil without error when nothing matches.
type InventoryRecordRepository interface {
	// Save persists the record and its pending domain events.
	// It fails with ErrConcurrentModification if a newer version is stored.
	Save(ctx context.Context, record *InventoryRecord) error

	// FindByKey retrieves the record for a stock key
	FindByKey(ctx context.Context, key StockKey) (*InventoryRecord, error)

	// FindBySite lists records of one site with pagination
	FindBySite(ctx context.Context, organizationID, siteID string, limit, offset int) ([]*InventoryRecord, error)

	// FindKeysWithExpiredBatches returns keys that hold an active batch expiring before the cutoff
	FindKeysWithExpiredBatches(ctx context.Context, cutoff time.Time, limit int) ([]StockKey, error)

	// ListKeys pages over every stored key in a stable order
	ListKeys(ctx context.Context, limit, offset int) ([]StockKey, error)
}

// LedgerRepository defines the port for quantity ledger persistence
type LedgerRepository interface {
	// Save persists the ledger header and appends its pending entries
	Save(ctx context.Context, ledger *LedgerRecord) error

	// FindByKey retrieves the ledger header for a stock key
	FindByKey(ctx context.Context, key StockKey) (*LedgerRecord, error)

	// FindEntries returns the latest entries, newest first
	FindEntries(ctx context.Context, key StockKey, limit int) ([]LedgerEntry, error)

	// FindEntryByIdempotencyKey returns the entry recorded for a request id
	FindEntryByIdempotencyKey(ctx context.Context, key StockKey, idempotencyKey string) (*LedgerEntry, error)

	// SumDeltas returns the running sum of every entry delta
	SumDeltas(ctx context.Context, key StockKey) (decimal.Decimal, error)
}
