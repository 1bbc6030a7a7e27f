package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRecordDTO represents an inventory record in responses
type StockRecordDTO struct {
	OrganizationID      string          `json:"organizationId"`
	SiteID              string          `json:"siteId"`
	ItemID              string          `json:"itemId"`
	Name                string          `json:"name"`
	SKU                 string          `json:"sku,omitempty"`
	Unit                string          `json:"unit"`
	Category            string          `json:"category,omitempty"`
	ReorderPoint        decimal.Decimal `json:"reorderPoint"`
	ParLevel            decimal.Decimal `json:"parLevel"`
	QuantityOnHand      decimal.Decimal `json:"quantityOnHand"`
	QuantityReserved    decimal.Decimal `json:"quantityReserved"`
	QuantityAvailable   decimal.Decimal `json:"quantityAvailable"`
	WeightedAverageCost decimal.Decimal `json:"weightedAverageCost"`
	InventoryValue      decimal.Decimal `json:"inventoryValue"`
	StockLevel          string          `json:"stockLevel"`
	ActiveBatches       int             `json:"activeBatches"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// LevelInfoDTO answers GetLevelInfo
type LevelInfoDTO struct {
	QuantityOnHand      decimal.Decimal `json:"quantityOnHand"`
	QuantityReserved    decimal.Decimal `json:"quantityReserved"`
	QuantityAvailable   decimal.Decimal `json:"quantityAvailable"`
	WeightedAverageCost decimal.Decimal `json:"weightedAverageCost"`
	StockLevel          string          `json:"stockLevel"`
	ReorderPoint        decimal.Decimal `json:"reorderPoint"`
	ParLevel            decimal.Decimal `json:"parLevel"`
	EarliestExpiry      *time.Time      `json:"earliestExpiry,omitempty"`
}

// StockLevelDTO answers GetStockLevel
type StockLevelDTO struct {
	StockLevel string `json:"stockLevel"`
}

// BatchDTO represents a stock batch
type BatchDTO struct {
	BatchID           string          `json:"batchId"`
	BatchNumber       string          `json:"batchNumber"`
	Origin            string          `json:"origin"`
	Status            string          `json:"status"`
	ReceivedAt        time.Time       `json:"receivedAt"`
	ExpiresAt         *time.Time      `json:"expiresAt,omitempty"`
	OriginalQuantity  decimal.Decimal `json:"originalQuantity"`
	RemainingQuantity decimal.Decimal `json:"remainingQuantity"`
	UnitCost          decimal.Decimal `json:"unitCost"`
	TotalCost         decimal.Decimal `json:"totalCost"`
	SupplierRef       string          `json:"supplierRef,omitempty"`
	DeliveryRef       string          `json:"deliveryRef,omitempty"`
	StorageLocation   string          `json:"storageLocation,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

// MovementDTO represents an audit movement
type MovementDTO struct {
	MovementID  string          `json:"movementId"`
	Type        string          `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	Reason      string          `json:"reason,omitempty"`
	BatchID     string          `json:"batchId,omitempty"`
	ExternalRef string          `json:"externalRef,omitempty"`
	PerformedBy string          `json:"performedBy,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// LedgerEntryDTO represents one ledger line
type LedgerEntryDTO struct {
	EntryID      string            `json:"entryId"`
	Sequence     int64             `json:"sequence"`
	Delta        decimal.Decimal   `json:"delta"`
	BalanceAfter decimal.Decimal   `json:"balanceAfter"`
	Category     string            `json:"category"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RecordedAt   time.Time         `json:"recordedAt"`
}

// LedgerDTO represents a ledger with its latest entries
type LedgerDTO struct {
	OrganizationID string           `json:"organizationId"`
	SiteID         string           `json:"siteId"`
	ItemID         string           `json:"itemId"`
	Balance        decimal.Decimal  `json:"balance"`
	LastSequence   int64            `json:"lastSequence"`
	Entries        []LedgerEntryDTO `json:"entries"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// SufficiencyDTO answers HasSufficientStock
type SufficiencyDTO struct {
	Quantity   decimal.Decimal `json:"quantity"`
	Sufficient bool            `json:"sufficient"`
}

// InventoryValueDTO answers GetInventoryValue
type InventoryValueDTO struct {
	QuantityOnHand      decimal.Decimal `json:"quantityOnHand"`
	WeightedAverageCost decimal.Decimal `json:"weightedAverageCost"`
	TotalValue          decimal.Decimal `json:"totalValue"`
}

// RecordListDTO is one page of records
type RecordListDTO struct {
	Records []StockRecordDTO `json:"records"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}
