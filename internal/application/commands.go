package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/domain"
)

// Every mutating command carries the stock key from the route and an optional
// RequestID. Repeating a RequestID replays the original result.

// InitializeCommand creates an inventory record and its ledger
type InitializeCommand struct {
	Key          domain.StockKey `json:"-"`
	Name         string          `json:"name" binding:"required,max=200,safe_string"`
	SKU          string          `json:"sku" binding:"omitempty,max=64,safe_string"`
	Unit         string          `json:"unit" binding:"required,max=32,safe_string"`
	Category     string          `json:"category" binding:"omitempty,max=64,safe_string"`
	ReorderPoint decimal.Decimal `json:"reorderPoint" binding:"decimal_gte0"`
	ParLevel     decimal.Decimal `json:"parLevel" binding:"decimal_gte0"`
}

// ReceiveBatchCommand records a purchasing receipt
type ReceiveBatchCommand struct {
	Key             domain.StockKey `json:"-"`
	Quantity        decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	UnitCost        decimal.Decimal `json:"unitCost" binding:"decimal_gte0"`
	BatchNumber     string          `json:"batchNumber" binding:"omitempty,max=64,safe_string"`
	ReceivedAt      *time.Time      `json:"receivedAt"`
	ExpiresAt       *time.Time      `json:"expiresAt"`
	SupplierRef     string          `json:"supplierRef" binding:"omitempty,max=128,safe_string"`
	DeliveryRef     string          `json:"deliveryRef" binding:"omitempty,max=128,safe_string"`
	StorageLocation string          `json:"storageLocation" binding:"omitempty,max=64,safe_string"`
	Notes           string          `json:"notes" binding:"omitempty,max=500,safe_string"`
	PerformedBy     string          `json:"performedBy" binding:"omitempty,max=128"`
	RequestID       string          `json:"requestId" binding:"omitempty,max=128"`
}

// ReceiveTransferCommand records stock arriving from another site
type ReceiveTransferCommand struct {
	Key          domain.StockKey `json:"-"`
	Quantity     decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	UnitCost     decimal.Decimal `json:"unitCost" binding:"decimal_gte0"`
	SourceSiteID string          `json:"sourceSiteId" binding:"required,stock_id"`
	TransferID   string          `json:"transferId" binding:"required,max=128,safe_string"`
	BatchNumber  string          `json:"batchNumber" binding:"omitempty,max=64,safe_string"`
	ExpiresAt    *time.Time      `json:"expiresAt"`
	PerformedBy  string          `json:"performedBy" binding:"omitempty,max=128"`
	RequestID    string          `json:"requestId" binding:"omitempty,max=128"`
}

// ConsumeCommand draws stock FIFO for production or an order
type ConsumeCommand struct {
	Key         domain.StockKey `json:"-"`
	Quantity    decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	Reason      string          `json:"reason" binding:"omitempty,max=500,safe_string"`
	OrderRef    string          `json:"orderRef" binding:"omitempty,max=128,safe_string"`
	PerformedBy string          `json:"performedBy" binding:"omitempty,max=128"`
	RequestID   string          `json:"requestId" binding:"omitempty,max=128"`
}

// RecordWasteCommand draws spoiled or damaged stock FIFO
type RecordWasteCommand struct {
	Key           domain.StockKey `json:"-"`
	Quantity      decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	WasteCategory string          `json:"wasteCategory" binding:"omitempty,max=64,safe_string"`
	Reason        string          `json:"reason" binding:"required,max=500,safe_string"`
	PerformedBy   string          `json:"performedBy" binding:"omitempty,max=128"`
	RequestID     string          `json:"requestId" binding:"omitempty,max=128"`
}

// AdjustQuantityCommand aligns stock to a physical count
type AdjustQuantityCommand struct {
	Key         domain.StockKey `json:"-"`
	NewQuantity decimal.Decimal `json:"newQuantity" binding:"decimal_gte0"`
	Reason      string          `json:"reason" binding:"required,max=500,safe_string"`
	PerformedBy string          `json:"performedBy" binding:"omitempty,max=128"`
	ApprovedBy  string          `json:"approvedBy" binding:"omitempty,max=128"`
	RequestID   string          `json:"requestId" binding:"omitempty,max=128"`
}

// TransferOutCommand ships stock to another site
type TransferOutCommand struct {
	Key               domain.StockKey `json:"-"`
	Quantity          decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	DestinationSiteID string          `json:"destinationSiteId" binding:"required,stock_id"`
	TransferID        string          `json:"transferId" binding:"required,max=128,safe_string"`
	PerformedBy       string          `json:"performedBy" binding:"omitempty,max=128"`
	RequestID         string          `json:"requestId" binding:"omitempty,max=128"`
}

// WriteOffExpiredCommand writes off every batch expired before AsOf (now when unset)
type WriteOffExpiredCommand struct {
	Key         domain.StockKey `json:"-"`
	PerformedBy string          `json:"performedBy" binding:"omitempty,max=128"`
	AsOf        *time.Time      `json:"asOf"`
}

// ReverseConsumptionCommand puts a recorded consumption back into stock
type ReverseConsumptionCommand struct {
	Key         domain.StockKey `json:"-"`
	MovementID  string          `json:"movementId" binding:"required,max=64"`
	Reason      string          `json:"reason" binding:"required,max=500,safe_string"`
	PerformedBy string          `json:"performedBy" binding:"omitempty,max=128"`
	RequestID   string          `json:"requestId" binding:"omitempty,max=128"`
}

// SetThresholdCommand sets reorder point, par level or reserved quantity
type SetThresholdCommand struct {
	Key   domain.StockKey `json:"-"`
	Value decimal.Decimal `json:"value" binding:"decimal_gte0"`
}

// UpdateItemDetailsCommand replaces the descriptive fields of a record
type UpdateItemDetailsCommand struct {
	Key      domain.StockKey `json:"-"`
	Name     string          `json:"name" binding:"required,max=200,safe_string"`
	SKU      string          `json:"sku" binding:"omitempty,max=64,safe_string"`
	Unit     string          `json:"unit" binding:"required,max=32,safe_string"`
	Category string          `json:"category" binding:"omitempty,max=64,safe_string"`
}

// ListRecordsQuery pages over the records of one site
type ListRecordsQuery struct {
	OrganizationID string
	SiteID         string
	Limit          int
	Offset         int
}

// ReconcileCommand runs a reconciliation sweep
type ReconcileCommand struct {
	BatchSize int  `json:"batchSize" binding:"omitempty,min=1,max=1000"`
	DryRun    bool `json:"dryRun"`
}
