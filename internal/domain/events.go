package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	StockKey() StockKey
}

// Event type names published on the stock fact channel
const (
	EventTypeStockReceived        = "wms.ingredient-stock.received"
	EventTypeStockConsumed        = "wms.ingredient-stock.consumed"
	EventTypeReorderPointBreached = "wms.ingredient-stock.reorder-point-breached"
	EventTypeStockDepleted        = "wms.ingredient-stock.depleted"
)

// StockReceivedEvent is published when a batch is received or transferred in
type StockReceivedEvent struct {
	OrganizationID string          `json:"organizationId"`
	SiteID         string          `json:"siteId"`
	ItemID         string          `json:"itemId"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	NewOnHand      decimal.Decimal `json:"newOnHand"`
	BatchNumber    string          `json:"batchNumber"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	SupplierRef    string          `json:"supplierRef,omitempty"`
	ReceivedAt     time.Time       `json:"receivedAt"`
}

func (e *StockReceivedEvent) EventType() string     { return EventTypeStockReceived }
func (e *StockReceivedEvent) OccurredAt() time.Time { return e.ReceivedAt }
func (e *StockReceivedEvent) StockKey() StockKey {
	return StockKey{OrganizationID: e.OrganizationID, SiteID: e.SiteID, ItemID: e.ItemID}
}

// StockConsumedEvent is published after a FIFO consumption
type StockConsumedEvent struct {
	OrganizationID string          `json:"organizationId"`
	SiteID         string          `json:"siteId"`
	ItemID         string          `json:"itemId"`
	Quantity       decimal.Decimal `json:"quantity"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	NewAvailable   decimal.Decimal `json:"newAvailable"`
	OrderRef       string          `json:"orderRef,omitempty"`
	Reason         string          `json:"reason"`
	ConsumedAt     time.Time       `json:"consumedAt"`
}

func (e *StockConsumedEvent) EventType() string     { return EventTypeStockConsumed }
func (e *StockConsumedEvent) OccurredAt() time.Time { return e.ConsumedAt }
func (e *StockConsumedEvent) StockKey() StockKey {
	return StockKey{OrganizationID: e.OrganizationID, SiteID: e.SiteID, ItemID: e.ItemID}
}

// ReorderPointBreachedEvent is published when the level enters Low
type ReorderPointBreachedEvent struct {
	OrganizationID  string          `json:"organizationId"`
	SiteID          string          `json:"siteId"`
	ItemID          string          `json:"itemId"`
	Available       decimal.Decimal `json:"available"`
	ReorderPoint    decimal.Decimal `json:"reorderPoint"`
	ParLevel        decimal.Decimal `json:"parLevel"`
	QuantityToOrder decimal.Decimal `json:"quantityToOrder"`
	BreachedAt      time.Time       `json:"breachedAt"`
}

func (e *ReorderPointBreachedEvent) EventType() string     { return EventTypeReorderPointBreached }
func (e *ReorderPointBreachedEvent) OccurredAt() time.Time { return e.BreachedAt }
func (e *ReorderPointBreachedEvent) StockKey() StockKey {
	return StockKey{OrganizationID: e.OrganizationID, SiteID: e.SiteID, ItemID: e.ItemID}
}

// StockDepletedEvent is published when the level enters OutOfStock
type StockDepletedEvent struct {
	OrganizationID string    `json:"organizationId"`
	SiteID         string    `json:"siteId"`
	ItemID         string    `json:"itemId"`
	TriggeringRef  string    `json:"triggeringRef,omitempty"`
	DepletedAt     time.Time `json:"depletedAt"`
}

func (e *StockDepletedEvent) EventType() string     { return EventTypeStockDepleted }
func (e *StockDepletedEvent) OccurredAt() time.Time { return e.DepletedAt }
func (e *StockDepletedEvent) StockKey() StockKey {
	return StockKey{OrganizationID: e.OrganizationID, SiteID: e.SiteID, ItemID: e.ItemID}
}
