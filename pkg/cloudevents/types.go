package cloudevents

import (
	"time"
)

// EventType constants for ingredient stock facts
const (
	StockReceived        = "wms.ingredient-stock.received"
	StockConsumed        = "wms.ingredient-stock.consumed"
	ReorderPointBreached = "wms.ingredient-stock.reorder-point-breached"
	StockDepleted        = "wms.ingredient-stock.depleted"
)

// SourceIngredientStock is the CloudEvents source of every stock fact
const SourceIngredientStock = "/wms/ingredient-stock"

// SpecVersion is the CloudEvents version produced by this package
const SpecVersion = "1.0"

// StockCloudEvent represents a CloudEvents v1.0 compliant stock fact
type StockCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// Stock key extensions
	OrganizationID string `json:"wmsorganizationid,omitempty"`
	SiteID         string `json:"wmssiteid,omitempty"`
	ItemID         string `json:"wmsitemid,omitempty"`
	CorrelationID  string `json:"wmscorrelationid,omitempty"`
}

// PartitionKey returns the key Kafka uses to keep one stock key on one partition
func (e *StockCloudEvent) PartitionKey() string {
	if e.Subject != "" {
		return e.Subject
	}
	return e.ID
}

// IsStockFact reports whether the event type is one of the four stock facts
func IsStockFact(eventType string) bool {
	switch eventType {
	case StockReceived, StockConsumed, ReorderPointBreached, StockDepleted:
		return true
	}
	return false
}
