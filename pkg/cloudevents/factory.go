package cloudevents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
)

// EventFactory creates CloudEvents for stock facts
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent creates a new StockCloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *StockCloudEvent {
	event := &StockCloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	if ctx != nil {
		if correlationID := logging.CorrelationIDFromContext(ctx); correlationID != "" {
			event.CorrelationID = correlationID
			event.SetExtension(ExtCorrelationID, correlationID)
		}
	}

	return event
}

// CreateStockEvent creates an event for one stock key. The event time is
// the moment the fact happened, not the moment it was wrapped.
func (f *EventFactory) CreateStockEvent(
	ctx context.Context,
	eventType string,
	organizationID, siteID, itemID string,
	occurredAt time.Time,
	data interface{},
) *StockCloudEvent {
	event := f.CreateEvent(ctx, eventType, StockSubject(organizationID, siteID, itemID), data)
	if !occurredAt.IsZero() {
		event.Time = occurredAt.UTC()
	}
	event.SetStockKey(organizationID, siteID, itemID)
	return event
}

// StockSubject builds the subject for a stock key
func StockSubject(organizationID, siteID, itemID string) string {
	return fmt.Sprintf("stock/%s/%s/%s", organizationID, siteID, itemID)
}
