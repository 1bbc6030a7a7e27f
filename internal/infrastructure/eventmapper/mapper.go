// Package eventmapper turns inventory record domain events into outbox entries
// wrapped as CloudEvents, so every repository writes the same envelope.
package eventmapper

import (
	"context"
	"fmt"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
	"github.com/wms-platform/ingredient-stock/pkg/kafka"
	"github.com/wms-platform/ingredient-stock/pkg/outbox"
)

// ContractValidator checks an event payload against the published contract
type ContractValidator interface {
	Validate(eventType string, data interface{}) error
}

// Mapper converts domain events to outbox events
type Mapper struct {
	factory   *cloudevents.EventFactory
	validator ContractValidator
	topic     string
}

// New creates a mapper. A nil validator skips contract checks; an empty topic
// uses the default stock events topic.
func New(factory *cloudevents.EventFactory, validator ContractValidator, topic string) *Mapper {
	if factory == nil {
		factory = cloudevents.NewEventFactory(cloudevents.SourceIngredientStock)
	}
	if topic == "" {
		topic = kafka.Topics.StockEvents
	}
	return &Mapper{factory: factory, validator: validator, topic: topic}
}

// Topic returns the topic outbox entries are addressed to
func (m *Mapper) Topic() string {
	return m.topic
}

// ToMessages wraps each published fact. Events of other types are skipped.
func (m *Mapper) ToMessages(ctx context.Context, key domain.StockKey, events []domain.DomainEvent) ([]*outbox.Message, error) {
	out := make([]*outbox.Message, 0, len(events))
	for _, event := range events {
		switch event.(type) {
		case *domain.StockReceivedEvent, *domain.StockConsumedEvent,
			*domain.ReorderPointBreachedEvent, *domain.StockDepletedEvent:
		default:
			continue
		}

		if m.validator != nil {
			if err := m.validator.Validate(event.EventType(), event); err != nil {
				return nil, fmt.Errorf("event %s breaks the published contract: %w", event.EventType(), err)
			}
		}

		eventKey := event.StockKey()
		cloudEvent := m.factory.CreateStockEvent(ctx, event.EventType(),
			eventKey.OrganizationID, eventKey.SiteID, eventKey.ItemID, event.OccurredAt(), event)

		msg, err := outbox.NewMessage(key.String(), m.topic, cloudEvent)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
