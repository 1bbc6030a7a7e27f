// Package outbox stores stock facts next to the record that raised them and
// relays them to the broker afterwards, giving at-least-once delivery without
// a distributed transaction.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
)

// MaxAttempts is the number of failed deliveries after which a message is
// parked. Parked messages stay in the outbox until an operator deals with them.
const MaxAttempts = 10

// Message is one CloudEvent waiting for delivery
type Message struct {
	ID          string          `bson:"_id" json:"id"`
	StockKey    string          `bson:"stockKey" json:"stockKey"`
	EventType   string          `bson:"eventType" json:"eventType"`
	Topic       string          `bson:"topic" json:"topic"`
	Payload     json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	Attempts    int             `bson:"attempts" json:"attempts"`
	LastError   string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

// NewMessage serializes event for delivery to topic. The message id is the
// event id, so a fact written twice is rejected by the store.
func NewMessage(stockKey, topic string, event *cloudevents.StockCloudEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	return &Message{
		ID:        event.ID,
		StockKey:  stockKey,
		EventType: event.Type,
		Topic:     topic,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *Message) Published() bool {
	return m.PublishedAt != nil
}

// Deliverable reports whether the relay should still try the message
func (m *Message) Deliverable() bool {
	return !m.Published() && m.Attempts < MaxAttempts
}

// Event decodes the stored CloudEvent
func (m *Message) Event() (*cloudevents.StockCloudEvent, error) {
	var event cloudevents.StockCloudEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode outbox message %s: %w", m.ID, err)
	}
	return &event, nil
}

// Repository persists outbox messages. Append called with a Mongo session
// context joins the caller's transaction.
type Repository interface {
	Append(ctx context.Context, messages ...*Message) error

	// Pending returns deliverable messages, oldest first
	Pending(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id, reason string) error

	// Purge deletes messages published before the cutoff
	Purge(ctx context.Context, publishedBefore time.Time) (int64, error)

	// CountPending counts unpublished messages, parked ones included
	CountPending(ctx context.Context) (int64, error)

	// ForKey lists every message of one stock key, oldest first
	ForKey(ctx context.Context, stockKey string) ([]*Message, error)
}
