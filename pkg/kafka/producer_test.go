package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestEvent(eventType string) *cloudevents.StockCloudEvent {
	factory := cloudevents.NewEventFactory(cloudevents.SourceIngredientStock)
	return factory.CreateStockEvent(context.Background(), eventType, "org-1", "site-1", "flour", time.Now(), map[string]string{"quantity": "5"})
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishEvent(t *testing.T) {
	writer := &fakeWriter{}
	var topics []string
	producer := NewProducerWithWriterFactory(DefaultConfig(), func(topic string) MessageWriter {
		topics = append(topics, topic)
		return writer
	})

	event := newTestEvent(cloudevents.StockConsumed)
	require.NoError(t, producer.PublishEvent(context.Background(), Topics.StockEvents, event))
	require.NoError(t, producer.PublishEvent(context.Background(), Topics.StockEvents, newTestEvent(cloudevents.StockDepleted)))

	assert.Equal(t, []string{Topics.StockEvents}, topics, "writer is created once per topic")
	require.Len(t, writer.messages, 2)
	msg := writer.messages[0]
	assert.Equal(t, "stock/org-1/site-1/flour", string(msg.Key))
	assert.Equal(t, cloudevents.StockConsumed, headerValue(msg, "ce-type"))
	assert.Equal(t, "flour", headerValue(msg, cloudevents.HeaderItemID))

	var decoded cloudevents.StockCloudEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestProducer_PublishBatch(t *testing.T) {
	writer := &fakeWriter{}
	producer := NewProducerWithWriterFactory(DefaultConfig(), func(string) MessageWriter { return writer })

	err := producer.PublishBatch(context.Background(), Topics.StockEvents, []*cloudevents.StockCloudEvent{
		newTestEvent(cloudevents.StockReceived),
		newTestEvent(cloudevents.ReorderPointBreached),
	})

	require.NoError(t, err)
	assert.Len(t, writer.messages, 2)
}

func TestCircuitBreakerProducer_OpensAfterFailures(t *testing.T) {
	writer := &fakeWriter{err: errors.New("leader not available")}
	base := NewProducerWithWriterFactory(DefaultConfig(), func(string) MessageWriter { return writer })
	m := metrics.New(metrics.DefaultConfig("test"))
	producer := NewCircuitBreakerProducer(NewInstrumentedProducer(base, m, logging.Discard()), logging.Discard(), m)

	for i := 0; i < 5; i++ {
		err := producer.PublishEvent(context.Background(), Topics.StockEvents, newTestEvent(cloudevents.StockConsumed))
		assert.ErrorContains(t, err, "leader not available")
	}

	err := producer.PublishEvent(context.Background(), Topics.StockEvents, newTestEvent(cloudevents.StockConsumed))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, "open", producer.State())
	assert.Same(t, base, producer.Underlying().producer)
}
