package kafka

import (
	"context"

	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

// CircuitBreakerProducer wraps InstrumentedProducer with circuit breaker protection
type CircuitBreakerProducer struct {
	producer       *InstrumentedProducer
	circuitBreaker *resilience.CircuitBreaker
}

// NewCircuitBreakerProducer creates a circuit breaker protected producer. Broker
// outages trip it after a few failed writes so the outbox relay backs off.
func NewCircuitBreakerProducer(producer *InstrumentedProducer, logger *logging.Logger, m *metrics.Metrics) *CircuitBreakerProducer {
	config := resilience.DefaultCircuitBreakerConfig("kafka-producer")
	config.MaxRequests = 5
	config.Rejections = []error{context.Canceled}

	return &CircuitBreakerProducer{
		producer:       producer,
		circuitBreaker: resilience.NewCircuitBreaker(config, logger, m),
	}
}

// PublishEvent publishes a CloudEvent with circuit breaker protection
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.StockCloudEvent) error {
	return resilience.Do(ctx, p.circuitBreaker, func() error {
		return p.producer.PublishEvent(ctx, topic, event)
	})
}

// PublishBatch publishes multiple events with circuit breaker protection
func (p *CircuitBreakerProducer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.StockCloudEvent) error {
	return resilience.Do(ctx, p.circuitBreaker, func() error {
		return p.producer.PublishBatch(ctx, topic, events)
	})
}

// State reports the breaker state for readiness checks
func (p *CircuitBreakerProducer) State() string {
	return p.circuitBreaker.State()
}

// Close closes the underlying producer
func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}

// Underlying returns the underlying InstrumentedProducer
func (p *CircuitBreakerProducer) Underlying() *InstrumentedProducer {
	return p.producer
}

// NewProductionProducer creates a Kafka producer with instrumentation and circuit breaker
func NewProductionProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) *CircuitBreakerProducer {
	baseProducer := NewProducer(config)
	instrumentedProducer := NewInstrumentedProducer(baseProducer, m, logger)
	return NewCircuitBreakerProducer(instrumentedProducer, logger, m)
}
