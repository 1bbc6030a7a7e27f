package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/tracing"
)

// InstrumentedProducer adds a producer span, publish metrics and the trace
// context extensions to every event
type InstrumentedProducer struct {
	producer *Producer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

func NewInstrumentedProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &InstrumentedProducer{
		producer: producer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes one event. The event is stamped with the producer
// span's trace context and, when it has none, a correlation id taken from the trace.
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.StockCloudEvent) (err error) {
	attrs := append(tracing.MessagingSpanAttributes("kafka", topic, "publish"),
		attribute.String("messaging.message_id", event.ID),
		attribute.String("cloudevents.event_type", event.Type),
	)
	attrs = append(attrs, tracing.StockKeySpanAttributes(event.OrganizationID, event.SiteID, event.ItemID)...)

	ctx, span := p.tracer.Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if event.CorrelationID == "" {
		event.CorrelationID = tracing.TraceID(ctx)
	}
	for name, value := range tracing.TraceHeaders(ctx) {
		event.SetExtension(name, value)
	}

	start := time.Now()
	err = p.producer.PublishEvent(ctx, topic, event)
	p.observe(ctx, topic, event.Type, err, time.Since(start))
	return err
}

// PublishBatch publishes events in one write, recording one sample per event
func (p *InstrumentedProducer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.StockCloudEvent) (err error) {
	ctx, span := p.tracer.Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(append(tracing.MessagingSpanAttributes("kafka", topic, "publish"),
			attribute.Int("messaging.batch.message_count", len(events)))...),
	)
	defer func() { tracing.EndSpan(span, err) }()

	headers := tracing.TraceHeaders(ctx)
	for _, event := range events {
		for name, value := range headers {
			event.SetExtension(name, value)
		}
	}

	start := time.Now()
	err = p.producer.PublishBatch(ctx, topic, events)
	elapsed := time.Since(start)
	for _, event := range events {
		p.observe(ctx, topic, event.Type, err, elapsed)
	}
	return err
}

func (p *InstrumentedProducer) observe(ctx context.Context, topic, eventType string, err error, elapsed time.Duration) {
	p.metrics.RecordKafkaPublish(topic, eventType, err == nil, elapsed)
	p.logger.KafkaPublish(ctx, topic, eventType, err == nil, elapsed)
}

func (p *InstrumentedProducer) Close() error {
	return p.producer.Close()
}
