package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ingredient stock metrics. Every method is safe on a nil receiver.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Stock metrics
	StockMovements      *prometheus.CounterVec
	StockQuantityMoved  *prometheus.CounterVec
	LedgerRejections    *prometheus.CounterVec
	StockAlerts         *prometheus.CounterVec
	ReconciliationRuns  *prometheus.CounterVec
	ReconciliationDrift prometheus.Counter
	ActiveMailboxLanes  *prometheus.GaugeVec
	OperationDuration   *prometheus.HistogramVec

	// Kafka and outbox metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec
	OutboxPending        prometheus.Gauge

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Temporal metrics
	ActivitiesCompleted *prometheus.CounterVec
	ActivityDuration    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates a Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	constLabels := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests", ConstLabels: constLabels,
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds", ConstLabels: constLabels,
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path"})

	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_requests_in_flight", Help: "HTTP requests currently being processed", ConstLabels: constLabels,
	})

	m.StockMovements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "stock", Name: "movements_total", Help: "Stock movements recorded by type", ConstLabels: constLabels,
	}, []string{"type"})

	m.StockQuantityMoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "stock", Name: "quantity_moved_total", Help: "Absolute quantity moved by movement type", ConstLabels: constLabels,
	}, []string{"type"})

	m.LedgerRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "stock", Name: "ledger_rejections_total", Help: "Ledger debits rejected for insufficient balance", ConstLabels: constLabels,
	}, []string{"category"})

	m.StockAlerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "stock", Name: "alerts_total", Help: "Stock level alerts raised by event type", ConstLabels: constLabels,
	}, []string{"event_type"})

	m.ReconciliationRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "stock", Name: "reconciliations_total", Help: "Ledger reconciliations by outcome", ConstLabels: constLabels,
	}, []string{"outcome"})

	m.ReconciliationDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "stock", Name: "reconciliation_drift_quantity_total", Help: "Absolute ledger drift corrected by reconciliation", ConstLabels: constLabels,
	})

	m.ActiveMailboxLanes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "stock", Name: "mailbox_lanes_active", Help: "Stock keys with a live serialization lane", ConstLabels: constLabels,
	}, []string{"mailbox"})

	m.OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "stock", Name: "operation_duration_seconds", Help: "Stock command duration", ConstLabels: constLabels,
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_published_total", Help: "Kafka events published", ConstLabels: constLabels,
	}, []string{"topic", "event_type", "status"})

	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "kafka_publish_duration_seconds", Help: "Kafka publish duration in seconds", ConstLabels: constLabels,
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"topic"})

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "outbox_pending_events", Help: "Outbox events waiting to be published", ConstLabels: constLabels,
	})

	m.MongoDBOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "mongodb_operations_total", Help: "MongoDB operations", ConstLabels: constLabels,
	}, []string{"collection", "operation", "status"})

	m.MongoDBOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "mongodb_operation_duration_seconds", Help: "MongoDB operation duration in seconds", ConstLabels: constLabels,
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"collection", "operation"})

	m.ActivitiesCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "temporal_activities_completed_total", Help: "Temporal activities completed", ConstLabels: constLabels,
	}, []string{"activity_type", "status"})

	m.ActivityDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "temporal_activity_duration_seconds", Help: "Temporal activity duration in seconds", ConstLabels: constLabels,
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
	}, []string{"activity_type"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)", ConstLabels: constLabels,
	}, []string{"name"})

	m.CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Circuit breaker trips", ConstLabels: constLabels,
	}, []string{"name"})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.StockMovements,
		m.StockQuantityMoved,
		m.LedgerRejections,
		m.StockAlerts,
		m.ReconciliationRuns,
		m.ReconciliationDrift,
		m.ActiveMailboxLanes,
		m.OperationDuration,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.OutboxPending,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.ActivitiesCompleted,
		m.ActivityDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordMovement counts a movement and its absolute quantity
func (m *Metrics) RecordMovement(movementType string, quantity float64) {
	if m == nil {
		return
	}
	m.StockMovements.WithLabelValues(movementType).Inc()
	if quantity < 0 {
		quantity = -quantity
	}
	m.StockQuantityMoved.WithLabelValues(movementType).Add(quantity)
}

// RecordLedgerRejection counts a debit refused by the ledger
func (m *Metrics) RecordLedgerRejection(category string) {
	if m == nil {
		return
	}
	m.LedgerRejections.WithLabelValues(category).Inc()
}

// RecordAlert counts a level alert
func (m *Metrics) RecordAlert(eventType string) {
	if m == nil {
		return
	}
	m.StockAlerts.WithLabelValues(eventType).Inc()
}

// RecordReconciliation counts a reconciliation and the drift it corrected
func (m *Metrics) RecordReconciliation(outcome string, drift float64) {
	if m == nil {
		return
	}
	m.ReconciliationRuns.WithLabelValues(outcome).Inc()
	if drift < 0 {
		drift = -drift
	}
	if drift > 0 {
		m.ReconciliationDrift.Add(drift)
	}
}

// SetActiveLanes sets the number of live lanes of one mailbox
func (m *Metrics) SetActiveLanes(mailbox string, n int) {
	if m == nil {
		return
	}
	m.ActiveMailboxLanes.WithLabelValues(mailbox).Set(float64(n))
}

// RecordOperation observes a stock command duration
func (m *Metrics) RecordOperation(operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation, statusLabel(success)).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// SetOutboxPending sets the number of unpublished outbox events
func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(collection, operation, statusLabel(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// RecordActivityCompleted records a Temporal activity completion
func (m *Metrics) RecordActivityCompleted(activityType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActivitiesCompleted.WithLabelValues(activityType, statusLabel(success)).Inc()
	m.ActivityDuration.WithLabelValues(activityType).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTrips.WithLabelValues(name).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
