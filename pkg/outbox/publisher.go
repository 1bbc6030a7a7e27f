package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

// EventPublisher delivers one CloudEvent to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.StockCloudEvent) error
}

// PublisherConfig holds configuration for the outbox relay
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Retention is how long published messages are kept; zero keeps them forever
	Retention time.Duration
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    100,
		Retention:    7 * 24 * time.Hour,
	}
}

// PublisherStats counts deliveries since start
type PublisherStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Publisher relays outbox messages to the broker. Messages of one stock key
// are delivered in the order they were stored: once a message fails, later
// messages of the same key wait for the next poll.
type Publisher struct {
	repo     Repository
	producer EventPublisher
	logger   *logging.Logger
	metrics  *metrics.Metrics
	config   PublisherConfig

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	published atomic.Int64
	failed    atomic.Int64
}

func NewPublisher(repo Repository, producer EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{
		repo:     repo,
		producer: producer,
		logger:   logger.WithComponent("outbox-publisher"),
		metrics:  m,
		config:   *config,
	}
}

// Start runs the relay loop in the background until Stop or ctx ends
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("outbox publisher already running")
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	p.logger.Info("Starting outbox publisher",
		"interval", p.config.PollInterval,
		"batchSize", p.config.BatchSize,
		"retention", p.config.Retention,
	)
	go p.run(ctx, p.stop, p.done)
	return nil
}

// Stop ends the loop after the batch in flight
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return errors.New("outbox publisher not running")
	}
	p.running = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done

	stats := p.Stats()
	p.logger.Info("Outbox publisher stopped", "published", stats.Published, "failed", stats.Failed)
	return nil
}

func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{Published: p.published.Load(), Failed: p.failed.Load()}
}

func (p *Publisher) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()

	var purge <-chan time.Time
	if p.config.Retention > 0 {
		purgeTicker := time.NewTicker(purgeInterval(p.config.Retention))
		defer purgeTicker.Stop()
		purge = purgeTicker.C
	}

	for {
		select {
		case <-poll.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.WithError(err).Error("Outbox poll failed")
			}
		case <-purge:
			if _, err := p.Purge(ctx); err != nil {
				p.logger.WithError(err).Warn("Outbox purge failed")
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func purgeInterval(retention time.Duration) time.Duration {
	if interval := retention / 24; interval < time.Hour {
		return interval
	}
	return time.Hour
}

// ProcessOnce delivers one batch of pending messages and returns how many were
// published. An open producer circuit ends the batch without spending attempts.
func (p *Publisher) ProcessOnce(ctx context.Context) (int, error) {
	messages, err := p.repo.Pending(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending outbox messages: %w", err)
	}

	published := 0
	held := make(map[string]bool)
	for i, msg := range messages {
		if held[msg.StockKey] {
			continue
		}

		err := p.deliver(ctx, msg)
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			p.logger.Warn("Producer unavailable, deferring outbox batch", "deferred", len(messages)-i)
			break
		}
		if err != nil {
			held[msg.StockKey] = true
			p.failed.Add(1)
			p.logger.WithError(err).Error("Failed to publish outbox message",
				"messageId", msg.ID,
				"eventType", msg.EventType,
				"stockKey", msg.StockKey,
				"attempt", msg.Attempts+1,
			)
			if err := p.repo.RecordFailure(ctx, msg.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("Failed to record outbox failure", "messageId", msg.ID)
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, msg.ID, time.Now().UTC()); err != nil {
			// delivered but unmarked: the next poll sends it again
			held[msg.StockKey] = true
			p.logger.WithError(err).Error("Failed to mark outbox message published", "messageId", msg.ID)
			continue
		}
		published++
		p.published.Add(1)
	}

	if pending, err := p.repo.CountPending(ctx); err == nil {
		p.metrics.SetOutboxPending(pending)
	}
	return published, nil
}

func (p *Publisher) deliver(ctx context.Context, msg *Message) error {
	event, err := msg.Event()
	if err != nil {
		return err
	}
	if err := p.producer.PublishEvent(ctx, msg.Topic, event); err != nil {
		return err
	}
	p.logger.Debug("Relayed outbox message",
		"messageId", msg.ID,
		"eventType", msg.EventType,
		"topic", msg.Topic,
		"stockKey", msg.StockKey,
	)
	return nil
}

// Purge deletes messages published longer ago than the retention
func (p *Publisher) Purge(ctx context.Context) (int64, error) {
	if p.config.Retention <= 0 {
		return 0, nil
	}
	purged, err := p.repo.Purge(ctx, time.Now().Add(-p.config.Retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", err)
	}
	if purged > 0 {
		p.logger.Info("Purged published outbox messages", "count", purged)
	}
	return purged, nil
}
