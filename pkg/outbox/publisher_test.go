package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

const testTopic = "wms.ingredient-stock.events"

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	failOn map[string]bool
	seen   []*cloudevents.StockCloudEvent
}

func (r *recordingPublisher) PublishEvent(_ context.Context, topic string, event *cloudevents.StockCloudEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.failOn[event.Type] {
		return errors.New("broker unavailable")
	}
	r.seen = append(r.seen, event)
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.seen))
	for i, event := range r.seen {
		types[i] = event.Type
	}
	return types
}

func newMessage(t *testing.T, item, eventType string) *Message {
	t.Helper()
	factory := cloudevents.NewEventFactory(cloudevents.SourceIngredientStock)
	event := factory.CreateStockEvent(context.Background(), eventType, "org-1", "site-1", item, time.Now(), map[string]string{"k": "v"})
	msg, err := NewMessage("org-1/site-1/"+item, testTopic, event)
	require.NoError(t, err)
	return msg
}

func TestPublisher_ProcessOnce_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Append(ctx,
		newMessage(t, "flour", cloudevents.StockConsumed),
		newMessage(t, "flour", cloudevents.ReorderPointBreached),
	))
	producer := &recordingPublisher{}
	publisher := NewPublisher(repo, producer, logging.Discard(), nil, nil)

	published, err := publisher.ProcessOnce(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, []string{cloudevents.StockConsumed, cloudevents.ReorderPointBreached}, producer.types())

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPublisher_ProcessOnce_FailureHoldsLaterMessagesOfSameKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Append(ctx,
		newMessage(t, "flour", cloudevents.StockDepleted),
		newMessage(t, "flour", cloudevents.StockReceived),
		newMessage(t, "sugar", cloudevents.StockReceived),
	))
	producer := &recordingPublisher{failOn: map[string]bool{cloudevents.StockDepleted: true}}
	publisher := NewPublisher(repo, producer, logging.Discard(), nil, nil)

	published, err := publisher.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published, "only the other key goes through")

	flour, err := repo.ForKey(ctx, "org-1/site-1/flour")
	require.NoError(t, err)
	require.Len(t, flour, 2)
	assert.Equal(t, 1, flour[0].Attempts)
	assert.Contains(t, flour[0].LastError, "broker unavailable")
	assert.False(t, flour[1].Published())
	assert.Zero(t, flour[1].Attempts)

	producer.failOn = nil
	published, err = publisher.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, []string{cloudevents.StockReceived, cloudevents.StockDepleted, cloudevents.StockReceived}, producer.types())
	assert.Equal(t, PublisherStats{Published: 3, Failed: 1}, publisher.Stats())
}

func TestPublisher_ProcessOnce_OpenCircuitSpendsNoAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Append(ctx, newMessage(t, "flour", cloudevents.StockConsumed)))
	producer := &recordingPublisher{err: fmt.Errorf("kafka-producer unavailable: %w", resilience.ErrCircuitOpen)}
	publisher := NewPublisher(repo, producer, logging.Discard(), nil, nil)

	published, err := publisher.ProcessOnce(ctx)

	require.NoError(t, err)
	assert.Zero(t, published)
	stored, err := repo.ForKey(ctx, "org-1/site-1/flour")
	require.NoError(t, err)
	assert.Zero(t, stored[0].Attempts)
	assert.Zero(t, publisher.Stats().Failed)
}

func TestPublisher_ParkedMessagesAreSkipped(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	msg := newMessage(t, "flour", cloudevents.StockConsumed)
	msg.Attempts = MaxAttempts
	require.NoError(t, repo.Append(ctx, msg))
	producer := &recordingPublisher{}

	published, err := NewPublisher(repo, producer, logging.Discard(), nil, nil).ProcessOnce(ctx)

	require.NoError(t, err)
	assert.Zero(t, published)
	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestPublisher_Purge(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	old, recent := newMessage(t, "flour", cloudevents.StockReceived), newMessage(t, "flour", cloudevents.StockConsumed)
	require.NoError(t, repo.Append(ctx, old, recent))
	require.NoError(t, repo.MarkPublished(ctx, old.ID, time.Now().Add(-48*time.Hour)))
	require.NoError(t, repo.MarkPublished(ctx, recent.ID, time.Now()))
	publisher := NewPublisher(repo, &recordingPublisher{}, logging.Discard(), nil, &PublisherConfig{
		PollInterval: time.Second, BatchSize: 10, Retention: 24 * time.Hour,
	})

	purged, err := publisher.Purge(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	remaining, err := repo.ForKey(ctx, "org-1/site-1/flour")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.ID, remaining[0].ID)
}

func TestPublisher_StartStop(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Append(context.Background(), newMessage(t, "flour", cloudevents.StockReceived)))
	publisher := NewPublisher(repo, &recordingPublisher{}, logging.Discard(), nil, &PublisherConfig{PollInterval: 5 * time.Millisecond, BatchSize: 10})

	require.NoError(t, publisher.Start(context.Background()))
	assert.True(t, publisher.IsRunning())
	assert.Error(t, publisher.Start(context.Background()))

	assert.Eventually(t, func() bool {
		pending, _ := repo.CountPending(context.Background())
		return pending == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, publisher.Stop())
	assert.False(t, publisher.IsRunning())
	assert.Error(t, publisher.Stop())
}

func TestMemoryRepository_AppendRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	msg := newMessage(t, "flour", cloudevents.StockReceived)
	require.NoError(t, repo.Append(ctx, msg))

	err := repo.Append(ctx, newMessage(t, "flour", cloudevents.StockConsumed), msg)

	require.Error(t, err)
	stored, _ := repo.ForKey(ctx, "org-1/site-1/flour")
	assert.Len(t, stored, 1, "a rejected append stores nothing")
}

func TestMessage_Event(t *testing.T) {
	msg := newMessage(t, "flour", cloudevents.StockReceived)

	event, err := msg.Event()

	require.NoError(t, err)
	assert.Equal(t, msg.ID, event.ID)
	assert.Equal(t, "flour", event.ItemID)
	assert.Equal(t, "stock/org-1/site-1/flour", event.Subject)
}
