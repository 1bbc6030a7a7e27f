package cloudevents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
)

func TestCreateStockEvent(t *testing.T) {
	factory := NewEventFactory(SourceIngredientStock)
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")
	occurred := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	event := factory.CreateStockEvent(ctx, StockReceived, "org-1", "site-1", "flour", occurred, map[string]string{"quantity": "25"})

	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, SourceIngredientStock, event.Source)
	assert.Equal(t, "stock/org-1/site-1/flour", event.Subject)
	assert.Equal(t, occurred.UTC(), event.Time)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, "org-1", event.Extensions[ExtOrganizationID])
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, event.Subject, event.PartitionKey())
}

func TestCreateEvent_NoCorrelation(t *testing.T) {
	factory := NewEventFactory(SourceIngredientStock)

	event := factory.CreateEvent(context.Background(), StockDepleted, "", nil)

	assert.Empty(t, event.CorrelationID)
	assert.Equal(t, event.ID, event.PartitionKey())
}

func TestStockCloudEvent_JSON(t *testing.T) {
	factory := NewEventFactory(SourceIngredientStock)
	event := factory.CreateStockEvent(context.Background(), StockConsumed, "org-1", "site-1", "milk", time.Time{}, map[string]string{"reason": "Sale"})

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, StockConsumed, decoded["type"])
	assert.Equal(t, "milk", decoded["wmsitemid"])
	assert.NotContains(t, decoded, "Extensions")
}

func TestHeaders(t *testing.T) {
	factory := NewEventFactory(SourceIngredientStock)
	event := factory.CreateStockEvent(context.Background(), ReorderPointBreached, "org-1", "site-1", "milk", time.Now(), nil)

	headers := event.Headers()

	assert.Equal(t, ReorderPointBreached, headers["ce-type"])
	assert.Equal(t, "site-1", headers[HeaderSiteID])
	assert.NotContains(t, headers, HeaderCorrelationID)
}

func TestIsStockFact(t *testing.T) {
	assert.True(t, IsStockFact(StockReceived))
	assert.True(t, IsStockFact(StockDepleted))
	assert.False(t, IsStockFact("wms.order.received"))
}
