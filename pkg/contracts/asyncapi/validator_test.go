package asyncapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStockEventValidator_LoadsAllFacts(t *testing.T) {
	v, err := NewStockEventValidator()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"wms.ingredient-stock.consumed",
		"wms.ingredient-stock.depleted",
		"wms.ingredient-stock.received",
		"wms.ingredient-stock.reorder-point-breached",
	}, v.SupportedEventTypes())
}

func TestValidate(t *testing.T) {
	v, err := NewStockEventValidator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		eventType string
		data      interface{}
		wantErr   bool
	}{
		{
			name:      "valid consumed",
			eventType: "wms.ingredient-stock.consumed",
			data: map[string]interface{}{
				"organizationId": "org-1", "siteId": "site-1", "itemId": "flour",
				"quantity": "15", "totalCost": "36.25", "newAvailable": "5",
				"reason": "Sale", "consumedAt": "2026-03-01T09:30:00Z",
			},
		},
		{
			name:      "valid depleted",
			eventType: "wms.ingredient-stock.depleted",
			data: map[string]interface{}{
				"organizationId": "org-1", "siteId": "site-1", "itemId": "flour",
				"depletedAt": "2026-03-01T09:30:00Z",
			},
		},
		{
			name:      "numeric quantity rejected",
			eventType: "wms.ingredient-stock.received",
			data: map[string]interface{}{
				"organizationId": "org-1", "siteId": "site-1", "itemId": "flour",
				"quantity": 10, "unit": "kg", "unitCost": "2", "newOnHand": "10",
				"batchNumber": "B-1", "receivedAt": "2026-03-01T09:30:00Z",
			},
			wantErr: true,
		},
		{
			name:      "missing required field",
			eventType: "wms.ingredient-stock.reorder-point-breached",
			data: map[string]interface{}{
				"organizationId": "org-1", "siteId": "site-1", "itemId": "flour",
				"available": "5",
			},
			wantErr: true,
		},
		{
			name:      "bad timestamp",
			eventType: "wms.ingredient-stock.depleted",
			data: map[string]interface{}{
				"organizationId": "org-1", "siteId": "site-1", "itemId": "flour",
				"depletedAt": "yesterday",
			},
			wantErr: true,
		},
		{
			name:      "unknown type",
			eventType: "wms.order.received",
			data:      map[string]interface{}{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.eventType, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewEventValidatorFromBytes_UnknownSchema(t *testing.T) {
	spec := []byte(`
asyncapi: 3.0.0
info: {title: t, version: "1"}
components:
  messages:
    Broken:
      name: wms.broken
      payload:
        $ref: '#/components/schemas/Missing'
`)
	_, err := NewEventValidatorFromBytes(spec)
	assert.ErrorContains(t, err, "unknown schema")
}
