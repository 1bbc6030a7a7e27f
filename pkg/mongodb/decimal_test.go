package mongodb

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimal128RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"integer", "25"},
		{"cost", "2.50"},
		{"repeating", "2.4444444444444444"},
		{"negative", "-7.125"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := decimal.RequireFromString(tt.value)

			stored, err := ToDecimal128(original)
			require.NoError(t, err)
			restored, err := FromDecimal128(stored)
			require.NoError(t, err)

			assert.True(t, original.Equal(restored), "got %s want %s", restored, original)
		})
	}
}

func TestMustDecimal128(t *testing.T) {
	assert.NotPanics(t, func() { MustDecimal128(decimal.RequireFromString("12.5")) })
}
