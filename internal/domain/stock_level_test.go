package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStockLevel(t *testing.T) {
	tests := []struct {
		name         string
		available    string
		reorderPoint string
		parLevel     string
		expected     StockLevel
	}{
		{"zero is out of stock", "0", "20", "100", StockLevelOutOfStock},
		{"negative is out of stock", "-2", "20", "100", StockLevelOutOfStock},
		{"at reorder point is low", "20", "20", "100", StockLevelLow},
		{"below reorder point is low", "15", "20", "100", StockLevelLow},
		{"between thresholds is normal", "30", "20", "100", StockLevelNormal},
		{"at par is normal", "100", "20", "100", StockLevelNormal},
		{"above par", "100.5", "20", "100", StockLevelAbovePar},
		{"no par level configured", "5000", "20", "0", StockLevelNormal},
		{"low wins over above par", "10", "20", "5", StockLevelLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := ClassifyStockLevel(d(tt.available), d(tt.reorderPoint), d(tt.parLevel))
			assert.Equal(t, tt.expected, level)
			assert.True(t, level.IsValid())
		})
	}
}

func TestQuantityToOrder(t *testing.T) {
	assertDecimal(t, "85", QuantityToOrder(d("15"), d("100")))
	assertDecimal(t, "0", QuantityToOrder(d("150"), d("100")))
	assertDecimal(t, "0", QuantityToOrder(d("5"), d("0")))
}
