package domain

import "github.com/shopspring/decimal"

// StockLevel classifies the health of an item's available quantity
type StockLevel string

const (
	StockLevelOutOfStock StockLevel = "OUT_OF_STOCK"
	StockLevelLow        StockLevel = "LOW"
	StockLevelNormal     StockLevel = "NORMAL"
	StockLevelAbovePar   StockLevel = "ABOVE_PAR"
)

// IsValid checks if the stock level is valid
func (l StockLevel) IsValid() bool {
	switch l {
	case StockLevelOutOfStock, StockLevelLow, StockLevelNormal, StockLevelAbovePar:
		return true
	}
	return false
}

func (l StockLevel) String() string {
	return string(l)
}

// ClassifyStockLevel is a pure function of available quantity and thresholds.
// AbovePar only applies when a par level is configured.
func ClassifyStockLevel(available, reorderPoint, parLevel decimal.Decimal) StockLevel {
	switch {
	case !available.IsPositive():
		return StockLevelOutOfStock
	case available.LessThanOrEqual(reorderPoint):
		return StockLevelLow
	case parLevel.IsPositive() && available.GreaterThan(parLevel):
		return StockLevelAbovePar
	default:
		return StockLevelNormal
	}
}

// QuantityToOrder returns how much brings available back to par, never negative
func QuantityToOrder(available, parLevel decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, parLevel.Sub(available))
}
