package mongodb

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToDecimal128 converts a decimal to its BSON representation without going through float64
func ToDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	value, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to convert %s to Decimal128: %w", d.String(), err)
	}
	return value, nil
}

// MustDecimal128 is ToDecimal128 for values already validated by the domain
func MustDecimal128(d decimal.Decimal) primitive.Decimal128 {
	value, err := ToDecimal128(d)
	if err != nil {
		panic(err)
	}
	return value
}

// FromDecimal128 converts a BSON Decimal128 back to a decimal
func FromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse Decimal128 %s: %w", d.String(), err)
	}
	return value, nil
}
