package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

// LedgerGateway is how the batch costing side reaches the quantity ledger.
// The ledger is a separate single-writer unit; every call commits on its own.
type LedgerGateway interface {
	Initialize(ctx context.Context, key domain.StockKey) error
	Credit(ctx context.Context, key domain.StockKey, quantity decimal.Decimal, category domain.LedgerCategory, description string, metadata map[string]string) (domain.LedgerEntry, error)
	Debit(ctx context.Context, key domain.StockKey, quantity decimal.Decimal, category domain.LedgerCategory, description string, metadata map[string]string) (domain.LedgerEntry, error)
	AdjustTo(ctx context.Context, key domain.StockKey, newBalance decimal.Decimal, category domain.LedgerCategory, metadata map[string]string) (domain.LedgerEntry, error)
	HasSufficientBalance(ctx context.Context, key domain.StockKey, quantity decimal.Decimal) (bool, error)
	Balance(ctx context.Context, key domain.StockKey) (decimal.Decimal, error)
}

// CircuitBreakerLedgerGateway trips when the ledger keeps failing for
// infrastructure reasons. Business rejections count as successes.
type CircuitBreakerLedgerGateway struct {
	next LedgerGateway
	cb   *resilience.CircuitBreaker
}

// NewCircuitBreakerLedgerGateway wraps a gateway with a circuit breaker
func NewCircuitBreakerLedgerGateway(next LedgerGateway, logger *logging.Logger, m *metrics.Metrics) *CircuitBreakerLedgerGateway {
	config := resilience.DefaultCircuitBreakerConfig("stock-ledger")
	config.Rejections = []error{
		domain.ErrInsufficientBalance,
		domain.ErrInvalidQuantity,
		domain.ErrInvalidCategory,
		domain.ErrInvalidStockKey,
		domain.ErrLedgerNotInitialized,
		domain.ErrLedgerAlreadyInitialized,
		domain.ErrConcurrentModification,
		domain.ErrRequestIDConflict,
		context.Canceled,
	}
	return &CircuitBreakerLedgerGateway{
		next: next,
		cb:   resilience.NewCircuitBreaker(config, logger, m),
	}
}

// State exposes the breaker for health reporting
func (g *CircuitBreakerLedgerGateway) State() string {
	return g.cb.State()
}

func (g *CircuitBreakerLedgerGateway) Initialize(ctx context.Context, key domain.StockKey) error {
	return resilience.Do(ctx, g.cb, func() error {
		return g.next.Initialize(ctx, key)
	})
}

func (g *CircuitBreakerLedgerGateway) Credit(ctx context.Context, key domain.StockKey, quantity decimal.Decimal, category domain.LedgerCategory, description string, metadata map[string]string) (domain.LedgerEntry, error) {
	return resilience.Call(ctx, g.cb, func() (domain.LedgerEntry, error) {
		return g.next.Credit(ctx, key, quantity, category, description, metadata)
	})
}

func (g *CircuitBreakerLedgerGateway) Debit(ctx context.Context, key domain.StockKey, quantity decimal.Decimal, category domain.LedgerCategory, description string, metadata map[string]string) (domain.LedgerEntry, error) {
	return resilience.Call(ctx, g.cb, func() (domain.LedgerEntry, error) {
		return g.next.Debit(ctx, key, quantity, category, description, metadata)
	})
}

func (g *CircuitBreakerLedgerGateway) AdjustTo(ctx context.Context, key domain.StockKey, newBalance decimal.Decimal, category domain.LedgerCategory, metadata map[string]string) (domain.LedgerEntry, error) {
	return resilience.Call(ctx, g.cb, func() (domain.LedgerEntry, error) {
		return g.next.AdjustTo(ctx, key, newBalance, category, metadata)
	})
}

func (g *CircuitBreakerLedgerGateway) HasSufficientBalance(ctx context.Context, key domain.StockKey, quantity decimal.Decimal) (bool, error) {
	return resilience.Call(ctx, g.cb, func() (bool, error) {
		return g.next.HasSufficientBalance(ctx, key, quantity)
	})
}

func (g *CircuitBreakerLedgerGateway) Balance(ctx context.Context, key domain.StockKey) (decimal.Decimal, error) {
	return resilience.Call(ctx, g.cb, func() (decimal.Decimal, error) {
		return g.next.Balance(ctx, key)
	})
}
