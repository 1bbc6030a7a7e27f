package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/domain"
)

// LedgerRepository keeps ledger headers and their append-only entries in memory
type LedgerRepository struct {
	mu      sync.RWMutex
	ledgers map[domain.StockKey]*domain.LedgerRecord
	entries map[domain.StockKey][]domain.LedgerEntry
}

// NewLedgerRepository creates an empty repository
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		ledgers: make(map[domain.StockKey]*domain.LedgerRecord),
		entries: make(map[domain.StockKey][]domain.LedgerEntry),
	}
}

// Save stores the header and appends pending entries
func (r *LedgerRepository) Save(_ context.Context, ledger *domain.LedgerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.ledgers[ledger.Key]
	switch {
	case !exists && ledger.PersistedVersion() != 0:
		return fmt.Errorf("%w: ledger %s was deleted", domain.ErrConcurrentModification, ledger.Key)
	case exists && stored.Version != ledger.PersistedVersion():
		return fmt.Errorf("%w: ledger %s stored at version %d, loaded at %d",
			domain.ErrConcurrentModification, ledger.Key, stored.Version, ledger.PersistedVersion())
	}

	r.entries[ledger.Key] = append(r.entries[ledger.Key], ledger.PullEntries()...)
	ledger.MarkPersisted()
	r.ledgers[ledger.Key] = ledger.Clone()
	return nil
}

// FindByKey returns a copy of the ledger header
func (r *LedgerRepository) FindByKey(_ context.Context, key domain.StockKey) (*domain.LedgerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.ledgers[key]
	if !ok {
		return nil, nil
	}
	return stored.Clone(), nil
}

// FindEntries returns the latest entries, newest first
func (r *LedgerRepository) FindEntries(_ context.Context, key domain.StockKey, limit int) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.entries[key]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]domain.LedgerEntry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// FindEntryByIdempotencyKey returns the entry recorded under a request id
func (r *LedgerRepository) FindEntryByIdempotencyKey(_ context.Context, key domain.StockKey, idempotencyKey string) (*domain.LedgerEntry, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries[key] {
		if entry.IdempotencyKey() == idempotencyKey {
			found := entry
			return &found, nil
		}
	}
	return nil, nil
}

// SumDeltas returns the running sum of every stored entry
func (r *LedgerRepository) SumDeltas(_ context.Context, key domain.StockKey) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := decimal.Zero
	for _, entry := range r.entries[key] {
		sum = sum.Add(entry.Delta)
	}
	return sum, nil
}
