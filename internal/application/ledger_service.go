package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/keyed"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
)

// DefaultLedgerEntryLimit caps entries returned with a ledger
const DefaultLedgerEntryLimit = 50

// LedgerService is the quantity ledger unit. Every call for a key runs on that
// key's lane of its own mailbox, so check-then-act on the balance is atomic.
type LedgerService struct {
	repo    domain.LedgerRepository
	mailbox *keyed.Mailbox
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	repo domain.LedgerRepository,
	mailbox *keyed.Mailbox,
	logger *logging.Logger,
	m *metrics.Metrics,
) *LedgerService {
	if logger == nil {
		logger = logging.Discard()
	}
	if mailbox == nil {
		mailbox = keyed.NewMailbox(keyed.DefaultConfig("ledger"), nil, logger, m)
	}
	return &LedgerService{
		repo:    repo,
		mailbox: mailbox,
		logger:  logger.WithComponent("stock-ledger"),
		metrics: m,
	}
}

// Initialize opens a zero-balance ledger for the key
func (s *LedgerService) Initialize(ctx context.Context, key domain.StockKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.mailbox.Do(ctx, key.String(), func(ctx context.Context) error {
		ledger, err := s.repo.FindByKey(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}
		if ledger == nil {
			ledger = domain.NewLedgerRecord(key)
		}
		if err := ledger.Initialize(key.OrganizationID); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, ledger); err != nil {
			return fmt.Errorf("failed to save ledger: %w", err)
		}
		s.logger.Info("Ledger initialized", "key", key.String())
		return nil
	})
}

// Credit increases the balance
func (s *LedgerService) Credit(ctx context.Context, key domain.StockKey, quantity decimal.Decimal, category domain.LedgerCategory, description string, metadata map[string]string) (domain.LedgerEntry, error) {
	return s.post(ctx, key, category, metadata, func(ledger *domain.LedgerRecord) (domain.LedgerEntry, error) {
		return ledger.Credit(quantity, category, description, metadata)
	})
}

// Debit decreases the balance or fails with ErrInsufficientBalance without changing it
func (s *LedgerService) Debit(ctx context.Context, key domain.StockKey, quantity decimal.Decimal, category domain.LedgerCategory, description string, metadata map[string]string) (domain.LedgerEntry, error) {
	return s.post(ctx, key, category, metadata, func(ledger *domain.LedgerRecord) (domain.LedgerEntry, error) {
		return ledger.Debit(quantity, category, description, metadata)
	})
}

// AdjustTo sets the balance to an absolute value
func (s *LedgerService) AdjustTo(ctx context.Context, key domain.StockKey, newBalance decimal.Decimal, category domain.LedgerCategory, metadata map[string]string) (domain.LedgerEntry, error) {
	return s.post(ctx, key, category, metadata, func(ledger *domain.LedgerRecord) (domain.LedgerEntry, error) {
		return ledger.AdjustTo(newBalance, category, metadata)
	})
}

// HasSufficientBalance reports whether quantity could be debited right now
func (s *LedgerService) HasSufficientBalance(ctx context.Context, key domain.StockKey, quantity decimal.Decimal) (bool, error) {
	ledger, err := s.read(ctx, key)
	if err != nil {
		return false, err
	}
	return ledger.HasSufficientBalance(quantity), nil
}

// Balance returns the current balance
func (s *LedgerService) Balance(ctx context.Context, key domain.StockKey) (decimal.Decimal, error) {
	ledger, err := s.read(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.Balance, nil
}

// GetLedger returns the balance and the latest entries, newest first
func (s *LedgerService) GetLedger(ctx context.Context, key domain.StockKey, limit int) (*LedgerDTO, error) {
	if limit <= 0 {
		limit = DefaultLedgerEntryLimit
	}
	ledger, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.FindEntries(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	return ToLedgerDTO(ledger, entries), nil
}

// VerifyEntries checks that the stored balance equals the sum of stored entry deltas
func (s *LedgerService) VerifyEntries(ctx context.Context, key domain.StockKey) (decimal.Decimal, decimal.Decimal, error) {
	ledger, err := s.read(ctx, key)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	sum, err := s.repo.SumDeltas(ctx, key)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return ledger.Balance, sum, nil
}

func (s *LedgerService) read(ctx context.Context, key domain.StockKey) (*domain.LedgerRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return keyed.Run(ctx, s.mailbox, key.String(), func(ctx context.Context) (*domain.LedgerRecord, error) {
		return s.load(ctx, key)
	})
}

func (s *LedgerService) load(ctx context.Context, key domain.StockKey) (*domain.LedgerRecord, error) {
	ledger, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if ledger == nil || !ledger.Initialized {
		return nil, domain.ErrLedgerNotInitialized
	}
	return ledger, nil
}

// post applies one posting on the key's lane. A posting whose idempotency key
// was already recorded returns the stored entry instead of posting again.
func (s *LedgerService) post(
	ctx context.Context,
	key domain.StockKey,
	category domain.LedgerCategory,
	metadata map[string]string,
	apply func(*domain.LedgerRecord) (domain.LedgerEntry, error),
) (domain.LedgerEntry, error) {
	if err := key.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}
	logger := s.logger.WithContext(ctx).WithStockKey(key.OrganizationID, key.SiteID, key.ItemID)

	return keyed.Run(ctx, s.mailbox, key.String(), func(ctx context.Context) (domain.LedgerEntry, error) {
		start := time.Now()
		ledger, err := s.load(ctx, key)
		if err != nil {
			return domain.LedgerEntry{}, err
		}

		if requestID := metadata[domain.MetadataIdempotencyKey]; requestID != "" {
			existing, err := s.repo.FindEntryByIdempotencyKey(ctx, key, requestID)
			if err != nil {
				return domain.LedgerEntry{}, fmt.Errorf("failed to look up request id: %w", err)
			}
			if existing != nil {
				if existing.Category != category {
					return domain.LedgerEntry{}, fmt.Errorf("%w: %s", domain.ErrRequestIDConflict, requestID)
				}
				logger.Info("Ledger posting replayed", "requestId", requestID, "entryId", existing.EntryID)
				return *existing, nil
			}
		}

		entry, err := apply(ledger)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientBalance) {
				s.metrics.RecordLedgerRejection(category.String())
				logger.Warn("Ledger rejected debit", "category", category, "balance", ledger.Balance.String(), "error", err)
			}
			return domain.LedgerEntry{}, err
		}

		if err := s.repo.Save(ctx, ledger); err != nil {
			return domain.LedgerEntry{}, fmt.Errorf("failed to save ledger: %w", err)
		}

		s.metrics.RecordOperation("ledger_"+category.String(), true, time.Since(start))
		logger.Debug("Ledger posting recorded",
			"category", category,
			"delta", entry.Delta.String(),
			"balance", entry.BalanceAfter.String(),
			"sequence", entry.Sequence,
		)
		return entry, nil
	})
}
