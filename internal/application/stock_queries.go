package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/keyed"
)

// Query defaults
const (
	DefaultMovementLimit = 20
	DefaultListLimit     = 50
	MaxListLimit         = 500
)

// GetRecord returns the full record
func (s *StockService) GetRecord(ctx context.Context, key domain.StockKey) (*StockRecordDTO, error) {
	record, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return ToStockRecordDTO(record), nil
}

// GetLevelInfo returns quantities, cost and classification
func (s *StockService) GetLevelInfo(ctx context.Context, key domain.StockKey) (*LevelInfoDTO, error) {
	record, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return ToLevelInfoDTO(record.LevelInfo()), nil
}

// GetStockLevel returns only the classification
func (s *StockService) GetStockLevel(ctx context.Context, key domain.StockKey) (*StockLevelDTO, error) {
	record, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return &StockLevelDTO{StockLevel: record.StockLevel.String()}, nil
}

// GetMovements returns the most recent movements, newest first
func (s *StockService) GetMovements(ctx context.Context, key domain.StockKey, limit int) ([]MovementDTO, error) {
	if limit <= 0 {
		limit = DefaultMovementLimit
	}
	if limit > domain.MovementRingCapacity {
		limit = domain.MovementRingCapacity
	}
	record, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return ToMovementDTOs(record.Movements().Latest(limit)), nil
}

// GetBatches returns active batches in consumption order, optionally followed by
// depleted and expired ones
func (s *StockService) GetBatches(ctx context.Context, key domain.StockKey, includeInactive bool) ([]BatchDTO, error) {
	record, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	batches := record.ActiveBatches()
	if includeInactive {
		for _, b := range record.Batches {
			if !b.IsActive() {
				batches = append(batches, b)
			}
		}
	}
	return ToBatchDTOs(batches), nil
}

// GetInventoryValue returns the cost of stock on hand
func (s *StockService) GetInventoryValue(ctx context.Context, key domain.StockKey) (*InventoryValueDTO, error) {
	record, err := s.snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return &InventoryValueDTO{
		QuantityOnHand:      record.QuantityOnHand,
		WeightedAverageCost: record.WeightedAverageCost,
		TotalValue:          record.InventoryValue(),
	}, nil
}

// HasSufficientStock asks the ledger whether quantity could be drawn right now
func (s *StockService) HasSufficientStock(ctx context.Context, key domain.StockKey, quantity decimal.Decimal) (*SufficiencyDTO, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s must be greater than zero", domain.ErrInvalidQuantity, quantity)
	}
	ok, err := s.ledger.HasSufficientBalance(ctx, key, quantity)
	if err != nil {
		return nil, err
	}
	return &SufficiencyDTO{Quantity: quantity, Sufficient: ok}, nil
}

// ListRecords pages over the records of one site
func (s *StockService) ListRecords(ctx context.Context, query ListRecordsQuery) (*RecordListDTO, error) {
	if query.OrganizationID == "" || query.SiteID == "" {
		return nil, fmt.Errorf("%w: organization and site are required", domain.ErrInvalidStockKey)
	}
	if query.Limit <= 0 {
		query.Limit = DefaultListLimit
	}
	if query.Limit > MaxListLimit {
		query.Limit = MaxListLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	records, err := s.repo.FindBySite(ctx, query.OrganizationID, query.SiteID, query.Limit, query.Offset)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list stock records", "siteId", query.SiteID)
		return nil, fmt.Errorf("failed to list stock records: %w", err)
	}

	out := &RecordListDTO{Records: make([]StockRecordDTO, 0, len(records)), Limit: query.Limit, Offset: query.Offset}
	for _, r := range records {
		out.Records = append(out.Records, *ToStockRecordDTO(r))
	}
	return out, nil
}

// ExpiredKeys lists keys holding an active batch that expired before cutoff
func (s *StockService) ExpiredKeys(ctx context.Context, cutoff time.Time, limit int) ([]domain.StockKey, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	keys, err := s.repo.FindKeysWithExpiredBatches(ctx, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired stock: %w", err)
	}
	return keys, nil
}

// snapshot reads the record on its lane so a query never observes a half-applied command
func (s *StockService) snapshot(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return keyed.Run(ctx, s.mailbox, key.String(), func(ctx context.Context) (*domain.InventoryRecord, error) {
		return s.load(ctx, key)
	})
}
