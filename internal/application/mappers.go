package application

import "github.com/wms-platform/ingredient-stock/internal/domain"

// ToStockRecordDTO converts an inventory record to its DTO
func ToStockRecordDTO(record *domain.InventoryRecord) *StockRecordDTO {
	if record == nil {
		return nil
	}
	return &StockRecordDTO{
		OrganizationID:      record.Key.OrganizationID,
		SiteID:              record.Key.SiteID,
		ItemID:              record.Key.ItemID,
		Name:                record.Details.Name,
		SKU:                 record.Details.SKU,
		Unit:                record.Details.Unit,
		Category:            record.Details.Category,
		ReorderPoint:        record.ReorderPoint,
		ParLevel:            record.ParLevel,
		QuantityOnHand:      record.QuantityOnHand,
		QuantityReserved:    record.QuantityReserved,
		QuantityAvailable:   record.QuantityAvailable,
		WeightedAverageCost: record.WeightedAverageCost,
		InventoryValue:      record.InventoryValue(),
		StockLevel:          record.StockLevel.String(),
		ActiveBatches:       len(record.ActiveBatches()),
		Version:             record.Version,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}
}

// ToLevelInfoDTO converts level info to its DTO
func ToLevelInfoDTO(info domain.LevelInfo) *LevelInfoDTO {
	return &LevelInfoDTO{
		QuantityOnHand:      info.QuantityOnHand,
		QuantityReserved:    info.QuantityReserved,
		QuantityAvailable:   info.QuantityAvailable,
		WeightedAverageCost: info.WeightedAverageCost,
		StockLevel:          info.StockLevel.String(),
		ReorderPoint:        info.ReorderPoint,
		ParLevel:            info.ParLevel,
		EarliestExpiry:      info.EarliestExpiry,
	}
}

// ToBatchDTOs converts batches to DTOs
func ToBatchDTOs(batches []domain.StockBatch) []BatchDTO {
	out := make([]BatchDTO, 0, len(batches))
	for _, b := range batches {
		out = append(out, BatchDTO{
			BatchID:           b.BatchID,
			BatchNumber:       b.BatchNumber,
			Origin:            string(b.Origin),
			Status:            string(b.Status),
			ReceivedAt:        b.ReceivedAt,
			ExpiresAt:         b.ExpiresAt,
			OriginalQuantity:  b.OriginalQuantity,
			RemainingQuantity: b.RemainingQuantity,
			UnitCost:          b.UnitCost,
			TotalCost:         b.TotalCost,
			SupplierRef:       b.SupplierRef,
			DeliveryRef:       b.DeliveryRef,
			StorageLocation:   b.StorageLocation,
			Notes:             b.Notes,
		})
	}
	return out
}

// ToMovementDTOs converts movements to DTOs
func ToMovementDTOs(movements []domain.StockMovement) []MovementDTO {
	out := make([]MovementDTO, 0, len(movements))
	for _, m := range movements {
		out = append(out, MovementDTO{
			MovementID:  m.MovementID,
			Type:        string(m.Type),
			Quantity:    m.Quantity,
			UnitCost:    m.UnitCost,
			TotalCost:   m.TotalCost,
			Reason:      m.Reason,
			BatchID:     m.BatchID,
			ExternalRef: m.ExternalRef,
			PerformedBy: m.PerformedBy,
			RequestID:   m.RequestID,
			OccurredAt:  m.OccurredAt,
		})
	}
	return out
}

// ToLedgerDTO converts a ledger and its latest entries to a DTO
func ToLedgerDTO(ledger *domain.LedgerRecord, entries []domain.LedgerEntry) *LedgerDTO {
	if ledger == nil {
		return nil
	}
	dto := &LedgerDTO{
		OrganizationID: ledger.Key.OrganizationID,
		SiteID:         ledger.Key.SiteID,
		ItemID:         ledger.Key.ItemID,
		Balance:        ledger.Balance,
		LastSequence:   ledger.LastSequence,
		Entries:        make([]LedgerEntryDTO, 0, len(entries)),
		UpdatedAt:      ledger.UpdatedAt,
	}
	for _, e := range entries {
		dto.Entries = append(dto.Entries, ToLedgerEntryDTO(e))
	}
	return dto
}

// ToLedgerEntryDTO converts a ledger entry to its DTO
func ToLedgerEntryDTO(e domain.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		EntryID:      e.EntryID,
		Sequence:     e.Sequence,
		Delta:        e.Delta,
		BalanceAfter: e.BalanceAfter,
		Category:     e.Category.String(),
		Description:  e.Description,
		Metadata:     e.Metadata,
		RecordedAt:   e.RecordedAt,
	}
}
