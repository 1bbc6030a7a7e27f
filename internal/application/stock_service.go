package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/keyed"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
)

// SystemPerformer is recorded on movements nobody in particular asked for
const SystemPerformer = "system"

// StockService is the batch costing engine. Operations on one key run one at a
// time on that key's lane. Quantity-decreasing operations consult and debit the
// ledger before touching batches; a rejected debit leaves the record unchanged.
type StockService struct {
	repo    domain.InventoryRecordRepository
	ledger  LedgerGateway
	mailbox *keyed.Mailbox
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStockService creates a new StockService
func NewStockService(
	repo domain.InventoryRecordRepository,
	ledger LedgerGateway,
	mailbox *keyed.Mailbox,
	logger *logging.Logger,
	m *metrics.Metrics,
) *StockService {
	if logger == nil {
		logger = logging.Discard()
	}
	if mailbox == nil {
		mailbox = keyed.NewMailbox(keyed.DefaultConfig("engine"), nil, logger, m)
	}
	return &StockService{
		repo:    repo,
		ledger:  ledger,
		mailbox: mailbox,
		logger:  logger.WithComponent("stock-engine"),
		metrics: m,
		now:     time.Now,
	}
}

// Initialize creates the record and its ledger
func (s *StockService) Initialize(ctx context.Context, cmd InitializeCommand) (*StockRecordDTO, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var dto *StockRecordDTO
	err := s.inLane(ctx, "initialize", cmd.Key, func(ctx context.Context, logger *logging.Logger) error {
		existing, err := s.repo.FindByKey(ctx, cmd.Key)
		if err != nil {
			return fmt.Errorf("failed to load stock record: %w", err)
		}
		if existing != nil && existing.IsInitialized() {
			return domain.ErrAlreadyInitialized
		}

		if err := s.ledger.Initialize(ctx, cmd.Key); err != nil {
			if !errors.Is(err, domain.ErrLedgerAlreadyInitialized) {
				return err
			}
			// a previous attempt opened the ledger but never saved the record
			logger.Warn("Adopting existing ledger for new stock record")
		}

		record := &domain.InventoryRecord{}
		details := domain.ItemDetails{Name: cmd.Name, SKU: cmd.SKU, Unit: cmd.Unit, Category: cmd.Category}
		if err := record.Initialize(cmd.Key, details, cmd.ReorderPoint, cmd.ParLevel); err != nil {
			return err
		}
		if err := s.save(ctx, record); err != nil {
			return err
		}

		logger.Info("Stock record initialized", "stockLevel", record.StockLevel)
		dto = ToStockRecordDTO(record)
		return nil
	})
	return dto, err
}

// ReceiveBatch credits the ledger and appends a new active batch
func (s *StockService) ReceiveBatch(ctx context.Context, cmd ReceiveBatchCommand) (*domain.ReceiptResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var result *domain.ReceiptResult
	err := s.mutate(ctx, "receive_batch", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		params := domain.ReceiptParams{
			Quantity:        cmd.Quantity,
			UnitCost:        cmd.UnitCost,
			BatchNumber:     cmd.BatchNumber,
			ExpiresAt:       cmd.ExpiresAt,
			SupplierRef:     cmd.SupplierRef,
			DeliveryRef:     cmd.DeliveryRef,
			StorageLocation: cmd.StorageLocation,
			Notes:           cmd.Notes,
			PerformedBy:     performer,
			RequestID:       cmd.RequestID,
		}
		if cmd.ReceivedAt != nil {
			params.ReceivedAt = cmd.ReceivedAt.UTC()
		}
		if record.HasProcessed(cmd.RequestID) {
			r, err := record.ReceiveBatch(params)
			result = r
			return false, err
		}

		description := "purchase receipt"
		if cmd.DeliveryRef != "" {
			description += " " + cmd.DeliveryRef
		}
		metadata := ledgerMetadata(cmd.RequestID, performer, map[string]string{"supplierRef": cmd.SupplierRef, "batchNumber": cmd.BatchNumber})
		entry, err := s.ledger.Credit(ctx, cmd.Key, cmd.Quantity, domain.CategoryReceipt, description, metadata)
		if err != nil {
			return false, fmt.Errorf("ledger credit failed: %w", err)
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.ReceiveBatch(params)
		if err != nil {
			return false, err
		}
		result = r
		s.metrics.RecordMovement(string(domain.MovementReceipt), cmd.Quantity.InexactFloat64())
		logger.Info("Batch received",
			"batchNumber", r.BatchNumber,
			"quantity", cmd.Quantity.String(),
			"unitCost", cmd.UnitCost.String(),
			"quantityOnHand", r.QuantityOnHand.String(),
		)
		return true, nil
	})
	return result, err
}

// ReceiveTransfer credits the ledger and appends a batch arriving from another site
func (s *StockService) ReceiveTransfer(ctx context.Context, cmd ReceiveTransferCommand) (*domain.ReceiptResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var result *domain.ReceiptResult
	err := s.mutate(ctx, "receive_transfer", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		params := domain.TransferInParams{
			Quantity:     cmd.Quantity,
			UnitCost:     cmd.UnitCost,
			SourceSiteID: cmd.SourceSiteID,
			TransferID:   cmd.TransferID,
			BatchNumber:  cmd.BatchNumber,
			ExpiresAt:    cmd.ExpiresAt,
			PerformedBy:  performer,
			RequestID:    cmd.RequestID,
		}
		if record.HasProcessed(cmd.RequestID) {
			r, err := record.ReceiveTransfer(params)
			result = r
			return false, err
		}

		description := fmt.Sprintf("transfer %s in from %s", cmd.TransferID, cmd.SourceSiteID)
		metadata := ledgerMetadata(cmd.RequestID, performer, map[string]string{"transferId": cmd.TransferID, "sourceSiteId": cmd.SourceSiteID})
		entry, err := s.ledger.Credit(ctx, cmd.Key, cmd.Quantity, domain.CategoryTransferIn, description, metadata)
		if err != nil {
			return false, fmt.Errorf("ledger credit failed: %w", err)
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.ReceiveTransfer(params)
		if err != nil {
			return false, err
		}
		result = r
		s.metrics.RecordMovement(string(domain.MovementTransfer), cmd.Quantity.InexactFloat64())
		logger.Info("Transfer received", "transferId", cmd.TransferID, "quantity", cmd.Quantity.String(), "quantityOnHand", r.QuantityOnHand.String())
		return true, nil
	})
	return result, err
}

// Consume draws stock oldest batch first after the ledger approves the debit
func (s *StockService) Consume(ctx context.Context, cmd ConsumeCommand) (*domain.ConsumptionResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var result *domain.ConsumptionResult
	err := s.mutate(ctx, "consume", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		params := domain.ConsumptionParams{
			Quantity:    cmd.Quantity,
			Reason:      cmd.Reason,
			OrderRef:    cmd.OrderRef,
			PerformedBy: performer,
			RequestID:   cmd.RequestID,
		}
		if record.HasProcessed(cmd.RequestID) {
			r, err := record.Consume(params)
			result = r
			return false, err
		}

		description := "consumption"
		if cmd.OrderRef != "" {
			description += " for " + cmd.OrderRef
		}
		metadata := ledgerMetadata(cmd.RequestID, performer, map[string]string{"orderRef": cmd.OrderRef})
		entry, err := s.debitFirst(ctx, logger, record, cmd.Quantity, domain.CategoryConsumption, description, metadata)
		if err != nil {
			return false, err
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.Consume(params)
		if err != nil {
			return false, err
		}
		result = r
		s.metrics.RecordMovement(string(domain.MovementConsumption), cmd.Quantity.InexactFloat64())
		logger.Info("Stock consumed",
			"quantity", cmd.Quantity.String(),
			"totalCost", r.TotalCost.String(),
			"batches", len(r.Lines),
			"quantityAvailable", r.QuantityAvailable.String(),
			"stockLevel", r.StockLevel,
		)
		return true, nil
	})
	return result, err
}

// RecordWaste draws spoiled stock oldest batch first after the ledger approves the debit
func (s *StockService) RecordWaste(ctx context.Context, cmd RecordWasteCommand) (*domain.ConsumptionResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var result *domain.ConsumptionResult
	err := s.mutate(ctx, "record_waste", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		params := domain.WasteParams{
			Quantity:      cmd.Quantity,
			WasteCategory: cmd.WasteCategory,
			Reason:        cmd.Reason,
			PerformedBy:   performer,
			RequestID:     cmd.RequestID,
		}
		if record.HasProcessed(cmd.RequestID) {
			r, err := record.RecordWaste(params)
			result = r
			return false, err
		}

		metadata := ledgerMetadata(cmd.RequestID, performer, map[string]string{"wasteCategory": cmd.WasteCategory})
		entry, err := s.debitFirst(ctx, logger, record, cmd.Quantity, domain.CategoryWaste, "waste: "+cmd.Reason, metadata)
		if err != nil {
			return false, err
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.RecordWaste(params)
		if err != nil {
			return false, err
		}
		result = r
		s.metrics.RecordMovement(string(domain.MovementWaste), cmd.Quantity.InexactFloat64())
		logger.Info("Waste recorded", "quantity", cmd.Quantity.String(), "wasteCategory", cmd.WasteCategory, "totalCost", r.TotalCost.String())
		return true, nil
	})
	return result, err
}

// TransferOut draws stock oldest batch first for shipment to another site
func (s *StockService) TransferOut(ctx context.Context, cmd TransferOutCommand) (*domain.ConsumptionResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var result *domain.ConsumptionResult
	err := s.mutate(ctx, "transfer_out", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		params := domain.TransferOutParams{
			Quantity:          cmd.Quantity,
			DestinationSiteID: cmd.DestinationSiteID,
			TransferID:        cmd.TransferID,
			PerformedBy:       performer,
			RequestID:         cmd.RequestID,
		}
		if record.HasProcessed(cmd.RequestID) {
			r, err := record.TransferOut(params)
			result = r
			return false, err
		}

		description := fmt.Sprintf("transfer %s out to %s", cmd.TransferID, cmd.DestinationSiteID)
		metadata := ledgerMetadata(cmd.RequestID, performer, map[string]string{"transferId": cmd.TransferID, "destinationSiteId": cmd.DestinationSiteID})
		entry, err := s.debitFirst(ctx, logger, record, cmd.Quantity, domain.CategoryTransferOut, description, metadata)
		if err != nil {
			return false, err
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.TransferOut(params)
		if err != nil {
			return false, err
		}
		result = r
		s.metrics.RecordMovement(string(domain.MovementTransfer), cmd.Quantity.InexactFloat64())
		logger.Info("Transfer shipped", "transferId", cmd.TransferID, "quantity", cmd.Quantity.String(), "totalCost", r.TotalCost.String())
		return true, nil
	})
	return result, err
}

// AdjustQuantity sets the ledger to a counted quantity and aligns the batches to it
func (s *StockService) AdjustQuantity(ctx context.Context, cmd AdjustQuantityCommand) (*domain.AdjustmentResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var result *domain.AdjustmentResult
	err := s.mutate(ctx, "adjust_quantity", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		params := domain.AdjustmentParams{
			NewQuantity: cmd.NewQuantity,
			Reason:      cmd.Reason,
			PerformedBy: performer,
			ApprovedBy:  cmd.ApprovedBy,
			RequestID:   cmd.RequestID,
		}
		if record.HasProcessed(cmd.RequestID) {
			r, err := record.AdjustQuantity(params)
			result = r
			return false, err
		}

		metadata := ledgerMetadata(cmd.RequestID, performer, map[string]string{"reason": cmd.Reason, "approvedBy": cmd.ApprovedBy})
		entry, err := s.ledger.AdjustTo(ctx, cmd.Key, cmd.NewQuantity, domain.CategoryAdjustment, metadata)
		if err != nil {
			return false, fmt.Errorf("ledger adjustment failed: %w", err)
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.AdjustQuantity(params)
		if err != nil {
			return false, err
		}
		result = r
		s.metrics.RecordMovement(string(domain.MovementAdjustment), r.Variance.InexactFloat64())
		logger.Info("Quantity adjusted", "variance", r.Variance.String(), "quantityOnHand", r.QuantityOnHand.String(), "approvedBy", cmd.ApprovedBy)
		return true, nil
	})
	return result, err
}

// WriteOffExpiredBatches writes off every active batch expired before the cutoff.
// The ledger is debited once for the total.
func (s *StockService) WriteOffExpiredBatches(ctx context.Context, cmd WriteOffExpiredCommand) (*domain.WriteOffResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}
	asOf := s.now().UTC()
	if cmd.AsOf != nil {
		asOf = cmd.AsOf.UTC()
	}

	var result *domain.WriteOffResult
	err := s.mutate(ctx, "write_off_expired", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		expired := record.ExpiredQuantity(asOf)
		if !expired.IsPositive() {
			r, err := record.WriteOffExpiredBatches(performer, asOf)
			result = r
			return false, err
		}

		metadata := ledgerMetadata(writeOffRequestID(record, asOf), performer, map[string]string{"asOf": asOf.Format(time.RFC3339)})
		description := fmt.Sprintf("expired batches as of %s", asOf.Format(time.RFC3339))
		entry, err := s.debitFirst(ctx, logger, record, expired, domain.CategoryExpiryWriteOff, description, metadata)
		if err != nil {
			return false, err
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.WriteOffExpiredBatches(performer, asOf)
		if err != nil {
			return false, err
		}
		result = r
		for _, b := range r.Batches {
			s.metrics.RecordMovement(string(domain.MovementWaste), b.Quantity.InexactFloat64())
		}
		logger.Info("Expired batches written off", "batches", len(r.Batches), "quantity", r.TotalQuantity.String())
		return true, nil
	})
	return result, err
}

// ReverseConsumption credits the ledger and restores a consumption as a new batch
func (s *StockService) ReverseConsumption(ctx context.Context, cmd ReverseConsumptionCommand) (*domain.ReversalResult, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}

	var result *domain.ReversalResult
	err := s.mutate(ctx, "reverse_consumption", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		performer := s.performer(ctx, cmd.PerformedBy)
		params := domain.ReversalParams{
			MovementID:  cmd.MovementID,
			Reason:      cmd.Reason,
			PerformedBy: performer,
			RequestID:   cmd.RequestID,
		}
		if record.HasProcessed(cmd.RequestID) {
			r, err := record.ReverseConsumption(params)
			result = r
			return false, err
		}

		original, err := record.ReversibleMovement(cmd.MovementID)
		if err != nil {
			return false, err
		}
		metadata := ledgerMetadata(cmd.RequestID, performer, map[string]string{"movementId": cmd.MovementID})
		entry, err := s.ledger.Credit(ctx, cmd.Key, original.Quantity.Abs(), domain.CategoryReversal, "reversal: "+cmd.Reason, metadata)
		if err != nil {
			return false, fmt.Errorf("ledger credit failed: %w", err)
		}
		if err := record.ClaimLedgerEntry(entry); err != nil {
			return false, err
		}

		r, err := record.ReverseConsumption(params)
		if err != nil {
			return false, err
		}
		result = r
		s.metrics.RecordMovement(string(domain.MovementConsumption), r.Quantity.InexactFloat64())
		logger.Info("Consumption reversed", "movementId", cmd.MovementID, "quantity", r.Quantity.String())
		return true, nil
	})
	return result, err
}

// SetReorderPoint changes the reorder threshold
func (s *StockService) SetReorderPoint(ctx context.Context, cmd SetThresholdCommand) (*StockRecordDTO, error) {
	return s.configure(ctx, "set_reorder_point", cmd, func(record *domain.InventoryRecord) error {
		return record.SetReorderPoint(cmd.Value)
	})
}

// SetParLevel changes the par level
func (s *StockService) SetParLevel(ctx context.Context, cmd SetThresholdCommand) (*StockRecordDTO, error) {
	return s.configure(ctx, "set_par_level", cmd, func(record *domain.InventoryRecord) error {
		return record.SetParLevel(cmd.Value)
	})
}

// SetReservedQuantity records quantity set aside outside batch mechanics
func (s *StockService) SetReservedQuantity(ctx context.Context, cmd SetThresholdCommand) (*StockRecordDTO, error) {
	return s.configure(ctx, "set_reserved_quantity", cmd, func(record *domain.InventoryRecord) error {
		return record.SetReservedQuantity(cmd.Value)
	})
}

// UpdateItemDetails replaces the descriptive fields
func (s *StockService) UpdateItemDetails(ctx context.Context, cmd UpdateItemDetailsCommand) (*StockRecordDTO, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}
	var dto *StockRecordDTO
	err := s.mutate(ctx, "update_item_details", cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		details := domain.ItemDetails{Name: cmd.Name, SKU: cmd.SKU, Unit: cmd.Unit, Category: cmd.Category}
		if err := record.UpdateDetails(details); err != nil {
			return false, err
		}
		dto = ToStockRecordDTO(record)
		logger.Info("Item details updated", "name", cmd.Name, "sku", cmd.SKU)
		return true, nil
	})
	return dto, err
}

func (s *StockService) configure(ctx context.Context, operation string, cmd SetThresholdCommand, apply func(*domain.InventoryRecord) error) (*StockRecordDTO, error) {
	if err := validateKeyed(cmd.Key, cmd); err != nil {
		return nil, err
	}
	var dto *StockRecordDTO
	err := s.mutate(ctx, operation, cmd.Key, func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error) {
		if err := apply(record); err != nil {
			return false, err
		}
		dto = ToStockRecordDTO(record)
		logger.Info("Stock configuration changed", "value", cmd.Value.String(), "stockLevel", record.StockLevel)
		return true, nil
	})
	return dto, err
}

// debitFirst authorizes and records a quantity decrease on the ledger before any batch
// is touched. Without a request id the balance is queried first; with one the debit
// itself is the check, so a retry after a lost batch commit replays the ledger entry
// instead of failing on the already reduced balance.
func (s *StockService) debitFirst(
	ctx context.Context,
	logger *logging.Logger,
	record *domain.InventoryRecord,
	quantity decimal.Decimal,
	category domain.LedgerCategory,
	description string,
	metadata map[string]string,
) (domain.LedgerEntry, error) {
	requestID := metadata[domain.MetadataIdempotencyKey]
	if requestID == "" {
		if err := s.requireBalance(ctx, logger, record.Key, quantity, category); err != nil {
			return domain.LedgerEntry{}, err
		}
	}

	if err := record.CanCover(quantity); err != nil {
		if !errors.Is(err, domain.ErrFIFOShortfall) {
			return domain.LedgerEntry{}, err
		}
		// the batches falling short is only drift when the ledger would have approved
		if requestID != "" {
			if err := s.requireBalance(ctx, logger, record.Key, quantity, category); err != nil {
				return domain.LedgerEntry{}, err
			}
		}
		logger.Error("Ledger approves a quantity the active batches cannot cover",
			"requested", quantity.String(),
			"quantityOnHand", record.QuantityOnHand.String(),
			"error", err,
		)
		return domain.LedgerEntry{}, err
	}

	entry, err := s.ledger.Debit(ctx, record.Key, quantity, category, description, metadata)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			logger.Warn("Insufficient stock", "category", category, "requested", quantity.String())
			return domain.LedgerEntry{}, fmt.Errorf("%w: %v", domain.ErrInsufficientStock, err)
		}
		return domain.LedgerEntry{}, fmt.Errorf("ledger debit failed: %w", err)
	}
	return entry, nil
}

func (s *StockService) requireBalance(ctx context.Context, logger *logging.Logger, key domain.StockKey, quantity decimal.Decimal, category domain.LedgerCategory) error {
	ok, err := s.ledger.HasSufficientBalance(ctx, key, quantity)
	if err != nil {
		return fmt.Errorf("ledger balance check failed: %w", err)
	}
	if !ok {
		s.metrics.RecordLedgerRejection(category.String())
		logger.Warn("Insufficient stock", "category", category, "requested", quantity.String())
		return fmt.Errorf("%w: requested %s", domain.ErrInsufficientStock, quantity)
	}
	return nil
}

// mutate loads the record on its lane, applies fn and saves when fn reports a change
func (s *StockService) mutate(
	ctx context.Context,
	operation string,
	key domain.StockKey,
	fn func(ctx context.Context, record *domain.InventoryRecord, logger *logging.Logger) (bool, error),
) error {
	return s.inLane(ctx, operation, key, func(ctx context.Context, logger *logging.Logger) error {
		record, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		changed, err := fn(ctx, record, logger)
		if err != nil {
			return err
		}
		if !changed {
			logger.Debug("Nothing to persist")
			return nil
		}
		return s.save(ctx, record)
	})
}

// inLane runs fn on the key's lane with operation logging and timing
func (s *StockService) inLane(ctx context.Context, operation string, key domain.StockKey, fn func(ctx context.Context, logger *logging.Logger) error) error {
	start := time.Now()
	logger := s.logger.WithContext(ctx).
		WithOperation(operation).
		WithStockKey(key.OrganizationID, key.SiteID, key.ItemID)

	err := s.mailbox.Do(ctx, key.String(), func(ctx context.Context) error {
		return fn(ctx, logger)
	})

	s.metrics.RecordOperation(operation, err == nil, time.Since(start))
	// insufficient stock and FIFO shortfalls are logged where they are detected
	if err != nil && !errors.Is(err, domain.ErrInsufficientStock) && !errors.Is(err, domain.ErrFIFOShortfall) {
		logger.WithError(err).Info("Stock operation rejected")
	}
	return err
}

func (s *StockService) load(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	record, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock record: %w", err)
	}
	if record == nil || !record.IsInitialized() {
		return nil, domain.ErrNotInitialized
	}
	return record, nil
}

func (s *StockService) save(ctx context.Context, record *domain.InventoryRecord) error {
	for _, event := range record.DomainEvents {
		switch event.EventType() {
		case domain.EventTypeReorderPointBreached, domain.EventTypeStockDepleted:
			s.metrics.RecordAlert(event.EventType())
		}
	}
	if err := s.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save stock record: %w", err)
	}
	return nil
}

func (s *StockService) performer(ctx context.Context, performedBy string) string {
	if performedBy != "" {
		return performedBy
	}
	if userID := logging.UserIDFromContext(ctx); userID != "" {
		return userID
	}
	return SystemPerformer
}

func ledgerMetadata(requestID, performer string, extra map[string]string) map[string]string {
	metadata := map[string]string{"performedBy": performer}
	if requestID != "" {
		metadata[domain.MetadataIdempotencyKey] = requestID
	}
	for k, v := range extra {
		if v != "" {
			metadata[k] = v
		}
	}
	return metadata
}

// writeOffRequestID derives a stable id from the batches an expiry sweep removes,
// so a retried sweep replays the aggregate ledger debit
func writeOffRequestID(record *domain.InventoryRecord, asOf time.Time) string {
	ids := make([]string, 0)
	for _, b := range record.Batches {
		if b.IsActive() && b.IsExpired(asOf) {
			ids = append(ids, b.BatchID+"="+b.RemainingQuantity.String())
		}
	}
	sort.Strings(ids)
	name := record.Key.String() + "|" + strings.Join(ids, ",")
	return "expiry-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
