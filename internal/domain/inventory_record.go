package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemDetails is the descriptive part of an inventory record
type ItemDetails struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Unit     string `json:"unit"`
	Category string `json:"category"`
}

// InventoryRecord is the batch costing aggregate for one stock key.
// On-hand, available and weighted-average cost are derived from the batch list
// and recomputed after every batch mutation.
type InventoryRecord struct {
	Key                 StockKey        `json:"key"`
	Details             ItemDetails     `json:"details"`
	ReorderPoint        decimal.Decimal `json:"reorderPoint"`
	ParLevel            decimal.Decimal `json:"parLevel"`
	QuantityOnHand      decimal.Decimal `json:"quantityOnHand"`
	QuantityReserved    decimal.Decimal `json:"quantityReserved"`
	QuantityAvailable   decimal.Decimal `json:"quantityAvailable"`
	WeightedAverageCost decimal.Decimal `json:"weightedAverageCost"`
	StockLevel          StockLevel      `json:"stockLevel"`
	Batches             []StockBatch    `json:"batches"`
	ReversedMovementIDs []string        `json:"reversedMovementIds,omitempty"`
	// LedgerSequence is the last ledger entry the batches reflect
	LedgerSequence      int64           `json:"ledgerSequence"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`

	movements        *MovementRing
	persistedVersion int64

	// Domain events (not persisted)
	DomainEvents []DomainEvent `json:"-"`
}

// LevelInfo is the read model for level queries
type LevelInfo struct {
	QuantityOnHand      decimal.Decimal `json:"quantityOnHand"`
	QuantityReserved    decimal.Decimal `json:"quantityReserved"`
	QuantityAvailable   decimal.Decimal `json:"quantityAvailable"`
	WeightedAverageCost decimal.Decimal `json:"weightedAverageCost"`
	StockLevel          StockLevel      `json:"stockLevel"`
	ReorderPoint        decimal.Decimal `json:"reorderPoint"`
	ParLevel            decimal.Decimal `json:"parLevel"`
	EarliestExpiry      *time.Time      `json:"earliestExpiry,omitempty"`
}

// IsInitialized reports whether Initialize has run
func (r *InventoryRecord) IsInitialized() bool {
	return r.Key.ItemID != ""
}

// Initialize creates the record. The stock level is set without raising alerts.
func (r *InventoryRecord) Initialize(key StockKey, details ItemDetails, reorderPoint, parLevel decimal.Decimal) error {
	if r.IsInitialized() {
		return ErrAlreadyInitialized
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if reorderPoint.IsNegative() || parLevel.IsNegative() {
		return ErrInvalidThreshold
	}

	now := time.Now().UTC()
	r.Key = key
	r.Details = details
	r.ReorderPoint = reorderPoint
	r.ParLevel = parLevel
	r.QuantityReserved = decimal.Zero
	r.Batches = make([]StockBatch, 0)
	r.movements = NewMovementRing(MovementRingCapacity)
	r.DomainEvents = make([]DomainEvent, 0)
	r.CreatedAt = now
	r.UpdatedAt = now
	r.recalculate()
	r.StockLevel = r.classify()
	r.Version = 1
	return nil
}

// Rehydrate restores derived state after loading batches and movements from storage
func (r *InventoryRecord) Rehydrate(movements []StockMovement) {
	r.movements = RestoreMovementRing(MovementRingCapacity, movements)
	if r.Batches == nil {
		r.Batches = make([]StockBatch, 0)
	}
	r.recalculate()
	r.StockLevel = r.classify()
	r.persistedVersion = r.Version
}

// PersistedVersion is the version last read from or written to storage; zero for a new record
func (r *InventoryRecord) PersistedVersion() int64 {
	return r.persistedVersion
}

// MarkPersisted records that the current version is stored
func (r *InventoryRecord) MarkPersisted() {
	r.persistedVersion = r.Version
}

// Movements returns the bounded movement ring
func (r *InventoryRecord) Movements() *MovementRing {
	if r.movements == nil {
		r.movements = NewMovementRing(MovementRingCapacity)
	}
	return r.movements
}

// HasProcessed reports whether a movement for this request id is still retained
func (r *InventoryRecord) HasProcessed(requestID string) bool {
	_, ok := r.Movements().FindByRequestID(requestID)
	return ok
}

// ClaimLedgerEntry binds a ledger entry to the batch change about to be applied.
// The ledger replays a request id for as long as the entry exists, which outlives
// the movement ring; an entry at or below LedgerSequence is already in the batches.
func (r *InventoryRecord) ClaimLedgerEntry(entry LedgerEntry) error {
	if entry.Sequence <= r.LedgerSequence {
		return fmt.Errorf("%w: %s was already applied by ledger entry %d",
			ErrRequestIDConflict, entry.IdempotencyKey(), entry.Sequence)
	}
	r.LedgerSequence = entry.Sequence
	return nil
}

// SyncLedger records a ledger entry posted without a batch change, such as a
// reconciliation realignment. Requests replayed from before it are not applied.
func (r *InventoryRecord) SyncLedger(entry LedgerEntry) {
	if entry.Sequence <= r.LedgerSequence {
		return
	}
	r.LedgerSequence = entry.Sequence
	r.touch()
}

// ReceiptParams carries a purchasing receipt
type ReceiptParams struct {
	Quantity        decimal.Decimal
	UnitCost        decimal.Decimal
	BatchNumber     string
	ReceivedAt      time.Time
	ExpiresAt       *time.Time
	SupplierRef     string
	DeliveryRef     string
	StorageLocation string
	Notes           string
	PerformedBy     string
	RequestID       string
}

// TransferInParams carries stock arriving from another site
type TransferInParams struct {
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	SourceSiteID string
	TransferID   string
	BatchNumber  string
	ExpiresAt    *time.Time
	PerformedBy  string
	RequestID    string
}

// ReceiptResult is returned by receipts and transfers in
type ReceiptResult struct {
	MovementID          string          `json:"movementId"`
	BatchID             string          `json:"batchId"`
	BatchNumber         string          `json:"batchNumber"`
	Quantity            decimal.Decimal `json:"quantity"`
	QuantityOnHand      decimal.Decimal `json:"quantityOnHand"`
	WeightedAverageCost decimal.Decimal `json:"weightedAverageCost"`
	Replayed            bool            `json:"replayed"`
}

// ReceiveBatch appends a new active batch
func (r *InventoryRecord) ReceiveBatch(p ReceiptParams) (*ReceiptResult, error) {
	if err := r.checkInward(p.Quantity, p.UnitCost); err != nil {
		return nil, err
	}
	if m, ok := r.Movements().FindByRequestID(p.RequestID); ok {
		return r.replayReceipt(m, MovementReceipt)
	}

	batch := newStockBatch(BatchOriginReceipt, p.Quantity, p.UnitCost, p.BatchNumber, p.ReceivedAt)
	batch.ExpiresAt = p.ExpiresAt
	batch.SupplierRef = p.SupplierRef
	batch.DeliveryRef = p.DeliveryRef
	batch.StorageLocation = p.StorageLocation
	batch.Notes = p.Notes

	return r.receive(batch, p.DeliveryRef, "purchase receipt", p.PerformedBy, p.RequestID), nil
}

// ReceiveTransfer appends a batch arriving from another site. The batch number
// defaults to one derived from the transfer id.
func (r *InventoryRecord) ReceiveTransfer(p TransferInParams) (*ReceiptResult, error) {
	if err := r.checkInward(p.Quantity, p.UnitCost); err != nil {
		return nil, err
	}
	if m, ok := r.Movements().FindByRequestID(p.RequestID); ok {
		return r.replayReceipt(m, MovementTransfer)
	}

	batchNumber := p.BatchNumber
	if batchNumber == "" && p.TransferID != "" {
		batchNumber = "TRF-" + p.TransferID
	}
	batch := newStockBatch(BatchOriginTransfer, p.Quantity, p.UnitCost, batchNumber, time.Time{})
	batch.ExpiresAt = p.ExpiresAt
	batch.Notes = "transfer from site " + p.SourceSiteID

	result := r.receiveAs(MovementTransfer, batch, p.TransferID, "transfer in from "+p.SourceSiteID, p.PerformedBy, p.RequestID)
	return result, nil
}

func (r *InventoryRecord) receive(batch StockBatch, externalRef, reason, performer, requestID string) *ReceiptResult {
	return r.receiveAs(MovementReceipt, batch, externalRef, reason, performer, requestID)
}

func (r *InventoryRecord) receiveAs(movementType MovementType, batch StockBatch, externalRef, reason, performer, requestID string) *ReceiptResult {
	r.Batches = append(r.Batches, batch)
	r.recalculate()

	movement := r.recordMovement(StockMovement{
		Type:        movementType,
		Quantity:    batch.OriginalQuantity,
		UnitCost:    batch.UnitCost,
		TotalCost:   batch.TotalCost,
		Reason:      reason,
		BatchID:     batch.BatchID,
		ExternalRef: externalRef,
		PerformedBy: performer,
		RequestID:   requestID,
	})

	r.AddDomainEvent(&StockReceivedEvent{
		OrganizationID: r.Key.OrganizationID,
		SiteID:         r.Key.SiteID,
		ItemID:         r.Key.ItemID,
		Quantity:       batch.OriginalQuantity,
		Unit:           r.Details.Unit,
		UnitCost:       batch.UnitCost,
		NewOnHand:      r.QuantityOnHand,
		BatchNumber:    batch.BatchNumber,
		ExpiresAt:      batch.ExpiresAt,
		SupplierRef:    batch.SupplierRef,
		ReceivedAt:     movement.OccurredAt,
	})
	r.evaluateLevel(externalRef)
	r.touch()

	return &ReceiptResult{
		MovementID:          movement.MovementID,
		BatchID:             batch.BatchID,
		BatchNumber:         batch.BatchNumber,
		Quantity:            batch.OriginalQuantity,
		QuantityOnHand:      r.QuantityOnHand,
		WeightedAverageCost: r.WeightedAverageCost,
	}
}

// ConsumptionParams carries a FIFO consumption request
type ConsumptionParams struct {
	Quantity    decimal.Decimal
	Reason      string
	OrderRef    string
	PerformedBy string
	RequestID   string
}

// WasteParams carries a waste recording
type WasteParams struct {
	Quantity      decimal.Decimal
	WasteCategory string
	Reason        string
	PerformedBy   string
	RequestID     string
}

// TransferOutParams carries stock leaving for another site
type TransferOutParams struct {
	Quantity          decimal.Decimal
	DestinationSiteID string
	TransferID        string
	PerformedBy       string
	RequestID         string
}

// ConsumptionResult is the costed outcome of a FIFO draw
type ConsumptionResult struct {
	MovementID          string           `json:"movementId"`
	Quantity            decimal.Decimal  `json:"quantity"`
	Lines               ConsumptionLines `json:"lines"`
	TotalCost           decimal.Decimal  `json:"totalCost"`
	QuantityOnHand      decimal.Decimal  `json:"quantityOnHand"`
	QuantityAvailable   decimal.Decimal  `json:"quantityAvailable"`
	WeightedAverageCost decimal.Decimal  `json:"weightedAverageCost"`
	StockLevel          StockLevel       `json:"stockLevel"`
	Replayed            bool             `json:"replayed"`
}

// CanCover checks, without mutating anything, that active batches can supply quantity
func (r *InventoryRecord) CanCover(quantity decimal.Decimal) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidQuantity, quantity)
	}
	_, err := planFIFO(r.Batches, quantity)
	return err
}

// Consume draws quantity oldest batch first. The ledger must already have approved the debit.
func (r *InventoryRecord) Consume(p ConsumptionParams) (*ConsumptionResult, error) {
	if m, ok, err := r.replayable(p.RequestID, MovementConsumption); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return r.consumptionResult(m, true), nil
	}
	reason := p.Reason
	if reason == "" {
		reason = "consumption"
	}
	movement, err := r.drawDown(MovementConsumption, p.Quantity, reason, p.OrderRef, p.PerformedBy, p.RequestID)
	if err != nil {
		return nil, err
	}

	r.AddDomainEvent(&StockConsumedEvent{
		OrganizationID: r.Key.OrganizationID,
		SiteID:         r.Key.SiteID,
		ItemID:         r.Key.ItemID,
		Quantity:       p.Quantity,
		TotalCost:      movement.TotalCost,
		NewAvailable:   r.QuantityAvailable,
		OrderRef:       p.OrderRef,
		Reason:         reason,
		ConsumedAt:     movement.OccurredAt,
	})
	r.evaluateLevel(p.OrderRef)
	r.touch()
	return r.consumptionResult(movement, false), nil
}

// RecordWaste draws quantity oldest batch first and records a waste movement
func (r *InventoryRecord) RecordWaste(p WasteParams) (*ConsumptionResult, error) {
	if m, ok, err := r.replayable(p.RequestID, MovementWaste); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return r.consumptionResult(m, true), nil
	}
	reason := p.Reason
	if p.WasteCategory != "" {
		reason = p.WasteCategory + ": " + reason
	}
	movement, err := r.drawDown(MovementWaste, p.Quantity, reason, "", p.PerformedBy, p.RequestID)
	if err != nil {
		return nil, err
	}
	r.evaluateLevel("")
	r.touch()
	return r.consumptionResult(movement, false), nil
}

// TransferOut draws quantity oldest batch first for shipment to another site
func (r *InventoryRecord) TransferOut(p TransferOutParams) (*ConsumptionResult, error) {
	if m, ok, err := r.replayable(p.RequestID, MovementTransfer); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return r.consumptionResult(m, true), nil
	}
	reason := "transfer out to " + p.DestinationSiteID
	movement, err := r.drawDown(MovementTransfer, p.Quantity, reason, p.TransferID, p.PerformedBy, p.RequestID)
	if err != nil {
		return nil, err
	}
	r.evaluateLevel(p.TransferID)
	r.touch()
	return r.consumptionResult(movement, false), nil
}

func (r *InventoryRecord) drawDown(movementType MovementType, quantity decimal.Decimal, reason, externalRef, performer, requestID string) (StockMovement, error) {
	if err := r.CanCover(quantity); err != nil {
		return StockMovement{}, err
	}
	lines, err := applyFIFO(r.Batches, quantity)
	if err != nil {
		return StockMovement{}, err
	}
	r.recalculate()

	totalCost := lines.TotalCost()
	return r.recordMovement(StockMovement{
		Type:        movementType,
		Quantity:    quantity.Neg(),
		UnitCost:    totalCost.Div(quantity),
		TotalCost:   totalCost,
		Reason:      reason,
		ExternalRef: externalRef,
		PerformedBy: performer,
		RequestID:   requestID,
		Lines:       lines,
	}), nil
}

// AdjustmentParams carries a physical count
type AdjustmentParams struct {
	NewQuantity decimal.Decimal
	Reason      string
	PerformedBy string
	ApprovedBy  string
	RequestID   string
}

// AdjustmentResult is the outcome of a physical count
type AdjustmentResult struct {
	MovementID          string           `json:"movementId"`
	Variance            decimal.Decimal  `json:"variance"`
	BatchID             string           `json:"batchId,omitempty"`
	Lines               ConsumptionLines `json:"lines,omitempty"`
	QuantityOnHand      decimal.Decimal  `json:"quantityOnHand"`
	WeightedAverageCost decimal.Decimal  `json:"weightedAverageCost"`
	Replayed            bool             `json:"replayed"`
}

// Variance returns newQuantity minus current on-hand
func (r *InventoryRecord) Variance(newQuantity decimal.Decimal) decimal.Decimal {
	return newQuantity.Sub(r.QuantityOnHand)
}

// AdjustQuantity aligns batches to a counted quantity. A surplus becomes one batch at the
// current weighted-average cost; a shortage is drawn FIFO. The ledger is set separately.
func (r *InventoryRecord) AdjustQuantity(p AdjustmentParams) (*AdjustmentResult, error) {
	if !r.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if p.NewQuantity.IsNegative() {
		return nil, fmt.Errorf("%w: counted quantity %s is negative", ErrInvalidQuantity, p.NewQuantity)
	}
	if m, ok, err := r.replayable(p.RequestID, MovementAdjustment); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return &AdjustmentResult{
			MovementID:          m.MovementID,
			Variance:            m.Quantity,
			BatchID:             m.BatchID,
			Lines:               m.Lines,
			QuantityOnHand:      r.QuantityOnHand,
			WeightedAverageCost: r.WeightedAverageCost,
			Replayed:            true,
		}, nil
	}

	variance := r.Variance(p.NewQuantity)
	result := &AdjustmentResult{Variance: variance}
	unitCost := r.WeightedAverageCost
	totalCost := decimal.Zero

	switch {
	case variance.IsPositive():
		batch := newStockBatch(BatchOriginAdjustment, variance, unitCost, "", time.Time{})
		batch.Notes = p.Reason
		r.Batches = append(r.Batches, batch)
		result.BatchID = batch.BatchID
		totalCost = batch.TotalCost
	case variance.IsNegative():
		lines, err := applyFIFO(r.Batches, variance.Abs())
		if err != nil {
			return nil, err
		}
		result.Lines = lines
		totalCost = lines.TotalCost()
		unitCost = totalCost.Div(variance.Abs())
	}
	r.recalculate()

	reason := p.Reason
	if p.ApprovedBy != "" {
		reason = fmt.Sprintf("%s (approved by %s)", reason, p.ApprovedBy)
	}
	movement := r.recordMovement(StockMovement{
		Type:        MovementAdjustment,
		Quantity:    variance,
		UnitCost:    unitCost,
		TotalCost:   totalCost,
		Reason:      reason,
		BatchID:     result.BatchID,
		PerformedBy: p.PerformedBy,
		RequestID:   p.RequestID,
		Lines:       result.Lines,
	})
	r.evaluateLevel("")
	r.touch()

	result.MovementID = movement.MovementID
	result.QuantityOnHand = r.QuantityOnHand
	result.WeightedAverageCost = r.WeightedAverageCost
	return result, nil
}

// WrittenOffBatch describes one batch removed by expiry
type WrittenOffBatch struct {
	BatchID     string          `json:"batchId"`
	BatchNumber string          `json:"batchNumber"`
	Quantity    decimal.Decimal `json:"quantity"`
	MovementID  string          `json:"movementId"`
}

// WriteOffResult is the outcome of an expiry sweep
type WriteOffResult struct {
	Batches        []WrittenOffBatch `json:"batches"`
	TotalQuantity  decimal.Decimal   `json:"totalQuantity"`
	QuantityOnHand decimal.Decimal   `json:"quantityOnHand"`
}

// ExpiredQuantity sums the remaining quantity of active batches expired before now
func (r *InventoryRecord) ExpiredQuantity(now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, b := range r.Batches {
		if b.IsActive() && b.IsExpired(now) {
			total = total.Add(b.RemainingQuantity)
		}
	}
	return total
}

// WriteOffExpiredBatches writes off every active batch expired before now,
// recording one waste movement per batch.
func (r *InventoryRecord) WriteOffExpiredBatches(performer string, now time.Time) (*WriteOffResult, error) {
	if !r.IsInitialized() {
		return nil, ErrNotInitialized
	}

	result := &WriteOffResult{Batches: make([]WrittenOffBatch, 0), TotalQuantity: decimal.Zero}
	for i := range r.Batches {
		b := &r.Batches[i]
		if !b.IsActive() || !b.IsExpired(now) {
			continue
		}
		removed := b.writeOff()
		movement := r.recordMovement(StockMovement{
			Type:        MovementWaste,
			Quantity:    removed.Neg(),
			UnitCost:    b.UnitCost,
			TotalCost:   removed.Mul(b.UnitCost),
			Reason:      "expired",
			BatchID:     b.BatchID,
			PerformedBy: performer,
		})
		result.Batches = append(result.Batches, WrittenOffBatch{
			BatchID:     b.BatchID,
			BatchNumber: b.BatchNumber,
			Quantity:    removed,
			MovementID:  movement.MovementID,
		})
		result.TotalQuantity = result.TotalQuantity.Add(removed)
	}

	if len(result.Batches) > 0 {
		r.recalculate()
		r.evaluateLevel("")
		r.touch()
	}
	result.QuantityOnHand = r.QuantityOnHand
	return result, nil
}

// ReversalParams identifies a consumption to put back
type ReversalParams struct {
	MovementID  string
	Reason      string
	PerformedBy string
	RequestID   string
}

// ReversalResult is the outcome of a reversal
type ReversalResult struct {
	MovementID     string          `json:"movementId"`
	BatchID        string          `json:"batchId"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	QuantityOnHand decimal.Decimal `json:"quantityOnHand"`
	Replayed       bool            `json:"replayed"`
}

// ReversibleMovement returns the consumption movement a reversal would restore
func (r *InventoryRecord) ReversibleMovement(movementID string) (StockMovement, error) {
	if !r.IsInitialized() {
		return StockMovement{}, ErrNotInitialized
	}
	m, ok := r.Movements().Find(movementID)
	if !ok || m.Type != MovementConsumption || !m.Quantity.IsNegative() {
		return StockMovement{}, fmt.Errorf("%w: %s", ErrMovementNotFound, movementID)
	}
	for _, id := range r.ReversedMovementIDs {
		if id == movementID {
			return StockMovement{}, fmt.Errorf("%w: %s already reversed", ErrMovementNotFound, movementID)
		}
	}
	return m, nil
}

// ReverseConsumption puts a consumed quantity back as a new batch at the consumption's unit cost
func (r *InventoryRecord) ReverseConsumption(p ReversalParams) (*ReversalResult, error) {
	if !r.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if m, ok := r.Movements().FindByRequestID(p.RequestID); ok {
		if m.Type != MovementConsumption || !m.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrRequestIDConflict, p.RequestID)
		}
		return &ReversalResult{
			MovementID:     m.MovementID,
			BatchID:        m.BatchID,
			Quantity:       m.Quantity,
			UnitCost:       m.UnitCost,
			QuantityOnHand: r.QuantityOnHand,
			Replayed:       true,
		}, nil
	}

	original, err := r.ReversibleMovement(p.MovementID)
	if err != nil {
		return nil, err
	}
	quantity := original.Quantity.Abs()
	batch := newStockBatch(BatchOriginReversal, quantity, original.UnitCost, "REV-"+shortID(original.MovementID), time.Time{})
	batch.Notes = p.Reason
	r.Batches = append(r.Batches, batch)
	r.recalculate()

	movement := r.recordMovement(StockMovement{
		Type:        MovementConsumption,
		Quantity:    quantity,
		UnitCost:    batch.UnitCost,
		TotalCost:   batch.TotalCost,
		Reason:      "reversal: " + p.Reason,
		BatchID:     batch.BatchID,
		ExternalRef: original.MovementID,
		PerformedBy: p.PerformedBy,
		RequestID:   p.RequestID,
	})
	r.markReversed(original.MovementID)
	r.evaluateLevel("")
	r.touch()

	return &ReversalResult{
		MovementID:     movement.MovementID,
		BatchID:        batch.BatchID,
		Quantity:       quantity,
		UnitCost:       batch.UnitCost,
		QuantityOnHand: r.QuantityOnHand,
	}, nil
}

// SetReorderPoint changes the reorder threshold and re-evaluates the level
func (r *InventoryRecord) SetReorderPoint(value decimal.Decimal) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	if value.IsNegative() {
		return ErrInvalidThreshold
	}
	r.ReorderPoint = value
	r.evaluateLevel("")
	r.touch()
	return nil
}

// SetParLevel changes the par level and re-evaluates the level
func (r *InventoryRecord) SetParLevel(value decimal.Decimal) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	if value.IsNegative() {
		return ErrInvalidThreshold
	}
	r.ParLevel = value
	r.evaluateLevel("")
	r.touch()
	return nil
}

// SetReservedQuantity records quantity set aside outside batch mechanics
func (r *InventoryRecord) SetReservedQuantity(value decimal.Decimal) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	if value.IsNegative() {
		return fmt.Errorf("%w: reserved quantity %s is negative", ErrInvalidQuantity, value)
	}
	r.QuantityReserved = value
	r.recalculate()
	r.evaluateLevel("")
	r.touch()
	return nil
}

// UpdateDetails replaces the descriptive fields
func (r *InventoryRecord) UpdateDetails(details ItemDetails) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	r.Details = details
	r.touch()
	return nil
}

// LevelInfo returns the current quantities, cost and classification
func (r *InventoryRecord) LevelInfo() LevelInfo {
	info := LevelInfo{
		QuantityOnHand:      r.QuantityOnHand,
		QuantityReserved:    r.QuantityReserved,
		QuantityAvailable:   r.QuantityAvailable,
		WeightedAverageCost: r.WeightedAverageCost,
		StockLevel:          r.StockLevel,
		ReorderPoint:        r.ReorderPoint,
		ParLevel:            r.ParLevel,
	}
	for _, b := range r.Batches {
		if !b.IsActive() || b.ExpiresAt == nil {
			continue
		}
		if info.EarliestExpiry == nil || b.ExpiresAt.Before(*info.EarliestExpiry) {
			expiry := *b.ExpiresAt
			info.EarliestExpiry = &expiry
		}
	}
	return info
}

// ActiveBatches returns active batches in consumption order
func (r *InventoryRecord) ActiveBatches() []StockBatch {
	order := fifoOrder(r.Batches)
	out := make([]StockBatch, 0, len(order))
	for _, i := range order {
		out = append(out, r.Batches[i])
	}
	return out
}

// InventoryValue is the cost of everything still on hand
func (r *InventoryRecord) InventoryValue() decimal.Decimal {
	total := decimal.Zero
	for _, b := range r.Batches {
		if b.IsActive() {
			total = total.Add(b.RemainingValue())
		}
	}
	return total
}

// FindBatch looks up a batch by id
func (r *InventoryRecord) FindBatch(batchID string) (StockBatch, error) {
	for _, b := range r.Batches {
		if b.BatchID == batchID {
			return b, nil
		}
	}
	return StockBatch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
}

// AddDomainEvent adds a domain event
func (r *InventoryRecord) AddDomainEvent(event DomainEvent) {
	r.DomainEvents = append(r.DomainEvents, event)
}

// PullEvents returns and clears the pending domain events
func (r *InventoryRecord) PullEvents() []DomainEvent {
	events := r.DomainEvents
	r.DomainEvents = make([]DomainEvent, 0)
	return events
}

// ClearDomainEvents clears all pending domain events
func (r *InventoryRecord) ClearDomainEvents() {
	r.DomainEvents = make([]DomainEvent, 0)
}

// Clone returns a deep copy of the record
func (r *InventoryRecord) Clone() *InventoryRecord {
	clone := *r
	clone.Batches = make([]StockBatch, len(r.Batches))
	copy(clone.Batches, r.Batches)
	clone.ReversedMovementIDs = append([]string(nil), r.ReversedMovementIDs...)
	clone.DomainEvents = append([]DomainEvent(nil), r.DomainEvents...)
	clone.movements = r.Movements().clone()
	return &clone
}

func (r *InventoryRecord) checkInward(quantity, unitCost decimal.Decimal) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidQuantity, quantity)
	}
	if unitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	return nil
}

// replayable finds a retained movement for the request id. A hit of another type is a conflict.
func (r *InventoryRecord) replayable(requestID string, movementType MovementType) (StockMovement, bool, error) {
	if !r.IsInitialized() {
		return StockMovement{}, false, ErrNotInitialized
	}
	m, ok := r.Movements().FindByRequestID(requestID)
	if !ok {
		return StockMovement{}, false, nil
	}
	if m.Type != movementType || !m.Quantity.IsNegative() {
		return StockMovement{}, false, fmt.Errorf("%w: %s", ErrRequestIDConflict, requestID)
	}
	return m, true, nil
}

func (r *InventoryRecord) replayReceipt(m StockMovement, movementType MovementType) (*ReceiptResult, error) {
	if m.Type != movementType || !m.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrRequestIDConflict, m.RequestID)
	}
	result := &ReceiptResult{
		MovementID:          m.MovementID,
		BatchID:             m.BatchID,
		Quantity:            m.Quantity,
		QuantityOnHand:      r.QuantityOnHand,
		WeightedAverageCost: r.WeightedAverageCost,
		Replayed:            true,
	}
	if b, err := r.FindBatch(m.BatchID); err == nil {
		result.BatchNumber = b.BatchNumber
	}
	return result, nil
}

func (r *InventoryRecord) consumptionResult(m StockMovement, replayed bool) *ConsumptionResult {
	return &ConsumptionResult{
		MovementID:          m.MovementID,
		Quantity:            m.Quantity.Abs(),
		Lines:               m.Lines,
		TotalCost:           m.TotalCost,
		QuantityOnHand:      r.QuantityOnHand,
		QuantityAvailable:   r.QuantityAvailable,
		WeightedAverageCost: r.WeightedAverageCost,
		StockLevel:          r.StockLevel,
		Replayed:            replayed,
	}
}

func (r *InventoryRecord) recordMovement(m StockMovement) StockMovement {
	m.MovementID = generateMovementID()
	m.OccurredAt = time.Now().UTC()
	r.Movements().Push(m)
	return m
}

// markReversed remembers a reversed consumption, forgetting ids no longer in the ring
func (r *InventoryRecord) markReversed(movementID string) {
	kept := make([]string, 0, len(r.ReversedMovementIDs)+1)
	for _, id := range r.ReversedMovementIDs {
		if _, ok := r.Movements().Find(id); ok {
			kept = append(kept, id)
		}
	}
	r.ReversedMovementIDs = append(kept, movementID)
}

// recalculate derives on-hand, available and weighted-average cost from the batches
func (r *InventoryRecord) recalculate() {
	onHand := decimal.Zero
	value := decimal.Zero
	for _, b := range r.Batches {
		if !b.IsActive() {
			continue
		}
		onHand = onHand.Add(b.RemainingQuantity)
		value = value.Add(b.RemainingValue())
	}
	r.QuantityOnHand = onHand
	r.QuantityAvailable = onHand.Sub(r.QuantityReserved)
	if onHand.IsPositive() {
		r.WeightedAverageCost = value.Div(onHand)
	} else {
		r.WeightedAverageCost = decimal.Zero
	}
}

func (r *InventoryRecord) classify() StockLevel {
	return ClassifyStockLevel(r.QuantityAvailable, r.ReorderPoint, r.ParLevel)
}

// evaluateLevel reclassifies and raises alerts only on entry into Low or OutOfStock
func (r *InventoryRecord) evaluateLevel(triggeringRef string) {
	previous := r.StockLevel
	current := r.classify()
	r.StockLevel = current
	if current == previous {
		return
	}

	now := time.Now().UTC()
	switch current {
	case StockLevelLow:
		r.AddDomainEvent(&ReorderPointBreachedEvent{
			OrganizationID:  r.Key.OrganizationID,
			SiteID:          r.Key.SiteID,
			ItemID:          r.Key.ItemID,
			Available:       r.QuantityAvailable,
			ReorderPoint:    r.ReorderPoint,
			ParLevel:        r.ParLevel,
			QuantityToOrder: QuantityToOrder(r.QuantityAvailable, r.ParLevel),
			BreachedAt:      now,
		})
	case StockLevelOutOfStock:
		r.AddDomainEvent(&StockDepletedEvent{
			OrganizationID: r.Key.OrganizationID,
			SiteID:         r.Key.SiteID,
			ItemID:         r.Key.ItemID,
			TriggeringRef:  triggeringRef,
			DepletedAt:     now,
		})
	}
}

func (r *InventoryRecord) touch() {
	r.UpdatedAt = time.Now().UTC()
	r.Version++
}

func generateMovementID() string {
	return fmt.Sprintf("MV-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.New().String()[:8])
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
