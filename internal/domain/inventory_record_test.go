package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t1 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	t3 = time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
)

func TestInventoryRecordInitialize(t *testing.T) {
	record := newTestRecord(t, "20", "100")

	assert.True(t, record.IsInitialized())
	assert.Equal(t, StockLevelOutOfStock, record.StockLevel)
	assert.Equal(t, int64(1), record.Version)
	assert.Empty(t, record.DomainEvents, "initial classification raises no alert")

	err := record.Initialize(testKey(), ItemDetails{}, d("1"), d("2"))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	blank := &InventoryRecord{}
	assert.ErrorIs(t, blank.Initialize(StockKey{OrganizationID: "org-1"}, ItemDetails{}, d("0"), d("0")), ErrInvalidStockKey)
	assert.ErrorIs(t, blank.Initialize(testKey(), ItemDetails{}, d("-1"), d("0")), ErrInvalidThreshold)
}

func TestInventoryRecordRequiresInitialize(t *testing.T) {
	record := &InventoryRecord{}

	_, err := record.ReceiveBatch(ReceiptParams{Quantity: d("1"), UnitCost: d("1")})
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = record.Consume(ConsumptionParams{Quantity: d("1")})
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = record.AdjustQuantity(AdjustmentParams{NewQuantity: d("1")})
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = record.WriteOffExpiredBatches("tester", time.Now())
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.ErrorIs(t, record.SetReorderPoint(d("1")), ErrNotInitialized)
}

func TestReceiveBatch(t *testing.T) {
	tests := []struct {
		name        string
		quantity    string
		unitCost    string
		expectError error
	}{
		{name: "valid receipt", quantity: "100", unitCost: "2.00"},
		{name: "free goods", quantity: "5", unitCost: "0"},
		{name: "zero quantity", quantity: "0", unitCost: "1", expectError: ErrInvalidQuantity},
		{name: "negative quantity", quantity: "-1", unitCost: "1", expectError: ErrInvalidQuantity},
		{name: "negative cost", quantity: "1", unitCost: "-0.01", expectError: ErrInvalidUnitCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := newTestRecord(t, "0", "0")
			expiry := t3

			result, err := record.ReceiveBatch(ReceiptParams{
				Quantity:    d(tt.quantity),
				UnitCost:    d(tt.unitCost),
				ExpiresAt:   &expiry,
				SupplierRef: "SUP-9",
			})

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Empty(t, record.Batches)
				assert.Equal(t, 0, record.Movements().Len())
				return
			}
			require.NoError(t, err)
			assertDecimal(t, tt.quantity, result.QuantityOnHand)
			assert.NotEmpty(t, result.BatchNumber)
			require.Len(t, record.Batches, 1)
			assert.Equal(t, BatchStatusActive, record.Batches[0].Status)

			events := record.PullEvents()
			require.NotEmpty(t, events)
			received, ok := events[0].(*StockReceivedEvent)
			require.True(t, ok)
			assert.Equal(t, "kg", received.Unit)
			assert.Equal(t, "SUP-9", received.SupplierRef)
			require.NotNil(t, received.ExpiresAt)
			assertDecimal(t, tt.quantity, received.NewOnHand)
		})
	}
}

// Receive 100 @ 2.00 then 50 @ 2.50, consume 120
func TestConsumeDrawsOldestBatchFirst(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	first := receive(t, record, "100", "2.00", t1)
	second := receive(t, record, "50", "2.50", t2)

	result, err := record.Consume(ConsumptionParams{Quantity: d("120"), Reason: "dinner service", OrderRef: "ORD-1"})
	require.NoError(t, err)

	require.Len(t, result.Lines, 2)
	assert.Equal(t, first.BatchID, result.Lines[0].BatchID)
	assertDecimal(t, "100", result.Lines[0].Quantity)
	assertDecimal(t, "2", result.Lines[0].UnitCost)
	assertDecimal(t, "200", result.Lines[0].ExtendedCost)
	assert.Equal(t, second.BatchID, result.Lines[1].BatchID)
	assertDecimal(t, "20", result.Lines[1].Quantity)
	assertDecimal(t, "50", result.Lines[1].ExtendedCost)
	assertDecimal(t, "250", result.TotalCost)
	assertDecimal(t, "30", result.QuantityOnHand)
	assertDecimal(t, "2.5", result.WeightedAverageCost)

	batch, err := record.FindBatch(first.BatchID)
	require.NoError(t, err)
	assert.Equal(t, BatchStatusExhausted, batch.Status)
	assert.True(t, batch.RemainingQuantity.IsZero())
	assert.Len(t, record.Batches, 2, "exhausted batches are retained")

	movement := record.Movements().Latest(1)[0]
	assert.Equal(t, MovementConsumption, movement.Type)
	assertDecimal(t, "-120", movement.Quantity)
	assert.Equal(t, "ORD-1", movement.ExternalRef)
}

func TestConsumeUsesReceivedTimestampNotInsertionOrder(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	late := receive(t, record, "10", "3", t3)
	early := receive(t, record, "10", "1", t1)
	tieA := receive(t, record, "10", "2", t2)
	tieB := receive(t, record, "10", "4", t2)

	active := record.ActiveBatches()
	require.Len(t, active, 4)
	assert.Equal(t, []string{early.BatchID, tieA.BatchID, tieB.BatchID, late.BatchID},
		[]string{active[0].BatchID, active[1].BatchID, active[2].BatchID, active[3].BatchID})

	result, err := record.Consume(ConsumptionParams{Quantity: d("15")})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, early.BatchID, result.Lines[0].BatchID)
	assert.Equal(t, tieA.BatchID, result.Lines[1].BatchID)
}

func TestConsumeShortfallLeavesRecordUntouched(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	receive(t, record, "10", "1", t1)
	record.ClearDomainEvents()
	version := record.Version

	_, err := record.Consume(ConsumptionParams{Quantity: d("10.5")})
	assert.ErrorIs(t, err, ErrFIFOShortfall)
	assertDecimal(t, "10", record.QuantityOnHand)
	assert.Equal(t, version, record.Version)
	assert.Equal(t, 1, record.Movements().Len())
	assert.Empty(t, record.DomainEvents)

	_, err = record.Consume(ConsumptionParams{Quantity: d("0")})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestLevelTransitionsAreEdgeTriggered(t *testing.T) {
	record := newTestRecord(t, "20", "100")
	receive(t, record, "30", "2", t1)
	assert.Equal(t, StockLevelNormal, record.StockLevel)
	record.ClearDomainEvents()

	// Normal -> Low
	_, err := record.Consume(ConsumptionParams{Quantity: d("15"), OrderRef: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, StockLevelLow, record.StockLevel)
	events := record.PullEvents()
	assert.Equal(t, []string{EventTypeStockConsumed, EventTypeReorderPointBreached}, eventTypes(events))
	breach := events[1].(*ReorderPointBreachedEvent)
	assertDecimal(t, "15", breach.Available)
	assertDecimal(t, "85", breach.QuantityToOrder)
	assertDecimal(t, "20", breach.ReorderPoint)
	assertDecimal(t, "100", breach.ParLevel)

	// Low -> Low raises nothing new
	_, err = record.Consume(ConsumptionParams{Quantity: d("5")})
	require.NoError(t, err)
	assert.Equal(t, []string{EventTypeStockConsumed}, eventTypes(record.PullEvents()))

	// Low -> OutOfStock
	_, err = record.Consume(ConsumptionParams{Quantity: d("10"), OrderRef: "ORD-3"})
	require.NoError(t, err)
	assert.Equal(t, StockLevelOutOfStock, record.StockLevel)
	events = record.PullEvents()
	assert.Equal(t, []string{EventTypeStockConsumed, EventTypeStockDepleted}, eventTypes(events))
	depleted := events[1].(*StockDepletedEvent)
	assert.Equal(t, "ORD-3", depleted.TriggeringRef)

	// Re-evaluating with unchanged inputs is silent
	require.NoError(t, record.SetReorderPoint(d("20")))
	assert.Empty(t, record.PullEvents())
}

func TestThresholdChangeReevaluatesLevel(t *testing.T) {
	record := newTestRecord(t, "10", "0")
	receive(t, record, "50", "1", t1)
	assert.Equal(t, StockLevelNormal, record.StockLevel)
	record.ClearDomainEvents()
	version := record.Version

	require.NoError(t, record.SetReorderPoint(d("60")))
	assert.Equal(t, StockLevelLow, record.StockLevel)
	assert.Equal(t, []string{EventTypeReorderPointBreached}, eventTypes(record.PullEvents()))
	assert.Equal(t, version+1, record.Version)
	assert.Equal(t, 1, record.Movements().Len(), "threshold changes record no movement")

	require.NoError(t, record.SetReorderPoint(d("5")))
	require.NoError(t, record.SetParLevel(d("40")))
	assert.Equal(t, StockLevelAbovePar, record.StockLevel)
	assert.ErrorIs(t, record.SetParLevel(d("-1")), ErrInvalidThreshold)
}

func TestReservedQuantityReducesAvailable(t *testing.T) {
	record := newTestRecord(t, "20", "100")
	receive(t, record, "50", "1", t1)
	record.ClearDomainEvents()

	require.NoError(t, record.SetReservedQuantity(d("35")))
	assertDecimal(t, "50", record.QuantityOnHand)
	assertDecimal(t, "15", record.QuantityAvailable)
	assert.Equal(t, StockLevelLow, record.StockLevel)
	assert.Equal(t, []string{EventTypeReorderPointBreached}, eventTypes(record.PullEvents()))

	assert.ErrorIs(t, record.SetReservedQuantity(d("-1")), ErrInvalidQuantity)
}

// Physical count of 40 against 30 on hand
func TestAdjustQuantitySurplusCreatesSyntheticBatch(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	receive(t, record, "100", "2.00", t1)
	receive(t, record, "50", "2.50", t2)
	_, err := record.Consume(ConsumptionParams{Quantity: d("120")})
	require.NoError(t, err)

	result, err := record.AdjustQuantity(AdjustmentParams{NewQuantity: d("40"), Reason: "count", PerformedBy: "alex", ApprovedBy: "sam"})
	require.NoError(t, err)

	assertDecimal(t, "10", result.Variance)
	assertDecimal(t, "40", result.QuantityOnHand)
	batch, err := record.FindBatch(result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, BatchOriginAdjustment, batch.Origin)
	assertDecimal(t, "10", batch.OriginalQuantity)
	assertDecimal(t, "2.5", batch.UnitCost)

	movement := record.Movements().Latest(1)[0]
	assert.Equal(t, MovementAdjustment, movement.Type)
	assertDecimal(t, "10", movement.Quantity)
	assert.Contains(t, movement.Reason, "sam")
}

func TestAdjustQuantityShortageDrawsFIFO(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	first := receive(t, record, "10", "1", t1)
	receive(t, record, "10", "3", t2)

	result, err := record.AdjustQuantity(AdjustmentParams{NewQuantity: d("5"), Reason: "count"})
	require.NoError(t, err)

	assertDecimal(t, "-15", result.Variance)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, first.BatchID, result.Lines[0].BatchID)
	assertDecimal(t, "5", record.QuantityOnHand)
	assertDecimal(t, "3", record.WeightedAverageCost)

	_, err = record.AdjustQuantity(AdjustmentParams{NewQuantity: d("-1")})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAdjustQuantityIntoEmptyRecordUsesZeroCost(t *testing.T) {
	record := newTestRecord(t, "0", "0")

	result, err := record.AdjustQuantity(AdjustmentParams{NewQuantity: d("7")})
	require.NoError(t, err)

	batch, err := record.FindBatch(result.BatchID)
	require.NoError(t, err)
	assert.True(t, batch.UnitCost.IsZero())
	assertDecimal(t, "7", record.QuantityOnHand)
}

// Batch with 10 remaining expires before the sweep
func TestWriteOffExpiredBatches(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	expired := t2
	fresh := t3.Add(72 * time.Hour)
	_, err := record.ReceiveBatch(ReceiptParams{Quantity: d("10"), UnitCost: d("4"), ReceivedAt: t1, ExpiresAt: &expired})
	require.NoError(t, err)
	_, err = record.ReceiveBatch(ReceiptParams{Quantity: d("5"), UnitCost: d("1"), ReceivedAt: t1, ExpiresAt: &fresh})
	require.NoError(t, err)
	receive(t, record, "3", "1", t1)

	now := t3
	assertDecimal(t, "10", record.ExpiredQuantity(now))
	assert.Equal(t, expired, *record.LevelInfo().EarliestExpiry)

	result, err := record.WriteOffExpiredBatches("system", now)
	require.NoError(t, err)

	require.Len(t, result.Batches, 1)
	assertDecimal(t, "10", result.TotalQuantity)
	assertDecimal(t, "8", result.QuantityOnHand)
	batch, err := record.FindBatch(result.Batches[0].BatchID)
	require.NoError(t, err)
	assert.Equal(t, BatchStatusWrittenOff, batch.Status)
	assert.True(t, batch.RemainingQuantity.IsZero())

	movement := record.Movements().Latest(1)[0]
	assert.Equal(t, MovementWaste, movement.Type)
	assertDecimal(t, "-10", movement.Quantity)
	assert.Equal(t, batch.BatchID, movement.BatchID)

	version := record.Version
	again, err := record.WriteOffExpiredBatches("system", now)
	require.NoError(t, err)
	assert.Empty(t, again.Batches)
	assert.Equal(t, version, record.Version)
}

func TestReverseConsumptionCreatesNewBatch(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	receive(t, record, "10", "2", t1)
	consumed, err := record.Consume(ConsumptionParams{Quantity: d("10")})
	require.NoError(t, err)
	assertDecimal(t, "0", record.QuantityOnHand)

	result, err := record.ReverseConsumption(ReversalParams{MovementID: consumed.MovementID, Reason: "order cancelled"})
	require.NoError(t, err)

	assertDecimal(t, "10", result.Quantity)
	assertDecimal(t, "2", result.UnitCost)
	assertDecimal(t, "10", record.QuantityOnHand)
	assert.Len(t, record.Batches, 2, "reversal never resurrects the exhausted batch")
	batch, err := record.FindBatch(result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, BatchOriginReversal, batch.Origin)

	_, err = record.ReverseConsumption(ReversalParams{MovementID: consumed.MovementID})
	assert.ErrorIs(t, err, ErrMovementNotFound)

	_, err = record.ReverseConsumption(ReversalParams{MovementID: "MV-missing"})
	assert.ErrorIs(t, err, ErrMovementNotFound)

	_, err = record.ReverseConsumption(ReversalParams{MovementID: result.MovementID})
	assert.ErrorIs(t, err, ErrMovementNotFound, "a reversal movement is not itself reversible")
}

func TestTransfers(t *testing.T) {
	record := newTestRecord(t, "0", "0")

	in, err := record.ReceiveTransfer(TransferInParams{Quantity: d("12"), UnitCost: d("1.5"), SourceSiteID: "site-2", TransferID: "T-77"})
	require.NoError(t, err)
	assert.Equal(t, "TRF-T-77", in.BatchNumber)
	assert.Equal(t, []string{EventTypeStockReceived}, eventTypes(record.PullEvents()))

	out, err := record.TransferOut(TransferOutParams{Quantity: d("12"), DestinationSiteID: "site-3", TransferID: "T-78"})
	require.NoError(t, err)
	assertDecimal(t, "18", out.TotalCost)
	assert.Equal(t, []string{EventTypeStockDepleted}, eventTypes(record.PullEvents()))

	movement := record.Movements().Latest(1)[0]
	assert.Equal(t, MovementTransfer, movement.Type)
	assertDecimal(t, "-12", movement.Quantity)
}

func TestRecordWaste(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	receive(t, record, "10", "2", t1)
	record.ClearDomainEvents()

	result, err := record.RecordWaste(WasteParams{Quantity: d("4"), WasteCategory: "spoilage", Reason: "mould"})
	require.NoError(t, err)
	assertDecimal(t, "8", result.TotalCost)
	assertDecimal(t, "6", record.QuantityOnHand)
	assert.Empty(t, record.PullEvents(), "waste publishes no fact while the level is unchanged")

	movement := record.Movements().Latest(1)[0]
	assert.Equal(t, MovementWaste, movement.Type)
	assert.Equal(t, "spoilage: mould", movement.Reason)
}

func TestRequestIDReplay(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	first, err := record.ReceiveBatch(ReceiptParams{Quantity: d("10"), UnitCost: d("1"), RequestID: "req-1"})
	require.NoError(t, err)
	version := record.Version

	again, err := record.ReceiveBatch(ReceiptParams{Quantity: d("10"), UnitCost: d("1"), RequestID: "req-1"})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.BatchID, again.BatchID)
	assert.Equal(t, version, record.Version)
	assert.Len(t, record.Batches, 1)

	consumed, err := record.Consume(ConsumptionParams{Quantity: d("4"), RequestID: "req-2"})
	require.NoError(t, err)
	replayed, err := record.Consume(ConsumptionParams{Quantity: d("4"), RequestID: "req-2"})
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, consumed.MovementID, replayed.MovementID)
	assertDecimal(t, "6", record.QuantityOnHand)

	_, err = record.RecordWaste(WasteParams{Quantity: d("1"), RequestID: "req-2"})
	assert.ErrorIs(t, err, ErrRequestIDConflict)
}

func TestClaimLedgerEntry(t *testing.T) {
	replayed := func(sequence int64) LedgerEntry {
		return LedgerEntry{Sequence: sequence, Metadata: map[string]string{MetadataIdempotencyKey: "order-1"}}
	}

	tests := []struct {
		name     string
		applied  int64
		entry    LedgerEntry
		wantErr  error
		expected int64
	}{
		{name: "first entry", applied: 0, entry: replayed(1), expected: 1},
		{name: "newer entry", applied: 4, entry: replayed(7), expected: 7},
		{name: "entry already in the batches", applied: 4, entry: replayed(4), wantErr: ErrRequestIDConflict, expected: 4},
		{name: "entry older than the batches", applied: 9, entry: replayed(2), wantErr: ErrRequestIDConflict, expected: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := newTestRecord(t, "0", "0")
			record.LedgerSequence = tt.applied

			err := record.ClaimLedgerEntry(tt.entry)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "order-1")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, record.LedgerSequence)
		})
	}
}

func TestSyncLedgerOnlyMovesForward(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	version := record.Version

	record.SyncLedger(LedgerEntry{Sequence: 5})
	assert.Equal(t, int64(5), record.LedgerSequence)
	assert.Equal(t, version+1, record.Version)

	record.SyncLedger(LedgerEntry{Sequence: 3})
	assert.Equal(t, int64(5), record.LedgerSequence)
	assert.Equal(t, version+1, record.Version)
}

func TestAggregatesMatchBatchesAfterEveryOperation(t *testing.T) {
	record := newTestRecord(t, "5", "50")
	expiry := t2
	check := func() {
		t.Helper()
		sum := d("0")
		for _, b := range record.Batches {
			assert.False(t, b.RemainingQuantity.IsNegative())
			if b.IsActive() {
				sum = sum.Add(b.RemainingQuantity)
			} else {
				assert.True(t, b.RemainingQuantity.IsZero())
			}
		}
		assert.True(t, sum.Equal(record.QuantityOnHand))
		assert.True(t, record.QuantityOnHand.Sub(record.QuantityReserved).Equal(record.QuantityAvailable))
		drift := record.InventoryValue().Sub(record.QuantityOnHand.Mul(record.WeightedAverageCost)).Abs()
		assert.True(t, drift.LessThan(d("0.000001")))
	}

	_, err := record.ReceiveBatch(ReceiptParams{Quantity: d("20"), UnitCost: d("1.10"), ReceivedAt: t1, ExpiresAt: &expiry})
	require.NoError(t, err)
	check()
	receive(t, record, "7", "3.30", t2)
	check()
	_, err = record.Consume(ConsumptionParams{Quantity: d("3")})
	require.NoError(t, err)
	check()
	require.NoError(t, record.SetReservedQuantity(d("2")))
	check()
	_, err = record.AdjustQuantity(AdjustmentParams{NewQuantity: d("30")})
	require.NoError(t, err)
	check()
	_, err = record.WriteOffExpiredBatches("system", t3)
	require.NoError(t, err)
	check()
	_, err = record.RecordWaste(WasteParams{Quantity: d("1")})
	require.NoError(t, err)
	check()
}

func TestMovementRingBoundedAt100(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	for i := 0; i < 130; i++ {
		receive(t, record, "1", "1", t1)
	}
	assert.Equal(t, MovementRingCapacity, record.Movements().Len())
	assertDecimal(t, "130", record.QuantityOnHand)
}

func TestCloneIsIndependent(t *testing.T) {
	record := newTestRecord(t, "0", "0")
	receive(t, record, "10", "1", t1)

	clone := record.Clone()
	_, err := clone.Consume(ConsumptionParams{Quantity: d("10")})
	require.NoError(t, err)

	assertDecimal(t, "10", record.QuantityOnHand)
	assert.Equal(t, BatchStatusActive, record.Batches[0].Status)
	assert.Equal(t, 1, record.Movements().Len())
}
