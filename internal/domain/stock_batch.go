package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of a received batch
type BatchStatus string

const (
	BatchStatusActive     BatchStatus = "ACTIVE"
	BatchStatusExhausted  BatchStatus = "EXHAUSTED"
	BatchStatusWrittenOff BatchStatus = "WRITTEN_OFF"
)

// BatchOrigin records which operation created the batch
type BatchOrigin string

const (
	BatchOriginReceipt    BatchOrigin = "RECEIPT"
	BatchOriginTransfer   BatchOrigin = "TRANSFER"
	BatchOriginAdjustment BatchOrigin = "ADJUSTMENT"
	BatchOriginReversal   BatchOrigin = "REVERSAL"
)

// StockBatch is a discrete lot of received stock with its own cost.
// Batches are never deleted; exhausted and written-off batches stay for audit.
type StockBatch struct {
	BatchID           string          `json:"batchId"`
	BatchNumber       string          `json:"batchNumber"`
	Origin            BatchOrigin     `json:"origin"`
	ReceivedAt        time.Time       `json:"receivedAt"`
	ExpiresAt         *time.Time      `json:"expiresAt,omitempty"`
	OriginalQuantity  decimal.Decimal `json:"originalQuantity"`
	RemainingQuantity decimal.Decimal `json:"remainingQuantity"`
	UnitCost          decimal.Decimal `json:"unitCost"`
	TotalCost         decimal.Decimal `json:"totalCost"`
	Status            BatchStatus     `json:"status"`
	SupplierRef       string          `json:"supplierRef,omitempty"`
	DeliveryRef       string          `json:"deliveryRef,omitempty"`
	StorageLocation   string          `json:"storageLocation,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

func newStockBatch(origin BatchOrigin, quantity, unitCost decimal.Decimal, batchNumber string, receivedAt time.Time) StockBatch {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	if batchNumber == "" {
		batchNumber = fmt.Sprintf("B-%s-%s", receivedAt.Format("20060102"), uuid.New().String()[:6])
	}
	return StockBatch{
		BatchID:           uuid.New().String(),
		BatchNumber:       batchNumber,
		Origin:            origin,
		ReceivedAt:        receivedAt,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		UnitCost:          unitCost,
		TotalCost:         quantity.Mul(unitCost),
		Status:            BatchStatusActive,
	}
}

// IsActive returns true while the batch still contributes to on-hand quantity
func (b StockBatch) IsActive() bool {
	return b.Status == BatchStatusActive
}

// IsExpired returns true if the batch has an expiry strictly before now
func (b StockBatch) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// RemainingValue is remaining quantity times unit cost
func (b StockBatch) RemainingValue() decimal.Decimal {
	return b.RemainingQuantity.Mul(b.UnitCost)
}

// take removes up to quantity from the batch and returns what was taken.
// A batch drained to zero becomes exhausted.
func (b *StockBatch) take(quantity decimal.Decimal) decimal.Decimal {
	taken := decimal.Min(b.RemainingQuantity, quantity)
	b.RemainingQuantity = b.RemainingQuantity.Sub(taken)
	if b.RemainingQuantity.IsZero() {
		b.Status = BatchStatusExhausted
	}
	return taken
}

// writeOff zeroes the batch and returns the quantity removed
func (b *StockBatch) writeOff() decimal.Decimal {
	removed := b.RemainingQuantity
	b.RemainingQuantity = decimal.Zero
	b.Status = BatchStatusWrittenOff
	return removed
}

// ConsumptionLine is the share of one batch in a FIFO draw
type ConsumptionLine struct {
	BatchID      string          `json:"batchId"`
	BatchNumber  string          `json:"batchNumber"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	ExtendedCost decimal.Decimal `json:"extendedCost"`
}

// ConsumptionLines is a FIFO breakdown
type ConsumptionLines []ConsumptionLine

// TotalQuantity sums the quantity of every line
func (ls ConsumptionLines) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		total = total.Add(l.Quantity)
	}
	return total
}

// TotalCost sums the extended cost of every line
func (ls ConsumptionLines) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		total = total.Add(l.ExtendedCost)
	}
	return total
}

// fifoOrder returns indexes of active batches, oldest received first.
// Equal timestamps keep insertion order.
func fifoOrder(batches []StockBatch) []int {
	idx := make([]int, 0, len(batches))
	for i := range batches {
		if batches[i].IsActive() {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return batches[idx[a]].ReceivedAt.Before(batches[idx[b]].ReceivedAt)
	})
	return idx
}

// planFIFO computes the breakdown for drawing quantity without touching the batches.
// It fails with ErrFIFOShortfall if the active batches cannot cover the quantity.
func planFIFO(batches []StockBatch, quantity decimal.Decimal) (ConsumptionLines, error) {
	outstanding := quantity
	lines := make(ConsumptionLines, 0)
	for _, i := range fifoOrder(batches) {
		if !outstanding.IsPositive() {
			break
		}
		b := batches[i]
		taken := decimal.Min(b.RemainingQuantity, outstanding)
		if !taken.IsPositive() {
			continue
		}
		lines = append(lines, ConsumptionLine{
			BatchID:      b.BatchID,
			BatchNumber:  b.BatchNumber,
			Quantity:     taken,
			UnitCost:     b.UnitCost,
			ExtendedCost: taken.Mul(b.UnitCost),
		})
		outstanding = outstanding.Sub(taken)
	}
	if outstanding.IsPositive() {
		return nil, fmt.Errorf("%w: short by %s", ErrFIFOShortfall, outstanding)
	}
	return lines, nil
}

// applyFIFO draws quantity from the batches in FIFO order
func applyFIFO(batches []StockBatch, quantity decimal.Decimal) (ConsumptionLines, error) {
	lines, err := planFIFO(batches, quantity)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		for i := range batches {
			if batches[i].BatchID == line.BatchID {
				batches[i].take(line.Quantity)
				break
			}
		}
	}
	return lines, nil
}
