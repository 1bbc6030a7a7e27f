package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType classifies an audit movement
type MovementType string

const (
	MovementReceipt     MovementType = "RECEIPT"
	MovementConsumption MovementType = "CONSUMPTION"
	MovementWaste       MovementType = "WASTE"
	MovementTransfer    MovementType = "TRANSFER"
	MovementAdjustment  MovementType = "ADJUSTMENT"
)

// MovementRingCapacity is how many recent movements a record retains
const MovementRingCapacity = 100

// StockMovement is an immutable audit record. Quantity is signed: positive inward, negative outward.
type StockMovement struct {
	MovementID  string           `json:"movementId"`
	Type        MovementType     `json:"type"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitCost    decimal.Decimal  `json:"unitCost"`
	TotalCost   decimal.Decimal  `json:"totalCost"`
	Reason      string           `json:"reason,omitempty"`
	BatchID     string           `json:"batchId,omitempty"`
	ExternalRef string           `json:"externalRef,omitempty"`
	PerformedBy string           `json:"performedBy,omitempty"`
	RequestID   string           `json:"requestId,omitempty"`
	Lines       ConsumptionLines `json:"lines,omitempty"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

// MovementRing keeps the most recent movements, evicting the oldest when full
type MovementRing struct {
	buf   []StockMovement
	start int
	size  int
}

// NewMovementRing creates an empty ring with the given capacity
func NewMovementRing(capacity int) *MovementRing {
	if capacity <= 0 {
		capacity = MovementRingCapacity
	}
	return &MovementRing{buf: make([]StockMovement, capacity)}
}

// RestoreMovementRing rebuilds a ring from movements in insertion order
func RestoreMovementRing(capacity int, movements []StockMovement) *MovementRing {
	ring := NewMovementRing(capacity)
	for _, m := range movements {
		ring.Push(m)
	}
	return ring
}

// Push appends a movement, evicting the oldest one if the ring is full
func (r *MovementRing) Push(m StockMovement) {
	capacity := len(r.buf)
	if r.size < capacity {
		r.buf[(r.start+r.size)%capacity] = m
		r.size++
		return
	}
	r.buf[r.start] = m
	r.start = (r.start + 1) % capacity
}

// Len returns the number of retained movements
func (r *MovementRing) Len() int {
	return r.size
}

// Capacity returns the maximum number of retained movements
func (r *MovementRing) Capacity() int {
	return len(r.buf)
}

// Items returns the retained movements oldest first
func (r *MovementRing) Items() []StockMovement {
	out := make([]StockMovement, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Latest returns up to limit movements, newest first. A non-positive limit returns all.
func (r *MovementRing) Latest(limit int) []StockMovement {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]StockMovement, 0, limit)
	for i := r.size - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Find looks up a movement by id
func (r *MovementRing) Find(movementID string) (StockMovement, bool) {
	for i := 0; i < r.size; i++ {
		m := r.buf[(r.start+i)%len(r.buf)]
		if m.MovementID == movementID {
			return m, true
		}
	}
	return StockMovement{}, false
}

// FindByRequestID looks up a movement by the request id that produced it
func (r *MovementRing) FindByRequestID(requestID string) (StockMovement, bool) {
	if requestID == "" {
		return StockMovement{}, false
	}
	for i := 0; i < r.size; i++ {
		m := r.buf[(r.start+i)%len(r.buf)]
		if m.RequestID == requestID {
			return m, true
		}
	}
	return StockMovement{}, false
}

func (r *MovementRing) clone() *MovementRing {
	return RestoreMovementRing(len(r.buf), r.Items())
}
