package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerCategory tags every ledger entry with the business reason for the movement
type LedgerCategory string

const (
	CategoryReceipt        LedgerCategory = "receipt"
	CategoryConsumption    LedgerCategory = "consumption"
	CategoryTransferIn     LedgerCategory = "transfer_in"
	CategoryTransferOut    LedgerCategory = "transfer_out"
	CategoryWaste          LedgerCategory = "waste"
	CategoryReversal       LedgerCategory = "reversal"
	CategoryExpiryWriteOff LedgerCategory = "expiry_writeoff"
	CategoryAdjustment     LedgerCategory = "adjustment"
)

// MetadataIdempotencyKey is the metadata key under which callers pass a retry-safe request id
const MetadataIdempotencyKey = "idempotencyKey"

// IsValid checks if the category is one of the known categories
func (c LedgerCategory) IsValid() bool {
	switch c {
	case CategoryReceipt, CategoryConsumption, CategoryTransferIn, CategoryTransferOut,
		CategoryWaste, CategoryReversal, CategoryExpiryWriteOff, CategoryAdjustment:
		return true
	}
	return false
}

func (c LedgerCategory) String() string {
	return string(c)
}

// LedgerEntry is one append-only line of the quantity ledger
type LedgerEntry struct {
	EntryID      string            `json:"entryId"`
	Key          StockKey          `json:"key"`
	Sequence     int64             `json:"sequence"`
	Delta        decimal.Decimal   `json:"delta"`
	BalanceAfter decimal.Decimal   `json:"balanceAfter"`
	Category     LedgerCategory    `json:"category"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RecordedAt   time.Time         `json:"recordedAt"`
}

// IdempotencyKey returns the caller supplied request id, if any
func (e LedgerEntry) IdempotencyKey() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[MetadataIdempotencyKey]
}

// LedgerRecord is the balance authority for one stock key. It knows nothing about
// batches or cost; it only conserves quantity.
//
// Entries appended since the last save are held in pending until the repository
// pulls them, so a ledger can be loaded without its full history.
type LedgerRecord struct {
	Key          StockKey        `json:"key"`
	Initialized  bool            `json:"initialized"`
	Balance      decimal.Decimal `json:"balance"`
	LastSequence int64           `json:"lastSequence"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`

	pending          []LedgerEntry
	persistedVersion int64
}

// NewLedgerRecord returns an uninitialized ledger for the key
func NewLedgerRecord(key StockKey) *LedgerRecord {
	return &LedgerRecord{
		Key:     key,
		Balance: decimal.Zero,
	}
}

// Initialize opens a zero-balance ledger for the organization
func (l *LedgerRecord) Initialize(organizationID string) error {
	if l.Initialized {
		return ErrLedgerAlreadyInitialized
	}
	if organizationID != l.Key.OrganizationID {
		return fmt.Errorf("%w: ledger belongs to %s", ErrInvalidStockKey, l.Key.OrganizationID)
	}

	now := time.Now().UTC()
	l.Initialized = true
	l.Balance = decimal.Zero
	l.CreatedAt = now
	l.UpdatedAt = now
	l.Version++
	return nil
}

// Credit increases the balance. Any positive quantity is accepted.
func (l *LedgerRecord) Credit(quantity decimal.Decimal, category LedgerCategory, description string, metadata map[string]string) (LedgerEntry, error) {
	if err := l.checkPosting(quantity, category); err != nil {
		return LedgerEntry{}, err
	}
	return l.append(quantity, category, description, metadata), nil
}

// Debit decreases the balance and rejects any quantity above it without mutation
func (l *LedgerRecord) Debit(quantity decimal.Decimal, category LedgerCategory, description string, metadata map[string]string) (LedgerEntry, error) {
	if err := l.checkPosting(quantity, category); err != nil {
		return LedgerEntry{}, err
	}
	if quantity.GreaterThan(l.Balance) {
		return LedgerEntry{}, fmt.Errorf("%w: requested %s, balance %s", ErrInsufficientBalance, quantity, l.Balance)
	}
	return l.append(quantity.Neg(), category, description, metadata), nil
}

// AdjustTo sets the balance to an absolute value, recording the implied delta as one entry
func (l *LedgerRecord) AdjustTo(newBalance decimal.Decimal, category LedgerCategory, metadata map[string]string) (LedgerEntry, error) {
	if !l.Initialized {
		return LedgerEntry{}, ErrLedgerNotInitialized
	}
	if newBalance.IsNegative() {
		return LedgerEntry{}, fmt.Errorf("%w: target balance %s is negative", ErrInvalidQuantity, newBalance)
	}
	if !category.IsValid() {
		return LedgerEntry{}, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	delta := newBalance.Sub(l.Balance)
	description := fmt.Sprintf("balance set from %s to %s", l.Balance, newBalance)
	return l.append(delta, category, description, metadata), nil
}

// HasSufficientBalance reports whether quantity can be debited
func (l *LedgerRecord) HasSufficientBalance(quantity decimal.Decimal) bool {
	return quantity.LessThanOrEqual(l.Balance)
}

// PersistedVersion is the version last read from or written to storage; zero for a new ledger
func (l *LedgerRecord) PersistedVersion() int64 {
	return l.persistedVersion
}

// MarkPersisted records that the current version is stored
func (l *LedgerRecord) MarkPersisted() {
	l.persistedVersion = l.Version
}

// PendingEntries returns entries appended since the last PullEntries
func (l *LedgerRecord) PendingEntries() []LedgerEntry {
	return l.pending
}

// PullEntries returns and clears the pending entries
func (l *LedgerRecord) PullEntries() []LedgerEntry {
	entries := l.pending
	l.pending = nil
	return entries
}

// Clone returns a deep copy including pending entries
func (l *LedgerRecord) Clone() *LedgerRecord {
	clone := *l
	clone.pending = make([]LedgerEntry, len(l.pending))
	for i, e := range l.pending {
		clone.pending[i] = e.clone()
	}
	return &clone
}

func (l *LedgerRecord) checkPosting(quantity decimal.Decimal, category LedgerCategory) error {
	if !l.Initialized {
		return ErrLedgerNotInitialized
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidQuantity, quantity)
	}
	if !category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return nil
}

func (l *LedgerRecord) append(delta decimal.Decimal, category LedgerCategory, description string, metadata map[string]string) LedgerEntry {
	now := time.Now().UTC()
	l.LastSequence++
	l.Balance = l.Balance.Add(delta)
	l.UpdatedAt = now
	l.Version++

	entry := LedgerEntry{
		EntryID:      generateLedgerEntryID(now),
		Key:          l.Key,
		Sequence:     l.LastSequence,
		Delta:        delta,
		BalanceAfter: l.Balance,
		Category:     category,
		Description:  description,
		Metadata:     copyMetadata(metadata),
		RecordedAt:   now,
	}
	l.pending = append(l.pending, entry)
	return entry
}

func (e LedgerEntry) clone() LedgerEntry {
	e.Metadata = copyMetadata(e.Metadata)
	return e
}

func generateLedgerEntryID(now time.Time) string {
	return fmt.Sprintf("LE-%s-%s", now.Format("20060102150405"), uuid.New().String()[:8])
}

func copyMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
