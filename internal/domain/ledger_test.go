package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenLedger(t *testing.T) *LedgerRecord {
	t.Helper()
	ledger := NewLedgerRecord(testKey())
	require.NoError(t, ledger.Initialize("org-1"))
	return ledger
}

func TestLedgerInitialize(t *testing.T) {
	ledger := NewLedgerRecord(testKey())

	require.NoError(t, ledger.Initialize("org-1"))
	assert.True(t, ledger.Initialized)
	assert.True(t, ledger.Balance.IsZero())

	err := ledger.Initialize("org-1")
	assert.ErrorIs(t, err, ErrLedgerAlreadyInitialized)

	other := NewLedgerRecord(testKey())
	assert.ErrorIs(t, other.Initialize("org-2"), ErrInvalidStockKey)
}

func TestLedgerRequiresInitialize(t *testing.T) {
	ledger := NewLedgerRecord(testKey())

	_, err := ledger.Credit(d("1"), CategoryReceipt, "", nil)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)

	_, err = ledger.Debit(d("1"), CategoryConsumption, "", nil)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)

	_, err = ledger.AdjustTo(d("1"), CategoryAdjustment, nil)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
}

func TestLedgerCredit(t *testing.T) {
	tests := []struct {
		name        string
		quantity    string
		category    LedgerCategory
		expectError error
	}{
		{name: "positive receipt", quantity: "10", category: CategoryReceipt},
		{name: "fractional quantity", quantity: "0.25", category: CategoryTransferIn},
		{name: "zero quantity", quantity: "0", category: CategoryReceipt, expectError: ErrInvalidQuantity},
		{name: "negative quantity", quantity: "-3", category: CategoryReceipt, expectError: ErrInvalidQuantity},
		{name: "unknown category", quantity: "3", category: "gift", expectError: ErrInvalidCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newOpenLedger(t)

			entry, err := ledger.Credit(d(tt.quantity), tt.category, "receipt", map[string]string{"po": "PO-1"})

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.True(t, ledger.Balance.IsZero())
				assert.Empty(t, ledger.PendingEntries())
				return
			}
			require.NoError(t, err)
			assertDecimal(t, tt.quantity, ledger.Balance)
			assertDecimal(t, tt.quantity, entry.Delta)
			assert.Equal(t, int64(1), entry.Sequence)
			assert.Equal(t, "PO-1", entry.Metadata["po"])
			assert.Len(t, ledger.PendingEntries(), 1)
		})
	}
}

func TestLedgerDebitNeverOverdraws(t *testing.T) {
	ledger := newOpenLedger(t)
	_, err := ledger.Credit(d("10"), CategoryReceipt, "", nil)
	require.NoError(t, err)

	_, err = ledger.Debit(d("10.01"), CategoryConsumption, "", nil)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assertDecimal(t, "10", ledger.Balance)
	assert.Len(t, ledger.PendingEntries(), 1)

	entry, err := ledger.Debit(d("10"), CategoryConsumption, "", nil)
	require.NoError(t, err)
	assertDecimal(t, "-10", entry.Delta)
	assert.True(t, ledger.Balance.IsZero())
	assert.True(t, entry.BalanceAfter.IsZero())
}

func TestLedgerAdjustTo(t *testing.T) {
	ledger := newOpenLedger(t)
	_, err := ledger.Credit(d("30"), CategoryReceipt, "", nil)
	require.NoError(t, err)

	entry, err := ledger.AdjustTo(d("40"), CategoryAdjustment, map[string]string{"reason": "count"})
	require.NoError(t, err)
	assertDecimal(t, "10", entry.Delta)
	assertDecimal(t, "40", ledger.Balance)

	entry, err = ledger.AdjustTo(d("5"), CategoryAdjustment, nil)
	require.NoError(t, err)
	assertDecimal(t, "-35", entry.Delta)
	assertDecimal(t, "5", ledger.Balance)

	_, err = ledger.AdjustTo(d("-1"), CategoryAdjustment, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assertDecimal(t, "5", ledger.Balance)
}

func TestLedgerBalanceEqualsRunningSum(t *testing.T) {
	ledger := newOpenLedger(t)
	_, _ = ledger.Credit(d("100"), CategoryReceipt, "", nil)
	_, _ = ledger.Debit(d("37.5"), CategoryConsumption, "", nil)
	_, _ = ledger.Debit(d("80"), CategoryWaste, "", nil) // rejected
	_, _ = ledger.Credit(d("2.5"), CategoryReversal, "", nil)
	_, _ = ledger.AdjustTo(d("50"), CategoryAdjustment, nil)

	sum := d("0")
	for _, e := range ledger.PullEntries() {
		sum = sum.Add(e.Delta)
		assert.False(t, e.BalanceAfter.IsNegative())
	}
	assert.True(t, sum.Equal(ledger.Balance))
	assert.Empty(t, ledger.PendingEntries())
}

func TestLedgerHasSufficientBalance(t *testing.T) {
	ledger := newOpenLedger(t)
	_, _ = ledger.Credit(d("5"), CategoryReceipt, "", nil)

	assert.True(t, ledger.HasSufficientBalance(d("5")))
	assert.True(t, ledger.HasSufficientBalance(d("0")))
	assert.False(t, ledger.HasSufficientBalance(d("5.0001")))
}

func TestLedgerEntryIdempotencyKey(t *testing.T) {
	ledger := newOpenLedger(t)
	entry, err := ledger.Credit(d("1"), CategoryReceipt, "", map[string]string{MetadataIdempotencyKey: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", entry.IdempotencyKey())

	plain, err := ledger.Credit(d("1"), CategoryReceipt, "", nil)
	require.NoError(t, err)
	assert.Empty(t, plain.IdempotencyKey())
}
