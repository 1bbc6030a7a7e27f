package domain

import "errors"

// Stock ledger and batch costing errors
var (
	ErrNotInitialized           = errors.New("stock record is not initialized")
	ErrAlreadyInitialized       = errors.New("stock record is already initialized")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidUnitCost          = errors.New("unit cost cannot be negative")
	ErrInvalidThreshold         = errors.New("threshold cannot be negative")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInsufficientBalance      = errors.New("insufficient ledger balance")
	ErrMovementNotFound         = errors.New("movement not found")
	ErrBatchNotFound            = errors.New("batch not found")
	ErrFIFOShortfall            = errors.New("active batches cannot cover ledger-approved quantity")
	ErrConcurrentModification   = errors.New("stock record was modified concurrently")
	ErrRequestIDConflict        = errors.New("request id was already used for a different operation")
	ErrInvalidStockKey          = errors.New("invalid stock key")
	ErrInvalidCategory          = errors.New("invalid ledger category")
	ErrLedgerNotInitialized     = errors.New("ledger is not initialized")
	ErrLedgerAlreadyInitialized = errors.New("ledger is already initialized")
)
