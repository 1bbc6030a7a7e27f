package application

import (
	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/keyed"
	"github.com/wms-platform/ingredient-stock/pkg/errors"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

func init() {
	notFound := func(resource string) func(string) *errors.AppError {
		return func(message string) *errors.AppError {
			return errors.ErrNotFound(resource).WithDetail("reason", message)
		}
	}

	errors.RegisterDomainError(domain.ErrNotInitialized, notFound("stock record"))
	errors.RegisterDomainError(domain.ErrLedgerNotInitialized, notFound("stock ledger"))
	errors.RegisterDomainError(domain.ErrMovementNotFound, notFound("movement"))
	errors.RegisterDomainError(domain.ErrBatchNotFound, notFound("batch"))

	errors.RegisterDomainError(domain.ErrAlreadyInitialized, errors.ErrConflict)
	errors.RegisterDomainError(domain.ErrLedgerAlreadyInitialized, errors.ErrConflict)
	errors.RegisterDomainError(domain.ErrConcurrentModification, errors.ErrConflict)
	errors.RegisterDomainError(domain.ErrRequestIDConflict, errors.ErrConflict)

	errors.RegisterDomainError(domain.ErrInvalidQuantity, errors.ErrValidation)
	errors.RegisterDomainError(domain.ErrInvalidUnitCost, errors.ErrValidation)
	errors.RegisterDomainError(domain.ErrInvalidThreshold, errors.ErrValidation)
	errors.RegisterDomainError(domain.ErrInvalidStockKey, errors.ErrValidation)
	errors.RegisterDomainError(domain.ErrInvalidCategory, errors.ErrValidation)

	errors.RegisterDomainError(domain.ErrInsufficientStock, errors.ErrInsufficientStock)
	errors.RegisterDomainError(domain.ErrInsufficientBalance, errors.ErrInsufficientStock)
	errors.RegisterDomainError(domain.ErrFIFOShortfall, errors.ErrInvariantViolation)

	errors.RegisterDomainError(resilience.ErrCircuitOpen, func(string) *errors.AppError {
		return errors.ErrServiceUnavailable("stock ledger")
	})
	errors.RegisterDomainError(resilience.ErrTooManyRequests, func(string) *errors.AppError {
		return errors.ErrServiceUnavailable("stock ledger")
	})
	errors.RegisterDomainError(keyed.ErrClosed, func(string) *errors.AppError {
		return errors.ErrServiceUnavailable("stock service")
	})
}
