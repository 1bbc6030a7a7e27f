package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
)

// Reconciliation outcomes
const (
	OutcomeInSync        = "in_sync"
	OutcomeRealigned     = "realigned"
	OutcomeWouldRealign  = "would_realign"
	OutcomeFailed        = "failed"
	DefaultReconcilePage = 100
)

// ReasonReconciliation tags ledger adjustments made by the reconciler
const ReasonReconciliation = "reconciliation"

// LedgerAuditor is implemented by ledgers that can verify their entries sum to the balance
type LedgerAuditor interface {
	VerifyEntries(ctx context.Context, key domain.StockKey) (balance decimal.Decimal, sum decimal.Decimal, err error)
}

// ReconcileResult describes one key
type ReconcileResult struct {
	Key            domain.StockKey `json:"key" yaml:"key"`
	Outcome        string          `json:"outcome" yaml:"outcome"`
	LedgerBalance  decimal.Decimal `json:"ledgerBalance" yaml:"ledgerBalance"`
	QuantityOnHand decimal.Decimal `json:"quantityOnHand" yaml:"quantityOnHand"`
	Drift          decimal.Decimal `json:"drift" yaml:"drift"`
	EntriesDrift   decimal.Decimal `json:"entriesDrift,omitempty" yaml:"entriesDrift,omitempty"`
	Error          string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// ReconcileReport summarizes a sweep. Results lists only keys that were not in sync.
type ReconcileReport struct {
	DryRun     bool              `json:"dryRun" yaml:"dryRun"`
	Checked    int               `json:"checked" yaml:"checked"`
	InSync     int               `json:"inSync" yaml:"inSync"`
	Realigned  int               `json:"realigned" yaml:"realigned"`
	Failed     int               `json:"failed" yaml:"failed"`
	TotalDrift decimal.Decimal   `json:"totalDrift" yaml:"totalDrift"`
	Results    []ReconcileResult `json:"results" yaml:"results"`
	StartedAt  time.Time         `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt" yaml:"finishedAt"`
}

// Add counts one key's result. In-sync keys are counted but not listed.
func (r *ReconcileReport) Add(result ReconcileResult) {
	if r.Results == nil {
		r.Results = make([]ReconcileResult, 0)
	}
	r.Checked++
	switch result.Outcome {
	case OutcomeInSync:
		r.InSync++
		return
	case OutcomeRealigned, OutcomeWouldRealign:
		r.Realigned++
		r.TotalDrift = r.TotalDrift.Add(result.Drift.Abs())
	default:
		r.Failed++
	}
	r.Results = append(r.Results, result)
}

// Reconciler realigns the ledger to the batch totals. Batch totals are authoritative
// because they carry the costing history; the ledger is set to on-hand with an
// adjustment entry so the correction stays auditable.
type Reconciler struct {
	records domain.InventoryRecordRepository
	ledger  LedgerGateway
	auditor LedgerAuditor
	stock   *StockService
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewReconciler creates a new Reconciler. If ledger also implements LedgerAuditor,
// entry sums are verified as well.
func NewReconciler(stock *StockService, ledger LedgerGateway, logger *logging.Logger, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Reconciler{
		records: stock.repo,
		ledger:  ledger,
		stock:   stock,
		logger:  logger.WithComponent("reconciler"),
		metrics: m,
	}
	if auditor, ok := ledger.(LedgerAuditor); ok {
		r.auditor = auditor
	}
	return r
}

// WithAuditor sets the auditor explicitly, for gateways that wrap the ledger
func (r *Reconciler) WithAuditor(auditor LedgerAuditor) *Reconciler {
	r.auditor = auditor
	return r
}

// ReconcileKey checks one key on its engine lane
func (r *Reconciler) ReconcileKey(ctx context.Context, key domain.StockKey, dryRun bool) (ReconcileResult, error) {
	if err := key.Validate(); err != nil {
		return ReconcileResult{}, err
	}

	var result ReconcileResult
	err := r.stock.inLane(ctx, "reconcile", key, func(ctx context.Context, logger *logging.Logger) error {
		record, err := r.stock.load(ctx, key)
		if err != nil {
			return err
		}
		result = ReconcileResult{Key: key, QuantityOnHand: record.QuantityOnHand, Drift: decimal.Zero}

		balance, err := r.ledger.Balance(ctx, key)
		missing := errors.Is(err, domain.ErrLedgerNotInitialized)
		if err != nil && !missing {
			return fmt.Errorf("failed to read ledger balance: %w", err)
		}
		result.LedgerBalance = balance

		if r.auditor != nil && !missing {
			stored, sum, err := r.auditor.VerifyEntries(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to verify ledger entries: %w", err)
			}
			if !stored.Equal(sum) {
				result.EntriesDrift = stored.Sub(sum)
				logger.Error("Ledger entries do not sum to balance", "balance", stored.String(), "sum", sum.String())
			}
		}

		result.Drift = record.QuantityOnHand.Sub(balance)
		if result.Drift.IsZero() && !missing {
			result.Outcome = OutcomeInSync
			return nil
		}
		if dryRun {
			result.Outcome = OutcomeWouldRealign
			logger.Warn("Ledger drift detected", "ledgerBalance", balance.String(), "quantityOnHand", record.QuantityOnHand.String(), "ledgerMissing", missing)
			return nil
		}

		if missing {
			if err := r.ledger.Initialize(ctx, key); err != nil && !errors.Is(err, domain.ErrLedgerAlreadyInitialized) {
				return fmt.Errorf("failed to initialize ledger: %w", err)
			}
			if result.Drift.IsZero() {
				result.Outcome = OutcomeRealigned
				logger.Warn("Missing ledger reopened")
				return nil
			}
		}
		metadata := map[string]string{
			"reason":      ReasonReconciliation,
			"performedBy": SystemPerformer,
			"previous":    balance.String(),
		}
		entry, err := r.ledger.AdjustTo(ctx, key, record.QuantityOnHand, domain.CategoryAdjustment, metadata)
		if err != nil {
			return fmt.Errorf("failed to realign ledger: %w", err)
		}
		record.SyncLedger(entry)
		if err := r.stock.save(ctx, record); err != nil {
			return err
		}
		result.Outcome = OutcomeRealigned
		logger.Warn("Ledger realigned to batch totals",
			"previousBalance", balance.String(),
			"quantityOnHand", record.QuantityOnHand.String(),
			"drift", result.Drift.String(),
		)
		return nil
	})
	if err != nil {
		result.Key = key
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
	}
	r.metrics.RecordReconciliation(result.Outcome, result.Drift.InexactFloat64())
	return result, err
}

// ReconcileAll pages over every key. A failing key is reported and the sweep continues;
// only a failure to list keys or a cancelled context ends it early.
func (r *Reconciler) ReconcileAll(ctx context.Context, cmd ReconcileCommand) (*ReconcileReport, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	pageSize := cmd.BatchSize
	if pageSize <= 0 {
		pageSize = DefaultReconcilePage
	}

	report := &ReconcileReport{
		DryRun:     cmd.DryRun,
		TotalDrift: decimal.Zero,
		Results:    make([]ReconcileResult, 0),
		StartedAt:  time.Now().UTC(),
	}
	logger := r.logger.WithContext(ctx)
	logger.Info("Reconciliation started", "dryRun", cmd.DryRun, "batchSize", pageSize)

	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		keys, err := r.records.ListKeys(ctx, pageSize, offset)
		if err != nil {
			logger.WithError(err).Error("Failed to list stock keys", "offset", offset)
			return report, fmt.Errorf("failed to list stock keys: %w", err)
		}

		for _, key := range keys {
			result, _ := r.ReconcileKey(ctx, key, cmd.DryRun)
			report.Add(result)
		}

		if len(keys) < pageSize {
			break
		}
	}

	report.FinishedAt = time.Now().UTC()
	logger.Info("Reconciliation finished",
		"checked", report.Checked,
		"inSync", report.InSync,
		"realigned", report.Realigned,
		"failed", report.Failed,
		"totalDrift", report.TotalDrift.String(),
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	return report, nil
}
