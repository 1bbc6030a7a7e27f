package workflows

import (
	"time"

	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/ingredient-stock/internal/domain"
)

// StockMaintenanceInput configures the maintenance loop
type StockMaintenanceInput struct {
	// Interval between cycles, e.g. "15m"
	Interval     string `json:"interval,omitempty"`
	BatchSize    int    `json:"batchSize,omitempty"`
	DryRun       bool   `json:"dryRun,omitempty"`
	CyclesPerRun int    `json:"cyclesPerRun,omitempty"`
	// RunOnce runs a single cycle and completes instead of looping
	RunOnce bool `json:"runOnce,omitempty"`

	// ContinueAsNew support - totals carried over from previous runs
	Totals *StockMaintenanceResult `json:"totals,omitempty"`
}

// StockMaintenanceResult accumulates what the maintenance cycles did
type StockMaintenanceResult struct {
	Cycles             int             `json:"cycles"`
	KeysWrittenOff     int             `json:"keysWrittenOff"`
	BatchesWrittenOff  int             `json:"batchesWrittenOff"`
	QuantityWrittenOff decimal.Decimal `json:"quantityWrittenOff"`
	WriteOffFailures   int             `json:"writeOffFailures"`
	KeysReconciled     int             `json:"keysReconciled"`
	KeysRealigned      int             `json:"keysRealigned"`
	ReconcileFailures  int             `json:"reconcileFailures"`
	TotalDrift         decimal.Decimal `json:"totalDrift"`
	StartedAt          time.Time       `json:"startedAt"`
	LastCycleAt        time.Time       `json:"lastCycleAt"`
}

// ExpiredStockInput is the input for FindExpiredStock
type ExpiredStockInput struct {
	Cutoff time.Time `json:"cutoff"`
	Limit  int       `json:"limit"`
}

// WriteOffInput is the input for WriteOffExpiredStock
type WriteOffInput struct {
	Key         domain.StockKey `json:"key"`
	AsOf        time.Time       `json:"asOf"`
	PerformedBy string          `json:"performedBy"`
}

// WriteOffOutcome is the result of WriteOffExpiredStock
type WriteOffOutcome struct {
	Key      domain.StockKey `json:"key"`
	Batches  int             `json:"batches"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReconcileInput is the input for ReconcileStock
type ReconcileInput struct {
	BatchSize int  `json:"batchSize"`
	DryRun    bool `json:"dryRun"`
}

// ReconcileSummary is the result of ReconcileStock
type ReconcileSummary struct {
	Checked    int             `json:"checked"`
	InSync     int             `json:"inSync"`
	Realigned  int             `json:"realigned"`
	Failed     int             `json:"failed"`
	TotalDrift decimal.Decimal `json:"totalDrift"`
}

// StockMaintenanceWorkflow writes off expired batches and reconciles ledgers
// against batch totals on an interval. It continues as new after CyclesPerRun
// cycles to keep the history bounded.
func StockMaintenanceWorkflow(ctx workflow.Context, input StockMaintenanceInput) (*StockMaintenanceResult, error) {
	logger := workflow.GetLogger(ctx)

	version := workflow.GetVersion(ctx, "StockMaintenanceWorkflow", workflow.DefaultVersion, StockMaintenanceWorkflowVersion)

	interval := DefaultMaintenanceInterval
	if input.Interval != "" {
		parsed, err := time.ParseDuration(input.Interval)
		if err != nil || parsed <= 0 {
			logger.Error("Invalid maintenance interval", "interval", input.Interval, "error", err)
		} else {
			interval = parsed
		}
	}
	cycles := input.CyclesPerRun
	if cycles <= 0 {
		cycles = DefaultCyclesPerRun
	}

	totals := input.Totals
	if totals == nil {
		totals = &StockMaintenanceResult{StartedAt: workflow.Now(ctx)}
	}

	logger.Info("Starting stock maintenance",
		"version", version,
		"interval", interval.String(),
		"cyclesPerRun", cycles,
		"dryRun", input.DryRun,
		"runOnce", input.RunOnce,
	)

	for i := 0; i < cycles; i++ {
		if i > 0 {
			if err := workflow.Sleep(ctx, interval); err != nil {
				return totals, err
			}
		}

		runMaintenanceCycle(ctx, input, version, totals)

		if input.RunOnce {
			return totals, nil
		}
	}

	logger.Info("Continuing stock maintenance as new", "cycles", totals.Cycles)
	input.Totals = totals
	return totals, workflow.NewContinueAsNewError(ctx, StockMaintenanceWorkflow, input)
}

// runMaintenanceCycle never fails the workflow; failures are counted and the
// affected keys are picked up again by the next cycle.
func runMaintenanceCycle(ctx workflow.Context, input StockMaintenanceInput, version workflow.Version, totals *StockMaintenanceResult) {
	logger := workflow.GetLogger(ctx)
	now := workflow.Now(ctx)

	// Step 1: write off expired batches
	var keys []domain.StockKey
	findCtx := withActivityPolicy(ctx, time.Minute, StandardRetry)
	err := workflow.ExecuteActivity(findCtx, FindExpiredStockActivity, ExpiredStockInput{
		Cutoff: now,
		Limit:  MaxExpiredKeysPerCycle,
	}).Get(ctx, &keys)
	if err != nil {
		logger.Error("Failed to find expired stock", "error", err)
	}

	writeOffCtx := withActivityPolicy(ctx, time.Minute, StandardRetry)
	for _, key := range keys {
		var outcome WriteOffOutcome
		err := workflow.ExecuteActivity(writeOffCtx, WriteOffExpiredStockActivity, WriteOffInput{
			Key:         key,
			AsOf:        now,
			PerformedBy: MaintenancePerformer,
		}).Get(ctx, &outcome)
		if err != nil {
			logger.Warn("Expiry write-off failed", "key", key.String(), "error", err)
			totals.WriteOffFailures++
			continue
		}
		if outcome.Batches > 0 {
			totals.KeysWrittenOff++
			totals.BatchesWrittenOff += outcome.Batches
			totals.QuantityWrittenOff = totals.QuantityWrittenOff.Add(outcome.Quantity)
		}
	}

	// Step 2: reconcile ledgers against batch totals
	if version >= 1 {
		var summary ReconcileSummary
		reconcileCtx := withActivityPolicy(ctx, 10*time.Minute, ConservativeRetry)
		err := workflow.ExecuteActivity(reconcileCtx, ReconcileStockActivity, ReconcileInput{
			BatchSize: input.BatchSize,
			DryRun:    input.DryRun,
		}).Get(ctx, &summary)
		if err != nil {
			logger.Error("Reconciliation sweep failed", "error", err)
			totals.ReconcileFailures++
		} else {
			totals.KeysReconciled += summary.Checked
			totals.KeysRealigned += summary.Realigned
			totals.ReconcileFailures += summary.Failed
			totals.TotalDrift = totals.TotalDrift.Add(summary.TotalDrift)
		}
	}

	totals.Cycles++
	totals.LastCycleAt = now
	logger.Info("Stock maintenance cycle completed",
		"cycle", totals.Cycles,
		"expiredKeys", len(keys),
		"keysWrittenOff", totals.KeysWrittenOff,
		"keysRealigned", totals.KeysRealigned,
	)
}
