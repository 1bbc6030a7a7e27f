package workflows

import "time"

// Activity names registered by the worker
const (
	FindExpiredStockActivity     = "FindExpiredStock"
	WriteOffExpiredStockActivity = "WriteOffExpiredStock"
	ReconcileStockActivity       = "ReconcileStock"
)

// Maintenance defaults
const (
	DefaultMaintenanceInterval = 15 * time.Minute
	DefaultCyclesPerRun        = 48
	MaxExpiredKeysPerCycle     = 500

	// MaintenancePerformer is recorded on movements the maintenance workflow creates
	MaintenancePerformer = "system:maintenance"
)

// StockMaintenanceWorkflowVersion tracks deterministic changes to the workflow.
// Version 1: reconciliation runs after the expiry write-off in every cycle
const StockMaintenanceWorkflowVersion = 1
