package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Non-retryable application error types returned by the activities
const (
	StockRejectedErrorType = "StockRejected"
	ValidationErrorType    = "ValidationError"
)

// RetryPolicyType defines different retry policy configurations
type RetryPolicyType int

const (
	// StandardRetry for per-key writes (3 attempts, 1s-1m backoff)
	StandardRetry RetryPolicyType = iota
	// ConservativeRetry for full sweeps (2 attempts, 2s-2m backoff)
	ConservativeRetry
)

// GetRetryPolicy returns a configured retry policy based on type
func GetRetryPolicy(policyType RetryPolicyType) *temporal.RetryPolicy {
	switch policyType {
	case ConservativeRetry:
		return &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{ValidationErrorType},
		}
	default:
		return &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ValidationErrorType, StockRejectedErrorType},
		}
	}
}

// withActivityPolicy returns a context whose activities use the given timeout and policy
func withActivityPolicy(ctx workflow.Context, timeout time.Duration, policyType RetryPolicyType) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         GetRetryPolicy(policyType),
	})
}
