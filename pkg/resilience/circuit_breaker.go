package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
)

// Returned, wrapped, while a breaker refuses calls
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("circuit breaker half-open request limit reached")
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32        // probes allowed while half-open
	Interval    time.Duration // closed-state count reset period, 0 never resets
	Timeout     time.Duration // open period before probing

	// ConsecutiveFailures trips the breaker on its own
	ConsecutiveFailures uint32
	// FailureRatio trips the breaker once MinRequests calls were seen
	FailureRatio float64
	MinRequests  uint32

	// Rejections lists errors that are answers, not outages. They count as successes.
	Rejections []error
}

// DefaultCircuitBreakerConfig returns the settings used for calls between stock units
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                name,
		MaxRequests:         3,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// CircuitBreaker wraps gobreaker, reporting state changes to logs and metrics
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) *CircuitBreaker {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("circuit-breaker")

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= config.ConsecutiveFailures {
				return true
			}
			if config.MinRequests == 0 || counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || matchesAny(err, config.Rejections)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			m.SetCircuitBreakerState(name, int(to))
			if to == gobreaker.StateOpen {
				m.RecordCircuitBreakerTrip(name)
			}
		},
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		name:   config.Name,
		logger: logger,
	}
}

// Call runs fn through cb and returns its typed result
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	result, err := cb.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, cb.refusal(err)
	}
	return result.(T), nil
}

// Do is Call for functions without a result
func Do(ctx context.Context, cb *CircuitBreaker, fn func() error) error {
	_, err := Call(ctx, cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (c *CircuitBreaker) refusal(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		c.logger.Warn("Call refused, circuit open", "name", c.name)
		return fmt.Errorf("%s unavailable: %w", c.name, ErrCircuitOpen)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Warn("Call refused, half-open limit reached", "name", c.name)
		return fmt.Errorf("%s unavailable: %w", c.name, ErrTooManyRequests)
	}
	return err
}

// State returns the current state as closed, half-open or open
func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}

// Name returns the circuit breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
