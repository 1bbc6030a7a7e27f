// Package temporal connects the worker to a Temporal cluster.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

// Config holds Temporal client and worker configuration
type Config struct {
	HostPort  string
	Namespace string
	Identity  string
	TaskQueue string

	MaxConcurrentActivities int
	MaxConcurrentWorkflows  int
	// StopTimeout is how long running activities get to finish on shutdown
	StopTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		HostPort:                "localhost:7233",
		Namespace:               "default",
		Identity:                "ingredient-stock-worker",
		TaskQueue:               TaskQueues.IngredientStock,
		MaxConcurrentActivities: 10,
		MaxConcurrentWorkflows:  10,
		StopTimeout:             30 * time.Second,
	}
}

// TaskQueues contains the ingredient stock task queue names
var TaskQueues = struct {
	IngredientStock string
}{
	IngredientStock: "ingredient-stock-queue",
}

// WorkflowNames contains the ingredient stock workflow names
var WorkflowNames = struct {
	StockMaintenance string
}{
	StockMaintenance: "StockMaintenanceWorkflow",
}

// Client wraps the Temporal client
type Client struct {
	client client.Client
	config *Config
	logger *logging.Logger
}

// NewClient dials Temporal, retrying while the frontend comes up. SDK logs go
// through logger.
func NewClient(ctx context.Context, config *Config, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("temporal")

	options := client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
		Logger:    log.NewStructuredLogger(logger.Logger),
	}

	c, err := resilience.RetryWithResult(ctx, resilience.StartupRetryConfig(), func() (client.Client, error) {
		return client.DialContext(ctx, options)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal at %s: %w", config.HostPort, err)
	}
	return &Client{client: c, config: config, logger: logger}, nil
}

func (c *Client) Close() {
	c.client.Close()
}

// CheckHealth asks the frontend whether it is serving
func (c *Client) CheckHealth(ctx context.Context) error {
	_, err := c.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}

// EnsureRunning starts workflowName under a fixed workflow id on the
// configured task queue. When that id is already running the existing run is
// returned, so every replica can call it on startup.
func (c *Client) EnsureRunning(ctx context.Context, workflowID, workflowName string, args ...interface{}) (client.WorkflowRun, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: c.config.TaskQueue,
	}, workflowName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow %s: %w", workflowID, err)
	}
	c.logger.WorkflowStart(ctx, workflowName, run.GetID())
	return run, nil
}

// NewWorker creates a worker polling the configured task queue
func (c *Client) NewWorker() worker.Worker {
	return worker.New(c.client, c.config.TaskQueue, worker.Options{
		Identity:                               c.config.Identity,
		MaxConcurrentActivityExecutionSize:     c.config.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: c.config.MaxConcurrentWorkflows,
		WorkerStopTimeout:                      c.config.StopTimeout,
	})
}
