package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/resilience"
)

// Config holds MongoDB connection configuration. Stock records and their outbox
// are written in one transaction, so the deployment must be a replica set.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64

	// SlowCommand logs data commands that take longer; zero disables it
	SlowCommand time.Duration
}

// DefaultConfig returns a Config for a local replica set
func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017/?replicaSet=rs0",
		Database:       "ingredient_stock",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    5,
		SlowCommand:    250 * time.Millisecond,
	}
}

// Client wraps the MongoDB client and the stock database handle
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects and waits for a primary. Ledger and record writes need
// majority acknowledgement, so that write concern is set on the client.
func NewClient(ctx context.Context, config *Config, m *metrics.Metrics, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetWriteConcern(writeconcern.Majority()).
		SetMonitor(NewCommandMonitor(m, logger.WithComponent("mongodb"), config.SlowCommand))

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// the replica set may still be electing a primary when the service starts
	err = resilience.Retry(ctx, resilience.StartupRetryConfig(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client:   client,
		database: client.Database(config.Database),
	}, nil
}

// Database returns the stock database handle
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// HealthCheck pings the primary
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}
