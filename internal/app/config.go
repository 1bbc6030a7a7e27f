package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Storage drivers
const (
	StorageMongoDB = "mongodb"
	StorageMemory  = "memory"
)

// ServiceName is reported in logs, metrics and traces
const ServiceName = "ingredient-stock"

// Config holds runtime configuration shared by every binary.
type Config struct {
	ServerAddr    string `envconfig:"SERVER_ADDR" default:":8080"`
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"mongodb"`

	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"ingredient_stock"`

	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	StockEventsTopic   string        `envconfig:"STOCK_EVENTS_TOPIC" default:"wms.ingredient-stock.events"`
	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxRetention    time.Duration `envconfig:"OUTBOX_RETENTION" default:"168h"`

	// RedisAddr enables the cross-replica lease when set
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	LeaseTTL  time.Duration `envconfig:"LEASE_TTL" default:"10s"`

	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	TracingEnabled bool   `envconfig:"TRACING_ENABLED" default:"true"`

	TemporalHost        string        `envconfig:"TEMPORAL_HOST" default:"localhost:7233"`
	TemporalNamespace   string        `envconfig:"TEMPORAL_NAMESPACE" default:"default"`
	MaintenanceInterval time.Duration `envconfig:"MAINTENANCE_INTERVAL" default:"15m"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.StorageDriver != StorageMongoDB && cfg.StorageDriver != StorageMemory {
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.LeaseTTL <= 0 {
		return nil, fmt.Errorf("LEASE_TTL must be positive")
	}
	return &cfg, nil
}
