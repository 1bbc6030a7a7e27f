package kafka

import (
	"time"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers []string

	BatchSize    int
	BatchTimeout time.Duration
	// RequiredAcks is -1 (all in-sync replicas), 1 (leader) or 0 (none)
	RequiredAcks int
	WriteTimeout time.Duration
	// MaxAttempts bounds the writer's own retries before the outbox takes over
	MaxAttempts int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers: []string{"localhost:9092"},

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
	}
}

// Topics names the topics this service writes
var Topics = struct {
	// StockEvents carries receipts, consumptions and level alerts keyed by stock key
	StockEvents string
}{
	StockEvents: "wms.ingredient-stock.events",
}
