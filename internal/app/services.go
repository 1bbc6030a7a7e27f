package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/wms-platform/ingredient-stock/internal/application"
	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/eventmapper"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/memory"
	mongoRepo "github.com/wms-platform/ingredient-stock/internal/infrastructure/mongodb"
	"github.com/wms-platform/ingredient-stock/internal/infrastructure/redislock"
	"github.com/wms-platform/ingredient-stock/internal/keyed"
	"github.com/wms-platform/ingredient-stock/pkg/cloudevents"
	"github.com/wms-platform/ingredient-stock/pkg/contracts/asyncapi"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
	"github.com/wms-platform/ingredient-stock/pkg/mongodb"
	"github.com/wms-platform/ingredient-stock/pkg/outbox"
)

// NewLogger builds the service logger from config
func NewLogger(cfg *Config) *logging.Logger {
	logConfig := logging.DefaultConfig(ServiceName)
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	return logging.New(logConfig)
}

// Services holds the wired application layer of one process
type Services struct {
	Stock      *application.StockService
	Ledger     *application.LedgerService
	Reconciler *application.Reconciler
	Outbox     outbox.Repository

	gateway *application.CircuitBreakerLedgerGateway
	ready   func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

// NewServices wires storage, the optional Redis lease and both single-writer
// units. Close releases everything it opened.
func NewServices(ctx context.Context, cfg *Config, logger *logging.Logger, m *metrics.Metrics) (*Services, error) {
	s := &Services{ready: func(context.Context) error { return nil }}

	validator, err := asyncapi.NewStockEventValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load event contracts: %w", err)
	}
	mapper := eventmapper.New(cloudevents.NewEventFactory(cloudevents.SourceIngredientStock), validator, cfg.StockEventsTopic)

	var guard keyed.Guard
	if cfg.RedisAddr != "" {
		leaseConfig := redislock.DefaultConfig(cfg.RedisAddr)
		leaseConfig.TTL = cfg.LeaseTTL
		client, err := redislock.NewClient(ctx, leaseConfig)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		guard = redislock.NewGuard(client, leaseConfig, logger)
		logger.Info("Distributed stock key lease enabled", "redis", cfg.RedisAddr, "ttl", cfg.LeaseTTL)
	}

	var (
		records    domain.InventoryRecordRepository
		ledgerRepo domain.LedgerRepository
	)
	switch cfg.StorageDriver {
	case StorageMemory:
		s.Outbox = outbox.NewMemoryRepository()
		records = memory.NewInventoryRecordRepository(s.Outbox, mapper)
		ledgerRepo = memory.NewLedgerRepository()
		logger.Warn("Using in-memory storage; stock is lost on restart")
	default:
		mongoConfig := mongodb.DefaultConfig()
		mongoConfig.URI = cfg.MongoURI
		mongoConfig.Database = cfg.MongoDatabase
		client, err := mongodb.NewClient(ctx, mongoConfig, m, logger)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		s.ready = client.HealthCheck

		recordRepo := mongoRepo.NewInventoryRecordRepository(client.Database(), mapper)
		entries := mongoRepo.NewLedgerRepository(client.Database())
		if err := recordRepo.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		if err := entries.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		records, ledgerRepo, s.Outbox = recordRepo, entries, recordRepo.Outbox()
		logger.Info("Connected to MongoDB", "database", cfg.MongoDatabase)
	}

	ledgerMailbox := keyed.NewMailbox(keyed.DefaultConfig("ledger"), guard, logger, m)
	engineMailbox := keyed.NewMailbox(keyed.DefaultConfig("engine"), guard, logger, m)
	// the engine lane waits on ledger calls, so it drains first
	s.closers = append([]func(context.Context) error{engineMailbox.Close, ledgerMailbox.Close}, s.closers...)

	s.Ledger = application.NewLedgerService(ledgerRepo, ledgerMailbox, logger, m)
	s.gateway = application.NewCircuitBreakerLedgerGateway(s.Ledger, logger, m)
	s.Stock = application.NewStockService(records, s.gateway, engineMailbox, logger, m)
	s.Reconciler = application.NewReconciler(s.Stock, s.gateway, logger, m).WithAuditor(s.Ledger)
	return s, nil
}

// Ready reports whether storage is reachable
func (s *Services) Ready(ctx context.Context) error {
	return s.ready(ctx)
}

// LedgerReachable fails while the ledger circuit is open
func (s *Services) LedgerReachable(context.Context) error {
	if state := s.gateway.State(); state == "open" {
		return fmt.Errorf("ledger circuit %s", state)
	}
	return nil
}

// Close drains the mailboxes, then closes storage and Redis
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
