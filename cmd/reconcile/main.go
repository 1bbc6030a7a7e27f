package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wms-platform/ingredient-stock/internal/app"
	"github.com/wms-platform/ingredient-stock/internal/application"
	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
)

// Realigns ledger balances with batch totals, either for every record or for one key.
// Storage settings come from the same environment as the API.

var (
	keyFlag   = flag.String("key", "", "Check a single stock key given as org/site/item")
	dryRun    = flag.Bool("dry-run", true, "Report drift without writing adjustments")
	batchSize = flag.Int("batch-size", application.DefaultReconcilePage, "Records read per page")
	format    = flag.String("format", "json", "Report format: json or yaml")
	timeout   = flag.Duration("timeout", 10*time.Minute, "Overall time limit")
)

func main() {
	flag.Parse()

	config, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if *format != formatJSON && *format != formatYAML {
		fmt.Fprintf(os.Stderr, "unknown format %q\n", *format)
		os.Exit(2)
	}

	// logs go to stderr so the report on stdout stays parseable
	logConfig := logging.DefaultConfig(app.ServiceName + "-reconcile")
	logConfig.Level = logging.ParseLevel(config.LogLevel)
	logConfig.Output = os.Stderr
	logger := logging.New(logConfig)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	services, err := app.NewServices(ctx, config, logger, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize services")
		os.Exit(1)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		_ = services.Close(closeCtx)
	}()

	report, err := run(ctx, services.Reconciler, *keyFlag, application.ReconcileCommand{
		BatchSize: *batchSize,
		DryRun:    *dryRun,
	})
	if err != nil {
		logger.WithError(err).Error("Reconciliation failed")
		os.Exit(1)
	}

	if err := writeReport(os.Stdout, *format, report); err != nil {
		logger.WithError(err).Error("Failed to write report")
		os.Exit(1)
	}
	if report.Failed > 0 {
		os.Exit(3)
	}
}

// run sweeps every record, or only the one named by rawKey
func run(ctx context.Context, reconciler *application.Reconciler, rawKey string, cmd application.ReconcileCommand) (*application.ReconcileReport, error) {
	if rawKey == "" {
		return reconciler.ReconcileAll(ctx, cmd)
	}

	key, err := parseKey(rawKey)
	if err != nil {
		return nil, err
	}

	report := &application.ReconcileReport{DryRun: cmd.DryRun, StartedAt: time.Now().UTC()}
	result, err := reconciler.ReconcileKey(ctx, key, cmd.DryRun)
	if err != nil && result.Outcome != application.OutcomeFailed {
		return nil, err
	}
	report.Add(result)
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

func parseKey(raw string) (domain.StockKey, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return domain.StockKey{}, fmt.Errorf("key %q must look like org/site/item", raw)
	}
	return domain.NewStockKey(parts[0], parts[1], parts[2])
}
