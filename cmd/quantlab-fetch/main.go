// Command quantlab-fetch downloads candle history for the configured symbols
// from the Alpaca market-data API into the Parquet store.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quantlab/internal/config"
	"quantlab/internal/gather"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/quantlab.yaml", "path to the YAML configuration file")
	flag.Parse()
	if p := os.Getenv("QUANTLAB_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	gatherer := gather.NewCandleGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.BaseURL,
		pstore,
		cfg.Backtest.Symbols,
		cfg.Backtest.Timeframe,
		cfg.Gather.StartDate,
		cfg.Gather.RateLimitPerMin,
		cfg.Gather.MaxAttempts,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting fetch",
		"symbols", cfg.Backtest.Symbols,
		"timeframe", cfg.Backtest.Timeframe,
		"from", cfg.Gather.StartDate,
	)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("fetch error: %v", err)
	}
}
