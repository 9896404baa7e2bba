// Command quantlab-backtest runs the scenario configured in the YAML file:
// every strategy run over every symbol, writing a JSON report and recording
// a summary row per run in SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quantlab/internal/backtest"
	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/report"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
	"quantlab/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/quantlab.yaml", "path to the YAML configuration file")
	flag.Parse()
	if p := os.Getenv("QUANTLAB_CONFIG"); p != "" && !flagPassed("config") {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("backtest error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	bt := cfg.Backtest

	engineCfg := backtest.Config{
		InitialCapital: bt.InitialCapital,
		Warmup:         bt.Warmup,
	}
	if bt.StartDate != "" {
		start, err := time.Parse("2006-01-02", bt.StartDate)
		if err != nil {
			return fmt.Errorf("parsing backtest start date %q: %w", bt.StartDate, err)
		}
		engineCfg.StartTime = start
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	runStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer runStore.Close()

	readFrom := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if cfg.Gather.StartDate != "" {
		if t, err := time.Parse("2006-01-02", cfg.Gather.StartDate); err == nil {
			readFrom = t
		}
	}

	var inputs []report.Input
	for _, symbol := range bt.Symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		candles, err := pstore.ReadCandles(ctx, symbol, bt.Timeframe, readFrom, time.Now().UTC())
		if err != nil {
			slog.Error("loading candles failed", "symbol", symbol, "err", err)
			continue
		}
		if len(candles) == 0 {
			slog.Warn("no candle data", "symbol", symbol, "timeframe", bt.Timeframe)
			continue
		}
		if err := candles.Validate(); err != nil {
			slog.Error("candle data invalid", "symbol", symbol, "err", err)
			continue
		}
		ind := indicator.NewFactory(candles)

		for _, def := range bt.Runs {
			res, err := runOne(candles, ind, def, cfg, engineCfg)
			if err != nil {
				slog.Error("run failed",
					"strategy", def.Strategy,
					"symbol", symbol,
					"err", err,
				)
				continue
			}
			res.Symbol = symbol
			slog.Info("run done",
				"strategy", def.Strategy,
				"symbol", symbol,
				"return_pct", res.Stats.TotalReturnPct,
				"trades", res.Stats.TotalTrades,
			)
			inputs = append(inputs, report.Input{
				Result:     res,
				Timeframe:  bt.Timeframe,
				Parameters: def.Params,
			})
		}
	}

	if len(inputs) == 0 {
		return fmt.Errorf("no runs produced results")
	}

	rep := report.Build(bt.ScenarioName, bt.Timeframe, bt.InitialCapital, inputs)

	reportDir := bt.ReportDir
	if reportDir == "" {
		reportDir = "reports"
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return err
	}
	reportPath := filepath.Join(reportDir,
		fmt.Sprintf("%s_%s.json", bt.ScenarioName, time.Now().UTC().Format("20060102T150405")))
	if err := report.WriteJSON(reportPath, rep); err != nil {
		return err
	}
	slog.Info("report written", "path", reportPath, "tests", len(rep.Tests))

	for _, in := range inputs {
		rec := &store.RunRecord{
			Scenario:    bt.ScenarioName,
			Strategy:    in.Result.Strategy,
			Symbol:      in.Result.Symbol,
			Timeframe:   bt.Timeframe,
			ReturnPct:   in.Result.Stats.TotalReturnPct,
			SharpeRatio: in.Result.Stats.SharpeRatio,
			TotalTrades: in.Result.Stats.TotalTrades,
			ReportPath:  reportPath,
		}
		if err := runStore.SaveRun(ctx, rec); err != nil {
			slog.Error("recording run failed", "strategy", rec.Strategy, "symbol", rec.Symbol, "err", err)
		}
	}
	return nil
}

// runOne executes a single strategy run, recovering panics so one bad run
// cannot take down the batch.
func runOne(candles domain.Series, ind *indicator.Factory, def config.RunDef, cfg *config.Config, engineCfg backtest.Config) (res *backtest.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic in %s: %v", def.Strategy, r)
		}
	}()

	var st strategy.Strategy
	if def.Strategy == "dynamic_momentum" {
		st = strategy.NewOptimizer(cfg.Optimizer.ToStrategy(), ind)
	} else {
		st, err = strategy.New(def.Strategy, def.Params, candles, ind)
		if err != nil {
			return nil, err
		}
	}
	return backtest.Run(candles, st, engineCfg)
}

func flagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
