// Command backtest replays a trades/orderbook CSV tape through the
// Avellaneda-Stoikov backtest engine (C6) and prints a summary, matching
// the original backtest.rs binary's role in the Rust toolchain.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"as-backtester/internal/backtest"
	"as-backtester/internal/config"
	"as-backtester/internal/ingest"
)

func main() {
	var (
		cfgPath       = pflag.StringP("config", "c", "", "path to a YAML run config (optional; built-in defaults otherwise)")
		tradesPath    = pflag.String("trades", "", "override trades CSV path")
		orderbookPath = pflag.String("orderbook", "", "override orderbook CSV path")
		outputCSVPath = pflag.String("output", "", "override output trace CSV path")
		verbose       = pflag.BoolP("verbose", "v", false, "verbose logging")
	)
	pflag.Parse()

	cfg := config.DefaultRunConfig()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *tradesPath != "" {
		cfg.TradesPath = *tradesPath
	}
	if *orderbookPath != "" {
		cfg.OrderbookPath = *orderbookPath
	}
	if *outputCSVPath != "" {
		cfg.OutputCSVPath = *outputCSVPath
	}
	if *verbose {
		cfg.Verbose = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	source, err := ingest.Open(cfg.TradesPath, cfg.OrderbookPath)
	if err != nil {
		logger.Error("failed to open data source", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	logger.Info("running backtest",
		"horizon_sec", cfg.AS.InventoryHorizonSec,
		"gamma", cfg.AS.RiskAversionGamma,
		"gamma_mode", cfg.AS.GammaMode,
		"initial_capital", cfg.InitialCapital,
	)

	eng := backtest.New(cfg.AS, cfg.InitialCapital, cfg.OrderNotional, logger)
	if cfg.Verbose || cfg.OutputCSVPath != "" {
		eng.EnableEffectiveQuoteTrace()
	}
	results, err := eng.Run(source)
	if err != nil {
		logger.Error("backtest failed", "error", err)
		os.Exit(1)
	}

	if cfg.OutputCSVPath != "" {
		if err := backtest.WriteCSV(cfg.OutputCSVPath, eng.Trace()); err != nil {
			logger.Error("failed to write trace csv", "error", err)
		}
	}

	printResults(results)
}

func printResults(r backtest.Results) {
	fmt.Printf("initial_capital:        %s\n", r.InitialCapital.String())
	fmt.Printf("final_pnl:               %s\n", r.FinalPnL.String())
	fmt.Printf("total_return_pct:        %s%%\n", r.TotalReturnPct.StringFixed(4))
	fmt.Printf("bid_fills:               %d\n", r.BidFills)
	fmt.Printf("ask_fills:               %d\n", r.AskFills)
	fmt.Printf("total_fills:             %d\n", r.TotalFills())
	fmt.Printf("total_volume:            %s\n", r.TotalVolume.String())
	fmt.Printf("total_notional_volume:   %s\n", r.TotalNotionalVolume.String())
	fmt.Printf("final_inventory:         %s\n", r.FinalInventory.String())
	fmt.Printf("final_cash:              %s\n", r.FinalCash.String())
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
