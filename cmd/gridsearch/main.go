// Command gridsearch runs a parallel 2D grid search over
// (inventory_horizon_seconds, risk_aversion_gamma) and prints the
// resulting (horizon, gamma) -> total_return_pct surface, the Go
// counterpart of the original grid_search_gamma.rs binary.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"as-backtester/internal/backtest"
	"as-backtester/internal/config"
	"as-backtester/internal/gridsearch"
	"as-backtester/internal/ingest"
)

func main() {
	var (
		cfgPath       = pflag.StringP("config", "c", "", "path to a YAML run config (optional; built-in defaults otherwise)")
		tradesPath    = pflag.String("trades", "", "override trades CSV path")
		orderbookPath = pflag.String("orderbook", "", "override orderbook CSV path")
		horizonsFlag  = pflag.IntSlice("horizons", []int{30, 60, 120, 300}, "inventory_horizon_seconds values to sweep")
		gammasFlag    = pflag.Float64Slice("gammas", []float64{0.01, 0.05, 0.1, 0.2}, "risk_aversion_gamma values to sweep")
		workers       = pflag.Int("workers", 0, "worker goroutines (0 = one per cell)")
		metricsAddr   = pflag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090) until the sweep completes")
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

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:         *metricsAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server starting", "addr", *metricsAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	source, err := ingest.Open(cfg.TradesPath, cfg.OrderbookPath)
	if err != nil {
		logger.Error("failed to open data source", "error", err)
		os.Exit(1)
	}
	events, err := materialise(source)
	source.Close()
	if err != nil {
		logger.Error("failed to materialise event tape", "error", err)
		os.Exit(1)
	}

	var cells []gridsearch.Cell
	for _, h := range *horizonsFlag {
		for _, g := range *gammasFlag {
			cells = append(cells, gridsearch.Cell{HorizonSec: uint64(h), Gamma: g})
		}
	}

	logger.Info("starting grid search", "cells", len(cells), "events", len(events))

	results := gridsearch.Run(events, gridsearch.Params{
		BaseConfig:     cfg.AS,
		Cells:          cells,
		InitialCapital: cfg.InitialCapital,
		OrderNotional:  cfg.OrderNotional,
		Workers:        *workers,
		Logger:         logger,
	})

	fmt.Println("horizon_sec,gamma,total_return_pct,bid_fills,ask_fills,final_inventory,error")
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("%d,%g,,,,,%v\n", r.Cell.HorizonSec, r.Cell.Gamma, r.Err)
			continue
		}
		fmt.Printf("%d,%g,%s,%d,%d,%s,\n",
			r.Cell.HorizonSec, r.Cell.Gamma,
			r.Results.TotalReturnPct.StringFixed(4),
			r.Results.BidFills, r.Results.AskFills,
			r.Results.FinalInventory.String(),
		)
	}
}

// materialise drains a single-use backtest.Source into a slice so every
// grid-search cell can replay it independently via SliceSource.Clone.
func materialise(source backtest.Source) ([]backtest.Event, error) {
	var events []backtest.Event
	for {
		event, ok, err := source.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return events, nil
		}
		events = append(events, event)
	}
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
