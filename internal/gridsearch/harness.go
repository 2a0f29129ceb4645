// Package gridsearch runs N independent backtests over the cartesian
// product of (inventory_horizon_seconds, risk_aversion_gamma) in
// parallel worker goroutines, each owning its own BacktestState and
// CalibrationEngine over an independent cursor on one shared,
// immutable, pre-materialised event slice (spec.md §5).
package gridsearch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"as-backtester/internal/backtest"
	"as-backtester/internal/config"
)

// Cell is one (horizon, gamma) coordinate in the search grid.
type Cell struct {
	HorizonSec uint64
	Gamma      float64
}

// CellResult pairs a Cell with the backtest.Results it produced, or an
// error if the run failed.
type CellResult struct {
	Cell    Cell
	Results backtest.Results
	Err     error
}

// Params configures one grid-search run.
type Params struct {
	BaseConfig     config.ASConfig
	Cells          []Cell
	InitialCapital decimal.Decimal
	OrderNotional  decimal.Decimal
	Workers        int // 0 -> len(Cells), capped implicitly by runtime scheduling
	Logger         *slog.Logger
}

// Run takes the already materialised events, then fans out one backtest
// per cell across a bounded worker pool, returning results in the same order as
// Params.Cells regardless of completion order.
func Run(events []backtest.Event, params Params) []CellResult {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gridsearch")

	base := backtest.NewSliceSource(events)
	results := make([]CellResult, len(params.Cells))

	workers := params.Workers
	if workers <= 0 || workers > len(params.Cells) {
		workers = len(params.Cells)
	}
	if workers == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			activeWorkers.Inc()
			results[idx] = runCell(base.Clone(), params, params.Cells[idx])
			activeWorkers.Dec()
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}

	for idx := range params.Cells {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			logger.Error("cell failed", "horizon_sec", r.Cell.HorizonSec, "gamma", r.Cell.Gamma, "error", r.Err)
		}
	}

	return results
}

func runCell(source *backtest.SliceSource, params Params, cell Cell) CellResult {
	cfg := params.BaseConfig
	cfg.InventoryHorizonSec = cell.HorizonSec
	cfg.RiskAversionGamma = cell.Gamma

	start := time.Now()
	eng := backtest.New(cfg, params.InitialCapital, params.OrderNotional, nil)
	res, err := eng.Run(source)
	elapsed := time.Since(start).Seconds()

	status := "ok"
	returnPct := 0.0
	if err != nil {
		status = "error"
	} else {
		returnPct, _ = res.TotalReturnPct.Float64()
	}
	recordCellResult(cell.HorizonSec, cell.Gamma, status, elapsed, returnPct)

	return CellResult{Cell: cell, Results: res, Err: err}
}
