package gridsearch

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the grid-search harness: how many cells have
// run, how long each backtest took, and the resulting return surface —
// scraped by whatever exposes an HTTP handler around the grid-search
// binary's lifetime.

var cellsCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "as_backtester",
		Subsystem: "gridsearch",
		Name:      "cells_completed_total",
		Help:      "Number of (horizon, gamma) cells completed by the grid-search harness",
	},
	[]string{"status"}, // ok, error
)

var cellDurationSeconds = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "as_backtester",
		Subsystem: "gridsearch",
		Name:      "cell_duration_seconds",
		Help:      "Wall-clock time to run one backtest cell",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	},
)

var activeWorkers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "as_backtester",
		Subsystem: "gridsearch",
		Name:      "active_workers",
		Help:      "Number of grid-search worker goroutines currently running a cell",
	},
)

var cellReturnPct = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "as_backtester",
		Subsystem: "gridsearch",
		Name:      "cell_return_pct",
		Help:      "Total return percent of the most recently completed cell, by horizon/gamma",
	},
	[]string{"horizon_sec", "gamma"},
)

func recordCellResult(horizonSec uint64, gamma float64, status string, durationSeconds, returnPct float64) {
	cellsCompleted.WithLabelValues(status).Inc()
	cellDurationSeconds.Observe(durationSeconds)
	if status == "ok" {
		horizonLabel := strconv.FormatUint(horizonSec, 10)
		gammaLabel := strconv.FormatFloat(gamma, 'f', 4, 64)
		cellReturnPct.WithLabelValues(horizonLabel, gammaLabel).Set(returnPct)
	}
}
