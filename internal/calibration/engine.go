// Package calibration implements C4: the stateful engine that owns the
// rolling windows of prices, book-exposure points, and trades, schedules
// recalibration, and invokes the volatility (C2) and intensity (C3)
// estimators.
package calibration

import (
	"github.com/shopspring/decimal"

	"as-backtester/internal/intensity"
	"as-backtester/internal/model"
	"as-backtester/internal/volatility"
)

const (
	defaultKappa = 100.0
	defaultA     = 10.0
	minPricesForFirstCalibration = 10
)

// Engine owns five windows — calibration prices, full (unpruned) price
// history for GARCH, orderbook exposure points, window trades, and the
// last fitted parameters — exclusively for one backtest run.
type Engine struct {
	calibrationPrices []pricePoint
	fullPriceHistory  []pricePoint
	orderbookPoints   []model.OrderbookPoint
	windowTrades      []model.CalibrationTrade

	bidKappa, bidA float64
	askKappa, askA float64

	lastCalibrationTs uint64
	hasCalibrated     bool

	calibrationWindowMs     uint64
	recalibrationIntervalMs uint64
}

type pricePoint struct {
	ts    uint64
	price decimal.Decimal
}

// New creates a calibration engine for one backtest run.
func New(calibrationWindowSec, recalibrationIntervalSec uint64) *Engine {
	return &Engine{
		bidKappa:                defaultKappa,
		bidA:                    defaultA,
		askKappa:                defaultKappa,
		askA:                    defaultA,
		calibrationWindowMs:     calibrationWindowSec * 1000,
		recalibrationIntervalMs: recalibrationIntervalSec * 1000,
	}
}

// AddPrice pushes a (timestamp, mid) observation into both price windows.
func (e *Engine) AddPrice(ts uint64, mid decimal.Decimal) {
	pt := pricePoint{ts: ts, price: mid}
	e.calibrationPrices = append(e.calibrationPrices, pt)
	e.fullPriceHistory = append(e.fullPriceHistory, pt)
}

// AddOrderbook pushes mid into both price windows and, if mid > 0,
// derives and stores the return-space exposure point for the snapshot.
func (e *Engine) AddOrderbook(snapshot model.OrderbookSnapshot, mid decimal.Decimal) {
	e.AddPrice(snapshot.TimestampMs, mid)

	if mid.Sign() <= 0 {
		return
	}
	midF, _ := mid.Float64()
	if midF <= 0 {
		return
	}

	point := model.OrderbookPoint{TimestampMs: snapshot.TimestampMs, Mid: mid}

	if len(snapshot.Bids) > 0 {
		best := snapshot.Bids[0].Price
		far := snapshot.Bids[len(snapshot.Bids)-1].Price
		point.BidMin = returnDistance(mid, best, midF)
		point.BidMax = returnDistance(mid, far, midF)
		if point.BidMax < point.BidMin {
			point.BidMin, point.BidMax = point.BidMax, point.BidMin
		}
	}
	if len(snapshot.Asks) > 0 {
		best := snapshot.Asks[0].Price
		far := snapshot.Asks[len(snapshot.Asks)-1].Price
		point.AskMin = returnDistance(best, mid, midF)
		point.AskMax = returnDistance(far, mid, midF)
		if point.AskMax < point.AskMin {
			point.AskMin, point.AskMax = point.AskMax, point.AskMin
		}
	}

	e.orderbookPoints = append(e.orderbookPoints, point)
}

// returnDistance computes (high - low)/mid as a float64, guarded.
func returnDistance(high, low decimal.Decimal, midF float64) float64 {
	diff, _ := high.Sub(low).Float64()
	if midF == 0 {
		return 0
	}
	d := diff / midF
	if d < 0 {
		d = -d
	}
	return d
}

// AddTrade copies the trade's timestamp/price/side into the window.
func (e *Engine) AddTrade(trade model.Trade) {
	e.windowTrades = append(e.windowTrades, model.CalibrationTrade{
		TimestampMs:  trade.TimestampMs,
		Price:        trade.Price,
		IsBuyerMaker: trade.IsBuyerMaker,
	})
}

// PruneWindows retains entries whose age is within the calibration
// window; full_price_history is never pruned (it is the GARCH state).
func (e *Engine) PruneWindows(now uint64) {
	e.calibrationPrices = pruneByAge(e.calibrationPrices, now, e.calibrationWindowMs, func(p pricePoint) uint64 { return p.ts })
	e.orderbookPoints = pruneByAge(e.orderbookPoints, now, e.calibrationWindowMs, func(p model.OrderbookPoint) uint64 { return p.TimestampMs })
	e.windowTrades = pruneByAge(e.windowTrades, now, e.calibrationWindowMs, func(t model.CalibrationTrade) uint64 { return t.TimestampMs })
}

func pruneByAge[T any](items []T, now, windowMs uint64, tsOf func(T) uint64) []T {
	keepFrom := 0
	for i, item := range items {
		ts := tsOf(item)
		var age uint64
		if now > ts {
			age = now - ts
		}
		if age <= windowMs {
			keepFrom = i
			break
		}
		keepFrom = i + 1
	}
	if keepFrom >= len(items) {
		return items[:0]
	}
	return items[keepFrom:]
}

// ShouldRecalibrate reports whether a calibration is due at time now.
func (e *Engine) ShouldRecalibrate(now uint64) bool {
	if !e.hasCalibrated {
		return len(e.calibrationPrices) >= minPricesForFirstCalibration
	}
	return now >= e.lastCalibrationTs+e.recalibrationIntervalMs
}

// Calibrate performs one calibration tick: σ via GARCH (full history,
// falling back to realised σ over the pruned window), and per-side
// (κ, A) via the intensity MLE over window trades and orderbook exposure.
// Returns nil only if no price has ever been observed.
func (e *Engine) Calibrate(now uint64) *model.CalibrationResult {
	if len(e.fullPriceHistory) == 0 {
		return nil
	}

	sigma := e.computeSigma()

	bidDeltas, askDeltas := e.sideDeltas()
	bidExposure, askExposure := e.exposureIntervals(now)

	bidFit, askFit := intensity.FitBothSides(bidDeltas, askDeltas, bidExposure, askExposure)
	if bidFit.Kappa > 0 && bidFit.A > 0 {
		e.bidKappa, e.bidA = bidFit.Kappa, bidFit.A
	}
	if askFit.Kappa > 0 && askFit.A > 0 {
		e.askKappa, e.askA = askFit.Kappa, askFit.A
	}

	e.lastCalibrationTs = now
	e.hasCalibrated = true

	return &model.CalibrationResult{
		TimestampMs: now,
		Volatility:  sigma,
		BidKappa:    e.bidKappa,
		BidA:        e.bidA,
		AskKappa:    e.askKappa,
		AskA:        e.askA,
	}
}

func (e *Engine) computeSigma() float64 {
	full := toPricePoints(e.fullPriceHistory)
	if sigma, ok := volatility.ForecastGARCHSigma(full); ok {
		return sigma
	}
	windowed := toPricePoints(e.calibrationPrices)
	return volatility.RealisedSigma(windowed)
}

func toPricePoints(pts []pricePoint) []volatility.PricePoint {
	out := make([]volatility.PricePoint, len(pts))
	for i, p := range pts {
		f, _ := p.price.Float64()
		out[i] = volatility.PricePoint{TimestampMs: p.ts, Price: f}
	}
	return out
}

// sideDeltas classifies window trades by is_buyer_maker: true -> bid side
// (trade hit our bid), false -> ask side (trade lifted our ask). The
// delta is the trade's return-space distance from the mid prevailing at
// the trade's timestamp (the most recent calibration price at or before
// it).
func (e *Engine) sideDeltas() (bid, ask []float64) {
	if len(e.calibrationPrices) == 0 {
		return nil, nil
	}
	midIdx := 0
	for _, trade := range e.windowTrades {
		for midIdx+1 < len(e.calibrationPrices) && e.calibrationPrices[midIdx+1].ts <= trade.TimestampMs {
			midIdx++
		}
		mid := e.calibrationPrices[midIdx].price
		midF, _ := mid.Float64()
		if midF <= 0 {
			continue
		}
		priceF, _ := trade.Price.Float64()

		if trade.IsBuyerMaker {
			delta := (midF - priceF) / midF
			if delta > 0 {
				bid = append(bid, delta)
			}
		} else {
			delta := (priceF - midF) / midF
			if delta > 0 {
				ask = append(ask, delta)
			}
		}
	}
	return bid, ask
}

// exposureIntervals converts stored orderbook points into per-side,
// per-snapshot exposure intervals, with duration being the gap to the
// next snapshot (or to now for the last one).
func (e *Engine) exposureIntervals(now uint64) (bid, ask []intensity.ExposureInterval) {
	if len(e.orderbookPoints) == 0 {
		return nil, nil
	}
	bid = make([]intensity.ExposureInterval, 0, len(e.orderbookPoints))
	ask = make([]intensity.ExposureInterval, 0, len(e.orderbookPoints))
	for i, p := range e.orderbookPoints {
		var nextTs uint64
		if i+1 < len(e.orderbookPoints) {
			nextTs = e.orderbookPoints[i+1].TimestampMs
		} else {
			nextTs = now
		}
		var durSec float64
		if nextTs > p.TimestampMs {
			durSec = float64(nextTs-p.TimestampMs) / 1000.0
		}
		bid = append(bid, intensity.ExposureInterval{DurationSec: durSec, DeltaMin: p.BidMin, DeltaMax: p.BidMax})
		ask = append(ask, intensity.ExposureInterval{DurationSec: durSec, DeltaMin: p.AskMin, DeltaMax: p.AskMax})
	}
	return bid, ask
}
