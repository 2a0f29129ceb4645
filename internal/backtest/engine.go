// Package backtest implements C6: the single-threaded, event-driven
// state machine that replays a merged trade/orderbook tape against the
// Avellaneda-Stoikov quote model and produces fill-level PnL.
package backtest

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"as-backtester/internal/calibration"
	"as-backtester/internal/config"
	"as-backtester/internal/model"
	"as-backtester/internal/quote"
)

// derivedConfig precomputes the millisecond windows and fee multipliers
// used in the event loop's hot path, mirroring the teacher's "compute it
// once" config derivation.
type derivedConfig struct {
	maxInventory         decimal.Decimal
	feeMultiplier        decimal.Decimal
	closingFeeMultiplier decimal.Decimal
	quoteValidityMs      uint64
	gapThresholdMs       uint64
	warmupPeriodMs       uint64
	cooldownMs           uint64
}

func deriveConfig(cfg config.ASConfig) derivedConfig {
	return derivedConfig{
		maxInventory:         decimal.NewFromFloat(cfg.MaxInventory),
		feeMultiplier:        decimal.NewFromFloat(cfg.MakerFeeBps).Div(decimal.NewFromInt(10000)),
		closingFeeMultiplier: decimal.NewFromFloat(cfg.TakerFeeBps).Div(decimal.NewFromInt(10000)),
		quoteValidityMs:      cfg.QuoteValiditySec * 1000,
		gapThresholdMs:       cfg.GapThresholdSec * 1000,
		warmupPeriodMs:       cfg.WarmupPeriodSec * 1000,
		cooldownMs:           cfg.FillCooldownSec * 1000,
	}
}

// Engine owns one backtest run's state exclusively: the running
// position/PnL, the calibration engine, and the event-loop's own quote
// bookkeeping.
type Engine struct {
	cfg            config.ASConfig
	orderNotional  decimal.Decimal
	initialCapital decimal.Decimal
	derived        derivedConfig

	state       *model.BacktestState
	calibration *calibration.Engine

	activeBidPrice decimal.Decimal
	activeAskPrice decimal.Decimal
	hasActiveQuote bool
	activeQuoteTs  uint64

	lastOrderbookTs uint64
	warmupEndTs     uint64
	lastMid         decimal.Decimal

	logger *slog.Logger

	trace                 []TraceRow
	effectiveQuoteEnabled bool
}

// TraceRow is one emitted row of the per-tick CSV trace, written on every
// successful recalibration/requote — matching the teacher source's
// per-row output granularity.
type TraceRow struct {
	TimestampMs uint64
	MidPrice    decimal.Decimal
	Inventory   decimal.Decimal
	Cash        decimal.Decimal
	PnL         decimal.Decimal
	SpreadBps   float64
	BidPrice    decimal.Decimal
	AskPrice    decimal.Decimal
	BidFills    uint64
	AskFills    uint64
	Gamma       float64
	BidKappa    float64
	AskKappa    float64
	BidA        float64
	AskA        float64

	// Effective (VWAP-depth) quote surface, populated only when
	// EnableEffectiveQuoteTrace was called — reporting only, never used
	// for fill detection (SPEC_FULL.md §5).
	HasEffectiveQuote    bool
	EffectiveBid         decimal.Decimal
	EffectiveAsk         decimal.Decimal
	EffectiveWeightedBid decimal.Decimal
	EffectiveWeightedAsk decimal.Decimal
}

// New creates a backtest engine for one run.
func New(cfg config.ASConfig, initialCapital, orderNotional decimal.Decimal, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:            cfg,
		orderNotional:  orderNotional,
		initialCapital: initialCapital,
		derived:        deriveConfig(cfg),
		state:          model.NewBacktestState(initialCapital),
		calibration:    calibration.New(cfg.CalibrationWindowSec, cfg.RecalibrationIntervalSec),
		lastMid:        decimal.Zero,
		logger:         logger.With("component", "backtest"),
	}
}

// EnableEffectiveQuoteTrace turns on per-tick computation of the VWAP
// effective-quote surface (SPEC_FULL.md §5) in the recorded trace.
// Callers should only enable this when they will actually consume the
// trace (verbose logging or CSV output), since it walks the full book
// depth on every recalibration tick.
func (e *Engine) EnableEffectiveQuoteTrace() {
	e.effectiveQuoteEnabled = true
}

// Run drains source to completion, mutating the engine's internal state
// on every trade and orderbook event, and returns the final results.
func (e *Engine) Run(source Source) (Results, error) {
	for {
		evt, ok, err := source.Next()
		if err != nil {
			return Results{}, fmt.Errorf("read event: %w", err)
		}
		if !ok {
			break
		}
		switch evt.Kind {
		case EventTrade:
			e.onTrade(evt.Trade)
		case EventOrderbook:
			e.onOrderbook(evt.Orderbook)
		}
	}

	e.forceClose()
	return e.results(), nil
}

// onOrderbook implements spec.md §4.6's orderbook-event handling:
// gap/warm-up detection, mid-price tracking, calibration feed, and
// requoting on a due recalibration.
func (e *Engine) onOrderbook(snapshot model.OrderbookSnapshot) {
	t := snapshot.TimestampMs

	if e.lastOrderbookTs > 0 {
		if t > e.lastOrderbookTs && t-e.lastOrderbookTs > e.derived.gapThresholdMs {
			e.enterWarmup(t, "gap detected")
		}
	} else {
		e.enterWarmup(t, "initial warm-up")
	}
	e.lastOrderbookTs = t

	bestBid := snapshot.BestBid()
	bestAsk := snapshot.BestAsk()
	mid := e.lastMid
	if bestBid.Sign() > 0 && bestAsk.Sign() > 0 {
		mid = bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
	}
	e.lastMid = mid

	e.calibration.AddOrderbook(snapshot, mid)
	e.calibration.PruneWindows(t)

	if !e.calibration.ShouldRecalibrate(t) {
		return
	}
	result := e.calibration.Calibrate(t)
	if result == nil {
		return
	}

	optimal := quote.ComputeOptimalQuote(t, mid, e.state.Inventory, result.Volatility, result.BidKappa, result.AskKappa, e.cfg)

	e.activeBidPrice = optimal.BidPrice
	e.activeAskPrice = optimal.AskPrice
	e.hasActiveQuote = true
	e.activeQuoteTs = t

	var effQuote model.EffectiveQuote
	var hasEffQuote bool
	if e.effectiveQuoteEnabled {
		effQuote, hasEffQuote = quote.ComputeEffectiveQuote(snapshot, e.cfg.EffectiveVolumeThreshold)
	}

	e.recordTrace(t, mid, optimal, *result, effQuote, hasEffQuote)
}

func (e *Engine) enterWarmup(t uint64, reason string) {
	e.warmupEndTs = t + e.derived.warmupPeriodMs
	e.hasActiveQuote = false
	e.activeQuoteTs = 0
	e.logger.Debug(reason, "timestamp_ms", t, "warmup_end_ms", e.warmupEndTs)
}

// onTrade implements spec.md §4.6's trade-event handling: unconditional
// calibration feed, warm-up/validity gating, and sell-then-buy fill
// detection against the active quotes.
func (e *Engine) onTrade(trade model.Trade) {
	e.calibration.AddTrade(trade)

	if trade.TimestampMs < e.warmupEndTs {
		return
	}
	if !e.hasActiveQuote {
		return
	}
	if e.activeQuoteTs == 0 || trade.TimestampMs >= e.activeQuoteTs+e.derived.quoteValidityMs {
		return
	}

	if trade.Price.GreaterThanOrEqual(e.activeAskPrice) {
		e.trySellFill(trade)
	} else if trade.Price.LessThanOrEqual(e.activeBidPrice) {
		e.tryBuyFill(trade)
	}
}

func (e *Engine) trySellFill(trade model.Trade) {
	if e.state.LastAskFillTs > 0 && trade.TimestampMs < e.state.LastAskFillTs+e.derived.cooldownMs {
		return
	}
	if e.state.Inventory.LessThanOrEqual(e.derived.maxInventory.Neg()) {
		return
	}

	unitSize := e.orderNotional.Div(trade.Price)
	shortCapacity := e.state.Inventory.Add(e.derived.maxInventory)
	sellSize := decimal.Min(shortCapacity, unitSize)
	if sellSize.Sign() < 0 {
		sellSize = decimal.Zero
	}
	if sellSize.Sign() <= 0 {
		return
	}

	gross := e.activeAskPrice.Mul(sellSize)
	fee := gross.Mul(e.derived.feeMultiplier)

	e.state.Inventory = e.state.Inventory.Sub(sellSize)
	e.state.Cash = e.state.Cash.Add(gross).Sub(fee)
	e.state.AskFills++
	e.state.LastAskFillTs = trade.TimestampMs
	e.state.TotalVolume = e.state.TotalVolume.Add(sellSize)
	e.state.TotalNotionalVolume = e.state.TotalNotionalVolume.Add(gross)
}

func (e *Engine) tryBuyFill(trade model.Trade) {
	if e.state.LastBidFillTs > 0 && trade.TimestampMs < e.state.LastBidFillTs+e.derived.cooldownMs {
		return
	}
	if e.state.Inventory.GreaterThanOrEqual(e.derived.maxInventory) {
		return
	}

	unitSize := e.orderNotional.Div(trade.Price)
	longCapacity := e.derived.maxInventory.Sub(e.state.Inventory)
	buySize := decimal.Min(longCapacity, unitSize)
	if buySize.Sign() < 0 {
		buySize = decimal.Zero
	}
	if buySize.Sign() <= 0 {
		return
	}

	gross := e.activeBidPrice.Mul(buySize)
	fee := gross.Mul(e.derived.feeMultiplier)
	totalCost := gross.Add(fee)
	if e.state.Cash.LessThan(totalCost) {
		return
	}

	e.state.Inventory = e.state.Inventory.Add(buySize)
	e.state.Cash = e.state.Cash.Sub(totalCost)
	e.state.BidFills++
	e.state.LastBidFillTs = trade.TimestampMs
	e.state.TotalVolume = e.state.TotalVolume.Add(buySize)
	e.state.TotalNotionalVolume = e.state.TotalNotionalVolume.Add(gross)
}

// forceClose closes any residual inventory at the last observed mid
// using the taker fee, per spec.md §4.6's tape-end rule.
func (e *Engine) forceClose() {
	if e.state.Inventory.IsZero() || e.lastMid.Sign() <= 0 {
		return
	}

	if e.state.Inventory.Sign() > 0 {
		qty := e.state.Inventory
		gross := e.lastMid.Mul(qty)
		fee := gross.Mul(e.derived.closingFeeMultiplier)
		e.state.Cash = e.state.Cash.Add(gross).Sub(fee)
		e.state.TotalVolume = e.state.TotalVolume.Add(qty)
		e.state.TotalNotionalVolume = e.state.TotalNotionalVolume.Add(gross)
	} else {
		qty := e.state.Inventory.Abs()
		gross := e.lastMid.Mul(qty)
		fee := gross.Mul(e.derived.closingFeeMultiplier)
		e.state.Cash = e.state.Cash.Sub(gross).Sub(fee)
		e.state.TotalVolume = e.state.TotalVolume.Add(qty)
		e.state.TotalNotionalVolume = e.state.TotalNotionalVolume.Add(gross)
	}
	e.state.Inventory = decimal.Zero
}

func (e *Engine) recordTrace(t uint64, mid decimal.Decimal, optimal model.OptimalQuote, cal model.CalibrationResult, effQuote model.EffectiveQuote, hasEffQuote bool) {
	pnl := e.state.MarkToMarketPnL(mid)
	var spreadBps float64
	if mid.Sign() > 0 {
		bps := optimal.OptimalSpread.Div(mid).Mul(decimal.NewFromInt(10000))
		spreadBps, _ = bps.Float64()
	}
	row := TraceRow{
		TimestampMs: t,
		MidPrice:    mid,
		Inventory:   e.state.Inventory,
		Cash:        e.state.Cash,
		PnL:         pnl,
		SpreadBps:   spreadBps,
		BidPrice:    optimal.BidPrice,
		AskPrice:    optimal.AskPrice,
		BidFills:    e.state.BidFills,
		AskFills:    e.state.AskFills,
		Gamma:       optimal.Gamma,
		BidKappa:    cal.BidKappa,
		AskKappa:    cal.AskKappa,
		BidA:        cal.BidA,
		AskA:        cal.AskA,
	}
	if hasEffQuote {
		row.HasEffectiveQuote = true
		row.EffectiveBid = effQuote.Bid
		row.EffectiveAsk = effQuote.Ask
		row.EffectiveWeightedBid = effQuote.WeightedBid
		row.EffectiveWeightedAsk = effQuote.WeightedAsk
	}
	e.trace = append(e.trace, row)
}

// Trace returns the per-requote rows accumulated during Run, for CSV
// emission by the caller.
func (e *Engine) Trace() []TraceRow {
	return e.trace
}
