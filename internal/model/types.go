package model

import "github.com/shopspring/decimal"

// Trade is a single executed trade from the historical tape.
// IsBuyerMaker = true means the aggressor sold into the resting bid (the
// trade hit our bid side, were we quoting); false means the aggressor
// bought from the resting ask (the trade lifted the ask).
type Trade struct {
	TimestampMs  uint64
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	IsBuyerMaker bool
}

// PriceLevel is one (price, quantity) rung of an order book side.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderbookSnapshot is a top-of-book-and-beyond snapshot. Bids must be
// strictly descending in price; asks strictly ascending. Either side may
// be empty for an illiquid book.
type OrderbookSnapshot struct {
	TimestampMs uint64
	Bids        []PriceLevel
	Asks        []PriceLevel
}

// BestBid returns the best bid price, or zero if the book has no bids.
func (s OrderbookSnapshot) BestBid() decimal.Decimal {
	if len(s.Bids) == 0 {
		return decimal.Zero
	}
	return s.Bids[0].Price
}

// BestAsk returns the best ask price, or zero if the book has no asks.
func (s OrderbookSnapshot) BestAsk() decimal.Decimal {
	if len(s.Asks) == 0 {
		return decimal.Zero
	}
	return s.Asks[0].Price
}

// OrderbookPoint is the derived, per-snapshot return-space exposure
// interval used by the intensity estimator (C3). For each side, δ_min is
// the return-space distance to the near edge of the book (best level) and
// δ_max the distance to the far edge (last level present in the
// snapshot). Invariant: 0 ≤ δ_min ≤ δ_max on each side.
type OrderbookPoint struct {
	TimestampMs uint64
	Mid         decimal.Decimal
	BidMin      float64
	BidMax      float64
	AskMin      float64
	AskMax      float64
}

// CalibrationTrade is the lightweight copy of a Trade kept in the
// calibration engine's rolling window — quantity is dropped because the
// intensity fit only needs timestamp, price, and side.
type CalibrationTrade struct {
	TimestampMs  uint64
	Price        decimal.Decimal
	IsBuyerMaker bool
}

// GammaMode selects how the risk-aversion parameter γ is derived each
// quote tick.
type GammaMode string

const (
	GammaConstant        GammaMode = "constant"
	GammaInventoryScaled GammaMode = "inventory_scaled"
	GammaMaxShift        GammaMode = "max_shift"
)

// BacktestState is the mutable position/PnL state the event loop (C6)
// owns and updates in place on every trade.
type BacktestState struct {
	Inventory           decimal.Decimal // signed; may go short
	Cash                decimal.Decimal
	BidFills            uint64
	AskFills            uint64
	TotalVolume         decimal.Decimal
	TotalNotionalVolume decimal.Decimal
	LastBidFillTs       uint64 // 0 = never
	LastAskFillTs       uint64 // 0 = never
}

// NewBacktestState creates the initial state for a run.
func NewBacktestState(initialCapital decimal.Decimal) *BacktestState {
	return &BacktestState{
		Inventory:           decimal.Zero,
		Cash:                initialCapital,
		TotalVolume:         decimal.Zero,
		TotalNotionalVolume: decimal.Zero,
	}
}

// MarkToMarketPnL returns cash + inventory valued at midPrice.
func (s *BacktestState) MarkToMarketPnL(midPrice decimal.Decimal) decimal.Decimal {
	return s.Cash.Add(s.Inventory.Mul(midPrice))
}

// OptimalQuote is the result of the Avellaneda-Stoikov closed-form
// computation (C5) for one point in time.
type OptimalQuote struct {
	TimestampMs      uint64
	ReservationPrice decimal.Decimal
	OptimalSpread    decimal.Decimal
	BidPrice         decimal.Decimal
	AskPrice         decimal.Decimal
	Gamma            float64
}

// EffectiveQuote is the ancillary VWAP-depth quote surface: the price on
// each side needed to fill EffectiveVolumeThreshold of notional, and the
// volume-weighted average price paid to get there. It never drives fill
// detection — it is reporting only (see SPEC_FULL.md §5).
type EffectiveQuote struct {
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	Mid         decimal.Decimal
	WeightedBid decimal.Decimal
	WeightedAsk decimal.Decimal
}

// CalibrationResult is the output of one calibration tick (C4).
type CalibrationResult struct {
	TimestampMs uint64
	Volatility  float64
	BidKappa    float64
	BidA        float64
	AskKappa    float64
	AskA        float64
}
