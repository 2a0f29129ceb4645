package quote

import (
	"testing"

	"github.com/shopspring/decimal"

	"as-backtester/internal/config"
	"as-backtester/internal/model"
)

func baseConfig() config.ASConfig {
	c := config.Default()
	c.GammaMode = model.GammaConstant
	c.RiskAversionGamma = 0.5
	c.TickSize = 0.01
	c.MinSpreadBps = 2
	c.MaxSpreadBps = 500
	c.MakerFeeBps = 1
	c.InventoryHorizonSec = 60
	c.MaxInventory = 10
	c.MinVolatility = 0
	c.MaxVolatility = 1
	return c
}

func TestComputeOptimalQuoteBidLessOrEqualAsk(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	mid := decimal.NewFromFloat(100.0)

	q := ComputeOptimalQuote(1000, mid, decimal.Zero, 0.01, 50, 50, cfg)
	if q.BidPrice.GreaterThan(q.AskPrice) {
		t.Fatalf("expected bid <= ask, got bid=%v ask=%v", q.BidPrice, q.AskPrice)
	}
	if !q.OptimalSpread.Equal(q.AskPrice.Sub(q.BidPrice)) {
		t.Fatalf("optimal_spread must equal ask - bid")
	}
}

func TestComputeOptimalQuoteTickAligned(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	mid := decimal.NewFromFloat(100.0)
	tick := decimal.NewFromFloat(cfg.TickSize)

	q := ComputeOptimalQuote(1000, mid, decimal.NewFromFloat(3), 0.02, 30, 70, cfg)
	if !q.BidPrice.Mod(tick).IsZero() {
		t.Fatalf("expected bid price %v to be a multiple of tick %v", q.BidPrice, tick)
	}
	if !q.AskPrice.Mod(tick).IsZero() {
		t.Fatalf("expected ask price %v to be a multiple of tick %v", q.AskPrice, tick)
	}
}

func TestComputeOptimalQuoteZeroTickSkipsRounding(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.TickSize = 0
	mid := decimal.NewFromFloat(100.0)

	q := ComputeOptimalQuote(1000, mid, decimal.Zero, 0.01, 50, 50, cfg)
	if q.BidPrice.GreaterThan(q.AskPrice) {
		t.Fatalf("expected bid <= ask with tick disabled, got bid=%v ask=%v", q.BidPrice, q.AskPrice)
	}
}

func TestComputeOptimalQuoteLongInventorySkewsReservationDown(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.GammaMode = model.GammaInventoryScaled
	mid := decimal.NewFromFloat(100.0)

	flat := ComputeOptimalQuote(1000, mid, decimal.Zero, 0.01, 50, 50, cfg)
	long := ComputeOptimalQuote(1000, mid, decimal.NewFromFloat(8), 0.01, 50, 50, cfg)

	if !long.ReservationPrice.LessThanOrEqual(flat.ReservationPrice) {
		t.Fatalf("expected long inventory to push reservation price down or equal: flat=%v long=%v", flat.ReservationPrice, long.ReservationPrice)
	}
}

func TestComputeOptimalQuoteGammaModesStayWithinBounds(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	mid := decimal.NewFromFloat(50.0)

	for _, mode := range []model.GammaMode{model.GammaConstant, model.GammaInventoryScaled, model.GammaMaxShift} {
		cfg.GammaMode = mode
		q := ComputeOptimalQuote(1000, mid, decimal.NewFromFloat(4), 0.015, 40, 60, cfg)
		if q.Gamma < cfg.GammaMin || q.Gamma > cfg.GammaMax {
			t.Fatalf("mode %v: gamma %v out of configured bounds [%v, %v]", mode, q.Gamma, cfg.GammaMin, cfg.GammaMax)
		}
		if q.BidPrice.GreaterThan(q.AskPrice) {
			t.Fatalf("mode %v: bid > ask", mode)
		}
	}
}

func TestComputeOptimalQuoteNonPositiveMidFallsBackGracefully(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	mid := decimal.Zero

	q := ComputeOptimalQuote(1000, mid, decimal.Zero, 0.01, 50, 50, cfg)
	if q.BidPrice.GreaterThan(q.AskPrice) {
		t.Fatalf("expected bid <= ask for degenerate mid, got bid=%v ask=%v", q.BidPrice, q.AskPrice)
	}
}

func bookForEffective() model.OrderbookSnapshot {
	return model.OrderbookSnapshot{
		TimestampMs: 1000,
		Bids: []model.PriceLevel{
			{Price: decimal.NewFromFloat(99.9), Quantity: decimal.NewFromFloat(5)},
			{Price: decimal.NewFromFloat(99.8), Quantity: decimal.NewFromFloat(10)},
			{Price: decimal.NewFromFloat(99.7), Quantity: decimal.NewFromFloat(20)},
		},
		Asks: []model.PriceLevel{
			{Price: decimal.NewFromFloat(100.1), Quantity: decimal.NewFromFloat(5)},
			{Price: decimal.NewFromFloat(100.2), Quantity: decimal.NewFromFloat(10)},
			{Price: decimal.NewFromFloat(100.3), Quantity: decimal.NewFromFloat(20)},
		},
	}
}

func TestComputeEffectiveQuoteWithinDepth(t *testing.T) {
	t.Parallel()
	book := bookForEffective()
	threshold := decimal.NewFromFloat(100) // well within first level's notional on both sides

	eq, ok := ComputeEffectiveQuote(book, threshold)
	if !ok {
		t.Fatalf("expected sufficient depth for threshold %v", threshold)
	}
	if !eq.Bid.Equal(decimal.NewFromFloat(99.9)) {
		t.Fatalf("expected effective bid at best level, got %v", eq.Bid)
	}
	if !eq.Ask.Equal(decimal.NewFromFloat(100.1)) {
		t.Fatalf("expected effective ask at best level, got %v", eq.Ask)
	}
	if eq.WeightedBid.GreaterThan(eq.Bid) {
		t.Fatalf("vwap bid should not exceed marginal bid price within one level")
	}
}

func TestComputeEffectiveQuoteInsufficientDepth(t *testing.T) {
	t.Parallel()
	book := bookForEffective()
	threshold := decimal.NewFromFloat(1_000_000)

	_, ok := ComputeEffectiveQuote(book, threshold)
	if ok {
		t.Fatalf("expected insufficient depth to report false")
	}
}

func TestComputeEffectiveQuoteEmptyBook(t *testing.T) {
	t.Parallel()
	_, ok := ComputeEffectiveQuote(model.OrderbookSnapshot{}, decimal.NewFromFloat(100))
	if ok {
		t.Fatalf("expected empty book to report false")
	}
}
