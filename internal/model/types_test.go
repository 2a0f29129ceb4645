package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderbookSnapshotBestBidAskEmptySides(t *testing.T) {
	snap := OrderbookSnapshot{TimestampMs: 1}
	if !snap.BestBid().IsZero() {
		t.Errorf("BestBid on empty bids should be zero, got %s", snap.BestBid())
	}
	if !snap.BestAsk().IsZero() {
		t.Errorf("BestAsk on empty asks should be zero, got %s", snap.BestAsk())
	}
}

func TestOrderbookSnapshotBestBidAsk(t *testing.T) {
	snap := OrderbookSnapshot{
		TimestampMs: 1,
		Bids: []PriceLevel{
			{Price: decimal.NewFromFloat(100), Quantity: decimal.NewFromFloat(1)},
			{Price: decimal.NewFromFloat(99.5), Quantity: decimal.NewFromFloat(2)},
		},
		Asks: []PriceLevel{
			{Price: decimal.NewFromFloat(100.5), Quantity: decimal.NewFromFloat(1)},
			{Price: decimal.NewFromFloat(101), Quantity: decimal.NewFromFloat(2)},
		},
	}
	if !snap.BestBid().Equal(decimal.NewFromFloat(100)) {
		t.Errorf("BestBid = %s, want 100", snap.BestBid())
	}
	if !snap.BestAsk().Equal(decimal.NewFromFloat(100.5)) {
		t.Errorf("BestAsk = %s, want 100.5", snap.BestAsk())
	}
}

func TestNewBacktestStateStartsFlat(t *testing.T) {
	state := NewBacktestState(decimal.NewFromInt(10000))
	if !state.Inventory.IsZero() {
		t.Errorf("initial inventory should be zero, got %s", state.Inventory)
	}
	if !state.Cash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("initial cash should equal initial capital, got %s", state.Cash)
	}
	if state.BidFills != 0 || state.AskFills != 0 {
		t.Errorf("initial fills should be zero, got bid=%d ask=%d", state.BidFills, state.AskFills)
	}
}

func TestMarkToMarketPnL(t *testing.T) {
	state := NewBacktestState(decimal.NewFromInt(10000))
	state.Cash = decimal.NewFromInt(9000)
	state.Inventory = decimal.NewFromFloat(10)

	pnl := state.MarkToMarketPnL(decimal.NewFromFloat(100))
	want := decimal.NewFromInt(10000) // 9000 + 10*100
	if !pnl.Equal(want) {
		t.Errorf("MarkToMarketPnL = %s, want %s", pnl, want)
	}
}

func TestMarkToMarketPnLShortInventory(t *testing.T) {
	state := NewBacktestState(decimal.NewFromInt(10000))
	state.Cash = decimal.NewFromInt(11000)
	state.Inventory = decimal.NewFromFloat(-10)

	pnl := state.MarkToMarketPnL(decimal.NewFromFloat(100))
	want := decimal.NewFromInt(10000) // 11000 - 10*100
	if !pnl.Equal(want) {
		t.Errorf("MarkToMarketPnL = %s, want %s", pnl, want)
	}
}
