package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"as-backtester/internal/backtest"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCSVSourceMergesByTimestamp(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tradesPath := writeTemp(t, dir, "trades.csv", ""+
		"timestamp_ms,price,quantity,side\n"+
		"1000,100.5,1.0,sell\n"+
		"3000,101.0,2.0,buy\n")

	orderbookPath := writeTemp(t, dir, "orderbook.csv", ""+
		"timestamp_ms,bid_price0,bid_qty0,ask_price0,ask_qty0\n"+
		"500,100.0,5,101.0,5\n"+
		"2000,100.1,5,100.9,5\n")

	src, err := Open(tradesPath, orderbookPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	var kinds []backtest.EventKind
	var timestamps []uint64
	for {
		evt, ok, err := src.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		kinds = append(kinds, evt.Kind)
		timestamps = append(timestamps, evt.TimestampMs())
	}

	wantTimestamps := []uint64{500, 1000, 2000, 3000}
	if len(timestamps) != len(wantTimestamps) {
		t.Fatalf("expected %d events, got %d: %v", len(wantTimestamps), len(timestamps), timestamps)
	}
	for i, want := range wantTimestamps {
		if timestamps[i] != want {
			t.Fatalf("event %d: expected timestamp %d, got %d", i, want, timestamps[i])
		}
	}

	wantKinds := []backtest.EventKind{backtest.EventOrderbook, backtest.EventTrade, backtest.EventOrderbook, backtest.EventTrade}
	for i, want := range wantKinds {
		if kinds[i] != want {
			t.Fatalf("event %d: expected kind %v, got %v", i, want, kinds[i])
		}
	}
}

func TestCSVSourceIsBuyerMakerFromSide(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tradesPath := writeTemp(t, dir, "trades.csv", ""+
		"timestamp_ms,price,quantity,side\n"+
		"1000,100.5,1.0,sell\n"+
		"1000,100.6,1.0,buy\n")
	orderbookPath := writeTemp(t, dir, "orderbook.csv", "timestamp_ms,bid_price0,bid_qty0,ask_price0,ask_qty0\n")

	src, err := Open(tradesPath, orderbookPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	evt1, ok, err := src.Next()
	if err != nil || !ok {
		t.Fatalf("expected first trade event, err=%v ok=%v", err, ok)
	}
	if !evt1.Trade.IsBuyerMaker {
		t.Fatalf("expected side=sell to set is_buyer_maker=true")
	}

	evt2, ok, err := src.Next()
	if err != nil || !ok {
		t.Fatalf("expected second trade event, err=%v ok=%v", err, ok)
	}
	if evt2.Trade.IsBuyerMaker {
		t.Fatalf("expected side=buy to set is_buyer_maker=false")
	}
}

func TestCSVSourceDropsAdjacentDuplicateTrades(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tradesPath := writeTemp(t, dir, "trades.csv", ""+
		"timestamp_ms,price,quantity,side\n"+
		"1000,100.5,1.0,sell\n"+
		"1000,100.5,1.0,sell\n"+ // exact duplicate row, dropped
		"1000,100.5,2.0,sell\n"+ // same timestamp/price/side, different quantity, kept
		"2000,100.5,1.0,sell\n") // same fields, different timestamp, kept
	orderbookPath := writeTemp(t, dir, "orderbook.csv", "timestamp_ms,bid_price0,bid_qty0,ask_price0,ask_qty0\n")

	src, err := Open(tradesPath, orderbookPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	var quantities []string
	var timestamps []uint64
	for {
		evt, ok, err := src.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		quantities = append(quantities, evt.Trade.Quantity.String())
		timestamps = append(timestamps, evt.TimestampMs())
	}

	if len(quantities) != 3 {
		t.Fatalf("expected 3 trades after dedup, got %d: %v", len(quantities), quantities)
	}
	if timestamps[0] != 1000 || timestamps[1] != 1000 || timestamps[2] != 2000 {
		t.Fatalf("unexpected timestamps after dedup: %v", timestamps)
	}
	if quantities[0] != "1" || quantities[1] != "2" || quantities[2] != "1" {
		t.Fatalf("unexpected quantities after dedup: %v", quantities)
	}
}

func TestCSVSourceSkipsZeroPriceLevels(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tradesPath := writeTemp(t, dir, "trades.csv", "timestamp_ms,price,quantity,side\n")
	orderbookPath := writeTemp(t, dir, "orderbook.csv", ""+
		"timestamp_ms,bid_price0,bid_qty0,ask_price0,ask_qty0,bid_price1,bid_qty1,ask_price1,ask_qty1\n"+
		"1000,100.0,5,101.0,5,0,0,0,0\n")

	src, err := Open(tradesPath, orderbookPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	evt, ok, err := src.Next()
	if err != nil || !ok {
		t.Fatalf("expected one orderbook event, err=%v ok=%v", err, ok)
	}
	if len(evt.Orderbook.Bids) != 1 || len(evt.Orderbook.Asks) != 1 {
		t.Fatalf("expected the zero-price second level to be dropped, got bids=%d asks=%d", len(evt.Orderbook.Bids), len(evt.Orderbook.Asks))
	}

	_, ok, err = src.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected exhaustion after the single row")
	}
}
