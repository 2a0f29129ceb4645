// Package ingest adapts on-disk CSV trade/orderbook tapes into the
// backtest.Source contract (C7), merging the two files by timestamp the
// way the original data loader's MergedDataIterator does.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"as-backtester/internal/backtest"
	"as-backtester/internal/model"
)

// CSVSource merges a trades CSV and an orderbook CSV into one
// non-decreasing-timestamp event stream.
//
// trades CSV columns: timestamp_ms,price,quantity,side (side "sell"
// means is_buyer_maker = true, matching the original loader).
//
// orderbook CSV columns: timestamp_ms,bid_price0,bid_qty0,ask_price0,
// ask_qty0,bid_price1,bid_qty1,... — a flat run of up to max_levels
// (price,qty) quadruples per row; a zero or blank price marks an absent
// level.
type CSVSource struct {
	trades     *csv.Reader
	tradesF    *os.File
	orderbook  *csv.Reader
	orderbookF *os.File
	maxLevels  int

	nextTrade    *model.Trade
	hasNextTrade bool
	nextBook     *model.OrderbookSnapshot
	hasNextBook  bool

	lastTrade *model.Trade // last trade actually emitted, for adjacent-dedup
}

// Open opens both CSV files and prepares a merged Source. The caller
// must call Close when done to release the underlying file handles.
func Open(tradesPath, orderbookPath string) (*CSVSource, error) {
	tradesF, err := os.Open(tradesPath)
	if err != nil {
		return nil, fmt.Errorf("open trades csv: %w", err)
	}
	orderbookF, err := os.Open(orderbookPath)
	if err != nil {
		tradesF.Close()
		return nil, fmt.Errorf("open orderbook csv: %w", err)
	}

	tradesR := csv.NewReader(bufio.NewReaderSize(tradesF, 1024*1024))
	tradesR.ReuseRecord = true
	if _, err := tradesR.Read(); err != nil { // header
		tradesF.Close()
		orderbookF.Close()
		return nil, fmt.Errorf("read trades header: %w", err)
	}

	orderbookR := csv.NewReader(bufio.NewReaderSize(orderbookF, 1024*1024))
	header, err := orderbookR.Read()
	if err != nil {
		tradesF.Close()
		orderbookF.Close()
		return nil, fmt.Errorf("read orderbook header: %w", err)
	}
	maxLevels := 0
	for _, field := range header {
		if strings.HasPrefix(field, "bid_price") {
			maxLevels++
		}
	}

	return &CSVSource{
		trades:     tradesR,
		tradesF:    tradesF,
		orderbook:  orderbookR,
		orderbookF: orderbookF,
		maxLevels:  maxLevels,
	}, nil
}

// Close releases the underlying file handles.
func (s *CSVSource) Close() error {
	tradesErr := s.tradesF.Close()
	obErr := s.orderbookF.Close()
	if tradesErr != nil {
		return tradesErr
	}
	return obErr
}

// Next implements backtest.Source: it buffers one parsed record from
// each file and yields whichever has the smaller timestamp, ties
// resolved trade-first (matching the original merged iterator).
func (s *CSVSource) Next() (backtest.Event, bool, error) {
	if !s.hasNextTrade {
		trade, ok, err := s.readTrade()
		if err != nil {
			return backtest.Event{}, false, err
		}
		if ok {
			s.nextTrade = trade
			s.hasNextTrade = true
		}
	}
	if !s.hasNextBook {
		book, ok, err := s.readOrderbook()
		if err != nil {
			return backtest.Event{}, false, err
		}
		if ok {
			s.nextBook = book
			s.hasNextBook = true
		}
	}

	switch {
	case s.hasNextTrade && s.hasNextBook:
		if s.nextTrade.TimestampMs <= s.nextBook.TimestampMs {
			return s.takeTrade(), true, nil
		}
		return s.takeBook(), true, nil
	case s.hasNextTrade:
		return s.takeTrade(), true, nil
	case s.hasNextBook:
		return s.takeBook(), true, nil
	default:
		return backtest.Event{}, false, nil
	}
}

func (s *CSVSource) takeTrade() backtest.Event {
	e := backtest.Event{Kind: backtest.EventTrade, Trade: *s.nextTrade}
	s.hasNextTrade = false
	return e
}

func (s *CSVSource) takeBook() backtest.Event {
	e := backtest.Event{Kind: backtest.EventOrderbook, Orderbook: *s.nextBook}
	s.hasNextBook = false
	return e
}

// readTrade reads the next trade row, skipping any row that is an exact
// duplicate (timestamp_ms, price, quantity, is_buyer_maker) of the
// previously emitted trade — real tape exports repeat a row on the same
// timestamp_ms and must not be double-counted as two fills (spec.md
// §4.7).
func (s *CSVSource) readTrade() (*model.Trade, bool, error) {
	for {
		record, err := s.trades.Read()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("read trade row: %w", err)
		}
		if len(record) < 4 {
			return nil, false, fmt.Errorf("trade row has %d fields, want at least 4", len(record))
		}

		ts, err := strconv.ParseUint(record[0], 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse trade timestamp %q: %w", record[0], err)
		}
		price, err := decimal.NewFromString(record[1])
		if err != nil {
			return nil, false, fmt.Errorf("parse trade price %q: %w", record[1], err)
		}
		qty, err := decimal.NewFromString(record[2])
		if err != nil {
			return nil, false, fmt.Errorf("parse trade quantity %q: %w", record[2], err)
		}
		isBuyerMaker := strings.EqualFold(strings.TrimSpace(record[3]), "sell")

		trade := &model.Trade{
			TimestampMs:  ts,
			Price:        price,
			Quantity:     qty,
			IsBuyerMaker: isBuyerMaker,
		}

		if s.lastTrade != nil && isDuplicateTrade(s.lastTrade, trade) {
			continue
		}
		s.lastTrade = trade
		return trade, true, nil
	}
}

func isDuplicateTrade(a, b *model.Trade) bool {
	return a.TimestampMs == b.TimestampMs &&
		a.IsBuyerMaker == b.IsBuyerMaker &&
		a.Price.Equal(b.Price) &&
		a.Quantity.Equal(b.Quantity)
}

func (s *CSVSource) readOrderbook() (*model.OrderbookSnapshot, bool, error) {
	record, err := s.orderbook.Read()
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read orderbook row: %w", err)
	}
	if len(record) < 1 {
		return nil, false, fmt.Errorf("empty orderbook row")
	}

	ts, err := strconv.ParseUint(record[0], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse orderbook timestamp %q: %w", record[0], err)
	}

	snapshot := &model.OrderbookSnapshot{TimestampMs: ts}
	for i := 0; i < s.maxLevels; i++ {
		base := 1 + i*4
		if base+3 >= len(record) {
			break
		}
		bidPrice, bidQty, err := parseLevel(record[base], record[base+1])
		if err != nil {
			return nil, false, fmt.Errorf("parse bid level %d: %w", i, err)
		}
		askPrice, askQty, err := parseLevel(record[base+2], record[base+3])
		if err != nil {
			return nil, false, fmt.Errorf("parse ask level %d: %w", i, err)
		}
		if bidPrice.Sign() > 0 {
			snapshot.Bids = append(snapshot.Bids, model.PriceLevel{Price: bidPrice, Quantity: bidQty})
		}
		if askPrice.Sign() > 0 {
			snapshot.Asks = append(snapshot.Asks, model.PriceLevel{Price: askPrice, Quantity: askQty})
		}
	}

	return snapshot, true, nil
}

func parseLevel(priceField, qtyField string) (decimal.Decimal, decimal.Decimal, error) {
	priceField = strings.TrimSpace(priceField)
	if priceField == "" {
		return decimal.Zero, decimal.Zero, nil
	}
	price, err := decimal.NewFromString(priceField)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	qty := decimal.Zero
	if qtyField = strings.TrimSpace(qtyField); qtyField != "" {
		qty, err = decimal.NewFromString(qtyField)
		if err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, err
		}
	}
	return price, qty, nil
}
