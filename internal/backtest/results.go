package backtest

import (
	"bufio"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"as-backtester/internal/config"
)

// Results summarises one completed backtest run, mirroring the teacher
// source's BacktestResults.
type Results struct {
	InitialCapital      decimal.Decimal
	FinalPnL            decimal.Decimal
	TotalReturnPct      decimal.Decimal
	BidFills            uint64
	AskFills            uint64
	TotalVolume         decimal.Decimal
	TotalNotionalVolume decimal.Decimal
	FinalInventory      decimal.Decimal
	FinalCash           decimal.Decimal
	Config              config.ASConfig
}

// TotalFills returns bid_fills + ask_fills.
func (r Results) TotalFills() uint64 {
	return r.BidFills + r.AskFills
}

func (e *Engine) results() Results {
	finalPnL := e.state.MarkToMarketPnL(e.lastMid)
	var totalReturnPct decimal.Decimal
	if e.initialCapital.Sign() > 0 {
		totalReturnPct = finalPnL.Sub(e.initialCapital).Div(e.initialCapital).Mul(decimal.NewFromInt(100))
	}

	return Results{
		InitialCapital:      e.initialCapital,
		FinalPnL:            finalPnL,
		TotalReturnPct:      totalReturnPct,
		BidFills:            e.state.BidFills,
		AskFills:            e.state.AskFills,
		TotalVolume:         e.state.TotalVolume,
		TotalNotionalVolume: e.state.TotalNotionalVolume,
		FinalInventory:      e.state.Inventory,
		FinalCash:           e.state.Cash,
		Config:              e.cfg,
	}
}

// WriteCSV writes the per-requote trace to path in the original source's
// CSV column order without its datetime column, followed by four
// effective-quote columns (empty when no effective quote was recorded),
// with a 64KiB buffered writer to keep syscalls down on long runs.
func WriteCSV(path string, rows []TraceRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 64*1024)
	if _, err := w.WriteString("timestamp,mid_price,inventory,cash,pnl,spread_bps,bid_price,ask_price,bid_fills,ask_fills,gamma,bid_kappa,ask_kappa,bid_a,ask_a,effective_bid,effective_ask,effective_weighted_bid,effective_weighted_ask\n"); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		effectiveBid, effectiveAsk := "", ""
		effectiveWeightedBid, effectiveWeightedAsk := "", ""
		if row.HasEffectiveQuote {
			effectiveBid = row.EffectiveBid.String()
			effectiveAsk = row.EffectiveAsk.String()
			effectiveWeightedBid = row.EffectiveWeightedBid.String()
			effectiveWeightedAsk = row.EffectiveWeightedAsk.String()
		}
		line := fmt.Sprintf("%d,%s,%s,%s,%s,%.2f,%s,%s,%d,%d,%.6f,%.2f,%.2f,%.2f,%.2f,%s,%s,%s,%s\n",
			row.TimestampMs,
			row.MidPrice.String(),
			row.Inventory.String(),
			row.Cash.String(),
			row.PnL.String(),
			row.SpreadBps,
			row.BidPrice.String(),
			row.AskPrice.String(),
			row.BidFills,
			row.AskFills,
			row.Gamma,
			row.BidKappa,
			row.AskKappa,
			row.BidA,
			row.AskA,
			effectiveBid,
			effectiveAsk,
			effectiveWeightedBid,
			effectiveWeightedAsk,
		)
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	return w.Flush()
}
