// Package model defines the decimal-precision data types shared by every
// other package: trades, order book snapshots, calibration results, and
// the backtest's own running state. Prices, quantities, and cash are
// always shopspring/decimal.Decimal; conversion to float64 happens only
// inside the numerical routines (volatility, intensity, quote math) and
// is always guarded against non-finite results there.
package model

import "github.com/shopspring/decimal"

// RoundDownToTick floors price to the nearest multiple of tick. When tick
// is zero or negative, tick granularity is disabled and price is returned
// unchanged.
func RoundDownToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	ticks := price.Div(tick).Floor()
	return ticks.Mul(tick)
}

// RoundUpToTick ceils price to the nearest multiple of tick. When tick is
// zero or negative, price is returned unchanged.
func RoundUpToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	down := RoundDownToTick(price, tick)
	if down.Equal(price) {
		return down
	}
	return down.Add(tick)
}
