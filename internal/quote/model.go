// Package quote implements C5: the Avellaneda-Stoikov closed-form quote
// model, plus the ancillary VWAP-depth effective-quote surface that
// supplements it for reporting (see SPEC_FULL.md's supplemented
// features section).
package quote

import (
	"math"

	"github.com/shopspring/decimal"

	"as-backtester/internal/config"
	"as-backtester/internal/model"
)

const (
	gammaFloor       = 1e-6
	gammaCeiling     = 1e6
	maxShiftGammaCap = 1e6
	bpsDivisor       = 10000.0
)

// ComputeOptimalQuote is the closed-form Avellaneda-Stoikov calculation
// for one point in time (spec.md §4.5). All intermediate math is done in
// return space (relative to mid) so that γ and κ stay dimensionless;
// spreads are converted back to price units before tick alignment.
func ComputeOptimalQuote(
	t uint64,
	mid decimal.Decimal,
	inventory decimal.Decimal,
	sigma float64,
	bidKappa, askKappa float64,
	cfg config.ASConfig,
) model.OptimalQuote {
	midF, _ := mid.Float64()

	sigmaClamped := clampSigma(sigma, cfg.MinVolatility, cfg.MaxVolatility)
	tHorizon := float64(cfg.InventoryHorizonSec)
	sigmaSqT := sigmaClamped * sigmaClamped * tHorizon

	invF, _ := inventory.Float64()
	qRatio := inventoryRatio(invF, cfg.MaxInventory)

	gamma := selectGamma(cfg, qRatio, sigmaSqT, midF)

	bidSpreadRet := spreadReturn(gamma, sigmaSqT, bidKappa)
	askSpreadRet := spreadReturn(gamma, sigmaSqT, askKappa)

	bidSpreadBps := clampSpreadBps(bidSpreadRet*bpsDivisor, cfg)
	askSpreadBps := clampSpreadBps(askSpreadRet*bpsDivisor, cfg)

	bidSpreadPrice := decimal.NewFromFloat(bidSpreadBps / bpsDivisor).Mul(mid)
	askSpreadPrice := decimal.NewFromFloat(askSpreadBps / bpsDivisor).Mul(mid)

	reservation := reservationPrice(mid, qRatio, gamma, sigmaSqT)

	rawBid := reservation.Sub(bidSpreadPrice.Div(decimal.NewFromInt(2)))
	rawAsk := reservation.Add(askSpreadPrice.Div(decimal.NewFromInt(2)))

	tick := decimal.NewFromFloat(cfg.TickSize)
	bid := model.RoundDownToTick(rawBid, tick)
	ask := model.RoundUpToTick(rawAsk, tick)

	if bid.GreaterThan(ask) {
		mp := bid.Add(ask).Div(decimal.NewFromInt(2))
		bid, ask = mp, mp
	}

	return model.OptimalQuote{
		TimestampMs:      t,
		ReservationPrice: reservation,
		OptimalSpread:    ask.Sub(bid),
		BidPrice:         bid,
		AskPrice:         ask,
		Gamma:            gamma,
	}
}

func clampSigma(sigma, minV, maxV float64) float64 {
	if sigma < minV {
		sigma = minV
	}
	if sigma > maxV {
		sigma = maxV
	}
	return sigma
}

// inventoryRatio returns sign(inventory)*min(|inventory|/maxInventory, 1),
// or 0 if maxInventory is not positive.
func inventoryRatio(inventory, maxInventory float64) float64 {
	if maxInventory <= 0 {
		return 0
	}
	ratio := math.Abs(inventory) / maxInventory
	if ratio > 1 {
		ratio = 1
	}
	if inventory < 0 {
		ratio = -ratio
	}
	return ratio
}

// selectGamma picks γ per the configured gamma_mode, then clamps to
// [max(gamma_min, 1e-6), min(gamma_max, 1e6)].
func selectGamma(cfg config.ASConfig, qRatio, sigmaSqT, midF float64) float64 {
	var gamma float64
	switch cfg.GammaMode {
	case model.GammaMaxShift:
		gamma = maxShiftGamma(cfg, sigmaSqT, midF)
	case model.GammaInventoryScaled:
		gamma = maxShiftGamma(cfg, sigmaSqT, midF) * math.Abs(qRatio)
	default: // model.GammaConstant and any unrecognised value
		gamma = math.Max(cfg.RiskAversionGamma, gammaFloor)
	}

	lo := math.Max(cfg.GammaMin, gammaFloor)
	hi := math.Min(cfg.GammaMax, gammaCeiling)
	if hi < lo {
		hi = lo
	}
	if gamma < lo {
		gamma = lo
	}
	if gamma > hi {
		gamma = hi
	}
	return gamma
}

// maxShiftGamma solves for the γ that makes a full-inventory position
// shift the reservation price by max_shift_ticks·tick_size.
func maxShiftGamma(cfg config.ASConfig, sigmaSqT, midF float64) float64 {
	if sigmaSqT <= 0 || midF <= 0 {
		return gammaFloor
	}
	targetShiftReturn := (cfg.MaxShiftTicks * cfg.TickSize) / midF
	gammaStar := targetShiftReturn / sigmaSqT
	if gammaStar > maxShiftGammaCap {
		gammaStar = maxShiftGammaCap
	}
	if gammaStar < gammaFloor {
		gammaStar = gammaFloor
	}
	return gammaStar
}

// spreadReturn computes γ·σ²T + (2/γ)·ln(1 + γ/κ_eff) in return space.
func spreadReturn(gamma, sigmaSqT, kappa float64) float64 {
	kappaEff := kappa
	if kappaEff <= 0 {
		kappaEff = 1.0
	}
	term := 1 + gamma/kappaEff
	if term <= 0 {
		term = 1
	}
	spread := gamma*sigmaSqT + (2/gamma)*math.Log(term)
	if spread < 0 || math.IsNaN(spread) || math.IsInf(spread, 0) {
		spread = 0
	}
	return spread
}

// clampSpreadBps floors at max(min_spread_bps, 2*maker_fee_bps) and caps
// at max_spread_bps when configured.
func clampSpreadBps(bps float64, cfg config.ASConfig) float64 {
	floor := math.Max(cfg.MinSpreadBps, 2*cfg.MakerFeeBps)
	if bps < floor {
		bps = floor
	}
	if cfg.MaxSpreadBps > 0 && bps > cfg.MaxSpreadBps {
		bps = cfg.MaxSpreadBps
	}
	return bps
}

// reservationPrice computes r = mid - q_ratio*γ*σ²T*mid, falling back to
// mid when the result is non-positive.
func reservationPrice(mid decimal.Decimal, qRatio, gamma, sigmaSqT float64) decimal.Decimal {
	shift := qRatio * gamma * sigmaSqT
	r := mid.Sub(decimal.NewFromFloat(shift).Mul(mid))
	if r.Sign() <= 0 {
		return mid
	}
	return r
}

// ComputeEffectiveQuote derives the VWAP-depth ancillary quote surface:
// the price needed on each side to fill volumeThreshold of notional, and
// the volume-weighted average price paid getting there. It never drives
// fill detection; it is reporting only. Returns false when either side
// lacks enough depth to reach the threshold.
func ComputeEffectiveQuote(book model.OrderbookSnapshot, volumeThreshold decimal.Decimal) (model.EffectiveQuote, bool) {
	bidPrice, bidVWAP, ok := sideEffectivePrice(book.Bids, volumeThreshold)
	if !ok {
		return model.EffectiveQuote{}, false
	}
	askPrice, askVWAP, ok := sideEffectivePrice(book.Asks, volumeThreshold)
	if !ok {
		return model.EffectiveQuote{}, false
	}

	mid := bidPrice.Add(askPrice).Div(decimal.NewFromInt(2))

	return model.EffectiveQuote{
		Bid:         bidPrice,
		Ask:         askPrice,
		Mid:         mid,
		WeightedBid: bidVWAP,
		WeightedAsk: askVWAP,
	}, true
}

// sideEffectivePrice walks levels best-to-worst accumulating notional
// until volumeThreshold is reached, returning the marginal price of the
// last unit needed and the volume-weighted average price of the fill.
func sideEffectivePrice(levels []model.PriceLevel, threshold decimal.Decimal) (marginal, vwap decimal.Decimal, ok bool) {
	accumulatedValue := decimal.Zero
	accumulatedQty := decimal.Zero
	weightedSum := decimal.Zero
	marginal = decimal.Zero

	for _, level := range levels {
		remaining := threshold.Sub(accumulatedValue)
		if remaining.Sign() <= 0 {
			break
		}

		value := level.Price.Mul(level.Quantity)
		if value.GreaterThanOrEqual(remaining) {
			if level.Price.Sign() <= 0 {
				break
			}
			neededQty := remaining.Div(level.Price)
			accumulatedValue = accumulatedValue.Add(remaining)
			accumulatedQty = accumulatedQty.Add(neededQty)
			weightedSum = weightedSum.Add(level.Price.Mul(neededQty))
			marginal = level.Price
			break
		}

		accumulatedValue = accumulatedValue.Add(value)
		accumulatedQty = accumulatedQty.Add(level.Quantity)
		weightedSum = weightedSum.Add(level.Price.Mul(level.Quantity))
		marginal = level.Price
	}

	if accumulatedQty.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, false
	}
	if accumulatedValue.LessThan(threshold) {
		return decimal.Zero, decimal.Zero, false
	}

	return marginal, weightedSum.Div(accumulatedQty), true
}
