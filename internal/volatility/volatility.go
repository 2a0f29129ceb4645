// Package volatility implements C2: realised volatility and a GARCH(1,1)
// one-step-ahead forecast over an irregularly sampled mid-price series.
// Every exported function degrades to a safe zero/None value on
// degenerate input instead of erroring — see spec.md §7.1.
package volatility

import "math"

// PricePoint is a single (timestamp_ms, price) observation.
type PricePoint struct {
	TimestampMs uint64
	Price       float64
}

// RealisedSigma computes per-√-second volatility from irregularly spaced
// samples (spec.md §4.2). It does not annualise and does not divide by n;
// σ carries units of 1/√second.
func RealisedSigma(prices []PricePoint) float64 {
	clean := sanitise(prices)
	if len(clean) < 2 {
		return 0
	}

	var sumSqReturns, sumDt float64
	n := 0
	for i := 0; i+1 < len(clean); i++ {
		p0, p1 := clean[i], clean[i+1]
		dtSec := float64(p1.TimestampMs-p0.TimestampMs) / 1000.0
		if p1.TimestampMs < p0.TimestampMs {
			// guarded by sanitise's sort precondition; defensive only
			continue
		}
		if dtSec <= 0 || !isFinite(dtSec) {
			continue
		}
		r := math.Log(p1.Price / p0.Price)
		if !isFinite(r) {
			continue
		}
		sumSqReturns += r * r
		sumDt += dtSec
		n++
	}

	if n < 2 || sumDt <= 0 {
		return 0
	}
	sigmaSq := sumSqReturns / sumDt
	sigma := math.Sqrt(sigmaSq)
	if !isFinite(sigma) {
		return 0
	}
	return sigma
}

// ForecastGARCHSigma fits a GARCH(1,1) model on a 1-second uniform grid
// built by previous-tick interpolation over the full (non-windowed)
// price history, and returns the one-step-ahead forecast σ_{T+1}. Returns
// false if fewer than 5 grid returns can be formed, or if no feasible
// (α,β) fit is found.
func ForecastGARCHSigma(prices []PricePoint) (float64, bool) {
	clean := sanitise(prices)
	if len(clean) < 2 {
		return 0, false
	}

	returns := uniformGridReturns(clean)
	if len(returns) < 5 {
		return 0, false
	}

	m := meanSquare(returns)
	if m <= 0 || !isFinite(m) {
		return 0, false
	}

	best, ok := searchGARCH(returns, m)
	if !ok {
		return 0, false
	}

	sigmaNext := math.Sqrt(best.sigmaSqNext)
	if !isFinite(sigmaNext) {
		return 0, false
	}
	return sigmaNext, true
}

// sanitise drops non-positive or non-finite prices and assumes the input
// is already sorted non-decreasing in timestamp (the caller's contract).
func sanitise(prices []PricePoint) []PricePoint {
	out := make([]PricePoint, 0, len(prices))
	for _, p := range prices {
		if p.Price <= 0 || !isFinite(p.Price) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// uniformGridReturns builds a 1-second grid via previous-tick
// interpolation starting at the first sample's timestamp, and returns the
// log-returns between consecutive grid points.
func uniformGridReturns(prices []PricePoint) []float64 {
	if len(prices) == 0 {
		return nil
	}
	t0 := prices[0].TimestampMs
	tLast := prices[len(prices)-1].TimestampMs
	if tLast <= t0 {
		return nil
	}

	numSteps := int((tLast - t0) / 1000)
	if numSteps < 1 {
		return nil
	}

	grid := make([]float64, 0, numSteps+1)
	idx := 0
	for k := 0; k <= numSteps; k++ {
		t := t0 + uint64(k)*1000
		for idx+1 < len(prices) && prices[idx+1].TimestampMs <= t {
			idx++
		}
		grid = append(grid, prices[idx].Price)
	}

	returns := make([]float64, 0, len(grid)-1)
	for i := 0; i+1 < len(grid); i++ {
		if grid[i] <= 0 || grid[i+1] <= 0 {
			continue
		}
		r := math.Log(grid[i+1] / grid[i])
		if isFinite(r) {
			returns = append(returns, r)
		}
	}
	return returns
}

func meanSquare(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r * r
	}
	return sum / float64(len(returns))
}

type garchFit struct {
	alpha, beta float64
	loglik      float64
	sigmaSqNext float64
}

// searchGARCH performs the coarse grid search over (α,β) followed by a
// local refinement, per spec.md §4.2 steps 3-5.
func searchGARCH(returns []float64, m float64) (garchFit, bool) {
	var best garchFit
	found := false

	tryPair := func(alpha, beta float64) {
		if alpha < 0 || beta < 0 || alpha+beta >= 0.999 {
			return
		}
		omega := m * (1 - alpha - beta)
		if omega <= 0 || !isFinite(omega) {
			return
		}
		ll, sigmaSqNext, ok := evaluateGARCH(returns, omega, alpha, beta, m)
		if !ok {
			return
		}
		if !isFinite(sigmaSqNext) || sigmaSqNext <= 0 {
			return
		}
		if !found || ll > best.loglik {
			best = garchFit{alpha: alpha, beta: beta, loglik: ll, sigmaSqNext: sigmaSqNext}
			found = true
		}
	}

	for ai := 0; ai <= 25; ai++ {
		alpha := float64(ai) * 0.02
		for bi := 0; bi <= 49; bi++ {
			beta := float64(bi) * 0.02
			tryPair(alpha, beta)
		}
	}
	if !found {
		return garchFit{}, false
	}

	offsets := []float64{-0.02, -0.01, -0.005, 0, 0.005, 0.01, 0.02}
	centerAlpha, centerBeta := best.alpha, best.beta
	for _, da := range offsets {
		for _, db := range offsets {
			tryPair(centerAlpha+da, centerBeta+db)
		}
	}

	return best, found
}

// evaluateGARCH runs the GARCH(1,1) recursion with σ²_0 = m and returns
// the normal-residual log-likelihood along with σ²_{T+1}, the one-step
// forecast past the last observed return.
func evaluateGARCH(returns []float64, omega, alpha, beta, m float64) (loglik float64, sigmaSqNext float64, ok bool) {
	sigmaSq := m
	ll := 0.0
	const twoPi = 2 * math.Pi

	for _, r := range returns {
		if sigmaSq <= 0 || !isFinite(sigmaSq) {
			return 0, 0, false
		}
		ll += -0.5 * (math.Log(twoPi) + math.Log(sigmaSq) + (r*r)/sigmaSq)
		if !isFinite(ll) {
			return 0, 0, false
		}
		sigmaSq = omega + alpha*r*r + beta*sigmaSq
	}
	return ll, sigmaSq, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
