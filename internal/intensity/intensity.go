// Package intensity implements C3: per-side truncated-exponential MLE
// fitting of the Poisson fill-intensity parameters (κ, A) from observed
// trade deltas and time-integrated book-exposure intervals.
package intensity

import "math"

// ExposureInterval is one book snapshot's return-space exposure window:
// it holds for DurationSec seconds, during which the book's bid/ask
// edges sat at [DeltaMin, DeltaMax] return-space distance from mid.
type ExposureInterval struct {
	DurationSec float64
	DeltaMin    float64
	DeltaMax    float64
}

// Fit is a fitted (κ, A) pair for one side.
type Fit struct {
	Kappa float64
	A     float64
}

const (
	goldenRatio   = 0.6180339887498949
	goldenIters   = 32
	coarseGridLen = 61
	minDeltas     = 5
)

// FitSide fits λ(δ) = A·exp(−κ·δ) via truncated-exponential MLE over the
// observed trade deltas and the exposure intervals covering the window,
// per spec.md §4.3. Returns false when fewer than 5 deltas are available
// or no finite exposure interval exists, or when the fit is not
// finite/positive.
func FitSide(deltas []float64, exposure []ExposureInterval) (Fit, bool) {
	if len(deltas) < minDeltas {
		return Fit{}, false
	}
	if !hasFiniteExposure(exposure) {
		return Fit{}, false
	}

	n := float64(len(deltas))
	sumDelta := 0.0
	for _, d := range deltas {
		sumDelta += d
	}

	loglik := func(kappa float64) float64 {
		e := exposureIntegral(exposure, kappa)
		if e <= 0 || !isFinite(e) {
			return math.Inf(-1)
		}
		ll := n*(math.Log(kappa)-math.Log(e)) - kappa*sumDelta
		if !isFinite(ll) {
			return math.Inf(-1)
		}
		return ll
	}

	bestKappa, bestLL := coarseSearch(loglik)
	if math.IsInf(bestLL, -1) {
		return Fit{}, false
	}

	refined := goldenSectionRefine(loglik, bestKappa/5, bestKappa*5)

	e := exposureIntegral(exposure, refined)
	if e <= 0 || !isFinite(e) {
		return Fit{}, false
	}
	a := n * refined / e

	if refined <= 0 || a <= 0 || !isFinite(refined) || !isFinite(a) {
		return Fit{}, false
	}
	return Fit{Kappa: refined, A: a}, true
}

// FitBothSides fits bid and ask sides independently — each against its
// own side's exposure intervals — and applies the cross-side/default
// fallback rules of spec.md §4.3.
func FitBothSides(bidDeltas, askDeltas []float64, bidExposure, askExposure []ExposureInterval) (bid, ask Fit) {
	bidFit, bidOK := FitSide(bidDeltas, bidExposure)
	askFit, askOK := FitSide(askDeltas, askExposure)

	const defaultKappa, defaultA = 100.0, 10.0

	switch {
	case bidOK && askOK:
		return bidFit, askFit
	case bidOK && !askOK:
		return bidFit, bidFit
	case !bidOK && askOK:
		return askFit, askFit
	default:
		d := Fit{Kappa: defaultKappa, A: defaultA}
		return d, d
	}
}

func hasFiniteExposure(exposure []ExposureInterval) bool {
	for _, e := range exposure {
		if isFinite(e.DurationSec) && isFinite(e.DeltaMin) && isFinite(e.DeltaMax) && e.DurationSec > 0 {
			return true
		}
	}
	return false
}

// exposureIntegral computes E(κ) = Σ dur_i·(e^{-κ·δmin_i} − e^{-κ·δmax_i}).
func exposureIntegral(exposure []ExposureInterval, kappa float64) float64 {
	sum := 0.0
	for _, e := range exposure {
		if !isFinite(e.DurationSec) || e.DurationSec <= 0 {
			continue
		}
		if !isFinite(e.DeltaMin) || !isFinite(e.DeltaMax) {
			continue
		}
		term := math.Exp(-kappa*e.DeltaMin) - math.Exp(-kappa*e.DeltaMax)
		sum += e.DurationSec * term
	}
	return sum
}

// coarseSearch evaluates loglik over 61 log-spaced points in [1e-6, 1e4].
func coarseSearch(loglik func(float64) float64) (bestKappa, bestLL float64) {
	bestLL = math.Inf(-1)
	const logMin, logMax = -6.0, 4.0
	step := (logMax - logMin) / float64(coarseGridLen-1)
	for i := 0; i < coarseGridLen; i++ {
		logK := logMin + float64(i)*step
		kappa := math.Pow(10, logK)
		ll := loglik(kappa)
		if ll > bestLL {
			bestLL = ll
			bestKappa = kappa
		}
	}
	return bestKappa, bestLL
}

// goldenSectionRefine performs a golden-section search maximising loglik
// on [lo, hi] for a fixed number of iterations.
func goldenSectionRefine(loglik func(float64) float64, lo, hi float64) float64 {
	if lo <= 0 {
		lo = 1e-9
	}
	if hi <= lo {
		hi = lo * 10
	}

	invPhi := goldenRatio
	c := hi - invPhi*(hi-lo)
	d := lo + invPhi*(hi-lo)
	fc := loglik(c)
	fd := loglik(d)

	for i := 0; i < goldenIters; i++ {
		if fc > fd {
			hi = d
			d = c
			fd = fc
			c = hi - invPhi*(hi-lo)
			fc = loglik(c)
		} else {
			lo = c
			c = d
			fc = fd
			d = lo + invPhi*(hi-lo)
			fd = loglik(d)
		}
	}

	if fc > fd {
		return c
	}
	return d
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
