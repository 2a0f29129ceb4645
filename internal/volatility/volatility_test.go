package volatility

import (
	"math"
	"testing"
)

func TestRealisedSigmaConstantPricesIsZero(t *testing.T) {
	t.Parallel()
	prices := make([]PricePoint, 0, 20)
	for i := 0; i < 20; i++ {
		prices = append(prices, PricePoint{TimestampMs: uint64(i * 1000), Price: 100})
	}
	if got := RealisedSigma(prices); got != 0 {
		t.Fatalf("expected 0 sigma for constant prices, got %v", got)
	}
}

func TestRealisedSigmaScaleInvariant(t *testing.T) {
	t.Parallel()
	base := []PricePoint{
		{TimestampMs: 0, Price: 100},
		{TimestampMs: 1000, Price: 100.5},
		{TimestampMs: 2000, Price: 99.8},
		{TimestampMs: 3000, Price: 101.2},
		{TimestampMs: 4000, Price: 100.9},
	}
	scaled := make([]PricePoint, len(base))
	const k = 3.7
	for i, p := range base {
		scaled[i] = PricePoint{TimestampMs: p.TimestampMs, Price: p.Price * k}
	}

	s1 := RealisedSigma(base)
	s2 := RealisedSigma(scaled)
	if math.Abs(s1-s2) > 1e-9 {
		t.Fatalf("expected scale invariance, got %v vs %v", s1, s2)
	}
}

func TestRealisedSigmaRequiresTwoReturns(t *testing.T) {
	t.Parallel()
	if got := RealisedSigma(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
	if got := RealisedSigma([]PricePoint{{TimestampMs: 0, Price: 100}}); got != 0 {
		t.Fatalf("expected 0 for single point, got %v", got)
	}
}

func TestRealisedSigmaDropsNonPositiveAndBadGaps(t *testing.T) {
	t.Parallel()
	prices := []PricePoint{
		{TimestampMs: 0, Price: 100},
		{TimestampMs: 0, Price: 101},    // zero gap, dropped
		{TimestampMs: 1000, Price: -5},  // non-positive, dropped
		{TimestampMs: 2000, Price: 102}, // valid pair with the t=0, price 101 sample
		{TimestampMs: 3000, Price: 103},
	}
	got := RealisedSigma(prices)
	if got < 0 || math.IsNaN(got) {
		t.Fatalf("expected a finite non-negative sigma, got %v", got)
	}
}

func TestForecastGARCHSigmaNeedsFiveReturns(t *testing.T) {
	t.Parallel()
	// Fewer than 5 seconds of span -> fewer than 5 grid returns -> None.
	prices := []PricePoint{
		{TimestampMs: 0, Price: 100},
		{TimestampMs: 2000, Price: 100.1},
	}
	if _, ok := ForecastGARCHSigma(prices); ok {
		t.Fatalf("expected no forecast with insufficient grid returns")
	}
}

func TestForecastGARCHSigmaProducesFiniteForecast(t *testing.T) {
	t.Parallel()
	prices := make([]PricePoint, 0, 200)
	price := 100.0
	seed := uint64(12345)
	nextRand := func() float64 {
		seed = seed*6364136223846793005 + 1442695040888963407
		return float64(seed>>11) / float64(1<<53)
	}
	for i := 0; i < 200; i++ {
		price *= 1 + (nextRand()-0.5)*0.002
		prices = append(prices, PricePoint{TimestampMs: uint64(i * 1000), Price: price})
	}

	sigma, ok := ForecastGARCHSigma(prices)
	if !ok {
		t.Fatalf("expected a forecast from a long synthetic series")
	}
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		t.Fatalf("expected finite non-negative sigma forecast, got %v", sigma)
	}
}
