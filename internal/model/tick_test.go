package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRoundDownToTick(t *testing.T) {
	cases := []struct {
		price, tick, want string
	}{
		{"100.4899", "0.01", "100.48"},
		{"100.50", "0.01", "100.50"},
		{"99.999", "0.1", "99.9"},
		{"100", "0", "100"},
		{"100", "-1", "100"},
	}
	for _, c := range cases {
		got := RoundDownToTick(dec(c.price), dec(c.tick))
		if !got.Equal(dec(c.want)) {
			t.Errorf("RoundDownToTick(%s, %s) = %s, want %s", c.price, c.tick, got, c.want)
		}
	}
}

func TestRoundUpToTick(t *testing.T) {
	cases := []struct {
		price, tick, want string
	}{
		{"100.4899", "0.01", "100.49"},
		{"100.50", "0.01", "100.50"},
		{"99.91", "0.1", "100.0"},
		{"100", "0", "100"},
		{"100", "-1", "100"},
	}
	for _, c := range cases {
		got := RoundUpToTick(dec(c.price), dec(c.tick))
		if !got.Equal(dec(c.want)) {
			t.Errorf("RoundUpToTick(%s, %s) = %s, want %s", c.price, c.tick, got, c.want)
		}
	}
}

func TestRoundTripBracketsOriginalPrice(t *testing.T) {
	price := dec("100.4567")
	tick := dec("0.01")
	down := RoundDownToTick(price, tick)
	up := RoundUpToTick(price, tick)
	if down.GreaterThan(price) {
		t.Errorf("RoundDownToTick must not exceed price: down=%s price=%s", down, price)
	}
	if up.LessThan(price) {
		t.Errorf("RoundUpToTick must not undershoot price: up=%s price=%s", up, price)
	}
	if up.Sub(down).GreaterThan(tick) {
		t.Errorf("down/up should bracket within one tick: down=%s up=%s tick=%s", down, up, tick)
	}
}
