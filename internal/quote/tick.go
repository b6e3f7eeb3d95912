package quote

import "math"

// DefaultTickSize is the minimum price variation assumed when the venue does
// not report one.
const DefaultTickSize = 0.01

// TickTable maps symbols to their minimum price variation, falling back to
// DefaultTickSize.
type TickTable map[string]float64

// Size returns the tick for a symbol.
func (t TickTable) Size(symbol string) float64 {
	if v, ok := t[symbol]; ok && v > 0 {
		return v
	}
	return DefaultTickSize
}

// RoundTick snaps a price to the nearest tick. Rounding to nearest keeps the
// quote passive on average; callers abandon prices below one tick entirely.
func RoundTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
