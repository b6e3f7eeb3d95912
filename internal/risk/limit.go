package risk

import (
	"math"

	"main/internal/model"
)

// Limit is the static position limit pair: how many open positions the book
// may carry and how much absolute notional they may tie up.
type Limit struct {
	MaxPositions int     `json:"maxPositions"`
	MaxNotional  float64 `json:"maxNotional"`
}

// DefaultLimit matches the production configuration.
func DefaultLimit() Limit {
	return Limit{MaxPositions: 40, MaxNotional: 50_000}
}

// Breached reports whether the book sits at or beyond either limit. At-limit
// counts as breached so the strategy stops adding before crossing.
func (l Limit) Breached(holdings []model.Holding) bool {
	var open int
	var notional float64
	for _, h := range holdings {
		if h.Quantity == 0 {
			continue
		}
		open++
		notional += math.Abs(h.Quantity * h.Price * h.Multiplier())
	}
	if l.MaxPositions > 0 && open >= l.MaxPositions {
		return true
	}
	if l.MaxNotional > 0 && notional >= l.MaxNotional {
		return true
	}
	return false
}
