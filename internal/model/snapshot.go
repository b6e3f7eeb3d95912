package model

// MarketSnapshot carries the market inputs for one pricing evaluation.
// Supplied per call by the market data collaborator, never stored.
type MarketSnapshot struct {
	Spot    float64 // underlying last price
	HistVol float64 // annualized historical volatility estimate
	Bid     float64 // contract best bid
	Ask     float64 // contract best ask
	Date    Date    // evaluation date
}

// Mid returns the contract mid price, zero when one side is missing.
func (s MarketSnapshot) Mid() float64 {
	if s.Bid <= 0 || s.Ask <= 0 {
		return 0
	}
	return s.Bid + (s.Ask-s.Bid)/2
}

// Spread returns the quoted bid/ask spread.
func (s MarketSnapshot) Spread() float64 {
	return s.Ask - s.Bid
}

// TheoQuote is a theoretical two-sided price where either side may be
// unavailable when its implied volatility could not be solved.
type TheoQuote struct {
	Bid    float64
	Ask    float64
	HasBid bool
	HasAsk bool
}
