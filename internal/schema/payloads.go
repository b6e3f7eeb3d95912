package schema

import (
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// MarketUpdate is one top-of-book or trade change on a subscribed security.
// Contract carries the option terms on the first update of a new contract so
// consumers can resolve the symbol without a chain lookup.
type MarketUpdate struct {
	Symbol   model.Symbol
	Kind     enum.SecurityKind
	Contract *model.ContractSpec
	Bid      float64
	Ask      float64
	BidSize  float64
	AskSize  float64
	Last     float64
	Time     time.Time
}

// NewBidAsk reports whether the update moved the touch against the previous
// values, which is the proxy for a new mid price.
func (u MarketUpdate) NewBidAsk(prevBid, prevAsk float64) bool {
	return u.Bid != prevBid || u.Ask != prevAsk
}

// EndOfDay signals the close of a trading day.
type EndOfDay struct {
	Date model.Date
	Time time.Time
}
