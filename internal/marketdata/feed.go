package marketdata

import (
	"context"

	"main/internal/model"
)

// TopOfBook is the current best two-sided quote for one security.
type TopOfBook struct {
	Bid float64
	Ask float64
}

// Mid returns the midpoint, zero when a side is missing.
func (t TopOfBook) Mid() float64 {
	if t.Bid <= 0 || t.Ask <= 0 {
		return 0
	}
	return t.Bid + (t.Ask-t.Bid)/2
}

// Feed is the market data surface the strategy consumes. Implementations must
// be safe for single-threaded use from the event loop.
type Feed interface {
	// Spot returns the last traded price of a security.
	Spot(symbol model.Symbol) (float64, bool)
	// Top returns the current best bid/ask.
	Top(symbol model.Symbol) (TopOfBook, bool)
	// DailyCloses returns the last n closes at or before end, oldest first.
	DailyCloses(ctx context.Context, symbol model.Symbol, end model.Date, n int) ([]float64, error)
	// DailyVolumes returns the last n daily volumes at or before end, oldest first.
	DailyVolumes(ctx context.Context, symbol model.Symbol, end model.Date, n int) ([]float64, error)
}

// StoreFeed serves history from the bar store and tops from the in-memory
// book kept current by update events.
type StoreFeed struct {
	bars  *BarStore
	spots map[model.Symbol]float64
	tops  map[model.Symbol]TopOfBook
}

// NewStoreFeed wires a feed over the persisted daily bars.
func NewStoreFeed(bars *BarStore) *StoreFeed {
	return &StoreFeed{
		bars:  bars,
		spots: make(map[model.Symbol]float64),
		tops:  make(map[model.Symbol]TopOfBook),
	}
}

// SetSpot records the last traded price for a security.
func (f *StoreFeed) SetSpot(symbol model.Symbol, price float64) {
	f.spots[symbol] = price
}

// SetTop records the current best bid/ask for a security.
func (f *StoreFeed) SetTop(symbol model.Symbol, top TopOfBook) {
	f.tops[symbol] = top
}

func (f *StoreFeed) Spot(symbol model.Symbol) (float64, bool) {
	v, ok := f.spots[symbol]
	return v, ok
}

func (f *StoreFeed) Top(symbol model.Symbol) (TopOfBook, bool) {
	v, ok := f.tops[symbol]
	return v, ok
}

func (f *StoreFeed) DailyCloses(ctx context.Context, symbol model.Symbol, end model.Date, n int) ([]float64, error) {
	bars, err := f.bars.Tail(ctx, symbol, end, n)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes, nil
}

func (f *StoreFeed) DailyVolumes(ctx context.Context, symbol model.Symbol, end model.Date, n int) ([]float64, error) {
	bars, err := f.bars.Tail(ctx, symbol, end, n)
	if err != nil {
		return nil, err
	}
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	return volumes, nil
}
