package marketdata

import (
	"context"

	"github.com/yanun0323/errors"

	"main/internal/model"
)

// MemoryFeed keeps everything in process. Used by paper sessions and tests.
type MemoryFeed struct {
	spots   map[model.Symbol]float64
	tops    map[model.Symbol]TopOfBook
	closes  map[model.Symbol][]float64
	volumes map[model.Symbol][]float64
}

// NewMemoryFeed allocates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		spots:   make(map[model.Symbol]float64),
		tops:    make(map[model.Symbol]TopOfBook),
		closes:  make(map[model.Symbol][]float64),
		volumes: make(map[model.Symbol][]float64),
	}
}

func (f *MemoryFeed) SetSpot(symbol model.Symbol, price float64) {
	f.spots[symbol] = price
}

func (f *MemoryFeed) SetTop(symbol model.Symbol, top TopOfBook) {
	f.tops[symbol] = top
}

// SetHistory loads the daily close series for a symbol, oldest first.
func (f *MemoryFeed) SetHistory(symbol model.Symbol, closes []float64) {
	f.closes[symbol] = closes
}

// SetVolumes loads the daily volume series for a symbol, oldest first.
func (f *MemoryFeed) SetVolumes(symbol model.Symbol, volumes []float64) {
	f.volumes[symbol] = volumes
}

func (f *MemoryFeed) Spot(symbol model.Symbol) (float64, bool) {
	v, ok := f.spots[symbol]
	return v, ok
}

func (f *MemoryFeed) Top(symbol model.Symbol) (TopOfBook, bool) {
	v, ok := f.tops[symbol]
	return v, ok
}

func (f *MemoryFeed) DailyCloses(_ context.Context, symbol model.Symbol, _ model.Date, n int) ([]float64, error) {
	return tail(f.closes[symbol], n, symbol)
}

func (f *MemoryFeed) DailyVolumes(_ context.Context, symbol model.Symbol, _ model.Date, n int) ([]float64, error) {
	return tail(f.volumes[symbol], n, symbol)
}

func tail(series []float64, n int, symbol model.Symbol) ([]float64, error) {
	if len(series) == 0 {
		return nil, errors.Wrap(ErrNoHistory, "memory feed").With("symbol", symbol)
	}
	if len(series) > n {
		series = series[len(series)-n:]
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out, nil
}
