// Package proxy maintains the synthetic portfolio index the risk layer
// normalizes against. The index is rebuilt from current holdings; its history
// applies today's weights to historical closes, which approximates the past
// but keeps every rebuild a pure function of the present book.
package proxy

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/marketdata"
	"main/internal/memo"
	"main/internal/model"
	"main/internal/model/enum"
)

var ErrSeriesMisaligned = errors.New("constituent history length mismatch")

// Constituent is one underlying's share-equivalent weight in the index.
// Option positions contribute through their underlying at contract size.
type Constituent struct {
	Symbol   model.Symbol
	Quantity float64
}

// Index is the share-weighted proxy of the current book.
type Index struct {
	window int
	feed   marketdata.Feed
	betas  *memo.Cache[betaKey, float64]
}

type betaKey struct {
	Symbol model.Symbol
	Window int
	Date   model.Date
}

// New creates an index with the given correlation window.
func New(feed marketdata.Feed, window int) *Index {
	if window < 2 {
		window = 2
	}
	return &Index{
		window: window,
		feed:   feed,
		betas:  memo.New[betaKey, float64](256),
	}
}

// Constituents folds holdings into per-underlying share weights. Equities
// contribute their quantity; options contribute quantity times contract size
// on the underlying.
func Constituents(holdings []model.Holding) []Constituent {
	weights := make(map[model.Symbol]float64)
	var order []model.Symbol
	add := func(sym model.Symbol, qty float64) {
		if _, ok := weights[sym]; !ok {
			order = append(order, sym)
		}
		weights[sym] += qty
	}

	for _, h := range holdings {
		switch h.Security.Kind {
		case enum.SecurityEquity:
			add(h.Security.Symbol, h.Quantity)
		case enum.SecurityOptionContract:
			add(h.Security.Contract.Underlying, h.Quantity*model.OptionMultiplier)
		}
	}

	out := make([]Constituent, 0, len(order))
	for _, sym := range order {
		out = append(out, Constituent{Symbol: sym, Quantity: weights[sym]})
	}
	return out
}

// Value marks the index against current spots. Constituents with no spot are
// skipped with a warning rather than failing the whole evaluation.
func (x *Index) Value(constituents []Constituent) float64 {
	var total float64
	for _, c := range constituents {
		spot, ok := x.feed.Spot(c.Symbol)
		if !ok {
			logs.Warnf("index value: no spot for %s, constituent skipped", c.Symbol)
			continue
		}
		total += c.Quantity * spot
	}
	return total
}

// History synthesizes the index close series over the correlation window by
// applying today's constituent weights to historical closes. All constituent
// series must cover the window; a shorter series fails the rebuild.
func (x *Index) History(ctx context.Context, constituents []Constituent, end model.Date) ([]float64, error) {
	need := x.window + 1
	series := make([]float64, need)
	for _, c := range constituents {
		closes, err := x.feed.DailyCloses(ctx, c.Symbol, end, need)
		if err != nil {
			return nil, errors.Wrap(err, "index history").With("symbol", c.Symbol)
		}
		if len(closes) != need {
			return nil, errors.Wrap(ErrSeriesMisaligned, "index history").
				With("symbol", c.Symbol).
				With("want", need).
				With("got", len(closes))
		}
		for i, close := range closes {
			series[i] += c.Quantity * close
		}
	}
	return series, nil
}
