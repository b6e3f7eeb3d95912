// Package state tracks the book built from fills and writes the dated
// end-of-day position snapshots the analysis tooling consumes.
package state

import (
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// Fill is one executed quantity applied to the book.
type Fill struct {
	Symbol   model.Symbol
	Security model.Security
	Quantity float64
	Price    float64
	Time     time.Time
}

// Reducer folds fills into per-symbol positions. Single-threaded, driven by
// the event loop.
type Reducer struct {
	positions map[model.Symbol]*bookEntry
	lastEvent time.Time
}

type bookEntry struct {
	security model.Security
	quantity float64
	// fillCash is the signed cash paid across all fills, used for the
	// mark-to-mid profit of the position
	fillCash float64
	sodMid   float64
}

// NewReducer creates an empty book.
func NewReducer() *Reducer {
	return &Reducer{positions: make(map[model.Symbol]*bookEntry)}
}

// ApplyFill books a fill and returns the new signed quantity.
func (r *Reducer) ApplyFill(f Fill) float64 {
	e := r.entry(f.Symbol, f.Security)
	e.quantity += f.Quantity
	e.fillCash += f.Price * f.Quantity * multiplierOf(f.Security)
	if f.Time.After(r.lastEvent) {
		r.lastEvent = f.Time
	}
	return e.quantity
}

// SetStartOfDayMid records the day's opening mid for day-change tracking.
func (r *Reducer) SetStartOfDayMid(symbol model.Symbol, security model.Security, mid float64) {
	e := r.entry(symbol, security)
	if e.sodMid == 0 {
		e.sodMid = mid
	}
}

// Quantity returns the signed position for a symbol.
func (r *Reducer) Quantity(symbol model.Symbol) float64 {
	if e, ok := r.positions[symbol]; ok {
		return e.quantity
	}
	return 0
}

// LastEventTime returns the time of the newest applied fill.
func (r *Reducer) LastEventTime() time.Time {
	return r.lastEvent
}

// Holdings returns the non-zero positions marked at the supplied mids.
func (r *Reducer) Holdings(mid func(model.Symbol) float64) []model.Holding {
	var out []model.Holding
	for sym, e := range r.positions {
		if e.quantity == 0 {
			continue
		}
		out = append(out, model.Holding{
			Security: e.security,
			Quantity: e.quantity,
			Price:    mid(sym),
		})
	}
	return out
}

// Position is the per-symbol end-of-day report row.
type Position struct {
	Time         time.Time         `json:"time"`
	Symbol       model.Symbol      `json:"symbol"`
	Kind         enum.SecurityKind `json:"kind"`
	Quantity     float64           `json:"quantity"`
	Multiplier   float64           `json:"multiplier"`
	Spread       float64           `json:"spread"`
	LastPrice    float64           `json:"priceLastTraded"`
	MidPrice     float64           `json:"priceMid"`
	DayChange    float64           `json:"dP"`
	DayChangeUnd float64           `json:"dPUnderlying"`
	PL           float64           `json:"pl"`
	PLExplain    *model.PLExplain  `json:"plExplain,omitempty"`
	Greeks       *model.Greeks     `json:"greeks,omitempty"`
}

// PositionInputs are the per-symbol marks the reducer cannot know itself.
type PositionInputs struct {
	LastPrice float64
	Bid       float64
	Ask       float64
	// UnderlyingMid and UnderlyingSodMid mark the option's underlying now
	// and at the day open; their difference is the reported underlying move.
	UnderlyingMid    float64
	UnderlyingSodMid float64
	Greeks           *model.Greeks
}

// Report builds the end-of-day row for one symbol. The profit is the cash
// paid over all fills marked against the current mid; options additionally
// carry their greeks and the taylor attribution of the day's move.
func (r *Reducer) Report(symbol model.Symbol, now time.Time, in PositionInputs) (Position, bool) {
	e, ok := r.positions[symbol]
	if !ok || e.quantity == 0 {
		return Position{}, false
	}

	mult := multiplierOf(e.security)
	mid := midOf(in.Bid, in.Ask)
	p := Position{
		Time:       now,
		Symbol:     symbol,
		Kind:       e.security.Kind,
		Quantity:   e.quantity,
		Multiplier: mult,
		Spread:     in.Ask - in.Bid,
		LastPrice:  in.LastPrice,
		MidPrice:   mid,
		DayChange:  in.LastPrice - e.sodMid,
		PL:         mid*e.quantity*mult - e.fillCash,
	}

	if e.security.Kind == enum.SecurityOptionContract && in.Greeks != nil {
		p.Greeks = in.Greeks
		p.DayChangeUnd = in.UnderlyingMid - in.UnderlyingSodMid
		explain := in.Greeks.Explain(p.DayChange, 1, 0, 0)
		p.PLExplain = &explain
	}
	return p, true
}

func (r *Reducer) entry(symbol model.Symbol, security model.Security) *bookEntry {
	e, ok := r.positions[symbol]
	if !ok {
		e = &bookEntry{security: security}
		r.positions[symbol] = e
	}
	return e
}

func multiplierOf(s model.Security) float64 {
	if s.Kind == enum.SecurityOptionContract {
		return model.OptionMultiplier
	}
	return 1
}

func midOf(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return bid + (ask-bid)/2
}
