// Package pricing values American options on a binomial lattice under a flat
// rate / flat dividend Black-Scholes-Merton process and estimates the full
// sensitivity grid by finite differences.
package pricing

import (
	"github.com/yanun0323/logs"

	"main/internal/memo"
	"main/internal/model"
)

const (
	fdBump      = 0.01    // +-1% central perturbation for spot/vol terms
	decayDays   = 1       // day shift for the time-decay family
	dayFraction = 1.0 / 365
)

// Engine owns the per-(contract, date) model cache and the greeks
// memoization. Evaluation date changes must be announced through Roll; the
// caches are invalidated exactly once per rollover.
type Engine struct {
	steps    int
	rate     float64
	dividend float64

	date   model.Date
	models *memo.Cache[model.Symbol, contractModel]
	greeks *memo.Cache[greeksKey, model.Greeks]

	latticeEvals uint64
}

// contractModel caches the date-dependent contract statics so repeated
// evaluations inside one trading day skip recomputation.
type contractModel struct {
	Spec  model.ContractSpec
	Years float64
}

type greeksKey struct {
	Contract model.Symbol
	Date     model.Date
	Spot     float64
	Vol      float64
}

// NewEngine creates a pricing engine with the given lattice steps and flat
// rate/dividend terms.
func NewEngine(steps int, rate, dividend float64) *Engine {
	if steps < 2 {
		steps = DefaultSteps
	}
	return &Engine{
		steps:    steps,
		rate:     rate,
		dividend: dividend,
		models:   memo.New[model.Symbol, contractModel](512),
		greeks:   memo.New[greeksKey, model.Greeks](4096),
	}
}

// Roll moves the engine to a new evaluation date, invalidating the cached
// models once when the date actually changes.
func (e *Engine) Roll(date model.Date) {
	if date == e.date {
		return
	}
	e.date = date
	e.models.Invalidate()
	e.greeks.Invalidate()
}

// LatticeEvals returns the number of tree builds performed. Tests use it to
// verify memoization; it never drives behavior.
func (e *Engine) LatticeEvals() uint64 {
	return e.latticeEvals
}

// Price returns the theoretical bid/ask for the contract, each side priced at
// the implied volatility recovered from the observed quote on that side. A
// side whose IV cannot be solved is reported unavailable, never zero.
func (e *Engine) Price(c model.ContractSpec, snap model.MarketSnapshot) model.TheoQuote {
	in := e.inputs(c, snap)
	var quote model.TheoQuote

	if bidIV, ok := e.solveImpliedVol(in, snap.Bid); ok {
		if res, err := e.eval(withVol(in, bidIV)); err == nil {
			quote.Bid = res.Value
			quote.HasBid = true
		}
	} else {
		logs.Debugf("no bid IV for %s, bid=%.4f: side unavailable", c.Key(), snap.Bid)
	}

	if askIV, ok := e.solveImpliedVol(in, snap.Ask); ok {
		if res, err := e.eval(withVol(in, askIV)); err == nil {
			quote.Ask = res.Value
			quote.HasAsk = true
		}
	} else {
		logs.Debugf("no ask IV for %s, ask=%.4f: side unavailable", c.Key(), snap.Ask)
	}
	return quote
}

// ImpliedVol inverts the lattice against an observed contract price.
func (e *Engine) ImpliedVol(c model.ContractSpec, snap model.MarketSnapshot, observed float64) (float64, bool) {
	return e.solveImpliedVol(e.inputs(c, snap), observed)
}

// Greeks computes the full sensitivity grid for (contract, date, spot, vol),
// memoized on exactly that tuple. Delta and gamma come from the lattice
// directly; the time-decay family differences a second lattice anchored one
// day later; everything else is a +-1% central finite difference.
func (e *Engine) Greeks(c model.ContractSpec, snap model.MarketSnapshot) (model.Greeks, error) {
	in := e.inputs(c, snap)
	// programmer errors surface before the cache; a repeated tuple must
	// come back without building a single tree
	if err := in.validate(); err != nil {
		return model.Greeks{}, err
	}

	key := greeksKey{Contract: c.Key(), Date: snap.Date, Spot: snap.Spot, Vol: snap.HistVol}
	return e.greeks.GetOrCompute(key, func() model.Greeks {
		return e.computeGreeks(in)
	}), nil
}

func (e *Engine) computeGreeks(in latticeInputs) model.Greeks {
	base, err := e.eval(in)
	if err != nil {
		logs.Errorf("lattice build: %v", err)
		return model.Greeks{}
	}

	var g model.Greeks
	g.Delta = base.Delta
	g.Gamma = base.Gamma

	g.Theta = e.timeDiff(in, func(r latticeResult) float64 { return r.Value })
	g.Vega = e.vega(in)

	// spot cross terms
	g.DTdP = e.spotDiff(in, func(r latticeResult) float64 { return r.Theta })
	g.DIVdP = e.spotDiffFn(in, e.vega)
	g.DGdP = e.spotDiff(in, func(r latticeResult) float64 { return r.Gamma })

	// vol cross terms
	g.DPdIV = e.volDiff(in, func(r latticeResult) float64 { return r.Delta })
	g.DTdIV = e.volDiff(in, func(r latticeResult) float64 { return r.Theta })
	g.DIV2 = e.volDiffFn(in, e.vega)
	g.DGdIV = e.volDiff(in, func(r latticeResult) float64 { return r.Gamma })

	// decay family: rebuild one day forward, difference per day
	g.DeltaDecay = e.timeDiff(in, func(r latticeResult) float64 { return r.Delta })
	g.ThetaDecay = e.timeDiff(in, func(r latticeResult) float64 { return r.Theta })
	g.VegaDecay = e.timeDiffFn(in, e.vega)
	g.GammaDecay = e.timeDiff(in, func(r latticeResult) float64 { return r.Gamma })
	return g
}

// vega is itself a finite difference over vol of the tree value, so the
// cross terms that perturb vega nest two difference levels.
func (e *Engine) vega(in latticeInputs) float64 {
	return e.volDiff(in, func(r latticeResult) float64 { return r.Value })
}

func (e *Engine) spotDiff(in latticeInputs, derive func(latticeResult) float64) float64 {
	up, down := in, in
	up.Spot = in.Spot * (1 + fdBump)
	down.Spot = in.Spot * (1 - fdBump)
	rUp, errUp := e.eval(up)
	rDown, errDown := e.eval(down)
	if errUp != nil || errDown != nil {
		return 0
	}
	return (derive(rUp) - derive(rDown)) / (2 * in.Spot * fdBump)
}

func (e *Engine) spotDiffFn(in latticeInputs, fn func(latticeInputs) float64) float64 {
	up, down := in, in
	up.Spot = in.Spot * (1 + fdBump)
	down.Spot = in.Spot * (1 - fdBump)
	return (fn(up) - fn(down)) / (2 * in.Spot * fdBump)
}

func (e *Engine) volDiff(in latticeInputs, derive func(latticeResult) float64) float64 {
	up, down := in, in
	up.Vol = in.Vol * (1 + fdBump)
	down.Vol = in.Vol * (1 - fdBump)
	rUp, errUp := e.eval(up)
	rDown, errDown := e.eval(down)
	if errUp != nil || errDown != nil {
		return 0
	}
	return (derive(rUp) - derive(rDown)) / (2 * in.Vol * fdBump)
}

func (e *Engine) volDiffFn(in latticeInputs, fn func(latticeInputs) float64) float64 {
	up, down := in, in
	up.Vol = in.Vol * (1 + fdBump)
	down.Vol = in.Vol * (1 - fdBump)
	return (fn(up) - fn(down)) / (2 * in.Vol * fdBump)
}

// timeDiff rebuilds an independent lattice anchored one day later with
// identical remaining inputs and differences the derived quantity per day.
func (e *Engine) timeDiff(in latticeInputs, derive func(latticeResult) float64) float64 {
	later := in
	later.Years = in.Years - decayDays*dayFraction
	if later.Years < 0 {
		later.Years = 0
	}
	rNow, errNow := e.eval(in)
	rLater, errLater := e.eval(later)
	if errNow != nil || errLater != nil {
		return 0
	}
	return (derive(rNow) - derive(rLater)) / decayDays
}

func (e *Engine) timeDiffFn(in latticeInputs, fn func(latticeInputs) float64) float64 {
	later := in
	later.Years = in.Years - decayDays*dayFraction
	if later.Years < 0 {
		later.Years = 0
	}
	return (fn(in) - fn(later)) / decayDays
}

func (e *Engine) eval(in latticeInputs) (latticeResult, error) {
	e.latticeEvals++
	return evalLattice(in)
}

func (e *Engine) inputs(c model.ContractSpec, snap model.MarketSnapshot) latticeInputs {
	cm := e.models.GetOrCompute(c.Key(), func() contractModel {
		return contractModel{Spec: c, Years: c.YearsToExpiry(snap.Date)}
	})
	return latticeInputs{
		Right:    c.Right,
		Style:    c.Style,
		Strike:   c.Strike,
		Spot:     snap.Spot,
		Vol:      snap.HistVol,
		Rate:     e.rate,
		Dividend: e.dividend,
		Years:    cm.Years,
		Steps:    e.steps,
	}
}
