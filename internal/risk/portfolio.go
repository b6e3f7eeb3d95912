// Package risk folds per-position greeks into one portfolio view normalized
// against the proxy index, and enforces the static position limits.
package risk

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/marketdata"
	"main/internal/memo"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/proxy"
)

var (
	ErrNoIndexValue = errors.New("proxy index has no value")
	ErrNoSpot       = errors.New("no spot price")
)

// Pricer supplies per-contract greeks. Satisfied by the pricing engine.
type Pricer interface {
	Greeks(c model.ContractSpec, snap model.MarketSnapshot) (model.Greeks, error)
}

// PortfolioRisk is the aggregated greeks of the whole book, index-normalized.
// Theta and vega are plain sums across contracts, assuming perfect volatility
// correlation between underlyings.
type PortfolioRisk struct {
	Time       time.Time
	Delta      float64
	DeltaUSD   float64
	Gamma      float64
	GammaUSD   float64
	Theta      float64
	Vega       float64
	Rho        float64
	IndexValue float64
}

// EvalKey identifies one aggregation moment. The book only changes on order
// events, so (evaluation time, last order event time) pins the result.
type EvalKey struct {
	EvalTime       time.Time
	LastOrderEvent time.Time
}

// Aggregator computes PortfolioRisk from holdings, caching the latest result.
type Aggregator struct {
	index   *proxy.Index
	feed    marketdata.Feed
	pricer  Pricer
	volSpan int

	memo *memo.Cache[EvalKey, PortfolioRisk]
}

// NewAggregator wires the aggregator. volSpan is the trailing window for the
// historical volatility fed into greeks.
func NewAggregator(index *proxy.Index, feed marketdata.Feed, pricer Pricer, volSpan int) *Aggregator {
	return &Aggregator{
		index:   index,
		feed:    feed,
		pricer:  pricer,
		volSpan: volSpan,
		memo:    memo.New[EvalKey, PortfolioRisk](1),
	}
}

// Evaluate aggregates the book as of key. Holdings the market cannot resolve
// (missing spot or history) are skipped with a warning so one stale name
// never blanks the whole risk picture.
func (a *Aggregator) Evaluate(ctx context.Context, key EvalKey, holdings []model.Holding, asOf model.Date) (PortfolioRisk, error) {
	if cached, ok := a.memo.Get(key); ok {
		return cached, nil
	}

	constituents := proxy.Constituents(holdings)
	indexValue := a.index.Value(constituents)

	pr := PortfolioRisk{Time: key.EvalTime, IndexValue: indexValue}
	for _, h := range holdings {
		if h.Quantity == 0 {
			continue
		}
		switch h.Security.Kind {
		case enum.SecurityEquity:
			beta, err := a.index.Beta(ctx, h.Security.Symbol, constituents, asOf)
			if err != nil {
				logs.Warnf("risk: skip equity %s: %v", h.Security.Symbol, err)
				continue
			}
			pr.Delta += h.Quantity * beta

		case enum.SecurityOptionContract:
			if indexValue == 0 {
				return PortfolioRisk{}, errors.Wrap(ErrNoIndexValue, "aggregate option risk").
					With("contract", h.Security.Symbol)
			}
			if err := a.addOption(ctx, &pr, h, constituents, asOf, indexValue); err != nil {
				logs.Warnf("risk: skip contract %s: %v", h.Security.Symbol, err)
			}
		}
	}

	a.memo.Put(key, pr)
	return pr, nil
}

func (a *Aggregator) addOption(ctx context.Context, pr *PortfolioRisk, h model.Holding, constituents []proxy.Constituent, asOf model.Date, indexValue float64) error {
	contract := h.Security.Contract
	snap, err := a.Snapshot(ctx, contract, asOf)
	if err != nil {
		return err
	}
	greeks, err := a.pricer.Greeks(contract, snap)
	if err != nil {
		return err
	}
	beta, err := a.index.Beta(ctx, contract.Underlying, constituents, asOf)
	if err != nil {
		return err
	}

	// index units: one contract's delta scaled by correlation and contract
	// size, normalized by the index notional
	deltaContract := greeks.Delta * beta * h.Quantity * model.OptionMultiplier / indexValue
	pr.Delta += deltaContract
	pr.DeltaUSD += deltaContract * snap.Spot / indexValue

	gammaContract := beta * beta * (h.Quantity * model.OptionMultiplier) * (h.Quantity * model.OptionMultiplier) * greeks.Gamma / (indexValue * indexValue)
	pr.Gamma += gammaContract
	pr.GammaUSD += gammaContract * snap.Spot * snap.Spot / (indexValue * indexValue)

	// unweighted on purpose: vol moves are assumed perfectly correlated
	pr.Theta += greeks.Theta
	pr.Vega += greeks.Vega
	return nil
}

// Snapshot assembles the pricing inputs for a contract from the live feed.
func (a *Aggregator) Snapshot(ctx context.Context, contract model.ContractSpec, asOf model.Date) (model.MarketSnapshot, error) {
	spot, ok := a.feed.Spot(contract.Underlying)
	if !ok {
		return model.MarketSnapshot{}, errors.Wrap(ErrNoSpot, "snapshot").With("symbol", contract.Underlying)
	}
	closes, err := a.feed.DailyCloses(ctx, contract.Underlying, asOf, a.volSpan+1)
	if err != nil {
		return model.MarketSnapshot{}, errors.Wrap(err, "snapshot history").With("symbol", contract.Underlying)
	}

	snap := model.MarketSnapshot{
		Spot:    spot,
		HistVol: marketdata.AnnualizedVol(closes, a.volSpan),
		Date:    asOf,
	}
	if top, ok := a.feed.Top(contract.Key()); ok {
		snap.Bid = top.Bid
		snap.Ask = top.Ask
	}
	return snap, nil
}

// MarginalDelta is the un-normalized index delta a prospective option fill
// adds: per-contract delta scaled by correlation and contract size.
func MarginalDelta(greeks model.Greeks, beta, quantity float64) float64 {
	return greeks.Delta * beta * quantity * model.OptionMultiplier
}

// MarginalDeltaIfFilled is the per-unit directional delta a fill in the given
// direction would add to the portfolio, in index units.
func (a *Aggregator) MarginalDeltaIfFilled(ctx context.Context, contract model.ContractSpec, constituents []proxy.Constituent, asOf model.Date, direction enum.OrderDirection) (float64, error) {
	snap, err := a.Snapshot(ctx, contract, asOf)
	if err != nil {
		return 0, err
	}
	greeks, err := a.pricer.Greeks(contract, snap)
	if err != nil {
		return 0, err
	}
	beta, err := a.index.Beta(ctx, contract.Underlying, constituents, asOf)
	if err != nil {
		return 0, err
	}
	return direction.Sign() * greeks.Delta * beta, nil
}
