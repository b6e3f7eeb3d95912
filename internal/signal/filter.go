package signal

import (
	"context"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/proxy"
	"main/internal/risk"
)

// Filter applies portfolio awareness to raw signals: live tickets, position
// limits and the marginal delta a fill would add.
type Filter struct {
	agg   *risk.Aggregator
	limit risk.Limit
}

// NewFilter wires the risk filter.
func NewFilter(agg *risk.Aggregator, limit risk.Limit) *Filter {
	return &Filter{agg: agg, limit: limit}
}

// SetLimit swaps the position limit. Must be called from the event loop.
func (f *Filter) SetLimit(limit risk.Limit) {
	f.limit = limit
}

// ByRisk keeps only the signals the portfolio can absorb. hasLiveTicket
// reports whether any working ticket exists for the contract; the broker
// rejects working both sides of one contract at once.
func (f *Filter) ByRisk(
	ctx context.Context,
	signals []Signal,
	pf risk.PortfolioRisk,
	holdings []model.Holding,
	hasLiveTicket func(model.Symbol) bool,
	asOf model.Date,
) []Signal {
	breached := f.limit.Breached(holdings)
	constituents := proxy.Constituents(holdings)
	positions := positionBySymbol(holdings)

	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		key := s.Contract.Key()
		if hasLiveTicket(key) {
			continue
		}

		sign := s.Direction.Sign()
		if breached && positions[key]*sign > 0 {
			// at the limit only risk-reducing trades pass
			continue
		}

		marginal, err := f.agg.MarginalDeltaIfFilled(ctx, s.Contract, constituents, asOf, s.Direction)
		if err != nil {
			logs.Warnf("signal filter: drop %s %s: %v", key, s.Direction, err)
			continue
		}
		if marginal*pf.Delta > 0 {
			// the fill would push delta further from flat
			continue
		}

		s.Reviewed = true
		out = append(out, s)
	}
	return out
}

func positionBySymbol(holdings []model.Holding) map[model.Symbol]float64 {
	positions := make(map[model.Symbol]float64, len(holdings))
	for _, h := range holdings {
		positions[h.Security.Symbol] += h.Quantity
	}
	return positions
}
