// Package signal proposes quoting opportunities and filters them against the
// portfolio's risk posture. Generation is deliberately unaware of the book;
// the filter is where portfolio state comes in.
package signal

import (
	"context"

	"github.com/yanun0323/logs"

	"main/internal/marketdata"
	"main/internal/memo"
	"main/internal/model"
	"main/internal/model/enum"
)

// liquidityWindow is the number of trailing trading days a contract must show
// volume in to be considered quotable.
const liquidityWindow = 5

// liquidityCacheSize bounds the per-day liquidity memo across the chain.
const liquidityCacheSize = 4096

type liquidityKey struct {
	Symbol model.Symbol
	Date   model.Date
}

// Signal is one directed quoting opportunity on an option contract.
type Signal struct {
	Contract  model.ContractSpec
	Direction enum.OrderDirection
	// Reviewed marks that the risk filter has passed the signal through.
	Reviewed bool
}

// Generator proposes both-sided signals for every quotable contract.
type Generator struct {
	feed      marketdata.Feed
	liquidity *memo.Cache[liquidityKey, bool]
}

// NewGenerator wires a generator over the market data feed.
func NewGenerator(feed marketdata.Feed) *Generator {
	return &Generator{
		feed:      feed,
		liquidity: memo.New[liquidityKey, bool](liquidityCacheSize),
	}
}

// Generate returns a buy and a sell signal for every contract that is two
// sided and has traded recently. The generator never looks at positions;
// over- and under-priced contracts are both interesting until risk says no.
func (g *Generator) Generate(ctx context.Context, contracts []model.ContractSpec, asOf model.Date) []Signal {
	var quotable []model.ContractSpec
	for _, c := range contracts {
		top, ok := g.feed.Top(c.Key())
		if !ok || top.Bid <= 0 || top.Ask <= 0 {
			continue
		}
		if !g.isLiquid(ctx, c, asOf) {
			continue
		}
		quotable = append(quotable, c)
	}

	signals := make([]Signal, 0, 2*len(quotable))
	for _, c := range quotable {
		signals = append(signals, Signal{Contract: c, Direction: enum.DirectionBuy})
	}
	for _, c := range quotable {
		signals = append(signals, Signal{Contract: c, Direction: enum.DirectionSell})
	}
	return signals
}

// isLiquid is memoized per (contract, day); daily volume never changes
// intraday in the bar store.
func (g *Generator) isLiquid(ctx context.Context, c model.ContractSpec, asOf model.Date) bool {
	key := liquidityKey{Symbol: c.Key(), Date: asOf}
	if v, ok := g.liquidity.Get(key); ok {
		return v
	}

	liquid := false
	volumes, err := g.feed.DailyVolumes(ctx, c.Key(), asOf, liquidityWindow)
	if err != nil {
		logs.Debugf("liquidity %s: %v", c.Key(), err)
		return false
	}
	for _, v := range volumes {
		if v > 0 {
			liquid = true
			break
		}
	}
	g.liquidity.Put(key, liquid)
	return liquid
}
