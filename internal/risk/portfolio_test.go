package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/marketdata"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/proxy"
)

type stubPricer struct {
	greeks model.Greeks
	calls  int
}

func (s *stubPricer) Greeks(model.ContractSpec, model.MarketSnapshot) (model.Greeks, error) {
	s.calls++
	return s.greeks, nil
}

func aaaContract() model.ContractSpec {
	return model.ContractSpec{
		Underlying: "AAA",
		Strike:     10,
		Expiry:     model.Date{Year: 2026, Month: 12, Day: 18},
		Right:      enum.RightCall,
		Style:      enum.StyleAmerican,
	}
}

func evalDate() model.Date {
	return model.Date{Year: 2026, Month: 6, Day: 18}
}

func bookFixture() (*marketdata.MemoryFeed, []model.Holding) {
	feed := marketdata.NewMemoryFeed()
	feed.SetSpot("AAA", 10)
	feed.SetHistory("AAA", []float64{9.0, 9.2, 9.1, 9.5, 9.4, 9.8, 9.7, 10.1, 10.0, 10.2, 10.0})

	holdings := []model.Holding{
		{Security: model.EquitySecurity("AAA"), Quantity: 100, Price: 10},
		{Security: model.OptionSecurity(aaaContract()), Quantity: 2, Price: 1.5},
	}
	return feed, holdings
}

func TestEvaluateAggregatesIndexNormalizedGreeks(t *testing.T) {
	feed, holdings := bookFixture()
	pricer := &stubPricer{greeks: model.Greeks{Delta: 0.5, Gamma: 0.02, Theta: -3, Vega: 12}}
	agg := NewAggregator(proxy.New(feed, 5), feed, pricer, 5)

	key := EvalKey{EvalTime: time.Date(2026, 6, 18, 10, 0, 0, 0, time.UTC)}
	pr, err := agg.Evaluate(context.Background(), key, holdings, evalDate())
	require.NoError(t, err)

	// constituents: 100 shares + 2 contracts of 100 = 300 shares at spot 10
	assert.Equal(t, 3000.0, pr.IndexValue)

	deltaContract := 0.5 * 1 * 2 * 100 / 3000.0
	assert.InDelta(t, 100+deltaContract, pr.Delta, 1e-9)
	assert.InDelta(t, deltaContract*10/3000.0, pr.DeltaUSD, 1e-12)

	gammaContract := 200.0 * 200.0 * 0.02 / (3000.0 * 3000.0)
	assert.InDelta(t, gammaContract, pr.Gamma, 1e-12)
	assert.InDelta(t, gammaContract*100/(3000.0*3000.0), pr.GammaUSD, 1e-15)

	// theta and vega stay raw per-contract sums
	assert.Equal(t, -3.0, pr.Theta)
	assert.Equal(t, 12.0, pr.Vega)
	assert.Zero(t, pr.Rho)
}

func TestEvaluateMemoizesLatestKey(t *testing.T) {
	feed, holdings := bookFixture()
	pricer := &stubPricer{greeks: model.Greeks{Delta: 0.5}}
	agg := NewAggregator(proxy.New(feed, 5), feed, pricer, 5)

	key := EvalKey{EvalTime: time.Date(2026, 6, 18, 10, 0, 0, 0, time.UTC)}
	first, err := agg.Evaluate(context.Background(), key, holdings, evalDate())
	require.NoError(t, err)
	callsAfterFirst := pricer.calls

	second, err := agg.Evaluate(context.Background(), key, holdings, evalDate())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, pricer.calls, "same key must not reprice")

	// an order event moves the key and forces a fresh aggregation
	key.LastOrderEvent = key.EvalTime.Add(time.Second)
	_, err = agg.Evaluate(context.Background(), key, holdings, evalDate())
	require.NoError(t, err)
	assert.Greater(t, pricer.calls, callsAfterFirst)
}

func TestEvaluateSkipsUnresolvedHoldings(t *testing.T) {
	feed, holdings := bookFixture()
	// a contract on a name with history but no live spot must not sink the rest
	feed.SetHistory("GHOST", []float64{5, 5.1, 5.0, 5.2, 5.1, 5.3, 5.2, 5.4, 5.3, 5.5, 5.4})
	ghost := aaaContract()
	ghost.Underlying = "GHOST"
	holdings = append(holdings, model.Holding{
		Security: model.OptionSecurity(ghost),
		Quantity: 1,
	})

	pricer := &stubPricer{greeks: model.Greeks{Delta: 0.5, Theta: -3}}
	agg := NewAggregator(proxy.New(feed, 5), feed, pricer, 5)

	pr, err := agg.Evaluate(context.Background(), EvalKey{}, holdings, evalDate())
	require.NoError(t, err)
	assert.Equal(t, -3.0, pr.Theta, "only the resolvable contract contributes")
}

func TestMarginalDeltaScaling(t *testing.T) {
	g := model.Greeks{Delta: 0.4}
	assert.Equal(t, 200.0, MarginalDelta(g, 1, 5))
	assert.Equal(t, -200.0, MarginalDelta(g, 1, -5))
	assert.Equal(t, 100.0, MarginalDelta(g, 0.5, 5))
}

func TestLimitBreached(t *testing.T) {
	limit := Limit{MaxPositions: 2, MaxNotional: 10_000}

	flat := []model.Holding{{Security: model.EquitySecurity("AAA"), Quantity: 0, Price: 10}}
	assert.False(t, limit.Breached(flat), "zero-quantity rows do not count")

	two := []model.Holding{
		{Security: model.EquitySecurity("AAA"), Quantity: 10, Price: 10},
		{Security: model.EquitySecurity("BBB"), Quantity: -5, Price: 20},
	}
	assert.True(t, limit.Breached(two), "at the position count limit counts as breached")

	rich := []model.Holding{
		{Security: model.OptionSecurity(aaaContract()), Quantity: -1, Price: 101},
	}
	assert.True(t, limit.Breached(rich), "one short contract of 101 carries 10100 notional")

	small := []model.Holding{
		{Security: model.EquitySecurity("AAA"), Quantity: 10, Price: 10},
	}
	assert.False(t, limit.Breached(small))
}

func TestDefaultLimit(t *testing.T) {
	l := DefaultLimit()
	assert.Equal(t, 40, l.MaxPositions)
	assert.Equal(t, 50_000.0, l.MaxNotional)
}
