package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/marketdata"
	"main/internal/model"
	"main/internal/model/enum"
)

func contract(underlying model.Symbol, strike float64) model.ContractSpec {
	return model.ContractSpec{
		Underlying: underlying,
		Strike:     strike,
		Expiry:     model.Date{Year: 2026, Month: 12, Day: 18},
		Right:      enum.RightCall,
		Style:      enum.StyleAmerican,
	}
}

func asOf() model.Date {
	return model.Date{Year: 2026, Month: 6, Day: 18}
}

func TestConstituentsFoldOptionsIntoUnderlying(t *testing.T) {
	holdings := []model.Holding{
		{Security: model.EquitySecurity("AAA"), Quantity: 50},
		{Security: model.OptionSecurity(contract("AAA", 100)), Quantity: 2},
		{Security: model.OptionSecurity(contract("BBB", 40)), Quantity: -1},
	}

	cs := Constituents(holdings)
	require.Len(t, cs, 2)
	assert.Equal(t, Constituent{Symbol: "AAA", Quantity: 250}, cs[0],
		"50 shares plus 2 contracts of 100")
	assert.Equal(t, Constituent{Symbol: "BBB", Quantity: -100}, cs[1])
}

func TestIndexValueSkipsMissingSpots(t *testing.T) {
	feed := marketdata.NewMemoryFeed()
	feed.SetSpot("AAA", 10)

	x := New(feed, 5)
	cs := []Constituent{
		{Symbol: "AAA", Quantity: 100},
		{Symbol: "GONE", Quantity: 999},
	}
	assert.Equal(t, 1000.0, x.Value(cs))
}

func TestHistoryAppliesTodaysWeights(t *testing.T) {
	feed := marketdata.NewMemoryFeed()
	feed.SetHistory("AAA", []float64{1, 2, 3, 4, 5, 6})
	feed.SetHistory("BBB", []float64{10, 10, 10, 10, 10, 10})

	x := New(feed, 5)
	cs := []Constituent{
		{Symbol: "AAA", Quantity: 2},
		{Symbol: "BBB", Quantity: 1},
	}
	series, err := x.History(context.Background(), cs, asOf())
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 14, 16, 18, 20, 22}, series)
}

func TestHistoryRejectsMisalignedSeries(t *testing.T) {
	feed := marketdata.NewMemoryFeed()
	feed.SetHistory("AAA", []float64{1, 2, 3, 4, 5, 6})
	feed.SetHistory("SHORT", []float64{5, 6})

	x := New(feed, 5)
	cs := []Constituent{
		{Symbol: "AAA", Quantity: 1},
		{Symbol: "SHORT", Quantity: 1},
	}
	_, err := x.History(context.Background(), cs, asOf())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeriesMisaligned)
}

func TestBetaOfSelfTrackingIndexIsOne(t *testing.T) {
	feed := marketdata.NewMemoryFeed()
	closes := []float64{100, 102, 101, 104, 103, 106, 108, 107, 110, 112, 111}
	feed.SetHistory("AAA", closes)

	x := New(feed, 10)
	cs := []Constituent{{Symbol: "AAA", Quantity: 300}}

	beta, err := x.Beta(context.Background(), "AAA", cs, asOf())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, beta, 1e-9, "a single-name index correlates perfectly with itself")
}

func TestBetaFlatIndexFallsBackToOne(t *testing.T) {
	feed := marketdata.NewMemoryFeed()
	feed.SetHistory("AAA", []float64{100, 101, 102, 103, 104, 105})

	x := New(feed, 5)
	beta, err := x.Beta(context.Background(), "AAA", nil, asOf())
	require.NoError(t, err)
	assert.Equal(t, 1.0, beta)
}

func TestBetaMemoizedPerDay(t *testing.T) {
	feed := marketdata.NewMemoryFeed()
	closes := []float64{100, 102, 101, 104, 103, 106}
	feed.SetHistory("AAA", closes)

	x := New(feed, 5)
	cs := []Constituent{{Symbol: "AAA", Quantity: 100}}

	first, err := x.Beta(context.Background(), "AAA", cs, asOf())
	require.NoError(t, err)

	// mutating the feed must not change the answer for the same day
	feed.SetHistory("AAA", []float64{0, 0, 0, 0, 0, 0})
	second, err := x.Beta(context.Background(), "AAA", cs, asOf())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// a new day recomputes against the zeroed series and takes the fallback
	third, err := x.Beta(context.Background(), "AAA", cs, asOf().AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, third)
}

func TestBetaAntiCorrelatedName(t *testing.T) {
	feed := marketdata.NewMemoryFeed()
	feed.SetHistory("UP", []float64{100, 102, 101, 104, 103, 106})
	feed.SetHistory("DOWN", []float64{100, 98, 99, 96, 97, 94})

	x := New(feed, 5)
	cs := []Constituent{{Symbol: "UP", Quantity: 100}}

	beta, err := x.Beta(context.Background(), "DOWN", cs, asOf())
	require.NoError(t, err)
	assert.Less(t, beta, 0.0, "a falling name against a rising index is negatively correlated")
}
