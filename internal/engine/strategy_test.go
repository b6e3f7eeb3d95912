package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/marketdata"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/proxy"
	"main/internal/quote"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
	"main/internal/state"
)

type stubPricer struct {
	rolls  int
	quote  model.TheoQuote
	greeks model.Greeks
}

func (p *stubPricer) Greeks(model.ContractSpec, model.MarketSnapshot) (model.Greeks, error) {
	return p.greeks, nil
}

func (p *stubPricer) Price(model.ContractSpec, model.MarketSnapshot) model.TheoQuote {
	return p.quote
}

func (p *stubPricer) Roll(model.Date) { p.rolls++ }

type marketOrder struct {
	symbol   model.Symbol
	quantity float64
}

type recordingRouter struct {
	limits  []*quote.Ticket
	markets []marketOrder
	amends  int
	cancels int
}

func (r *recordingRouter) SubmitLimit(t *quote.Ticket) error {
	r.limits = append(r.limits, t)
	return nil
}

func (r *recordingRouter) SubmitMarket(symbol model.Symbol, quantity float64, _ string) error {
	r.markets = append(r.markets, marketOrder{symbol, quantity})
	return nil
}

func (r *recordingRouter) Amend(*quote.Ticket, quote.UpdateRequest) error {
	r.amends++
	return nil
}

func (r *recordingRouter) Cancel(*quote.Ticket) error {
	r.cancels++
	return nil
}

type fixture struct {
	strategy *Strategy
	feed     *marketdata.MemoryFeed
	router   *recordingRouter
	pricer   *stubPricer
	metrics  *obs.Metrics
	contract model.ContractSpec
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	feed := marketdata.NewMemoryFeed()
	feed.SetSpot("AAA", 100)
	feed.SetTop("AAA", marketdata.TopOfBook{Bid: 99.9, Ask: 100.1})
	feed.SetHistory("AAA", []float64{100, 101, 100, 102, 101, 103, 102, 104, 103, 105, 100})

	contract := model.ContractSpec{
		Underlying: "AAA",
		Strike:     100,
		Expiry:     model.Date{Year: 2026, Month: 12, Day: 18},
		Right:      enum.RightCall,
		Style:      enum.StyleAmerican,
	}
	feed.SetVolumes(contract.Key(), []float64{0, 0, 5, 0, 0})

	pricer := &stubPricer{
		quote:  model.TheoQuote{Bid: 1.232, Ask: 1.416, HasBid: true, HasAsk: true},
		greeks: model.Greeks{Delta: 0.4, Gamma: 0.02, Theta: 0.01, Vega: 0.1},
	}
	index := proxy.New(feed, 5)
	agg := risk.NewAggregator(index, feed, pricer, 5)
	router := &recordingRouter{}
	window, err := quote.NewWindow("09:30", "15:58")
	require.NoError(t, err)

	quoter := quote.NewEngine(quote.Config{Window: window, Ticks: quote.TickTable{}}, router, agg, pricer)
	metrics := obs.NewMetrics()
	dir := t.TempDir()

	strategy := NewStrategy(
		Config{
			HedgeTicker:  "AAA",
			Window:       window,
			StartingCash: 100_000,
		},
		Deps{
			Feed:      feed,
			Pricer:    pricer,
			Index:     index,
			Risk:      agg,
			Signals:   signal.NewGenerator(feed),
			Filter:    signal.NewFilter(agg, risk.DefaultLimit()),
			Quoter:    quoter,
			Router:    router,
			Book:      state.NewReducer(),
			Snapshots: state.NewSnapshotWriter(dir),
			Metrics:   metrics,
		},
	)
	return &fixture{
		strategy: strategy,
		feed:     feed,
		router:   router,
		pricer:   pricer,
		metrics:  metrics,
		contract: contract,
		dir:      dir,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 18, hour, minute, 0, 0, time.UTC)
}

func (f *fixture) equityUpdate(tm time.Time, bid, ask float64) schema.MarketUpdate {
	return schema.MarketUpdate{
		Symbol: "AAA",
		Kind:   enum.SecurityEquity,
		Bid:    bid,
		Ask:    ask,
		Last:   bid + (ask-bid)/2,
		Time:   tm,
	}
}

func (f *fixture) optionUpdate(tm time.Time, bid, ask float64) schema.MarketUpdate {
	return schema.MarketUpdate{
		Symbol:   f.contract.Key(),
		Kind:     enum.SecurityOptionContract,
		Contract: &f.contract,
		Bid:      bid,
		Ask:      ask,
		Time:     tm,
	}
}

func TestMarketUpdateQuotesBothSidesWhenFlat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(10, 0), 99.9, 100.1))
	require.Empty(t, f.router.limits, "no contracts known yet")

	f.strategy.OnMarketUpdate(ctx, f.optionUpdate(at(10, 1), 1.20, 1.30))
	require.Len(t, f.strategy.Universe(), 1)
	require.Len(t, f.router.limits, 2, "flat book quotes both sides")
	assert.InDelta(t, 1.23, f.router.limits[0].LimitPrice, 1e-9)
	assert.InDelta(t, 1.42, f.router.limits[1].LimitPrice, 1e-9)
	assert.Positive(t, f.metrics.Snapshot().SignalsGenerated)
}

func TestHandleDispatchesAndCountsEvents(t *testing.T) {
	f := newFixture(t)
	header := schema.NewHeader(schema.EventMarketUpdate, 1, at(10, 0).UnixNano(), at(10, 0).UnixNano())
	f.strategy.Handle(context.Background(), bus.Event{
		Header:  header,
		Payload: f.equityUpdate(at(10, 0), 99.9, 100.1),
	})
	counts := f.metrics.Snapshot().EventCounts
	assert.Equal(t, uint64(1), counts[schema.EventMarketUpdate])
}

func TestDayRollRefreshesPricer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(10, 0), 99.9, 100.1))
	assert.Equal(t, 1, f.pricer.rolls)

	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(10, 5), 99.8, 100.0))
	assert.Equal(t, 1, f.pricer.rolls, "same day keeps the pricer")

	next := time.Date(2026, 6, 19, 10, 0, 0, 0, time.UTC)
	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(next, 99.9, 100.1))
	assert.Equal(t, 2, f.pricer.rolls)
}

func TestFillFlowsIntoPositionsAndSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(10, 0), 99.9, 100.1))
	f.strategy.OnMarketUpdate(ctx, f.optionUpdate(at(10, 1), 1.20, 1.30))
	require.Len(t, f.router.limits, 2)

	buy := f.router.limits[0]
	f.strategy.OnOrderEvent(ctx, quote.OrderEvent{
		TicketID:     buy.ID,
		Symbol:       buy.Symbol,
		Status:       quote.OrderEventFill,
		FillQuantity: 1,
		FillPrice:    1.23,
		Time:         at(10, 2),
	})

	// the underlying drifts half a point off its opening mid of 100
	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(15, 0), 100.4, 100.6))

	day := model.Date{Year: 2026, Month: 6, Day: 18}
	f.strategy.OnEndOfDay(ctx, day, at(16, 0))

	snap, err := state.NewSnapshotWriter(f.dir).Read(day)
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	p := snap.Positions[0]
	assert.Equal(t, f.contract.Key(), p.Symbol)
	assert.Equal(t, 1.0, p.Quantity)
	assert.Equal(t, 100.0, p.Multiplier)
	assert.InDelta(t, 0.5, p.DayChangeUnd, 1e-9, "underlying move since the open, not its level")
	require.NotNil(t, p.Greeks)
	assert.InDelta(t, 0.4, p.Greeks.Delta, 1e-9)

	// one contract at 1.23: cash down 123
	assert.True(t, snap.Account.Cash.Equal(decimal.NewFromInt(100_000-123)), snap.Account.Cash.String())
}

func TestEndOfDayWritesOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := model.Date{Year: 2026, Month: 6, Day: 18}

	f.strategy.OnEndOfDay(ctx, day, at(16, 0))
	f.strategy.OnEndOfDay(ctx, day, at(16, 1))
	assert.Equal(t, uint64(1), f.metrics.Snapshot().SnapshotWrites)
}

func TestWindowCloseCancelsAndHedges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(10, 0), 99.9, 100.1))
	f.strategy.OnMarketUpdate(ctx, f.optionUpdate(at(10, 1), 1.20, 1.30))
	require.Len(t, f.router.limits, 2)

	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(16, 0), 99.9, 100.1))
	assert.Equal(t, 2, f.router.cancels, "working tickets pulled at the stop")
	// flat book falls back to correlation one: hedge one short
	require.Len(t, f.router.markets, 1)
	assert.Equal(t, marketOrder{"AAA", -1}, f.router.markets[0])

	f.strategy.OnMarketUpdate(ctx, f.equityUpdate(at(16, 1), 99.9, 100.1))
	assert.Len(t, f.router.markets, 1, "close handling runs once per day")
}

func TestHedgeSkippedOnLowCorrelation(t *testing.T) {
	f := newFixture(t)
	f.strategy.cfg.HedgeTicker = "HDG"
	f.strategy.cfg.MinCorrelation = 0.3
	f.feed.SetHistory("HDG", []float64{100, 98, 99, 96, 97, 94})
	f.feed.SetHistory("AAA", []float64{100, 102, 101, 104, 103, 106})
	f.feed.SetSpot("HDG", 94)

	holdings := []model.Holding{{Security: model.EquitySecurity("AAA"), Quantity: 1, Price: 100}}
	day := model.Date{Year: 2026, Month: 6, Day: 18}
	f.strategy.hedgeWithIndex(context.Background(), holdings, day)
	assert.Empty(t, f.router.markets, "anti-correlated hedge instrument is no hedge")
}

func TestHighRiskThresholds(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.strategy.highRisk(risk.PortfolioRisk{DeltaUSD: 40}), "first evaluation is the baseline")
	assert.False(t, f.strategy.highRisk(risk.PortfolioRisk{DeltaUSD: 90}))
	assert.True(t, f.strategy.highRisk(risk.PortfolioRisk{DeltaUSD: 150}), "drift and absolute bound exceeded")
	assert.True(t, f.strategy.highRisk(risk.PortfolioRisk{DeltaUSD: -101}), "absolute bound alone trips")

	f.strategy.rollDay(model.Date{Year: 2026, Month: 6, Day: 19})
	assert.False(t, f.strategy.highRisk(risk.PortfolioRisk{DeltaUSD: 90}), "new day resets the baseline")
}
