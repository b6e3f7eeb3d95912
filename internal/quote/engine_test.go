package quote

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
	"main/internal/risk"
	"main/internal/signal"
)

type marketOrder struct {
	Symbol   model.Symbol
	Quantity float64
}

type recordingRouter struct {
	limits  []*Ticket
	markets []marketOrder
	amends  []UpdateRequest
	cancels []uint64
}

func (r *recordingRouter) SubmitLimit(t *Ticket) error {
	r.limits = append(r.limits, t)
	return nil
}

func (r *recordingRouter) SubmitMarket(symbol model.Symbol, quantity float64, _ string) error {
	r.markets = append(r.markets, marketOrder{Symbol: symbol, Quantity: quantity})
	return nil
}

func (r *recordingRouter) Amend(_ *Ticket, req UpdateRequest) error {
	r.amends = append(r.amends, req)
	return nil
}

func (r *recordingRouter) Cancel(t *Ticket) error {
	r.cancels = append(r.cancels, t.ID)
	return nil
}

type theoStub struct {
	quote model.TheoQuote
}

func (s *theoStub) Price(model.ContractSpec, model.MarketSnapshot) model.TheoQuote {
	return s.quote
}

type deltaPricer struct {
	delta float64
}

func (p deltaPricer) Greeks(model.ContractSpec, model.MarketSnapshot) (model.Greeks, error) {
	return model.Greeks{Delta: p.delta}, nil
}

func testContract() model.ContractSpec {
	return model.ContractSpec{
		Underlying: "AAA",
		Strike:     100,
		Expiry:     model.Date{Year: 2026, Month: 12, Day: 18},
		Right:      enum.RightCall,
		Style:      enum.StyleAmerican,
	}
}

func asOf() model.Date {
	return model.Date{Year: 2026, Month: 6, Day: 18}
}

func inWindow() time.Time {
	return time.Date(2026, 6, 18, 11, 0, 0, 0, time.UTC)
}

type fixture struct {
	engine *Engine
	router *recordingRouter
	theo   *theoStub
	feed   *marketdata.MemoryFeed
}

func newFixture(t *testing.T, live bool) *fixture {
	t.Helper()
	feed := marketdata.NewMemoryFeed()
	feed.SetSpot("AAA", 100)
	feed.SetHistory("AAA", []float64{98, 99, 98.5, 100, 99.5, 101, 100.5, 102, 101.5, 103, 102.5})

	window, err := NewWindow("09:30", "15:58")
	require.NoError(t, err)

	router := &recordingRouter{}
	theo := &theoStub{quote: model.TheoQuote{Bid: 1.232, Ask: 1.416, HasBid: true, HasAsk: true}}
	agg := risk.NewAggregator(proxy.New(feed, 5), feed, deltaPricer{delta: 0.4}, 5)
	engine := NewEngine(Config{Window: window, Ticks: TickTable{}, Live: live}, router, agg, theo)
	return &fixture{engine: engine, router: router, theo: theo, feed: feed}
}

func holdings() []model.Holding {
	return []model.Holding{
		{Security: model.EquitySecurity("AAA"), Quantity: 300, Price: 100},
	}
}

func buySignal() signal.Signal {
	return signal.Signal{Contract: testContract(), Direction: enum.DirectionBuy, Reviewed: true}
}

func sellSignal() signal.Signal {
	return signal.Signal{Contract: testContract(), Direction: enum.DirectionSell, Reviewed: true}
}

func TestHandleSignalsQuotesTheoreticalSideUnaggressively(t *testing.T) {
	f := newFixture(t, false)
	pf := risk.PortfolioRisk{Delta: 600}

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal(), sellSignal()}, pf, holdings(), inWindow(), asOf())
	require.Len(t, f.router.limits, 2)

	buy, sell := f.router.limits[0], f.router.limits[1]
	assert.Equal(t, 1.0, buy.Quantity)
	assert.InDelta(t, 1.23, buy.LimitPrice, 1e-9, "buy rests at the theoretical bid, never crossing")
	assert.Equal(t, -1.0, sell.Quantity)
	assert.InDelta(t, 1.42, sell.LimitPrice, 1e-9, "sell rests at the theoretical ask")
	assert.True(t, buy.State.IsLive())
}

func TestHandleSignalsDedupesSameDirection(t *testing.T) {
	f := newFixture(t, false)

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	assert.Len(t, f.router.limits, 1, "one working ticket per contract and direction")

	f.engine.HandleSignals(context.Background(), []signal.Signal{sellSignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	assert.Len(t, f.router.limits, 2, "opposite direction is a new ticket")
}

func TestHandleSignalsAbandonsSubTickPrices(t *testing.T) {
	f := newFixture(t, false)
	f.theo.quote = model.TheoQuote{Bid: 0.004, Ask: 0.004, HasBid: true, HasAsk: true}

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	assert.Empty(t, f.router.limits)
	assert.False(t, f.engine.Book().HasLive(testContract().Key()))
}

func TestHandleSignalsSkipsUnavailableSide(t *testing.T) {
	f := newFixture(t, false)
	f.theo.quote = model.TheoQuote{Ask: 1.4, HasAsk: true}

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	assert.Empty(t, f.router.limits, "no theoretical bid means no buy quote")
}

func TestHandleSignalsSuppressedOutsideWindow(t *testing.T) {
	f := newFixture(t, false)
	afterClose := time.Date(2026, 6, 18, 16, 0, 0, 0, time.UTC)

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal()}, risk.PortfolioRisk{}, holdings(), afterClose, asOf())
	assert.Empty(t, f.router.limits)
}

func TestRepriceContractDedupesPendingAmendment(t *testing.T) {
	f := newFixture(t, false)
	key := testContract().Key()

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	require.Len(t, f.router.limits, 1)
	ticket := f.router.limits[0]

	f.theo.quote.Bid = 1.30
	f.engine.RepriceContract(context.Background(), key, holdings(), asOf())
	require.Len(t, f.router.amends, 1)
	assert.InDelta(t, 1.30, f.router.amends[0].LimitPrice, 1e-9)

	// same ideal while the amendment is pending: nothing new goes out
	f.engine.RepriceContract(context.Background(), key, holdings(), asOf())
	assert.Len(t, f.router.amends, 1)

	// venue confirms, price converges, repricing goes quiet
	require.NoError(t, f.engine.OnOrderEvent(OrderEvent{TicketID: ticket.ID, Status: OrderEventSubmitted}))
	f.engine.RepriceContract(context.Background(), key, holdings(), asOf())
	assert.Len(t, f.router.amends, 1)
	assert.InDelta(t, 1.30, ticket.LimitPrice, 1e-9)
}

func TestRepriceContractPullsSubTickIdeal(t *testing.T) {
	f := newFixture(t, false)
	key := testContract().Key()

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	require.Len(t, f.router.limits, 1)

	f.theo.quote.Bid = 0.003
	f.engine.RepriceContract(context.Background(), key, holdings(), asOf())
	assert.Len(t, f.router.cancels, 1)
	assert.Empty(t, f.router.amends)
}

func TestSweepCancelsRiskIncreasingTicketsOnce(t *testing.T) {
	f := newFixture(t, false)

	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal(), sellSignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	require.Len(t, f.router.limits, 2)

	// delta went long: the resting buy now increases risk, the sell reduces it
	pf := risk.PortfolioRisk{Delta: 600}
	now := inWindow()
	f.engine.SweepRiskIncreasing(context.Background(), pf, holdings(), now, asOf())
	require.Len(t, f.router.cancels, 1)
	cancelled, ok := f.engine.Book().Ticket(f.router.cancels[0])
	require.True(t, ok)
	assert.Equal(t, enum.DirectionBuy, cancelled.Direction)

	// a second event at the same instant shares the sweep
	f.engine.SweepRiskIncreasing(context.Background(), pf, holdings(), now, asOf())
	assert.Len(t, f.router.cancels, 1)

	f.engine.SweepRiskIncreasing(context.Background(), pf, holdings(), now.Add(time.Minute), asOf())
	assert.Len(t, f.router.cancels, 1, "the increasing ticket is already gone")
}

func TestCancelAllPullsEverything(t *testing.T) {
	f := newFixture(t, false)
	f.engine.HandleSignals(context.Background(), []signal.Signal{buySignal(), sellSignal()}, risk.PortfolioRisk{}, holdings(), inWindow(), asOf())
	require.Len(t, f.router.limits, 2)

	f.engine.CancelAll("window closed")
	assert.Len(t, f.router.cancels, 2)
	assert.Empty(t, f.engine.Book().AllLive())
}

func TestRepriceEquityFollowsTouch(t *testing.T) {
	f := newFixture(t, false)
	tk := f.engine.Book().Open("AAA", enum.DirectionBuy, 10, 99.50, "hedge")
	require.NoError(t, f.engine.Book().MarkSubmitted(tk.ID))

	f.engine.RepriceEquity("AAA", 99.60, 99.80, 100, 100)
	require.Len(t, f.router.amends, 1)
	assert.InDelta(t, 99.60, f.router.amends[0].LimitPrice, 1e-9)

	// identical touch again: pending amendment already carries the price
	f.engine.RepriceEquity("AAA", 99.60, 99.80, 100, 100)
	assert.Len(t, f.router.amends, 1)
}

func TestRepriceEquityOwnSizeGuardInLiveMode(t *testing.T) {
	f := newFixture(t, true)
	tk := f.engine.Book().Open("AAA", enum.DirectionBuy, 10, 99.50, "hedge")
	require.NoError(t, f.engine.Book().MarkSubmitted(tk.ID))

	// displayed size equals our own order: joining would outbid ourselves
	f.engine.RepriceEquity("AAA", 99.60, 99.80, 10, 100)
	assert.Empty(t, f.router.amends)
}

func TestRepriceEquityEscalatesToMarketWhenChasing(t *testing.T) {
	f := newFixture(t, true)
	tk := f.engine.Book().Open("AAA", enum.DirectionBuy, 10, 99.50, "hedge")
	require.NoError(t, f.engine.Book().MarkSubmitted(tk.ID))

	f.engine.RepriceEquity("AAA", 99.60, 99.80, 100, 100)
	f.engine.RepriceEquity("AAA", 99.65, 99.85, 100, 100)
	require.Len(t, f.router.amends, 2)

	// third move: two amendments already chased the market, pay the spread
	f.engine.RepriceEquity("AAA", 99.70, 99.90, 100, 100)
	require.Len(t, f.router.markets, 1)
	assert.Equal(t, marketOrder{Symbol: "AAA", Quantity: 10}, f.router.markets[0])
	assert.Len(t, f.router.cancels, 1)
	assert.Len(t, f.router.amends, 2, "no further amendment once escalated")
}
