package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/proxy"
	"main/internal/risk"
	"main/internal/signal"
)

// Router carries orders to the venue. Implementations must be synchronous;
// acknowledgments and fills come back through order events.
type Router interface {
	SubmitLimit(t *Ticket) error
	SubmitMarket(symbol model.Symbol, quantity float64, tag string) error
	Amend(t *Ticket, req UpdateRequest) error
	Cancel(t *Ticket) error
}

// TheoPricer supplies per-side theoretical contract prices. Satisfied by the
// pricing engine.
type TheoPricer interface {
	Price(c model.ContractSpec, snap model.MarketSnapshot) model.TheoQuote
}

// Config carries the quoting engine knobs.
type Config struct {
	Window Window
	Ticks  TickTable
	// EquityIncrements shifts equity quotes this many ticks inside the
	// touch. Zero joins the touch.
	EquityIncrements float64
	// Live enables venue-size guards and market-order escalation that only
	// make sense against a real book.
	Live bool
	// Metrics is optional; a nil receiver drops the counts.
	Metrics *obs.Metrics
}

// Engine owns the ticket book and the quoting decisions around it.
type Engine struct {
	cfg       Config
	book      *Book
	router    Router
	agg       *risk.Aggregator
	theo      TheoPricer
	contracts map[model.Symbol]model.ContractSpec

	lastSweep time.Time
}

// NewEngine wires the quoting engine.
func NewEngine(cfg Config, router Router, agg *risk.Aggregator, theo TheoPricer) *Engine {
	return &Engine{
		cfg:       cfg,
		book:      NewBook(),
		router:    router,
		agg:       agg,
		theo:      theo,
		contracts: make(map[model.Symbol]model.ContractSpec),
	}
}

// Book exposes the ticket registry for read access.
func (e *Engine) Book() *Book {
	return e.book
}

// Contract resolves a ticket symbol back to its contract terms.
func (e *Engine) Contract(symbol model.Symbol) (model.ContractSpec, bool) {
	c, ok := e.contracts[symbol]
	return c, ok
}

// HandleSignals turns reviewed signals into one-lot limit tickets. A signal
// is skipped when outside the quoting window, when a same-direction ticket is
// already working, or when no limit price of at least one tick can be formed.
func (e *Engine) HandleSignals(ctx context.Context, signals []signal.Signal, pf risk.PortfolioRisk, holdings []model.Holding, now time.Time, asOf model.Date) {
	if !e.cfg.Window.Contains(now) {
		logs.Debug("signals outside quoting window, nothing submitted")
		return
	}

	constituents := proxy.Constituents(holdings)
	for _, s := range signals {
		key := s.Contract.Key()
		quantity := s.Direction.Sign()
		if e.book.HasLiveSameSign(key, quantity) {
			logs.Debugf("skip %s %s: same-direction ticket already working", key, s.Direction)
			continue
		}

		tick := e.cfg.Ticks.Size(string(s.Contract.Underlying))
		price, ok := e.limitPrice(ctx, s.Contract, s.Direction, constituents, asOf, tick)
		if !ok {
			logs.Debugf("skip %s %s: no limit price", key, s.Direction)
			continue
		}
		if price < tick {
			// sub-tick quote would be rejected or fill at noise prices
			continue
		}

		e.contracts[key] = s.Contract
		tag := fmt.Sprintf("%s %s 1 @ %.4f", s.Direction, key, price)
		t := e.book.Open(key, s.Direction, quantity, price, tag)
		if err := e.router.SubmitLimit(t); err != nil {
			logs.Errorf("submit %s: %v", key, err)
			if cancelErr := e.book.Cancel(t.ID); cancelErr != nil {
				logs.Errorf("cancel unsent ticket %d: %v", t.ID, cancelErr)
			}
			continue
		}
		if err := e.book.MarkSubmitted(t.ID); err != nil {
			logs.Errorf("mark submitted %d: %v", t.ID, err)
		}
		e.cfg.Metrics.IncTicketSubmitted()
	}
}

// RepriceContract moves working contract tickets toward the current
// risk-adjusted price. An amendment equal to the newest pending one is
// dropped; an ideal price below one tick pulls the ticket instead.
func (e *Engine) RepriceContract(ctx context.Context, symbol model.Symbol, holdings []model.Holding, asOf model.Date) {
	contract, ok := e.contracts[symbol]
	if !ok {
		return
	}
	constituents := proxy.Constituents(holdings)
	tick := e.cfg.Ticks.Size(string(contract.Underlying))

	for _, t := range e.book.Live(symbol) {
		ideal, ok := e.limitPrice(ctx, contract, t.Direction, constituents, asOf, tick)
		if !ok {
			logs.Debugf("reprice %s: no limit price, leaving ticket %d", symbol, t.ID)
			continue
		}
		if req, ok := t.LastUpdateRequest(); ok && req.LimitPrice == ideal {
			continue
		}
		if ideal == t.LimitPrice {
			continue
		}
		if ideal < tick {
			e.cancel(t, "ideal price below tick")
			continue
		}
		req := UpdateRequest{
			LimitPrice: ideal,
			Tag:        fmt.Sprintf("move %.4f -> %.4f", t.LimitPrice, ideal),
		}
		if err := e.book.RequestUpdate(t.ID, req); err != nil {
			logs.Errorf("queue amend %d: %v", t.ID, err)
			continue
		}
		if err := e.router.Amend(t, req); err != nil {
			logs.Errorf("amend %d: %v", t.ID, err)
			continue
		}
		e.cfg.Metrics.IncReprice()
	}
}

// RepriceEquity follows the touch on working equity tickets. In live mode a
// ticket that already chased the market once escalates to a market order, and
// the touch is only joined when the displayed size is not the ticket's own.
func (e *Engine) RepriceEquity(symbol model.Symbol, bid, ask, bidSize, askSize float64) {
	tick := e.cfg.Ticks.Size(string(symbol))
	for _, t := range e.book.Live(symbol) {
		if e.cfg.Live && len(t.UpdateRequests) > 1 {
			// chasing the market; pay the spread instead of amending again
			e.cancel(t, "chasing, escalate to market")
			tag := fmt.Sprintf("market %s %+.0f", symbol, t.Quantity)
			if err := e.router.SubmitMarket(symbol, t.Quantity, tag); err != nil {
				logs.Errorf("market order %s: %v", symbol, err)
			}
			continue
		}

		var ideal float64
		switch {
		case t.Quantity > 0 && (!e.cfg.Live || bidSize > absFloat(t.Quantity)):
			ideal = bid + e.cfg.EquityIncrements*tick
		case t.Quantity < 0 && (!e.cfg.Live || askSize > absFloat(t.Quantity)):
			ideal = ask - e.cfg.EquityIncrements*tick
		default:
			// the displayed size is our own resting order
			continue
		}
		ideal = RoundTick(ideal, tick)
		if ideal <= 0 || ideal == RoundTick(t.LimitPrice, tick) {
			continue
		}
		if req, ok := t.LastUpdateRequest(); ok && req.LimitPrice == ideal {
			continue
		}
		req := UpdateRequest{
			LimitPrice: ideal,
			Tag:        fmt.Sprintf("follow touch %.2f -> %.2f", t.LimitPrice, ideal),
		}
		if err := e.book.RequestUpdate(t.ID, req); err != nil {
			logs.Errorf("queue amend %d: %v", t.ID, err)
			continue
		}
		if err := e.router.Amend(t, req); err != nil {
			logs.Errorf("amend %d: %v", t.ID, err)
			continue
		}
		e.cfg.Metrics.IncReprice()
	}
}

// SweepRiskIncreasing cancels every working contract ticket whose fill would
// push portfolio delta further from flat. Runs at most once per event time;
// fills and mid moves in the same instant share one sweep.
func (e *Engine) SweepRiskIncreasing(ctx context.Context, pf risk.PortfolioRisk, holdings []model.Holding, now time.Time, asOf model.Date) {
	if now.Equal(e.lastSweep) {
		return
	}
	e.lastSweep = now

	constituents := proxy.Constituents(holdings)
	for _, t := range e.book.AllLive() {
		contract, ok := e.contracts[t.Symbol]
		if !ok {
			continue
		}
		marginal, err := e.agg.MarginalDeltaIfFilled(ctx, contract, constituents, asOf, t.Direction)
		if err != nil {
			logs.Warnf("sweep: keep %s: %v", t.Symbol, err)
			continue
		}
		if marginal*pf.Delta > 0 {
			e.cancel(t, "fill would increase delta risk")
		}
	}
}

// CancelAll pulls every working ticket, typically at the window stop.
func (e *Engine) CancelAll(reason string) {
	for _, t := range e.book.AllLive() {
		e.cancel(t, reason)
	}
}

// OnOrderEvent applies a venue event to the book and prunes finished tickets.
func (e *Engine) OnOrderEvent(ev OrderEvent) error {
	var err error
	switch ev.Status {
	case OrderEventFill, OrderEventPartialFill:
		err = e.book.ApplyFill(ev.TicketID, ev.FillQuantity)
	case OrderEventCancelled:
		err = e.book.Cancel(ev.TicketID)
	case OrderEventInvalid:
		err = e.book.MarkInvalid(ev.TicketID)
	case OrderEventSubmitted:
		err = e.book.MarkSubmitted(ev.TicketID)
	}
	e.book.PruneTerminal()
	return err
}

func (e *Engine) limitPrice(ctx context.Context, contract model.ContractSpec, direction enum.OrderDirection, constituents []proxy.Constituent, asOf model.Date, tick float64) (float64, bool) {
	snap, err := e.agg.Snapshot(ctx, contract, asOf)
	if err != nil {
		logs.Debugf("limit price %s: %v", contract.Key(), err)
		return 0, false
	}
	theo := e.theo.Price(contract, snap)

	// quote on the theoretical side of the direction, never crossing toward
	// the counterparty: the edge is the whole point
	var price float64
	switch direction {
	case enum.DirectionBuy:
		if !theo.HasBid {
			return 0, false
		}
		price = theo.Bid
	case enum.DirectionSell:
		if !theo.HasAsk {
			return 0, false
		}
		price = theo.Ask
	default:
		return 0, false
	}
	return RoundTick(price, tick), true
}

func (e *Engine) cancel(t *Ticket, reason string) {
	logs.Infof("cancel ticket %d %s: %s", t.ID, t.Symbol, reason)
	if err := e.router.Cancel(t); err != nil {
		logs.Errorf("cancel %d: %v", t.ID, err)
		return
	}
	if err := e.book.Cancel(t.ID); err != nil {
		logs.Errorf("cancel book %d: %v", t.ID, err)
		return
	}
	e.cfg.Metrics.IncCancel()
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
