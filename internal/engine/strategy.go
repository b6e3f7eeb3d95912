// Package engine is the single-threaded strategy loop. It consumes bus
// events, keeps the market book and position state current, and drives the
// quoting engine from the portfolio risk picture.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

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

// Portfolio delta in index USD terms beyond which the book gets repriced
// defensively.
const (
	highRiskDriftUSD = 50
	highRiskAbsUSD   = 100
)

// MarketBook is the strategy's read/write view of current market state.
type MarketBook interface {
	marketdata.Feed
	SetSpot(symbol model.Symbol, price float64)
	SetTop(symbol model.Symbol, top marketdata.TopOfBook)
}

// ContractPricer is the pricing surface the loop needs: greeks for risk,
// per-side theoretical prices for quoting, and a daily roll.
type ContractPricer interface {
	risk.Pricer
	quote.TheoPricer
	Roll(asOf model.Date)
}

// Config carries the loop's knobs.
type Config struct {
	HedgeTicker model.Symbol
	// MinCorrelation gates the index hedge; below it the hedge instrument
	// tracks the book too loosely to be useful.
	MinCorrelation float64
	Window         quote.Window
	StartingCash   float64
}

// Deps are the wired collaborators.
type Deps struct {
	Feed      MarketBook
	Pricer    ContractPricer
	Index     *proxy.Index
	Risk      *risk.Aggregator
	Signals   *signal.Generator
	Filter    *signal.Filter
	Quoter    *quote.Engine
	Router    quote.Router
	Book      *state.Reducer
	Snapshots *state.SnapshotWriter
	Metrics   *obs.Metrics
}

// Strategy owns the event loop state. Not safe for concurrent use; exactly
// one goroutine consumes the bus.
type Strategy struct {
	cfg Config
	d   Deps
	seq *schema.Sequencer

	universe    map[model.Symbol]model.ContractSpec
	contracts   []model.ContractSpec
	sodMid      map[model.Symbol]float64
	day         model.Date
	closedFor   model.Date
	lastWritten model.Date

	baselineDeltaUSD float64
	hasBaseline      bool

	cash                decimal.Decimal
	startCash           decimal.Decimal
	simulatedMissedGain decimal.Decimal
}

// NewStrategy wires the loop.
func NewStrategy(cfg Config, d Deps) *Strategy {
	start := decimal.NewFromFloat(cfg.StartingCash)
	return &Strategy{
		cfg:       cfg,
		d:         d,
		seq:       schema.NewSequencer(0),
		universe:  make(map[model.Symbol]model.ContractSpec),
		sodMid:    make(map[model.Symbol]float64),
		cash:      start,
		startCash: start,
	}
}

// Handle dispatches one bus event.
func (s *Strategy) Handle(ctx context.Context, e bus.Event) {
	s.d.Metrics.ObserveEvent(e.Header)
	switch p := e.Payload.(type) {
	case schema.MarketUpdate:
		s.OnMarketUpdate(ctx, p)
	case quote.OrderEvent:
		s.OnOrderEvent(ctx, p)
	case schema.EndOfDay:
		s.OnEndOfDay(ctx, p.Date, p.Time)
	case risk.Limit:
		logs.Infof("position limit updated: %d positions, %.0f notional", p.MaxPositions, p.MaxNotional)
		s.d.Filter.SetLimit(p)
	default:
		logs.Warnf("unhandled event type %s", e.Header.Type)
	}
}

// OnMarketUpdate folds one quote change into the book and reacts: reprice
// what the move stales, re-evaluate risk, and propose new quotes.
func (s *Strategy) OnMarketUpdate(ctx context.Context, u schema.MarketUpdate) {
	asOf := model.DateOf(u.Time)
	s.rollDay(asOf)

	prev, _ := s.d.Feed.Top(u.Symbol)
	top := marketdata.TopOfBook{Bid: u.Bid, Ask: u.Ask}
	s.d.Feed.SetTop(u.Symbol, top)
	switch {
	case u.Last > 0:
		s.d.Feed.SetSpot(u.Symbol, u.Last)
	case top.Mid() > 0:
		s.d.Feed.SetSpot(u.Symbol, top.Mid())
	}
	if u.Contract != nil {
		s.register(*u.Contract)
	}
	if _, ok := s.sodMid[u.Symbol]; !ok && top.Mid() > 0 {
		s.sodMid[u.Symbol] = top.Mid()
	}

	holdings := s.holdings()
	pf, err := s.evaluate(ctx, u.Time, holdings, asOf)
	if err != nil {
		logs.Errorf("risk evaluation: %v", err)
		return
	}

	if u.NewBidAsk(prev.Bid, prev.Ask) {
		switch u.Kind {
		case enum.SecurityOptionContract:
			s.d.Quoter.RepriceContract(ctx, u.Symbol, holdings, asOf)
		case enum.SecurityEquity:
			s.d.Quoter.SweepRiskIncreasing(ctx, pf, holdings, u.Time, asOf)
			s.d.Quoter.RepriceEquity(u.Symbol, u.Bid, u.Ask, u.BidSize, u.AskSize)
		}
	}

	if s.highRisk(pf) {
		s.d.Metrics.ObserveEvent(schema.NewHeader(schema.EventHighRisk, s.seq.Next(), u.Time.UnixNano(), time.Now().UnixNano()))
		logs.Warnf("high portfolio risk: deltaUSD %.2f, repricing working tickets", pf.DeltaUSD)
		s.repriceAllContracts(ctx, holdings, asOf)
	}

	raw := s.d.Signals.Generate(ctx, s.contracts, asOf)
	kept := s.d.Filter.ByRisk(ctx, raw, pf, holdings, s.d.Quoter.Book().HasLive, asOf)
	s.d.Metrics.AddSignals(len(raw), len(kept))
	if len(kept) > 0 {
		s.d.Metrics.ObserveEvent(schema.NewHeader(schema.EventSignals, s.seq.Next(), u.Time.UnixNano(), time.Now().UnixNano()))
		s.d.Quoter.HandleSignals(ctx, kept, pf, holdings, u.Time, asOf)
	}

	if s.cfg.Window.Closed(u.Time) && s.closedFor != asOf {
		s.closedFor = asOf
		s.d.Quoter.CancelAll("quoting window closed")
		s.hedgeWithIndex(ctx, holdings, asOf)
	}
}

// OnOrderEvent applies a venue event. Fills move the position book, then the
// whole quoting posture is refreshed against the new risk.
func (s *Strategy) OnOrderEvent(ctx context.Context, ev quote.OrderEvent) {
	// market orders carry no ticket, they only move the position book
	if ev.TicketID != 0 {
		if err := s.d.Quoter.OnOrderEvent(ev); err != nil {
			logs.Warnf("order event ticket %d: %v", ev.TicketID, err)
		}
	}
	if !ev.Status.IsFill() {
		return
	}

	sec := s.securityOf(ev.Symbol)
	s.d.Book.ApplyFill(state.Fill{
		Symbol:   ev.Symbol,
		Security: sec,
		Quantity: ev.FillQuantity,
		Price:    ev.FillPrice,
		Time:     ev.Time,
	})
	if mid, ok := s.sodMid[ev.Symbol]; ok {
		s.d.Book.SetStartOfDayMid(ev.Symbol, sec, mid)
	}
	var mult float64 = 1
	if sec.Kind == enum.SecurityOptionContract {
		mult = model.OptionMultiplier
	}
	s.cash = s.cash.Sub(decimal.NewFromFloat(ev.FillPrice * ev.FillQuantity * mult))

	asOf := model.DateOf(ev.Time)
	holdings := s.holdings()
	pf, err := s.evaluate(ctx, ev.Time, holdings, asOf)
	if err != nil {
		logs.Errorf("risk evaluation after fill: %v", err)
		return
	}
	s.d.Quoter.SweepRiskIncreasing(ctx, pf, holdings, ev.Time, asOf)
	s.repriceAllContracts(ctx, holdings, asOf)
	logs.Infof("risk after fill %s %+.0f: delta %.2f deltaUSD %.2f gammaUSD %.2f theta %.2f vega %.2f",
		ev.Symbol, ev.FillQuantity, pf.Delta, pf.DeltaUSD, pf.GammaUSD, pf.Theta, pf.Vega)
}

// OnEndOfDay writes the dated position snapshot. Safe to trigger repeatedly;
// only the first call per day lands on disk.
func (s *Strategy) OnEndOfDay(ctx context.Context, day model.Date, now time.Time) {
	holdings := s.holdings()
	positions := make([]state.Position, 0, len(holdings))
	marked := decimal.Zero
	unrealized := decimal.Zero
	for _, h := range holdings {
		symbol := h.Security.Symbol
		in := state.PositionInputs{}
		if top, ok := s.d.Feed.Top(symbol); ok {
			in.Bid, in.Ask = top.Bid, top.Ask
		}
		if spot, ok := s.d.Feed.Spot(symbol); ok {
			in.LastPrice = spot
		}
		if h.Security.Kind == enum.SecurityOptionContract {
			if und, ok := s.d.Feed.Spot(h.Security.Underlying); ok {
				in.UnderlyingMid = und
			}
			if sod, ok := s.sodMid[h.Security.Underlying]; ok {
				in.UnderlyingSodMid = sod
			} else {
				// underlying never ticked today, report no move
				in.UnderlyingSodMid = in.UnderlyingMid
			}
			if snap, err := s.d.Risk.Snapshot(ctx, h.Security.Contract, day); err == nil {
				if g, err := s.d.Pricer.Greeks(h.Security.Contract, snap); err == nil {
					in.Greeks = &g
				}
			}
		}
		p, ok := s.d.Book.Report(symbol, now, in)
		if !ok {
			continue
		}
		positions = append(positions, p)
		marked = marked.Add(decimal.NewFromFloat(p.MidPrice * p.Quantity * p.Multiplier))
		unrealized = unrealized.Add(decimal.NewFromFloat(p.PL))
	}

	account := state.AccountSummary{
		Cash:                   s.cash,
		TotalUnrealizedProfit:  unrealized,
		TotalPortfolioValue:    s.cash.Add(marked),
		SimulatedMissedGain:    s.simulatedMissedGain,
		EstimatedValuationGain: state.EstimatedValuationGain(positions),
	}
	account.TotalNetProfit = account.TotalPortfolioValue.Sub(s.startCash)
	account.EstimatedPortfolioValue = account.TotalPortfolioValue.
		Add(account.SimulatedMissedGain).
		Add(account.EstimatedValuationGain)

	if err := s.d.Snapshots.Write(state.DaySnapshot{Date: day, Account: account, Positions: positions}); err != nil {
		logs.Errorf("day snapshot %s: %v", day, err)
		return
	}
	if day != s.lastWritten {
		s.lastWritten = day
		s.d.Metrics.IncSnapshotWrite()
		logs.Infof("end of day %s: cash %s, portfolio value %s, estimated value %s, %d positions",
			day, account.Cash, account.TotalPortfolioValue, account.EstimatedPortfolioValue, len(positions))
	}
}

// Universe returns the option contracts seen so far.
func (s *Strategy) Universe() []model.ContractSpec {
	return s.contracts
}

func (s *Strategy) register(c model.ContractSpec) {
	key := c.Key()
	if _, ok := s.universe[key]; ok {
		return
	}
	s.universe[key] = c
	s.contracts = append(s.contracts, c)
}

func (s *Strategy) rollDay(asOf model.Date) {
	if asOf == s.day {
		return
	}
	s.day = asOf
	s.hasBaseline = false
	s.sodMid = make(map[model.Symbol]float64)
	s.d.Pricer.Roll(asOf)
}

func (s *Strategy) evaluate(ctx context.Context, now time.Time, holdings []model.Holding, asOf model.Date) (risk.PortfolioRisk, error) {
	start := time.Now()
	key := risk.EvalKey{EvalTime: now, LastOrderEvent: s.d.Book.LastEventTime()}
	pf, err := s.d.Risk.Evaluate(ctx, key, holdings, asOf)
	s.d.Metrics.ObserveRiskEval(time.Since(start))
	return pf, err
}

func (s *Strategy) holdings() []model.Holding {
	return s.d.Book.Holdings(func(symbol model.Symbol) float64 {
		if top, ok := s.d.Feed.Top(symbol); ok && top.Mid() > 0 {
			return top.Mid()
		}
		spot, _ := s.d.Feed.Spot(symbol)
		return spot
	})
}

func (s *Strategy) securityOf(symbol model.Symbol) model.Security {
	if c, ok := s.universe[symbol]; ok {
		return model.OptionSecurity(c)
	}
	return model.EquitySecurity(symbol)
}

// highRisk compares the latest index delta in USD against the day's first
// evaluation and an absolute bound.
func (s *Strategy) highRisk(pf risk.PortfolioRisk) bool {
	if !s.hasBaseline {
		s.baselineDeltaUSD = pf.DeltaUSD
		s.hasBaseline = true
	}
	drift := math.Abs(pf.DeltaUSD-s.baselineDeltaUSD) / 2
	return drift > highRiskDriftUSD || math.Abs(pf.DeltaUSD) > highRiskAbsUSD
}

func (s *Strategy) repriceAllContracts(ctx context.Context, holdings []model.Holding, asOf model.Date) {
	seen := make(map[model.Symbol]struct{})
	for _, t := range s.d.Quoter.Book().AllLive() {
		if _, ok := seen[t.Symbol]; ok {
			continue
		}
		seen[t.Symbol] = struct{}{}
		if _, ok := s.universe[t.Symbol]; !ok {
			continue
		}
		s.d.Quoter.RepriceContract(ctx, t.Symbol, holdings, asOf)
	}
}

// hedgeWithIndex offsets residual delta with the hedge instrument, sized by
// its correlation to the proxy index. Truncation toward zero means a hedge
// with beta above one places no order.
func (s *Strategy) hedgeWithIndex(ctx context.Context, holdings []model.Holding, asOf model.Date) {
	if s.cfg.HedgeTicker == "" {
		return
	}
	constituents := proxy.Constituents(holdings)
	beta, err := s.d.Index.Beta(ctx, s.cfg.HedgeTicker, constituents, asOf)
	if err != nil {
		logs.Warnf("index hedge %s: %v", s.cfg.HedgeTicker, err)
		return
	}
	if beta <= s.cfg.MinCorrelation {
		logs.Infof("index hedge %s: correlation %.3f too low, no suitable hedge", s.cfg.HedgeTicker, beta)
		return
	}
	quantity := math.Trunc(-1 / beta)
	if quantity == 0 {
		return
	}
	if err := s.d.Router.SubmitMarket(s.cfg.HedgeTicker, quantity, "index hedge"); err != nil {
		logs.Errorf("index hedge %s: %v", s.cfg.HedgeTicker, err)
	}
}
