package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/marketdata"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/pricing"
	"main/internal/proxy"
	"main/internal/quote"
	"main/internal/risk"
	"main/internal/schema"
	internalsignal "main/internal/signal"
	"main/internal/state"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	tapePath := flag.String("tape", "", "Newline-delimited JSON market updates ('-' for stdin)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed: %v", err)
		os.Exit(1)
	}

	if loaded.Pyroscope != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "marketmaker",
			ServerAddress:   loaded.Pyroscope,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed: %v", err)
			os.Exit(1)
		}
		defer func() { _ = profiler.Stop() }()
	}

	if err := run(ctx, *configPath, *configReload, *tapePath, loaded); err != nil {
		logs.Errorf("run failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, configReload time.Duration, tapePath string, loaded ops.Loaded) error {
	feed, closeFeed, err := buildFeed(loaded)
	if err != nil {
		return err
	}
	defer closeFeed()

	queue := bus.NewQueue(loaded.QueueCapacity)
	metrics := obs.NewMetrics()
	seq := schema.NewSequencer(0)
	publish := func(t schema.EventType, payload any, ts time.Time) {
		header := schema.NewHeader(t, seq.Next(), ts.UnixNano(), time.Now().UnixNano())
		if err := queue.TryPublish(bus.Event{Header: header, Payload: payload}); err != nil {
			metrics.IncQueueDrop()
			logs.Warnf("publish %s: %v", t, err)
		}
	}

	if loaded.Live {
		logs.Warnf("live mode configured without a venue adapter, running paper execution")
	}
	router := &paperRouter{feed: feed, publish: publish}

	pricer := pricing.NewEngine(loaded.LatticeSteps, loaded.RiskFreeRate, loaded.DividendYield)
	index := proxy.New(feed, loaded.CorrelationWindow)
	agg := risk.NewAggregator(index, feed, pricer, loaded.VolatilitySpan)
	quoter := quote.NewEngine(quote.Config{
		Window:           loaded.Window,
		Ticks:            quote.TickTable{},
		EquityIncrements: loaded.EquityIncrements,
		Live:             loaded.Live,
		Metrics:          metrics,
	}, router, agg, pricer)

	strategy := engine.NewStrategy(
		engine.Config{
			HedgeTicker:    model.Symbol(loaded.HedgeTicker),
			MinCorrelation: loaded.MinCorrelation,
			Window:         loaded.Window,
			StartingCash:   loaded.StartingCash,
		},
		engine.Deps{
			Feed:      feed,
			Pricer:    pricer,
			Index:     index,
			Risk:      agg,
			Signals:   internalsignal.NewGenerator(feed),
			Filter:    internalsignal.NewFilter(agg, loaded.Risk),
			Quoter:    quoter,
			Router:    router,
			Book:      state.NewReducer(),
			Snapshots: state.NewSnapshotWriter(loaded.SnapshotDir),
			Metrics:   metrics,
		},
	)

	if configPath != "" && configReload > 0 {
		go watchConfig(ctx, configPath, configReload, func(l ops.Loaded) {
			publish(schema.EventConfigUpdate, l.Risk, time.Now())
		})
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-sys.Shutdown():
		}
		queue.Close()
	}()
	if tapePath != "" {
		go func() {
			if err := runTape(tapePath, publish); err != nil {
				logs.Errorf("tape: %v", err)
			}
			queue.Close()
		}()
	}

	logs.Infof("market maker started: %d tickers, hedge %s", len(loaded.Tickers), loaded.HedgeTicker)
	queue.Run(ctx, func(e bus.Event) { strategy.Handle(ctx, e) })
	logs.Infof("metrics: %+v", metrics.Snapshot())
	return nil
}

func buildFeed(loaded ops.Loaded) (engine.MarketBook, func(), error) {
	if loaded.Postgres == nil {
		return marketdata.NewMemoryFeed(), func() {}, nil
	}
	client, err := conn.New(*loaded.Postgres)
	if err != nil {
		return nil, nil, err
	}
	bars, err := marketdata.NewBarStore(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return marketdata.NewStoreFeed(bars), func() { _ = client.Close() }, nil
}

// runTape replays newline-delimited JSON market updates into the queue,
// closing each trading day with an end-of-day event.
func runTape(path string, publish func(schema.EventType, any, time.Time)) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var day model.Date
	var lastTime time.Time
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var u schema.MarketUpdate
		if err := json.Unmarshal(line, &u); err != nil {
			logs.Warnf("tape: skip bad record: %v", err)
			continue
		}
		if d := model.DateOf(u.Time); d != day {
			if day != (model.Date{}) {
				publish(schema.EventEndOfDay, schema.EndOfDay{Date: day, Time: lastTime}, lastTime)
			}
			day = d
		}
		lastTime = u.Time
		publish(schema.EventMarketUpdate, u, u.Time)
	}
	if day != (model.Date{}) {
		publish(schema.EventEndOfDay, schema.EndOfDay{Date: day, Time: lastTime}, lastTime)
	}
	return scanner.Err()
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				logs.Warnf("config reload failed: %v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s", path)
		}
	}
}

// paperRouter simulates execution against the recorded touch: resting orders
// are acknowledged, crossing orders fill at the far side.
type paperRouter struct {
	feed    engine.MarketBook
	publish func(schema.EventType, any, time.Time)
}

func (r *paperRouter) SubmitLimit(t *quote.Ticket) error {
	now := time.Now()
	r.publish(schema.EventOrderStatus, quote.OrderEvent{
		TicketID: t.ID,
		Symbol:   t.Symbol,
		Status:   quote.OrderEventSubmitted,
		Time:     now,
	}, now)

	top, ok := r.feed.Top(t.Symbol)
	if !ok {
		return nil
	}
	switch {
	case t.Quantity > 0 && top.Ask > 0 && t.LimitPrice >= top.Ask:
		r.fill(t, top.Ask, now)
	case t.Quantity < 0 && top.Bid > 0 && t.LimitPrice <= top.Bid:
		r.fill(t, top.Bid, now)
	}
	return nil
}

func (r *paperRouter) SubmitMarket(symbol model.Symbol, quantity float64, _ string) error {
	price, ok := r.feed.Spot(symbol)
	if top, topOK := r.feed.Top(symbol); topOK {
		if quantity > 0 && top.Ask > 0 {
			price, ok = top.Ask, true
		} else if quantity < 0 && top.Bid > 0 {
			price, ok = top.Bid, true
		}
	}
	if !ok {
		logs.Warnf("paper market order %s: no price", symbol)
		return nil
	}
	now := time.Now()
	r.publish(schema.EventOrderStatus, quote.OrderEvent{
		Symbol:       symbol,
		Status:       quote.OrderEventFill,
		FillQuantity: quantity,
		FillPrice:    price,
		Time:         now,
	}, now)
	return nil
}

func (r *paperRouter) Amend(t *quote.Ticket, _ quote.UpdateRequest) error {
	now := time.Now()
	r.publish(schema.EventOrderStatus, quote.OrderEvent{
		TicketID: t.ID,
		Symbol:   t.Symbol,
		Status:   quote.OrderEventSubmitted,
		Time:     now,
	}, now)
	return nil
}

func (r *paperRouter) Cancel(*quote.Ticket) error {
	// the quoting engine books the cancel itself
	return nil
}

func (r *paperRouter) fill(t *quote.Ticket, price float64, now time.Time) {
	r.publish(schema.EventOrderStatus, quote.OrderEvent{
		TicketID:     t.ID,
		Symbol:       t.Symbol,
		Status:       quote.OrderEventFill,
		FillQuantity: t.Quantity,
		FillPrice:    price,
		Time:         now,
	}, now)
}
