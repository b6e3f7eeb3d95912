// Package obs collects lightweight counters and latency stats for the
// strategy loop. Everything is atomic; no external metrics backend.
package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const maxEventType = int(schema.EventConfigUpdate)

// Metrics aggregates the strategy's operational counters.
type Metrics struct {
	eventCounts [maxEventType + 1]uint64

	signalsGenerated uint64
	signalsFiltered  uint64
	ticketsSubmitted uint64
	reprices         uint64
	cancels          uint64
	snapshotWrites   uint64
	queueDrops       uint64

	riskEvalLatency LatencyStats
	pricingLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	SignalsGenerated uint64
	SignalsFiltered  uint64
	TicketsSubmitted uint64
	Reprices         uint64
	Cancels          uint64
	SnapshotWrites   uint64
	QueueDrops       uint64
	RiskEvalLatency  LatencySnapshot
	PricingLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts one consumed bus event.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// AddSignals counts generated and surviving signals of one evaluation.
func (m *Metrics) AddSignals(generated, filtered int) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.signalsGenerated, uint64(generated))
	atomic.AddUint64(&m.signalsFiltered, uint64(filtered))
}

// IncTicketSubmitted counts a new limit ticket.
func (m *Metrics) IncTicketSubmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticketsSubmitted, 1)
}

// IncReprice counts one amendment sent.
func (m *Metrics) IncReprice() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reprices, 1)
}

// IncCancel counts one cancel sent.
func (m *Metrics) IncCancel() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.cancels, 1)
}

// IncSnapshotWrite counts one end-of-day snapshot write.
func (m *Metrics) IncSnapshotWrite() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.snapshotWrites, 1)
}

// IncQueueDrop records a dropped bus event.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// ObserveRiskEval measures one portfolio risk aggregation.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// ObservePricing measures one pricing pass over a contract.
func (m *Metrics) ObservePricing(d time.Duration) {
	if m == nil {
		return
	}
	m.pricingLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		SignalsGenerated: atomic.LoadUint64(&m.signalsGenerated),
		SignalsFiltered:  atomic.LoadUint64(&m.signalsFiltered),
		TicketsSubmitted: atomic.LoadUint64(&m.ticketsSubmitted),
		Reprices:         atomic.LoadUint64(&m.reprices),
		Cancels:          atomic.LoadUint64(&m.cancels),
		SnapshotWrites:   atomic.LoadUint64(&m.snapshotWrites),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
		PricingLatency:   m.pricingLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
