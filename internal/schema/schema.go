// Package schema defines the event envelope passed through the in-process
// bus between the market data side and the strategy loop.
package schema

import "sync/atomic"

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventType categorizes bus events.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketUpdate
	EventOrderStatus
	EventSignals
	EventHighRisk
	EventEndOfDay
	EventConfigUpdate
)

func (t EventType) String() string {
	switch t {
	case EventMarketUpdate:
		return "market_update"
	case EventOrderStatus:
		return "order_status"
	case EventSignals:
		return "signals"
	case EventHighRisk:
		return "high_risk"
	case EventEndOfDay:
		return "end_of_day"
	case EventConfigUpdate:
		return "config_update"
	default:
		return "unknown"
	}
}

// EventHeader is the metadata attached to every event.
type EventHeader struct {
	Type    EventType
	Version uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// Sequencer issues monotonically increasing event sequence numbers.
type Sequencer struct {
	next uint64
}

// NewSequencer returns a sequencer starting after seed.
func NewSequencer(seed uint64) *Sequencer {
	return &Sequencer{next: seed}
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	if s == nil {
		return 0
	}
	return atomic.AddUint64(&s.next, 1)
}
