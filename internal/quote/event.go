package quote

import (
	"time"

	"main/internal/model"
)

// OrderEventStatus is the venue's report on a working ticket.
type OrderEventStatus uint8

const (
	OrderEventUnknown OrderEventStatus = iota
	OrderEventSubmitted
	OrderEventPartialFill
	OrderEventFill
	OrderEventCancelled
	OrderEventInvalid
)

func (s OrderEventStatus) String() string {
	switch s {
	case OrderEventSubmitted:
		return "submitted"
	case OrderEventPartialFill:
		return "partial_fill"
	case OrderEventFill:
		return "fill"
	case OrderEventCancelled:
		return "cancelled"
	case OrderEventInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// IsFill reports whether the event moved inventory.
func (s OrderEventStatus) IsFill() bool {
	return s == OrderEventFill || s == OrderEventPartialFill
}

// OrderEvent is one venue report applied to the ticket book.
type OrderEvent struct {
	TicketID     uint64
	Symbol       model.Symbol
	Status       OrderEventStatus
	FillQuantity float64
	FillPrice    float64
	Time         time.Time
}
