// Package quote turns reviewed signals into resting limit orders and keeps
// them priced against the portfolio's risk as the market moves.
package quote

import (
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
)

var (
	ErrUnknownTicket     = errors.New("ticket not found")
	ErrInvalidTransition = errors.New("invalid ticket state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
)

// TicketState tracks the lifecycle of a working order.
type TicketState uint16

const (
	TicketStateUnknown TicketState = iota
	TicketStateProposed
	TicketStateSubmitted
	TicketStateUpdateSubmitted
	TicketStatePartFilled
	TicketStateFilled
	TicketStateCancelled
	TicketStateInvalid
)

func (s TicketState) String() string {
	switch s {
	case TicketStateProposed:
		return "proposed"
	case TicketStateSubmitted:
		return "submitted"
	case TicketStateUpdateSubmitted:
		return "update_submitted"
	case TicketStatePartFilled:
		return "part_filled"
	case TicketStateFilled:
		return "filled"
	case TicketStateCancelled:
		return "cancelled"
	case TicketStateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s TicketState) IsTerminal() bool {
	switch s {
	case TicketStateFilled, TicketStateCancelled, TicketStateInvalid:
		return true
	default:
		return false
	}
}

// IsLive reports whether the ticket is working at the venue.
func (s TicketState) IsLive() bool {
	switch s {
	case TicketStateSubmitted, TicketStateUpdateSubmitted, TicketStatePartFilled:
		return true
	default:
		return false
	}
}

// UpdateRequest is one pending amendment of a working ticket. Only the newest
// request matters for deduplication; the venue processes them in order.
type UpdateRequest struct {
	LimitPrice float64
	Quantity   float64
	Tag        string
}

// Ticket is the strategy's view of one order.
type Ticket struct {
	ID             uint64
	Symbol         model.Symbol
	Direction      enum.OrderDirection
	Quantity       float64
	LimitPrice     float64
	FilledQuantity float64
	State          TicketState
	Tag            string
	UpdateRequests []UpdateRequest
}

// Leaves returns the unfilled remainder.
func (t *Ticket) Leaves() float64 {
	leaves := t.Quantity - t.FilledQuantity
	if t.Quantity < 0 {
		if leaves > 0 {
			return 0
		}
		return leaves
	}
	if leaves < 0 {
		return 0
	}
	return leaves
}

// Sign returns the direction sign of the ticket quantity.
func (t *Ticket) Sign() float64 {
	if t.Quantity < 0 {
		return -1
	}
	if t.Quantity > 0 {
		return 1
	}
	return 0
}

// LastUpdateRequest returns the newest pending amendment.
func (t *Ticket) LastUpdateRequest() (UpdateRequest, bool) {
	if len(t.UpdateRequests) == 0 {
		return UpdateRequest{}, false
	}
	return t.UpdateRequests[len(t.UpdateRequests)-1], true
}
