package quote

import (
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
)

// Book is the registry of tickets keyed by symbol. Transitions go through the
// book so the per-symbol index and the per-ticket state can never diverge.
type Book struct {
	nextID  uint64
	tickets map[uint64]*Ticket
	bySym   map[model.Symbol][]uint64
}

// NewBook creates an empty ticket book.
func NewBook() *Book {
	return &Book{
		nextID:  1,
		tickets: make(map[uint64]*Ticket),
		bySym:   make(map[model.Symbol][]uint64),
	}
}

// Open registers a new proposed ticket and returns it.
func (b *Book) Open(symbol model.Symbol, direction enum.OrderDirection, quantity, limitPrice float64, tag string) *Ticket {
	t := &Ticket{
		ID:         b.nextID,
		Symbol:     symbol,
		Direction:  direction,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		State:      TicketStateProposed,
		Tag:        tag,
	}
	b.nextID++
	b.tickets[t.ID] = t
	b.bySym[symbol] = append(b.bySym[symbol], t.ID)
	return t
}

// Ticket returns the ticket by id.
func (b *Book) Ticket(id uint64) (*Ticket, bool) {
	t, ok := b.tickets[id]
	return t, ok
}

// Live returns the working tickets for a symbol.
func (b *Book) Live(symbol model.Symbol) []*Ticket {
	var out []*Ticket
	for _, id := range b.bySym[symbol] {
		if t := b.tickets[id]; t != nil && t.State.IsLive() {
			out = append(out, t)
		}
	}
	return out
}

// AllLive returns every working ticket in the book.
func (b *Book) AllLive() []*Ticket {
	var out []*Ticket
	for _, t := range b.tickets {
		if t.State.IsLive() {
			out = append(out, t)
		}
	}
	return out
}

// HasLive reports whether any working ticket exists for the symbol.
func (b *Book) HasLive(symbol model.Symbol) bool {
	return len(b.Live(symbol)) > 0
}

// HasLiveSameSign reports whether a working ticket already leans the same way.
// The venue rejects working both directions of one contract, and doubling one
// direction is a repricing concern, not a new order.
func (b *Book) HasLiveSameSign(symbol model.Symbol, sign float64) bool {
	for _, t := range b.Live(symbol) {
		if t.Sign()*sign >= 0 {
			return true
		}
	}
	return false
}

// MarkSubmitted moves a proposed or amended ticket to submitted.
func (b *Book) MarkSubmitted(id uint64) error {
	t, ok := b.tickets[id]
	if !ok {
		return errors.Wrap(ErrUnknownTicket, "book").With("id", id)
	}
	switch t.State {
	case TicketStateProposed, TicketStateUpdateSubmitted, TicketStatePartFilled:
		if t.State == TicketStateUpdateSubmitted {
			if req, ok := t.LastUpdateRequest(); ok {
				t.LimitPrice = req.LimitPrice
				if req.Quantity != 0 {
					t.Quantity = req.Quantity
				}
			}
			t.UpdateRequests = nil
		}
		if t.State != TicketStatePartFilled {
			t.State = TicketStateSubmitted
		}
		return nil
	default:
		return errors.Wrap(ErrInvalidTransition, "book").With("id", id).With("state", t.State)
	}
}

// RequestUpdate queues an amendment on a working ticket.
func (b *Book) RequestUpdate(id uint64, req UpdateRequest) error {
	t, ok := b.tickets[id]
	if !ok {
		return errors.Wrap(ErrUnknownTicket, "book").With("id", id)
	}
	if !t.State.IsLive() {
		return errors.Wrap(ErrInvalidTransition, "book").With("id", id).With("state", t.State)
	}
	t.UpdateRequests = append(t.UpdateRequests, req)
	if t.State == TicketStateSubmitted {
		t.State = TicketStateUpdateSubmitted
	}
	return nil
}

// ApplyFill books a fill on a working ticket.
func (b *Book) ApplyFill(id uint64, quantity float64) error {
	t, ok := b.tickets[id]
	if !ok {
		return errors.Wrap(ErrUnknownTicket, "book").With("id", id)
	}
	if t.State.IsTerminal() || t.State == TicketStateProposed {
		return errors.Wrap(ErrInvalidTransition, "book").With("id", id).With("state", t.State)
	}
	if quantity == 0 || quantity*t.Sign() < 0 {
		return errors.Wrap(ErrInvalidFill, "book").With("id", id).With("quantity", quantity)
	}
	t.FilledQuantity += quantity
	if t.Leaves() == 0 {
		t.State = TicketStateFilled
	} else {
		t.State = TicketStatePartFilled
	}
	return nil
}

// Cancel moves a non-terminal ticket to cancelled.
func (b *Book) Cancel(id uint64) error {
	t, ok := b.tickets[id]
	if !ok {
		return errors.Wrap(ErrUnknownTicket, "book").With("id", id)
	}
	if t.State.IsTerminal() {
		return errors.Wrap(ErrInvalidTransition, "book").With("id", id).With("state", t.State)
	}
	t.State = TicketStateCancelled
	return nil
}

// MarkInvalid moves a non-terminal ticket to invalid (venue reject).
func (b *Book) MarkInvalid(id uint64) error {
	t, ok := b.tickets[id]
	if !ok {
		return errors.Wrap(ErrUnknownTicket, "book").With("id", id)
	}
	if t.State.IsTerminal() {
		return errors.Wrap(ErrInvalidTransition, "book").With("id", id).With("state", t.State)
	}
	t.State = TicketStateInvalid
	return nil
}

// PruneTerminal drops finished tickets from the per-symbol index so live
// lookups stay cheap. Ticket history remains reachable by id.
func (b *Book) PruneTerminal() {
	for sym, ids := range b.bySym {
		kept := ids[:0]
		for _, id := range ids {
			if t := b.tickets[id]; t != nil && !t.State.IsTerminal() {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(b.bySym, sym)
		} else {
			b.bySym[sym] = kept
		}
	}
}
