package enum

// OrderDirection is the side of a proposed or resting order.
type OrderDirection uint8

const (
	DirectionUnknown OrderDirection = iota
	DirectionBuy
	DirectionSell
)

// Sign maps buy to +1 and sell to -1.
func (d OrderDirection) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

func (d OrderDirection) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "unknown"
	}
}
