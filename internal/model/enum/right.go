package enum

// OptionRight distinguishes calls from puts.
type OptionRight uint8

const (
	RightUnknown OptionRight = iota
	RightCall
	RightPut
)

func (r OptionRight) String() string {
	switch r {
	case RightCall:
		return "call"
	case RightPut:
		return "put"
	default:
		return "unknown"
	}
}
