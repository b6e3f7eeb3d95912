package enum

// OptionStyle describes the exercise style of a contract.
type OptionStyle uint8

const (
	StyleUnknown OptionStyle = iota
	StyleAmerican
	StyleEuropean
)

func (s OptionStyle) String() string {
	switch s {
	case StyleAmerican:
		return "american"
	case StyleEuropean:
		return "european"
	default:
		return "unknown"
	}
}
