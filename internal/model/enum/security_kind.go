package enum

// SecurityKind tags the finite set of security variants the core resolves.
type SecurityKind uint8

const (
	SecurityUnknown SecurityKind = iota
	SecurityEquity
	SecurityOptionContract
	SecurityCanonicalOption
)

func (k SecurityKind) String() string {
	switch k {
	case SecurityEquity:
		return "equity"
	case SecurityOptionContract:
		return "option_contract"
	case SecurityCanonicalOption:
		return "canonical_option"
	default:
		return "unknown"
	}
}
