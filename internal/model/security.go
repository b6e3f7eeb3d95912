package model

import "main/internal/model/enum"

// Security is the tagged variant over the finite set of instruments the core
// resolves. Exactly one of the optional fields is meaningful for each kind:
// Contract for option contracts, Underlying for canonical options.
type Security struct {
	Kind       enum.SecurityKind
	Symbol     Symbol
	Contract   ContractSpec // set when Kind == SecurityOptionContract
	Underlying Symbol       // set when Kind == SecurityCanonicalOption
}

// EquitySecurity builds the equity variant.
func EquitySecurity(symbol Symbol) Security {
	return Security{Kind: enum.SecurityEquity, Symbol: symbol}
}

// OptionSecurity builds the option contract variant.
func OptionSecurity(contract ContractSpec) Security {
	return Security{
		Kind:       enum.SecurityOptionContract,
		Symbol:     contract.Key(),
		Contract:   contract,
		Underlying: contract.Underlying,
	}
}

// CanonicalOptionSecurity builds the canonical (chain root) variant.
func CanonicalOptionSecurity(symbol, underlying Symbol) Security {
	return Security{Kind: enum.SecurityCanonicalOption, Symbol: symbol, Underlying: underlying}
}

// Holding is one signed position supplied by the portfolio collaborator.
type Holding struct {
	Security Security
	Quantity float64
	Price    float64 // live mark supplied by the holdings view
}

// Multiplier returns the contract multiplier for the holding's kind.
func (h Holding) Multiplier() float64 {
	if h.Security.Kind == enum.SecurityOptionContract {
		return OptionMultiplier
	}
	return 1
}
