package model

import (
	"fmt"

	"main/internal/model/enum"
)

// ContractSpec identifies an option contract. Immutable once created.
type ContractSpec struct {
	Underlying Symbol
	Strike     float64
	Expiry     Date
	Right      enum.OptionRight
	Style      enum.OptionStyle
}

// Key returns the stable lookup key for the contract.
func (c ContractSpec) Key() Symbol {
	return Symbol(fmt.Sprintf("%s_%s_%s_%.2f", c.Underlying, c.Expiry, c.Right, c.Strike))
}

// YearsToExpiry converts remaining lifetime to year fractions on an
// actual/365 basis, matching the flat term structures of the pricing model.
func (c ContractSpec) YearsToExpiry(asOf Date) float64 {
	days := c.Expiry.Time().Sub(asOf.Time()).Hours() / 24
	if days < 0 {
		return 0
	}
	return days / 365
}
