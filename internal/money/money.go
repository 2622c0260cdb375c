// Package money centralizes decimal amount arithmetic. Checkout
// providers bill in integer minor units, so every conversion out of the
// invoice's decimal representation has to round the same way every
// time; drift here shows up as off-by-one-cent disputes.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major-unit amount (e.g. 19.999 USD) to the
// provider's integer minor units (cents). Halves round up: 19.999
// becomes 2000, never 1999. Amounts are validated non-negative before
// they reach a provider, so half-up and half-away-from-zero coincide.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts an integer minor-unit amount back to its
// decimal major-unit form (2000 -> 20.00).
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Div(hundred)
}

// PercentOf returns percent% of amount rounded to whole cents, half-up.
// Used to resolve percentage deposit terms before checkout creation.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(2)
}

// ItemAmount returns quantity x unit price for a single line item.
func ItemAmount(quantity int64, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity))
}
