package payout

import (
	"fmt"
	"math/big"
)

// extraPrecisionDenom is the denominator of the fractional part carried by
// every decimal on the wire: fractions are expressed in 1/2^16 units.
const extraPrecisionDenom = 1 << 16

// Decimal is a signed fixed point number as it appears in hyperbola curve
// parameters: an integer part plus a 16-bit binary fraction.
type Decimal struct {
	// Negative is true if the value is below zero.
	Negative bool

	// Integer is the magnitude of the integer part.
	Integer uint64

	// ExtraPrecision is the fractional part in units of 1/2^16.
	ExtraPrecision uint16
}

// NewDecimal returns the Decimal for the given whole number.
func NewDecimal(v int64) Decimal {
	if v < 0 {
		return Decimal{Negative: true, Integer: uint64(-v)}
	}

	return Decimal{Integer: uint64(v)}
}

// Rat returns the exact rational value of the decimal.
func (d Decimal) Rat() *big.Rat {
	r := new(big.Rat).SetFrac(
		new(big.Int).SetUint64(d.Integer), big.NewInt(1),
	)
	if d.ExtraPrecision != 0 {
		r.Add(r, big.NewRat(int64(d.ExtraPrecision), extraPrecisionDenom))
	}
	if d.Negative {
		r.Neg(r)
	}

	return r
}

// IsZero returns true if the decimal is zero, regardless of its sign bit.
func (d Decimal) IsZero() bool {
	return d.Integer == 0 && d.ExtraPrecision == 0
}

// String returns the decimal in human readable form.
func (d Decimal) String() string {
	return d.Rat().FloatString(5)
}

// Point is a (outcome, payout) pair on a payout curve. The payout carries
// the same 16-bit extra precision as Decimal.
type Point struct {
	// Outcome is the oracle outcome at this point.
	Outcome uint64

	// Payout is the integer part of the offerer payout at this point.
	Payout uint64

	// ExtraPrecision is the fractional part of the payout in units of
	// 1/2^16.
	ExtraPrecision uint16
}

// payoutRat returns the exact payout value of the point.
func (p Point) payoutRat() *big.Rat {
	return Decimal{
		Integer:        p.Payout,
		ExtraPrecision: p.ExtraPrecision,
	}.Rat()
}

// String returns a human readable representation of the point.
func (p Point) String() string {
	return fmt.Sprintf("(%d, %s)", p.Outcome, p.payoutRat().FloatString(5))
}
