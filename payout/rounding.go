package payout

import (
	"errors"
	"math/big"
)

var (
	// ErrNoRoundingIntervals is returned when no rounding interval is
	// given.
	ErrNoRoundingIntervals = errors.New("at least one rounding interval " +
		"is required")

	// ErrFirstIntervalNotZero is returned when the first rounding interval
	// does not start at outcome zero.
	ErrFirstIntervalNotZero = errors.New("first rounding interval must " +
		"begin at outcome 0")

	// ErrIntervalsNotAscending is returned when the rounding intervals are
	// not strictly ascending by begin outcome.
	ErrIntervalsNotAscending = errors.New("rounding intervals must be " +
		"strictly ascending")

	// ErrZeroRoundingMod is returned for an interval with a zero modulus.
	ErrZeroRoundingMod = errors.New("rounding modulus must be non-zero")
)

// RoundingInterval rounds every payout from BeginInterval (inclusive) up to
// the next interval's begin to a multiple of RoundingMod.
type RoundingInterval struct {
	BeginInterval uint64
	RoundingMod   uint64
}

// RoundingIntervals coarsens payout precision so that neighbouring outcomes
// collapse into the same payout, reducing the number of CETs.
type RoundingIntervals struct {
	Intervals []RoundingInterval
}

// NoRounding returns rounding intervals that round to the nearest satoshi.
func NoRounding() RoundingIntervals {
	return RoundingIntervals{
		Intervals: []RoundingInterval{{BeginInterval: 0, RoundingMod: 1}},
	}
}

// Validate checks the intervals are well formed.
func (r RoundingIntervals) Validate() error {
	if len(r.Intervals) == 0 {
		return ErrNoRoundingIntervals
	}
	if r.Intervals[0].BeginInterval != 0 {
		return ErrFirstIntervalNotZero
	}

	for i, interval := range r.Intervals {
		if interval.RoundingMod == 0 {
			return ErrZeroRoundingMod
		}
		if i > 0 && interval.BeginInterval <=
			r.Intervals[i-1].BeginInterval {

			return ErrIntervalsNotAscending
		}
	}

	return nil
}

// ModFor returns the rounding modulus that applies to the outcome: the one of
// the last interval whose begin is at or below it.
func (r RoundingIntervals) ModFor(outcome uint64) uint64 {
	mod := uint64(1)
	for _, interval := range r.Intervals {
		if interval.BeginInterval > outcome {
			break
		}
		mod = interval.RoundingMod
	}

	return mod
}

// Round rounds payout half-up to a multiple of mod, returning the result as
// an integer.
func Round(payout *big.Rat, mod uint64) *big.Int {
	m := new(big.Rat).SetInt(new(big.Int).SetUint64(mod))
	q := new(big.Rat).Quo(payout, m)

	// floor(q + 1/2), computed on the numerator/denominator pair so
	// negative values round the same way as positive ones.
	half := new(big.Rat).Add(q, big.NewRat(1, 2))
	floor := new(big.Int).Div(half.Num(), half.Denom())

	return floor.Mul(floor, new(big.Int).SetUint64(mod))
}

// Clamp bounds v to [0, max] and returns it as a uint64.
func Clamp(v *big.Int, max uint64) uint64 {
	switch {
	case v.Sign() <= 0:
		return 0

	case !v.IsUint64() || v.Uint64() > max:
		return max

	default:
		return v.Uint64()
	}
}
