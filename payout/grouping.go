package payout

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidBase is returned for a numeric base below two.
	ErrInvalidBase = errors.New("outcome base must be at least 2")

	// ErrInvalidDigitCount is returned for a digit count of zero.
	ErrInvalidDigitCount = errors.New("digit count must be at least 1")

	// ErrDomainTooLarge is returned when base^digits does not fit in 64
	// bits.
	ErrDomainTooLarge = errors.New("outcome domain overflows 64 bits")
)

// pow returns base^exp, reporting whether the result overflowed.
func pow(base uint64, exp int) (uint64, bool) {
	result := uint64(1)
	for i := 0; i < exp; i++ {
		if result > math.MaxUint64/base {
			return 0, false
		}
		result *= base
	}

	return result, true
}

// DomainSize returns base^numDigits, the number of distinct outcomes an
// oracle with the given parameters can attest to.
func DomainSize(base uint64, numDigits int) (uint64, error) {
	if base < 2 {
		return 0, ErrInvalidBase
	}
	if numDigits < 1 {
		return 0, ErrInvalidDigitCount
	}

	size, ok := pow(base, numDigits)
	if !ok {
		return 0, ErrDomainTooLarge
	}

	return size, nil
}

// MaxOutcome returns the largest outcome representable with numDigits digits
// in the given base.
func MaxOutcome(base uint64, numDigits int) (uint64, error) {
	size, err := DomainSize(base, numDigits)
	if err != nil {
		return 0, err
	}

	return size - 1, nil
}

// Digits returns the numDigits digit decomposition of outcome, most
// significant digit first.
func Digits(outcome, base uint64, numDigits int) []int {
	digits := make([]int, numDigits)
	for i := numDigits - 1; i >= 0; i-- {
		digits[i] = int(outcome % base)
		outcome /= base
	}

	return digits
}

// FromDigits is the inverse of Digits. It returns an error if any digit is
// out of range for the base or the value overflows.
func FromDigits(digits []int, base uint64) (uint64, error) {
	var outcome uint64
	for i, d := range digits {
		if d < 0 || uint64(d) >= base {
			return 0, fmt.Errorf("digit %d at position %d out of "+
				"range for base %d", d, i, base)
		}
		if outcome > (math.MaxUint64-uint64(d))/base {
			return 0, ErrDomainTooLarge
		}
		outcome = outcome*base + uint64(d)
	}

	return outcome, nil
}

// PrefixRange returns the inclusive outcome range covered by a digit prefix.
func PrefixRange(prefix []int, base uint64, numDigits int) (uint64, uint64,
	error) {

	if len(prefix) == 0 || len(prefix) > numDigits {
		return 0, 0, fmt.Errorf("prefix length %d invalid for %d digits",
			len(prefix), numDigits)
	}

	head, err := FromDigits(prefix, base)
	if err != nil {
		return 0, 0, err
	}

	span, ok := pow(base, numDigits-len(prefix))
	if !ok {
		return 0, 0, ErrDomainTooLarge
	}

	from := head * span
	return from, from + span - 1, nil
}

// DecomposeRange splits the inclusive range [from, to] into the minimal
// ordered list of digit prefixes whose covered outcomes are exactly that
// range. Each step takes the largest block base^k aligned at the current
// outcome that still fits, the same way an address range is split into CIDR
// blocks. Prefixes always keep at least one digit.
func DecomposeRange(from, to, base uint64, numDigits int) ([][]int, error) {
	maxOutcome, err := MaxOutcome(base, numDigits)
	if err != nil {
		return nil, err
	}
	if from > to {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}
	if to > maxOutcome {
		return nil, fmt.Errorf("outcome %d exceeds maximum %d", to,
			maxOutcome)
	}

	var prefixes [][]int
	cur := from
	for {
		// Grow the block while it stays aligned and inside the range.
		k, block := 0, uint64(1)
		for k < numDigits-1 {
			next := block * base
			if cur%next != 0 || to-cur < next-1 {
				break
			}
			k, block = k+1, next
		}

		digits := Digits(cur, base, numDigits)
		prefixes = append(prefixes, digits[:numDigits-k])

		// cur+block-1 <= to <= maxOutcome, so the last block ends the
		// loop before cur can overflow.
		if to-cur == block-1 {
			break
		}
		cur += block
	}

	return prefixes, nil
}
