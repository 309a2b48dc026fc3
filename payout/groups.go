package payout

import (
	"fmt"
)

// Group is a set of digit prefixes that all pay the offerer the same amount.
// Every prefix becomes one CET.
type Group struct {
	// Payout is the offerer payout in satoshis.
	Payout uint64

	// Prefixes are the digit prefixes covered by the group in ascending
	// outcome order, most significant digit first.
	Prefixes [][]int
}

// Range is an inclusive run of outcomes sharing the same rounded payout.
type Range struct {
	From   uint64
	To     uint64
	Payout uint64
}

// GroupParams bundles everything needed to turn a payout function into
// payout groups.
type GroupParams struct {
	Function        *Function
	Rounding        RoundingIntervals
	TotalCollateral uint64
	Base            uint64
	NumDigits       int
}

// Validate checks the parameters are consistent.
func (p *GroupParams) Validate() error {
	maxOutcome, err := MaxOutcome(p.Base, p.NumDigits)
	if err != nil {
		return err
	}
	if p.Function == nil {
		return ErrNoPieces
	}
	if err := p.Function.Validate(maxOutcome); err != nil {
		return err
	}

	return p.Rounding.Validate()
}

// PayoutRanges returns the maximal runs of equal rounded payout, in
// ascending outcome order. Runs may cross piece boundaries. Each piece is cut
// into segments over which the rounded payout is monotone, so the cost grows
// with the number of runs rather than with the size of the outcome domain.
func PayoutRanges(p *GroupParams) ([]Range, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cuts := make([]uint64, 0, len(p.Rounding.Intervals))
	for _, interval := range p.Rounding.Intervals {
		cuts = append(cuts, interval.BeginInterval)
	}

	s := &rangeScanner{params: p}
	for i, piece := range p.Function.Pieces {
		s.curve = piece.Curve

		segs := monotoneSegments(
			piece.Curve, p.Function.PieceStart(i), piece.EndOutcome,
		)
		for _, seg := range splitAt(segs, cuts) {
			if err := s.scanMonotone(seg); err != nil {
				return nil, fmt.Errorf("piece %d: %w", i, err)
			}
		}
	}

	return s.ranges, nil
}

// GenerateGroups turns a payout function into payout groups: one group per
// run of equal rounded payout, each decomposed into digit prefixes.
func GenerateGroups(p *GroupParams) ([]Group, error) {
	ranges, err := PayoutRanges(p)
	if err != nil {
		return nil, err
	}

	var numCets int
	groups := make([]Group, 0, len(ranges))
	for _, r := range ranges {
		prefixes, err := DecomposeRange(r.From, r.To, p.Base, p.NumDigits)
		if err != nil {
			return nil, err
		}

		groups = append(groups, Group{
			Payout:   r.Payout,
			Prefixes: prefixes,
		})

		numCets += len(prefixes)
		if numCets > MaxCets {
			return nil, ErrTooManyCets
		}
	}

	log.Debugf("Generated %d payout groups (%d CETs) over %d digits in "+
		"base %d", len(groups), CetCount(groups), p.NumDigits, p.Base)

	return groups, nil
}

// CetCount returns the number of CETs the groups produce.
func CetCount(groups []Group) int {
	var n int
	for _, g := range groups {
		n += len(g.Prefixes)
	}

	return n
}
