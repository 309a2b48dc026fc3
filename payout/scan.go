package payout

import (
	"errors"
	"math"
	"math/big"
)

// MaxCets bounds the number of CETs a payout function may produce, about as
// many adaptor signatures as fit in a single message.
const MaxCets = 100_000

// ErrTooManyCets is returned when a payout function needs more than MaxCets
// CETs.
var ErrTooManyCets = errors.New("payout function needs too many cets")

// segment is an inclusive outcome range.
type segment struct {
	from, to uint64
}

// rangeScanner collects the runs of equal rounded payout of one curve piece
// after the other.
type rangeScanner struct {
	params *GroupParams
	curve  Curve
	ranges []Range
}

// payout returns the rounded payout of the current curve at outcome.
func (s *rangeScanner) payout(outcome uint64) (uint64, error) {
	exact, err := s.curve.Evaluate(outcome)
	if err != nil {
		return 0, err
	}

	return RoundedPayout(
		exact, outcome, s.params.Rounding, s.params.TotalCollateral,
	), nil
}

// add appends a run, extending the previous one if it pays the same.
func (s *rangeScanner) add(from, to, payout uint64) error {
	n := len(s.ranges)
	if n > 0 && s.ranges[n-1].Payout == payout &&
		s.ranges[n-1].To+1 == from {

		s.ranges[n-1].To = to
		return nil
	}

	if n >= MaxCets {
		return ErrTooManyCets
	}

	s.ranges = append(s.ranges, Range{From: from, To: to, Payout: payout})

	return nil
}

// scanMonotone appends the runs of [seg.from, seg.to]. The rounded payout
// must be monotone over the segment, so every run is found by galloping
// from its first outcome and bisecting the last step.
func (s *rangeScanner) scanMonotone(seg segment) error {
	x := seg.from
	for {
		p, err := s.payout(x)
		if err != nil {
			return err
		}

		last, hi := x, seg.to
		for step := uint64(1); seg.to-last >= step; step <<= 1 {
			q, err := s.payout(last + step)
			if err != nil {
				return err
			}
			if q != p {
				hi = last + step - 1
				break
			}
			last += step

			if step > math.MaxUint64/2 {
				break
			}
		}

		for last < hi {
			mid := last + (hi-last+1)/2
			q, err := s.payout(mid)
			if err != nil {
				return err
			}

			if q == p {
				last = mid
			} else {
				hi = mid - 1
			}
		}

		if err := s.add(x, last, p); err != nil {
			return err
		}
		if last == seg.to {
			return nil
		}
		x = last + 1
	}
}

// splitAt cuts the segments right before every cut outcome.
func splitAt(segs []segment, cuts []uint64) []segment {
	var out []segment
	for _, seg := range segs {
		from := seg.from
		for _, c := range cuts {
			if c > from && c <= seg.to {
				out = append(out, segment{from, c - 1})
				from = c
			}
		}
		out = append(out, segment{from, seg.to})
	}

	return out
}

// monotoneSegments splits [from, to] into segments over which the curve is
// monotone on integer outcomes.
func monotoneSegments(c Curve, from, to uint64) []segment {
	segs := []segment{{from, to}}

	// A hyperbola piece lies on a single branch, which is monotone. So
	// are constant and linear polynomials.
	poly, ok := c.(*Polynomial)
	if !ok || len(poly.Points) <= 2 || poly.isConstant() {
		return segs
	}

	// The d-th forward difference of a degree d polynomial is constant,
	// so its (d-1)-th difference is monotone over the whole range. Each
	// level splits the segments where the next lower difference changes
	// sign, until the first difference keeps its sign on every segment.
	degree := len(poly.Points) - 1
	for j := degree - 1; j >= 1; j-- {
		var next []segment
		for _, seg := range segs {
			next = append(next, splitSignChange(poly, j, seg)...)
		}
		segs = next
	}

	return segs
}

// splitSignChange splits a segment over which the j-th forward difference is
// monotone at the point where that difference changes sign.
func splitSignChange(p *Polynomial, j int, seg segment) []segment {
	first := forwardDiff(p, j, seg.from).Sign()
	last := forwardDiff(p, j, seg.to).Sign()
	if first*last >= 0 {
		return []segment{seg}
	}

	// Find the first outcome whose difference has the sign of the last
	// one.
	lo, hi := seg.from, seg.to
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if forwardDiff(p, j, mid).Sign() == last {
			hi = mid
		} else {
			lo = mid
		}
	}

	return []segment{{seg.from, hi - 1}, {hi, seg.to}}
}

// forwardDiff returns the j-th forward difference of the polynomial at x:
// sum over i of (-1)^(j-i) * C(j, i) * p(x+i).
func forwardDiff(p *Polynomial, j int, x uint64) *big.Rat {
	base := ratFromUint64(x)
	sum := new(big.Rat)
	for i := 0; i <= j; i++ {
		at := new(big.Rat).Add(base, big.NewRat(int64(i), 1))
		term := p.interpolate(at)

		coeff := new(big.Int).Binomial(int64(j), int64(i))
		if (j-i)%2 == 1 {
			coeff.Neg(coeff)
		}
		term.Mul(term, new(big.Rat).SetInt(coeff))

		sum.Add(sum, term)
	}

	return sum
}
