package payout

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNotEnoughPoints is returned when a polynomial piece has fewer than
	// the two points required to define it.
	ErrNotEnoughPoints = errors.New("polynomial needs at least two points")

	// ErrPointsNotAscending is returned when the points of a polynomial
	// are not strictly ascending by outcome.
	ErrPointsNotAscending = errors.New("polynomial points must be " +
		"strictly ascending by outcome")

	// ErrUnsupportedHyperbola is returned for hyperbolas with a non-zero b
	// or c parameter.
	ErrUnsupportedHyperbola = errors.New("hyperbola b and c parameters " +
		"must be zero")

	// ErrZeroHyperbolaA is returned for hyperbolas whose a parameter is
	// zero.
	ErrZeroHyperbolaA = errors.New("hyperbola a parameter must be non-zero")
)

// CurveType is the wire tag of a payout curve piece.
type CurveType uint8

const (
	// PolynomialCurve identifies a polynomial curve piece.
	PolynomialCurve CurveType = 0

	// HyperbolaCurve identifies a hyperbola curve piece.
	HyperbolaCurve CurveType = 1
)

// String returns the name of the curve type.
func (c CurveType) String() string {
	switch c {
	case PolynomialCurve:
		return "polynomial"
	case HyperbolaCurve:
		return "hyperbola"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Curve is one piece of a payout function. The set of implementations is
// closed: *Polynomial and *Hyperbola.
type Curve interface {
	// Type returns the wire tag of the curve.
	Type() CurveType

	// Evaluate returns the exact, unrounded and unclamped payout at the
	// given outcome.
	Evaluate(outcome uint64) (*big.Rat, error)

	// validate checks the curve against the outcome range it is meant to
	// cover.
	validate(start, end uint64) error
}

// Polynomial is a curve defined by the unique polynomial passing through all
// of its points. The first and last points are the piece endpoints.
type Polynomial struct {
	Points []Point
}

// A compile time check to ensure Polynomial implements the Curve interface.
var _ Curve = (*Polynomial)(nil)

// Type returns PolynomialCurve.
func (p *Polynomial) Type() CurveType {
	return PolynomialCurve
}

// Evaluate interpolates the polynomial at the given outcome using Lagrange's
// formula over exact rationals.
func (p *Polynomial) Evaluate(outcome uint64) (*big.Rat, error) {
	if len(p.Points) < 2 {
		return nil, ErrNotEnoughPoints
	}

	// Points on the curve are returned as is, which also keeps the
	// common two point (linear) case cheap at the endpoints.
	for _, pt := range p.Points {
		if pt.Outcome == outcome {
			return pt.payoutRat(), nil
		}
	}

	// Constant pieces are the most common shape by far, so skip the
	// interpolation for them.
	if p.isConstant() {
		return p.Points[0].payoutRat(), nil
	}

	return p.interpolate(ratFromUint64(outcome)), nil
}

// interpolate evaluates the Lagrange polynomial through the points at x. x
// may lie outside the outcome range of the points.
func (p *Polynomial) interpolate(x *big.Rat) *big.Rat {
	result := new(big.Rat)
	for i, pi := range p.Points {
		xi := ratFromUint64(pi.Outcome)
		term := pi.payoutRat()

		for j, pj := range p.Points {
			if i == j {
				continue
			}

			xj := ratFromUint64(pj.Outcome)
			num := new(big.Rat).Sub(x, xj)
			den := new(big.Rat).Sub(xi, xj)
			term.Mul(term, num.Quo(num, den))
		}

		result.Add(result, term)
	}

	return result
}

// isConstant returns true if every point carries the same payout.
func (p *Polynomial) isConstant() bool {
	first := p.Points[0]
	for _, pt := range p.Points[1:] {
		if pt.Payout != first.Payout ||
			pt.ExtraPrecision != first.ExtraPrecision {

			return false
		}
	}

	return true
}

// validate checks the polynomial covers exactly [start, end].
func (p *Polynomial) validate(start, end uint64) error {
	if len(p.Points) < 2 {
		return ErrNotEnoughPoints
	}

	for i := 1; i < len(p.Points); i++ {
		if p.Points[i].Outcome <= p.Points[i-1].Outcome {
			return ErrPointsNotAscending
		}
	}

	first, last := p.Points[0], p.Points[len(p.Points)-1]
	if first.Outcome != start || last.Outcome != end {
		return fmt.Errorf("polynomial spans [%d, %d], piece spans "+
			"[%d, %d]", first.Outcome, last.Outcome, start, end)
	}

	return nil
}

// Hyperbola is a hyperbolic curve piece. Only the b = c = 0 family is
// supported, in which case the curve reduces to
//
//	payout(x) = a*d / (x - translateOutcome) + translatePayout
//
// evaluated on the positive (x > translateOutcome) or negative
// (x < translateOutcome) branch.
type Hyperbola struct {
	UsePositivePiece bool
	TranslateOutcome Decimal
	TranslatePayout  Decimal
	A                Decimal
	B                Decimal
	C                Decimal
	D                Decimal
}

// A compile time check to ensure Hyperbola implements the Curve interface.
var _ Curve = (*Hyperbola)(nil)

// Type returns HyperbolaCurve.
func (h *Hyperbola) Type() CurveType {
	return HyperbolaCurve
}

// Evaluate returns the payout of the hyperbola at the given outcome.
func (h *Hyperbola) Evaluate(outcome uint64) (*big.Rat, error) {
	if !h.B.IsZero() || !h.C.IsZero() {
		return nil, ErrUnsupportedHyperbola
	}
	if h.A.IsZero() {
		return nil, ErrZeroHyperbolaA
	}

	x := ratFromUint64(outcome)
	translated := x.Sub(x, h.TranslateOutcome.Rat())

	switch sign := translated.Sign(); {
	case h.UsePositivePiece && sign <= 0:
		return nil, fmt.Errorf("outcome %d is not on the positive "+
			"branch of the hyperbola", outcome)

	case !h.UsePositivePiece && sign >= 0:
		return nil, fmt.Errorf("outcome %d is not on the negative "+
			"branch of the hyperbola", outcome)
	}

	payout := new(big.Rat).Mul(h.A.Rat(), h.D.Rat())
	payout.Quo(payout, translated)

	return payout.Add(payout, h.TranslatePayout.Rat()), nil
}

// validate checks the parameters and that the whole range lies on the
// selected branch.
func (h *Hyperbola) validate(start, end uint64) error {
	if !h.B.IsZero() || !h.C.IsZero() {
		return ErrUnsupportedHyperbola
	}
	if h.A.IsZero() {
		return ErrZeroHyperbolaA
	}

	if _, err := h.Evaluate(start); err != nil {
		return err
	}
	_, err := h.Evaluate(end)

	return err
}

// ratFromUint64 returns a new rational holding v.
func ratFromUint64(v uint64) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).SetUint64(v))
}
