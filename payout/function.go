package payout

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNoPieces is returned for a payout function without any piece.
	ErrNoPieces = errors.New("payout function has no pieces")

	// ErrPiecesNotAscending is returned when piece end outcomes are not
	// strictly ascending.
	ErrPiecesNotAscending = errors.New("payout function pieces must be " +
		"strictly ascending by end outcome")
)

// Piece is one segment of a payout function. The first piece covers
// [0, EndOutcome], every later piece covers (previous EndOutcome,
// EndOutcome].
type Piece struct {
	EndOutcome uint64
	Curve      Curve
}

// Function is a piecewise payout function over the oracle's outcome domain.
type Function struct {
	Pieces []Piece
}

// PieceStart returns the first outcome covered by the i-th piece.
func (f *Function) PieceStart(i int) uint64 {
	if i == 0 {
		return 0
	}

	return f.Pieces[i-1].EndOutcome + 1
}

// Validate checks the function is contiguous, ascending and covers exactly
// [0, maxOutcome].
func (f *Function) Validate(maxOutcome uint64) error {
	if len(f.Pieces) == 0 {
		return ErrNoPieces
	}

	for i, piece := range f.Pieces {
		if piece.Curve == nil {
			return fmt.Errorf("piece %d has no curve", i)
		}
		if i > 0 && piece.EndOutcome <= f.Pieces[i-1].EndOutcome {
			return ErrPiecesNotAscending
		}

		start := f.PieceStart(i)

		// Polynomial knots share the boundary outcome with the
		// previous piece, so they are checked against the closed range
		// starting at the previous end.
		knotStart := start
		if i > 0 && piece.Curve.Type() == PolynomialCurve {
			knotStart = f.Pieces[i-1].EndOutcome
		}

		err := piece.Curve.validate(knotStart, piece.EndOutcome)
		if err != nil {
			return fmt.Errorf("piece %d: %w", i, err)
		}
	}

	last := f.Pieces[len(f.Pieces)-1].EndOutcome
	if last != maxOutcome {
		return fmt.Errorf("payout function ends at %d, outcome domain "+
			"ends at %d", last, maxOutcome)
	}

	return nil
}

// PieceIndex returns the index of the piece covering outcome, i.e. the first
// piece whose end outcome is at or above it.
func (f *Function) PieceIndex(outcome uint64) (int, error) {
	for i, piece := range f.Pieces {
		if piece.EndOutcome >= outcome {
			return i, nil
		}
	}

	return 0, fmt.Errorf("outcome %d beyond payout function range", outcome)
}

// Evaluate returns the exact payout at the outcome.
func (f *Function) Evaluate(outcome uint64) (*big.Rat, error) {
	idx, err := f.PieceIndex(outcome)
	if err != nil {
		return nil, err
	}

	return f.Pieces[idx].Curve.Evaluate(outcome)
}

// RoundedPayout evaluates the function at outcome, rounds the result with
// the interval covering the outcome and clamps it to [0, totalCollateral].
func (f *Function) RoundedPayout(outcome uint64, rounding RoundingIntervals,
	totalCollateral uint64) (uint64, error) {

	payout, err := f.Evaluate(outcome)
	if err != nil {
		return 0, err
	}

	return RoundedPayout(payout, outcome, rounding, totalCollateral), nil
}

// RoundedPayout rounds an exact payout with the interval covering outcome and
// clamps it to [0, totalCollateral].
func RoundedPayout(payout *big.Rat, outcome uint64, rounding RoundingIntervals,
	totalCollateral uint64) uint64 {

	// Clamp before and after rounding so that values far outside the
	// collateral range don't round across the bound.
	clamped := new(big.Rat).Set(payout)
	if clamped.Sign() < 0 {
		clamped.SetInt64(0)
	}
	total := ratFromUint64(totalCollateral)
	if clamped.Cmp(total) > 0 {
		clamped = total
	}

	rounded := Round(clamped, rounding.ModFor(outcome))

	return Clamp(rounded, totalCollateral)
}
