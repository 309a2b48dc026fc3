package payout

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	coveredCallTotal  = 1_000_000
	coveredCallStrike = 4000
	coveredCallDigits = 18
)

// coveredCall returns a covered call payout: zero up to the strike, then
// 2*total*(1 - strike/x), which reaches the full collateral at twice the
// strike and is clamped from there on.
func coveredCall() *GroupParams {
	return &GroupParams{
		Function: &Function{
			Pieces: []Piece{
				{
					EndOutcome: coveredCallStrike,
					Curve: &Polynomial{Points: []Point{
						{Outcome: 0, Payout: 0},
						{Outcome: coveredCallStrike, Payout: 0},
					}},
				},
				{
					EndOutcome: 1<<coveredCallDigits - 1,
					Curve: &Hyperbola{
						UsePositivePiece: true,
						A:                NewDecimal(1),
						D: NewDecimal(
							-2 * coveredCallTotal *
								coveredCallStrike,
						),
						TranslatePayout: NewDecimal(
							2 * coveredCallTotal,
						),
					},
				},
			},
		},
		Rounding: RoundingIntervals{Intervals: []RoundingInterval{
			{BeginInterval: 0, RoundingMod: 10000},
		}},
		TotalCollateral: coveredCallTotal,
		Base:            2,
		NumDigits:       coveredCallDigits,
	}
}

// TestPolynomialEvaluate checks interpolation through the knot points.
func TestPolynomialEvaluate(t *testing.T) {
	t.Parallel()

	linear := &Polynomial{Points: []Point{
		{Outcome: 10, Payout: 0},
		{Outcome: 20, Payout: 1000},
	}}
	v, err := linear.Evaluate(15)
	require.NoError(t, err)
	require.Zero(t, v.Cmp(big.NewRat(500, 1)))

	quadratic := &Polynomial{Points: []Point{
		{Outcome: 0, Payout: 0},
		{Outcome: 1, Payout: 1},
		{Outcome: 2, Payout: 4},
	}}
	v, err = quadratic.Evaluate(3)
	require.NoError(t, err)
	require.Zero(t, v.Cmp(big.NewRat(9, 1)))

	half := &Polynomial{Points: []Point{
		{Outcome: 0, Payout: 1, ExtraPrecision: 1 << 15},
		{Outcome: 2, Payout: 1, ExtraPrecision: 1 << 15},
	}}
	v, err = half.Evaluate(1)
	require.NoError(t, err)
	require.Zero(t, v.Cmp(big.NewRat(3, 2)))

	_, err = (&Polynomial{}).Evaluate(1)
	require.ErrorIs(t, err, ErrNotEnoughPoints)
}

// TestHyperbola checks the evaluated branch and the parameter restrictions.
func TestHyperbola(t *testing.T) {
	t.Parallel()

	h := &Hyperbola{
		UsePositivePiece: true,
		TranslateOutcome: NewDecimal(10),
		A:                NewDecimal(2),
		D:                NewDecimal(50),
		TranslatePayout:  NewDecimal(1),
	}

	v, err := h.Evaluate(20)
	require.NoError(t, err)
	require.Zero(t, v.Cmp(big.NewRat(11, 1)))

	_, err = h.Evaluate(10)
	require.Error(t, err)

	h.UsePositivePiece = false
	v, err = h.Evaluate(5)
	require.NoError(t, err)
	require.Zero(t, v.Cmp(big.NewRat(-19, 1)))

	h.B = NewDecimal(1)
	_, err = h.Evaluate(5)
	require.ErrorIs(t, err, ErrUnsupportedHyperbola)

	h.B = Decimal{}
	h.A = Decimal{}
	_, err = h.Evaluate(5)
	require.ErrorIs(t, err, ErrZeroHyperbolaA)
}

// TestRounding covers interval selection, half-up rounding and clamping.
func TestRounding(t *testing.T) {
	t.Parallel()

	rounding := RoundingIntervals{Intervals: []RoundingInterval{
		{BeginInterval: 0, RoundingMod: 1},
		{BeginInterval: 100, RoundingMod: 10},
		{BeginInterval: 200, RoundingMod: 1000},
	}}
	require.NoError(t, rounding.Validate())

	require.EqualValues(t, 1, rounding.ModFor(99))
	require.EqualValues(t, 10, rounding.ModFor(100))
	require.EqualValues(t, 10, rounding.ModFor(199))
	require.EqualValues(t, 1000, rounding.ModFor(1<<40))

	tests := []struct {
		name    string
		payout  *big.Rat
		outcome uint64
		want    uint64
	}{
		{"exact", big.NewRat(7, 1), 5, 7},
		{"half up", big.NewRat(15, 2), 5, 8},
		{"below half", big.NewRat(74, 1), 150, 70},
		{"at half", big.NewRat(75, 1), 150, 80},
		{"coarse", big.NewRat(1499, 1), 300, 1000},
		{"negative", big.NewRat(-40, 1), 5, 0},
		{"above total", big.NewRat(5000, 1), 300, 2000},
		{"rounds above total", big.NewRat(1999, 1), 5, 1999},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := RoundedPayout(tc.payout, tc.outcome, rounding, 2000)
			require.Equal(t, tc.want, got)
		})
	}

	bad := []RoundingIntervals{
		{},
		{Intervals: []RoundingInterval{{BeginInterval: 1, RoundingMod: 1}}},
		{Intervals: []RoundingInterval{{BeginInterval: 0, RoundingMod: 0}}},
		{Intervals: []RoundingInterval{
			{BeginInterval: 0, RoundingMod: 1},
			{BeginInterval: 0, RoundingMod: 2},
		}},
	}
	for _, r := range bad {
		require.Error(t, r.Validate())
	}
}

// TestFunctionValidate checks piece coverage rules.
func TestFunctionValidate(t *testing.T) {
	t.Parallel()

	params := coveredCall()
	maxOutcome, err := MaxOutcome(params.Base, params.NumDigits)
	require.NoError(t, err)
	require.NoError(t, params.Function.Validate(maxOutcome))

	idx, err := params.Function.PieceIndex(coveredCallStrike)
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = params.Function.PieceIndex(coveredCallStrike + 1)
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	require.Error(t, params.Function.Validate(maxOutcome-1))

	gap := &Function{Pieces: []Piece{
		{EndOutcome: 10, Curve: &Polynomial{Points: []Point{
			{Outcome: 0}, {Outcome: 10},
		}}},
		{EndOutcome: 15, Curve: &Polynomial{Points: []Point{
			{Outcome: 11}, {Outcome: 15},
		}}},
	}}
	require.Error(t, gap.Validate(15))

	require.ErrorIs(t, (&Function{}).Validate(15), ErrNoPieces)
}

// TestDigits checks decomposition and its inverse.
func TestDigits(t *testing.T) {
	t.Parallel()

	require.Equal(t, []int{0, 1, 0, 1}, Digits(5, 2, 4))
	require.Equal(t, []int{0, 9, 9}, Digits(99, 10, 3))

	v, err := FromDigits([]int{1, 0, 1, 1}, 2)
	require.NoError(t, err)
	require.EqualValues(t, 11, v)

	_, err = FromDigits([]int{2}, 2)
	require.Error(t, err)

	_, err = MaxOutcome(2, 64)
	require.ErrorIs(t, err, ErrDomainTooLarge)

	_, err = MaxOutcome(1, 4)
	require.ErrorIs(t, err, ErrInvalidBase)

	rapid.Check(t, func(t *rapid.T) {
		base := rapid.Uint64Range(2, 16).Draw(t, "base")
		numDigits := rapid.IntRange(1, 8).Draw(t, "numDigits")
		maxOutcome, err := MaxOutcome(base, numDigits)
		require.NoError(t, err)

		outcome := rapid.Uint64Range(0, maxOutcome).Draw(t, "outcome")
		got, err := FromDigits(Digits(outcome, base, numDigits), base)
		require.NoError(t, err)
		require.Equal(t, outcome, got)
	})
}

// TestDecomposeRange checks a few known decompositions.
func TestDecomposeRange(t *testing.T) {
	t.Parallel()

	prefixes, err := DecomposeRange(0, 15, 2, 4)
	require.NoError(t, err)
	require.Equal(t, [][]int{{0}, {1}}, prefixes)

	prefixes, err = DecomposeRange(3, 12, 2, 4)
	require.NoError(t, err)
	require.Equal(t, [][]int{
		{0, 0, 1, 1},
		{0, 1},
		{1, 0},
		{1, 1, 0, 0},
	}, prefixes)

	prefixes, err = DecomposeRange(123, 123, 10, 3)
	require.NoError(t, err)
	require.Equal(t, [][]int{{1, 2, 3}}, prefixes)

	prefixes, err = DecomposeRange(110, 299, 10, 3)
	require.NoError(t, err)
	require.Equal(t, [][]int{
		{1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5}, {1, 6}, {1, 7},
		{1, 8}, {1, 9}, {2},
	}, prefixes)

	_, err = DecomposeRange(5, 4, 2, 4)
	require.Error(t, err)

	_, err = DecomposeRange(0, 16, 2, 4)
	require.Error(t, err)
}

// TestDecomposeRangeCoverage checks that the prefixes of any range expand to
// exactly that range, in order, without overlap or gap.
func TestDecomposeRangeCoverage(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		base := rapid.Uint64Range(2, 10).Draw(t, "base")
		numDigits := rapid.IntRange(1, 7).Draw(t, "numDigits")
		maxOutcome, err := MaxOutcome(base, numDigits)
		require.NoError(t, err)

		from := rapid.Uint64Range(0, maxOutcome).Draw(t, "from")
		to := rapid.Uint64Range(from, maxOutcome).Draw(t, "to")

		prefixes, err := DecomposeRange(from, to, base, numDigits)
		require.NoError(t, err)
		require.NotEmpty(t, prefixes)

		next := from
		for _, prefix := range prefixes {
			require.NotEmpty(t, prefix)

			lo, hi, err := PrefixRange(prefix, base, numDigits)
			require.NoError(t, err)
			require.Equal(t, next, lo)
			require.LessOrEqual(t, hi, to)

			next = hi + 1
		}
		require.Equal(t, to+1, next)
	})
}

// TestGenerateGroupsCoveredCall checks the groups of a covered call payout.
func TestGenerateGroupsCoveredCall(t *testing.T) {
	t.Parallel()

	params := coveredCall()
	groups, err := GenerateGroups(params)
	require.NoError(t, err)

	// The payout starts at zero and ends at the full collateral.
	require.EqualValues(t, 0, groups[0].Payout)
	require.EqualValues(t, coveredCallTotal, groups[len(groups)-1].Payout)

	// Every payout is a multiple of the rounding modulus and adjacent
	// groups never share a payout.
	for i, g := range groups {
		require.Zero(t, g.Payout%10000)
		require.NotEmpty(t, g.Prefixes)
		if i > 0 {
			require.Greater(t, g.Payout, groups[i-1].Payout)
		}
	}

	// The groups cover the whole domain in order.
	var next uint64
	for _, g := range groups {
		for _, prefix := range g.Prefixes {
			lo, hi, err := PrefixRange(prefix, 2, coveredCallDigits)
			require.NoError(t, err)
			require.Equal(t, next, lo)
			next = hi + 1
		}
	}
	require.EqualValues(t, 1<<coveredCallDigits, next)

	// Outcomes 3000 and 30000 land in the first and last group.
	p, err := params.Function.RoundedPayout(
		3000, params.Rounding, params.TotalCollateral,
	)
	require.NoError(t, err)
	require.Zero(t, p)

	p, err = params.Function.RoundedPayout(
		30000, params.Rounding, params.TotalCollateral,
	)
	require.NoError(t, err)
	require.EqualValues(t, coveredCallTotal, p)
}

// TestPayoutRangesMergeAcrossPieces checks runs of equal payout continue
// over piece boundaries.
func TestPayoutRangesMergeAcrossPieces(t *testing.T) {
	t.Parallel()

	params := &GroupParams{
		Function: &Function{Pieces: []Piece{
			{EndOutcome: 7, Curve: &Polynomial{Points: []Point{
				{Outcome: 0, Payout: 10}, {Outcome: 7, Payout: 10},
			}}},
			{EndOutcome: 15, Curve: &Polynomial{Points: []Point{
				{Outcome: 7, Payout: 10}, {Outcome: 15, Payout: 10},
			}}},
		}},
		Rounding:        NoRounding(),
		TotalCollateral: 10,
		Base:            2,
		NumDigits:       4,
	}

	ranges, err := PayoutRanges(params)
	require.NoError(t, err)
	require.Equal(t, []Range{{From: 0, To: 15, Payout: 10}}, ranges)

	groups, err := GenerateGroups(params)
	require.NoError(t, err)
	require.Equal(t, 2, CetCount(groups))
}

// scanEveryOutcome evaluates every outcome of the domain and merges equal
// neighbours.
func scanEveryOutcome(t require.TestingT, p *GroupParams) []Range {
	maxOutcome, err := MaxOutcome(p.Base, p.NumDigits)
	require.NoError(t, err)

	var ranges []Range
	for outcome := uint64(0); outcome <= maxOutcome; outcome++ {
		payout, err := p.Function.RoundedPayout(
			outcome, p.Rounding, p.TotalCollateral,
		)
		require.NoError(t, err)

		n := len(ranges)
		if n > 0 && ranges[n-1].Payout == payout {
			ranges[n-1].To = outcome
			continue
		}
		ranges = append(ranges, Range{
			From: outcome, To: outcome, Payout: payout,
		})
	}

	return ranges
}

// TestPayoutRangesMatchesOutcomeScan checks the runs found by searching
// monotone segments are the ones of an outcome by outcome scan, including
// for polynomials that rise and fall within a piece.
func TestPayoutRangesMatchesOutcomeScan(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		base := rapid.Uint64Range(2, 4).Draw(t, "base")
		numDigits := rapid.IntRange(2, 6).Draw(t, "numDigits")
		maxOutcome, err := MaxOutcome(base, numDigits)
		require.NoError(t, err)

		const total = 1000
		numPoints := rapid.IntRange(2, 5).Draw(t, "numPoints")
		if uint64(numPoints) > maxOutcome+1 {
			numPoints = int(maxOutcome + 1)
		}

		// Distinct ascending knots from 0 to maxOutcome.
		knots := map[uint64]struct{}{0: {}, maxOutcome: {}}
		for len(knots) < numPoints {
			k := rapid.Uint64Range(1, maxOutcome-1).Draw(t, "knot")
			knots[k] = struct{}{}
		}
		var points []Point
		for outcome := uint64(0); outcome <= maxOutcome; outcome++ {
			if _, ok := knots[outcome]; !ok {
				continue
			}
			points = append(points, Point{
				Outcome: outcome,
				Payout: rapid.Uint64Range(0, total).Draw(
					t, "payout",
				),
				ExtraPrecision: rapid.Uint16().Draw(t, "extra"),
			})
		}

		rounding := RoundingIntervals{Intervals: []RoundingInterval{{
			BeginInterval: 0,
			RoundingMod:   rapid.Uint64Range(1, 50).Draw(t, "mod"),
		}}}
		if rapid.Bool().Draw(t, "secondInterval") {
			rounding.Intervals = append(
				rounding.Intervals, RoundingInterval{
					BeginInterval: rapid.Uint64Range(
						1, maxOutcome,
					).Draw(t, "begin"),
					RoundingMod: rapid.Uint64Range(
						1, 50,
					).Draw(t, "mod2"),
				},
			)
		}

		params := &GroupParams{
			Function: &Function{Pieces: []Piece{{
				EndOutcome: maxOutcome,
				Curve:      &Polynomial{Points: points},
			}}},
			Rounding:        rounding,
			TotalCollateral: total,
			Base:            base,
			NumDigits:       numDigits,
		}

		ranges, err := PayoutRanges(params)
		require.NoError(t, err)
		require.Equal(t, scanEveryOutcome(t, params), ranges)
	})
}

// TestPayoutRangesHyperbola checks the covered call over a small domain
// against an outcome by outcome scan.
func TestPayoutRangesHyperbola(t *testing.T) {
	t.Parallel()

	params := coveredCall()
	params.NumDigits = 14
	params.Function.Pieces[1].EndOutcome = 1<<14 - 1
	params.Rounding = RoundingIntervals{Intervals: []RoundingInterval{
		{BeginInterval: 0, RoundingMod: 100},
		{BeginInterval: 6000, RoundingMod: 5000},
	}}

	ranges, err := PayoutRanges(params)
	require.NoError(t, err)
	require.Equal(t, scanEveryOutcome(t, params), ranges)
}

// TestGenerateGroupsLargeDomain checks a forty digit covered call is grouped
// without walking its outcomes.
func TestGenerateGroupsLargeDomain(t *testing.T) {
	t.Parallel()

	const numDigits = 40

	params := coveredCall()
	params.NumDigits = numDigits
	params.Function.Pieces[1].EndOutcome = 1<<numDigits - 1

	groups, err := GenerateGroups(params)
	require.NoError(t, err)
	require.EqualValues(t, 0, groups[0].Payout)
	require.EqualValues(t, coveredCallTotal, groups[len(groups)-1].Payout)
	require.LessOrEqual(t, len(groups), coveredCallTotal/10000+1)

	var next uint64
	for _, g := range groups {
		for _, prefix := range g.Prefixes {
			lo, hi, err := PrefixRange(prefix, 2, numDigits)
			require.NoError(t, err)
			require.Equal(t, next, lo)
			next = hi + 1
		}
	}
	require.EqualValues(t, uint64(1)<<numDigits, next)
}

// TestGenerateGroupsTooManyCets checks functions needing more CETs than a
// contract can carry are rejected.
func TestGenerateGroupsTooManyCets(t *testing.T) {
	t.Parallel()

	const numDigits = 17
	maxOutcome := uint64(1)<<numDigits - 1

	params := &GroupParams{
		Function: &Function{Pieces: []Piece{{
			EndOutcome: maxOutcome,
			Curve: &Polynomial{Points: []Point{
				{Outcome: 0, Payout: 0},
				{Outcome: maxOutcome, Payout: maxOutcome},
			}},
		}}},
		Rounding:        NoRounding(),
		TotalCollateral: maxOutcome,
		Base:            2,
		NumDigits:       numDigits,
	}

	_, err := GenerateGroups(params)
	require.ErrorIs(t, err, ErrTooManyCets)
}
