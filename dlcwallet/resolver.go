package dlcwallet

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/oracle"
	"github.com/dlcproto/dlcd/payout"
)

// Resolution locates the CET an attestation unlocks.
type Resolution struct {
	// ContractIndex is the descriptor and oracle pair the attestation
	// belongs to.
	ContractIndex int

	// CetIndex is the index of the CET among all CETs of the contract.
	CetIndex int

	// GroupLength is the number of attested values the CET's adaptor
	// point covers. Values beyond it are not needed to decrypt.
	GroupLength int

	// Outcome is the attested outcome: the outcome string of an
	// enumerated event or the decoded decimal value of a numeric one.
	Outcome string

	Payout btcutil.Amount
}

// Resolve finds the CET unlocked by the attestation. The attestation must be
// for the event of one of the contract's announcements and its signatures
// must verify against that announcement.
func (p *CetPlan) Resolve(att *oracle.Attestation) (*Resolution, error) {
	idx := -1
	known := make([]string, 0, len(p.contracts))
	for i, cp := range p.contracts {
		known = append(known, cp.ann.EventID)
		if idx == -1 && cp.ann.EventID == att.EventID {
			idx = i
		}
	}
	if idx == -1 {
		return nil, &ErrUnknownEvent{
			EventID: att.EventID,
			Known:   known,
		}
	}

	cp := p.contracts[idx]
	if err := att.Verify(cp.ann); err != nil {
		return nil, err
	}

	var (
		res *Resolution
		err error
	)
	switch d := cp.descriptor.(type) {
	case *dlcwire.EnumeratedDescriptor:
		res, err = cp.resolveEnum(att)

	case *dlcwire.NumericDescriptor:
		res, err = cp.resolveNumeric(d, att, p.total)

	default:
		return nil, fmt.Errorf("unknown descriptor %T", cp.descriptor)
	}
	if err != nil {
		return nil, err
	}

	res.ContractIndex = idx
	res.CetIndex += cp.offset

	log.Debugf("Resolved outcome %s of event %q to cet %d (payout %v, "+
		"%d values)", res.Outcome, att.EventID, res.CetIndex,
		res.Payout, res.GroupLength)

	return res, nil
}

// resolveEnum matches the attested outcome against the outcome strings,
// also accepting oracles that attest to the outcome's hash.
func (cp *contractPlan) resolveEnum(att *oracle.Attestation) (*Resolution,
	error) {

	attested := att.Outcomes[0]
	for i, msgs := range cp.messages {
		outcome := msgs[0]
		if attested != outcome && attested != oracle.OutcomeHash(outcome) {
			continue
		}

		return &Resolution{
			CetIndex:    i,
			GroupLength: 1,
			Outcome:     outcome,
			Payout:      cp.payouts[i],
		}, nil
	}

	return nil, &ErrNoMatchingGroup{
		EventID: att.EventID,
		Outcome: attested,
	}
}

// attestedDigits parses the first numDigits attested values as digits.
func attestedDigits(att *oracle.Attestation, numDigits int) ([]int, error) {
	if len(att.Outcomes) < numDigits {
		return nil, fmt.Errorf("attestation has %d digits, event needs "+
			"%d", len(att.Outcomes), numDigits)
	}

	digits := make([]int, numDigits)
	for i, v := range att.Outcomes[:numDigits] {
		d, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("digit %d: %w", i, err)
		}
		digits[i] = d
	}

	return digits, nil
}

// hasPrefix reports whether prefix is a prefix of digits.
func hasPrefix(digits, prefix []int) bool {
	if len(prefix) > len(digits) {
		return false
	}
	for i, d := range prefix {
		if digits[i] != d {
			return false
		}
	}

	return true
}

// groupMatch is a predicate over a payout group and one of its prefixes.
type groupMatch func(g *payout.Group, prefix []int) bool

// scanGroups returns the CET index and prefix of the first group prefix
// accepted by match.
func (cp *contractPlan) scanGroups(match groupMatch) (int, []int, bool) {
	cet := 0
	for i := range cp.groups {
		g := &cp.groups[i]
		for _, prefix := range g.Prefixes {
			if match(g, prefix) {
				return cet, prefix, true
			}
			cet++
		}
	}

	return 0, nil, false
}

// resolveNumeric decodes the attested digits, recomputes the rounded payout
// and looks for the group that pays it and whose prefix the digits start
// with. On a hyperbola piece a group whose payout is within one rounding
// modulus is accepted next, since rounding can push the boundary outcome
// into the neighbouring group. As a last resort any group whose prefix
// matches is used.
func (cp *contractPlan) resolveNumeric(d *dlcwire.NumericDescriptor,
	att *oracle.Attestation, total btcutil.Amount) (*Resolution, error) {

	numDigits := int(d.NumDigits)
	digits, err := attestedDigits(att, numDigits)
	if err != nil {
		return nil, err
	}

	outcome, err := payout.FromDigits(digits, cp.base)
	if err != nil {
		return nil, err
	}
	outcomeStr := strconv.FormatUint(outcome, 10)

	expected, err := d.Function.RoundedPayout(
		outcome, d.Rounding, uint64(total),
	)
	if err != nil {
		return nil, err
	}

	cet, prefix, ok := cp.scanGroups(func(g *payout.Group, p []int) bool {
		return g.Payout == expected && hasPrefix(digits, p)
	})

	if !ok && cp.onHyperbola(d, outcome) {
		mod := d.Rounding.ModFor(outcome)
		cet, prefix, ok = cp.scanGroups(
			func(g *payout.Group, p []int) bool {
				return absDiff(g.Payout, expected) <= mod &&
					hasPrefix(digits, p)
			},
		)
		if ok {
			log.Debugf("Outcome %d matched a neighbouring payout "+
				"group", outcome)
		}
	}

	if !ok {
		cet, prefix, ok = cp.scanGroups(
			func(_ *payout.Group, p []int) bool {
				return hasPrefix(digits, p)
			},
		)
		if ok {
			log.Warnf("Outcome %d payout %d matched no group, "+
				"falling back to prefix match", outcome, expected)
		}
	}

	if !ok {
		return nil, &ErrNoMatchingGroup{
			EventID: att.EventID,
			Outcome: outcomeStr,
		}
	}

	return &Resolution{
		CetIndex:    cet,
		GroupLength: len(prefix),
		Outcome:     outcomeStr,
		Payout:      cp.payouts[cet],
	}, nil
}

// onHyperbola reports whether outcome falls on a hyperbola piece.
func (cp *contractPlan) onHyperbola(d *dlcwire.NumericDescriptor,
	outcome uint64) bool {

	idx, err := d.Function.PieceIndex(outcome)
	if err != nil {
		return false
	}

	return d.Function.Pieces[idx].Curve.Type() == payout.HyperbolaCurve
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}

	return b - a
}
