package oracle

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dlcproto/dlcd/payout"
)

// Messages holds the ordered oracle-signable strings of every CET. Entry i
// belongs to CET i.
type Messages [][]string

// NonceMessages returns, per nonce, every value the oracle may sign with it.
// Enumerated events have a single nonce listing all outcomes; digit events
// list every digit 0..base-1 for every nonce.
func NonceMessages(event EventDescriptor) ([][]string, error) {
	switch e := event.(type) {
	case *EnumEvent:
		outcomes := make([]string, len(e.Outcomes))
		copy(outcomes, e.Outcomes)

		return [][]string{outcomes}, nil

	case *DigitEvent:
		digits := make([]string, e.Base)
		for d := range digits {
			digits[d] = strconv.Itoa(d)
		}

		table := make([][]string, e.NumDigits)
		for i := range table {
			table[i] = digits
		}

		return table, nil

	default:
		return nil, fmt.Errorf("unknown event descriptor %T", event)
	}
}

// EnumMessages returns one single-element message list per outcome.
func EnumMessages(outcomes []string) Messages {
	msgs := make(Messages, len(outcomes))
	for i, outcome := range outcomes {
		msgs[i] = []string{outcome}
	}

	return msgs
}

// PrefixMessages returns the messages the oracle signs for a digit prefix.
func PrefixMessages(prefix []int) []string {
	msgs := make([]string, len(prefix))
	for i, d := range prefix {
		msgs[i] = strconv.Itoa(d)
	}

	return msgs
}

// DigitMessages returns the message lists of every CET of the payout groups,
// in group then prefix order.
func DigitMessages(groups []payout.Group) Messages {
	msgs := make(Messages, 0, payout.CetCount(groups))
	for _, g := range groups {
		for _, prefix := range g.Prefixes {
			msgs = append(msgs, PrefixMessages(prefix))
		}
	}

	return msgs
}

// SigPointTable caches the signature point of every value under every nonce
// of an announcement so adaptor points of many CETs can be summed without
// recomputing the oracle side hashes.
type SigPointTable struct {
	points []map[string]*btcec.PublicKey
}

// NewSigPointTable computes the signature points of every value the oracle
// may sign for the announcement.
func NewSigPointTable(ann *Announcement) (*SigPointTable, error) {
	if err := ann.Validate(); err != nil {
		return nil, err
	}

	nonceMsgs, err := NonceMessages(ann.Event)
	if err != nil {
		return nil, err
	}

	table := &SigPointTable{
		points: make([]map[string]*btcec.PublicKey, len(nonceMsgs)),
	}
	for i, msgs := range nonceMsgs {
		table.points[i] = make(map[string]*btcec.PublicKey, len(msgs))
		for _, msg := range msgs {
			pt, err := SigPoint(ann.OraclePubKey, ann.Nonces[i], msg)
			if err != nil {
				return nil, err
			}
			table.points[i][msg] = pt
		}
	}

	log.Debugf("Computed signature points for event %q over %d nonces",
		ann.EventID, len(nonceMsgs))

	return table, nil
}

// AdaptorPoint returns the sum of the signature points of msgs, the i-th
// message under the i-th nonce. Its discrete log is the attestation secret
// of a CET whose messages are msgs.
func (t *SigPointTable) AdaptorPoint(msgs []string) (*btcec.PublicKey, error) {
	if len(msgs) == 0 || len(msgs) > len(t.points) {
		return nil, fmt.Errorf("invalid message count %d for %d nonces",
			len(msgs), len(t.points))
	}

	points := make([]*btcec.PublicKey, len(msgs))
	for i, msg := range msgs {
		pt, ok := t.points[i][msg]
		if !ok {
			return nil, fmt.Errorf("message %q not signable with "+
				"nonce %d", msg, i)
		}
		points[i] = pt
	}

	return SumPoints(points)
}

// AdaptorPoints returns the adaptor point of every CET.
func (t *SigPointTable) AdaptorPoints(msgs Messages) ([]*btcec.PublicKey,
	error) {

	points := make([]*btcec.PublicKey, len(msgs))
	for i, m := range msgs {
		pt, err := t.AdaptorPoint(m)
		if err != nil {
			return nil, fmt.Errorf("cet %d: %w", i, err)
		}
		points[i] = pt
	}

	return points, nil
}
