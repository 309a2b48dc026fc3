package dlcwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/oracle"
	"github.com/dlcproto/dlcd/payout"
)

// contractPlan holds the CETs of one descriptor and oracle pair.
type contractPlan struct {
	// descriptor is the pair's payout description.
	descriptor dlcwire.ContractDescriptor

	// ann is the announcement messages are derived from.
	ann *oracle.Announcement

	// offset is the index of the pair's first CET among all CETs.
	offset int

	// payouts holds the offerer payout of every CET of the pair.
	payouts []btcutil.Amount

	// messages holds the oracle messages of every CET of the pair.
	messages oracle.Messages

	// groups and base are only set for numeric descriptors.
	groups []payout.Group
	base   uint64
}

// CetPlan lays out every CET of a contract: its payout and the oracle
// messages that unlock it. CETs of several descriptor and oracle pairs are
// concatenated in pair order.
type CetPlan struct {
	total     btcutil.Amount
	contracts []*contractPlan
	numCets   int
}

// NewCetPlan derives the CETs of the contract info. The contract info must
// have been validated.
func NewCetPlan(info *dlcwire.ContractInfo) (*CetPlan, error) {
	plan := &CetPlan{total: info.TotalCollateral}

	for i := range info.Contracts {
		co := &info.Contracts[i]

		ann := co.OracleInfo.FirstAnnouncement()
		if ann == nil {
			return nil, dlcwire.ErrNoAnnouncements
		}

		cp := &contractPlan{
			descriptor: co.Descriptor,
			ann:        ann,
			offset:     plan.numCets,
		}

		switch d := co.Descriptor.(type) {
		case *dlcwire.EnumeratedDescriptor:
			cp.messages = oracle.EnumMessages(d.OutcomeStrings())
			cp.payouts = make([]btcutil.Amount, len(d.Outcomes))
			for j, o := range d.Outcomes {
				cp.payouts[j] = o.OfferPayout
			}

		case *dlcwire.NumericDescriptor:
			event, ok := ann.Event.(*oracle.DigitEvent)
			if !ok {
				return nil, fmt.Errorf("contract %d: numeric "+
					"descriptor with %T event", i, ann.Event)
			}

			groups, err := payout.GenerateGroups(
				d.GroupParams(event.Base, info.TotalCollateral),
			)
			if err != nil {
				return nil, fmt.Errorf("contract %d: %w", i, err)
			}

			cp.groups = groups
			cp.base = event.Base
			cp.messages = oracle.DigitMessages(groups)
			cp.payouts = make(
				[]btcutil.Amount, 0, payout.CetCount(groups),
			)
			for _, g := range groups {
				for range g.Prefixes {
					cp.payouts = append(
						cp.payouts,
						btcutil.Amount(g.Payout),
					)
				}
			}

		default:
			return nil, fmt.Errorf("contract %d: unknown "+
				"descriptor %T", i, co.Descriptor)
		}

		plan.numCets += len(cp.payouts)
		plan.contracts = append(plan.contracts, cp)
	}

	log.Debugf("Planned %d cets over %d contracts", plan.numCets,
		len(plan.contracts))

	return plan, nil
}

// NumCets returns the number of CETs of the contract.
func (p *CetPlan) NumCets() int {
	return p.numCets
}

// OfferPayouts returns the offerer payout of every CET.
func (p *CetPlan) OfferPayouts() []btcutil.Amount {
	payouts := make([]btcutil.Amount, 0, p.numCets)
	for _, cp := range p.contracts {
		payouts = append(payouts, cp.payouts...)
	}

	return payouts
}

// Messages returns the oracle messages of every CET.
func (p *CetPlan) Messages() oracle.Messages {
	msgs := make(oracle.Messages, 0, p.numCets)
	for _, cp := range p.contracts {
		msgs = append(msgs, cp.messages...)
	}

	return msgs
}

// AdaptorPoints returns the adaptor point of every CET: the sum of the
// oracle signature points of its messages.
func (p *CetPlan) AdaptorPoints() ([]*btcec.PublicKey, error) {
	points := make([]*btcec.PublicKey, 0, p.numCets)
	for i, cp := range p.contracts {
		table, err := oracle.NewSigPointTable(cp.ann)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", i, err)
		}

		pts, err := table.AdaptorPoints(cp.messages)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", i, err)
		}
		points = append(points, pts...)
	}

	return points, nil
}
