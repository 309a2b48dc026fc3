package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/dlcproto/dlcd/dlcwallet"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/oracle"
	"github.com/dlcproto/dlcd/payout"
	"github.com/urfave/cli"
)

var contractIDCommand = cli.Command{
	Name:      "contractid",
	Category:  "Contracts",
	Usage:     "Derive the id of a funded contract.",
	ArgsUsage: "fund_txid fund_vout temp_id",
	Description: `
	Compute the contract id from the funding transaction id, the index of
	the funding output and the temporary contract id of the offer.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "fund_txid",
			Usage: "the id of the funding transaction",
		},
		cli.Uint64Flag{
			Name:  "fund_vout",
			Usage: "the index of the funding output",
		},
		cli.StringFlag{
			Name:  "temp_id",
			Usage: "the hex encoded temporary contract id",
		},
	},
	Action: actionDecorator(contractID),
}

func contractID(ctx *cli.Context) error {
	args := ctx.Args()

	txid := ctx.String("fund_txid")
	if txid == "" && args.Present() {
		txid = args.First()
		args = args.Tail()
	}

	vout := ctx.Uint64("fund_vout")
	if !ctx.IsSet("fund_vout") && args.Present() {
		if _, err := fmt.Sscan(args.First(), &vout); err != nil {
			return fmt.Errorf("unable to parse fund_vout: %w", err)
		}
		args = args.Tail()
	}

	tempID := ctx.String("temp_id")
	if tempID == "" && args.Present() {
		tempID = args.First()
	}

	cid, err := deriveContractID(txid, vout, tempID)
	if err != nil {
		return err
	}

	printJSON(struct {
		ContractID string `json:"contract_id"`
	}{cid.String()})

	return nil
}

// deriveContractID parses the command arguments and derives the id.
func deriveContractID(txid string, vout uint64,
	tempIDHex string) (dlcwallet.ContractID, error) {

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return dlcwallet.ContractID{}, fmt.Errorf("unable to parse "+
			"fund_txid: %w", err)
	}

	rawTemp, err := hex.DecodeString(tempIDHex)
	if err != nil {
		return dlcwallet.ContractID{}, fmt.Errorf("unable to parse "+
			"temp_id: %w", err)
	}
	if len(rawTemp) != 32 {
		return dlcwallet.ContractID{}, fmt.Errorf("temp_id must be "+
			"32 bytes, got %d", len(rawTemp))
	}
	if vout > 0xffff {
		return dlcwallet.ContractID{}, fmt.Errorf("fund_vout %d out "+
			"of range", vout)
	}

	var tempID [32]byte
	copy(tempID[:], rawTemp)

	return dlcwallet.NewContractID(*hash, uint32(vout), tempID)
}

var decodeMsgCommand = cli.Command{
	Name:      "decodemsg",
	Category:  "Contracts",
	Usage:     "Decode a hex encoded contract message.",
	ArgsUsage: "msg",
	Description: `
	Decode an offer, accept, sign or close message and print a summary of
	its fields. Payout and change scripts are shown as addresses of the
	configured network.`,
	Action: actionDecorator(decodeMsg),
}

func decodeMsg(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.ShowCommandHelp(ctx, "decodemsg")
	}

	summary, err := summarizeMsg(ctx.Args().First(), cfg.ActiveNetParams)
	if err != nil {
		return err
	}
	printJSON(summary)

	return nil
}

// msgSummary is the printed form of a decoded message. Fields not carried
// by the message type are omitted.
type msgSummary struct {
	Type                string   `json:"type"`
	TemporaryContractID string   `json:"temporary_contract_id,omitempty"`
	ContractID          string   `json:"contract_id,omitempty"`
	Collateral          int64    `json:"collateral,omitempty"`
	TotalCollateral     int64    `json:"total_collateral,omitempty"`
	FeeRate             uint64   `json:"fee_rate,omitempty"`
	CetLocktime         uint32   `json:"cet_locktime,omitempty"`
	RefundLocktime      uint32   `json:"refund_locktime,omitempty"`
	NumCets             int      `json:"num_cets,omitempty"`
	Events              []string `json:"events,omitempty"`
	PayoutAddress       string   `json:"payout_address,omitempty"`
	ChangeAddress       string   `json:"change_address,omitempty"`
	NumFundingInputs    int      `json:"num_funding_inputs"`
	NumCetSignatures    int      `json:"num_cet_signatures,omitempty"`
	NumFundingSigs      int      `json:"num_funding_signatures,omitempty"`
	OfferPayout         int64    `json:"offer_payout,omitempty"`
	AcceptPayout        int64    `json:"accept_payout,omitempty"`
}

// scriptAddress renders a script as an address, or as hex if it is not a
// standard one.
func scriptAddress(script []byte, params *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil || len(addrs) != 1 {
		return hex.EncodeToString(script)
	}

	return addrs[0].EncodeAddress()
}

// summarizeMsg decodes a hex encoded message.
func summarizeMsg(msgHex string,
	params *chaincfg.Params) (*msgSummary, error) {

	raw, err := hex.DecodeString(strings.TrimSpace(msgHex))
	if err != nil {
		return nil, fmt.Errorf("unable to decode hex: %w", err)
	}

	msg, err := dlcwire.ReadMessage(bytes.NewReader(raw), 0)
	if err != nil {
		return nil, err
	}

	s := &msgSummary{Type: msg.MsgType().String()}
	switch m := msg.(type) {
	case *dlcwire.DlcOffer:
		plan, err := dlcwallet.NewCetPlan(&m.ContractInfo)
		if err != nil {
			return nil, err
		}

		s.TemporaryContractID = hex.EncodeToString(
			m.TemporaryContractID[:],
		)
		s.Collateral = int64(m.OfferCollateral)
		s.TotalCollateral = int64(m.ContractInfo.TotalCollateral)
		s.FeeRate = m.FeeRatePerVByte
		s.CetLocktime = m.CetLocktime
		s.RefundLocktime = m.RefundLocktime
		s.NumCets = plan.NumCets()
		s.PayoutAddress = scriptAddress(m.PayoutSPK, params)
		s.ChangeAddress = scriptAddress(m.ChangeSPK, params)
		s.NumFundingInputs = len(m.FundingInputs)
		for _, co := range m.ContractInfo.Contracts {
			ann := co.OracleInfo.FirstAnnouncement()
			s.Events = append(s.Events, ann.EventID)
		}

	case *dlcwire.DlcAccept:
		s.TemporaryContractID = hex.EncodeToString(
			m.TemporaryContractID[:],
		)
		s.Collateral = int64(m.AcceptCollateral)
		s.PayoutAddress = scriptAddress(m.PayoutSPK, params)
		s.ChangeAddress = scriptAddress(m.ChangeSPK, params)
		s.NumFundingInputs = len(m.FundingInputs)
		s.NumCetSignatures = len(m.CetAdaptorSignatures)

	case *dlcwire.DlcSign:
		s.ContractID = hex.EncodeToString(m.ContractID[:])
		s.NumCetSignatures = len(m.CetAdaptorSignatures)
		s.NumFundingSigs = len(m.FundingSignatures)

	case *dlcwire.DlcClose:
		s.ContractID = hex.EncodeToString(m.ContractID[:])
		s.OfferPayout = int64(m.OfferPayout)
		s.AcceptPayout = int64(m.AcceptPayout)
		s.NumFundingInputs = len(m.FundingInputs)
		s.NumFundingSigs = len(m.FundingSignatures)

	default:
		return nil, fmt.Errorf("unexpected message %v", msg.MsgType())
	}

	return s, nil
}

var payoutGroupsCommand = cli.Command{
	Name:      "payoutgroups",
	Category:  "Contracts",
	Usage:     "List the CETs of an offer.",
	ArgsUsage: "offer",
	Description: `
	Decode a hex encoded offer and list every CET it implies: for
	enumerated contracts the outcome and payout, for numeric contracts
	each payout group with the digit prefixes and outcome ranges it
	covers.`,
	Action: actionDecorator(payoutGroups),
}

func payoutGroups(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.ShowCommandHelp(ctx, "payoutgroups")
	}

	raw, err := hex.DecodeString(strings.TrimSpace(ctx.Args().First()))
	if err != nil {
		return fmt.Errorf("unable to decode hex: %w", err)
	}

	msg, err := dlcwire.ReadMessage(bytes.NewReader(raw), 0)
	if err != nil {
		return err
	}
	offer, ok := msg.(*dlcwire.DlcOffer)
	if !ok {
		return fmt.Errorf("expected an offer, got %v", msg.MsgType())
	}

	listing, err := listCets(&offer.ContractInfo)
	if err != nil {
		return err
	}
	printJSON(listing)

	return nil
}

// cetGroup is one payout and the outcomes that lead to it.
type cetGroup struct {
	Payout   uint64   `json:"payout"`
	Outcomes []string `json:"outcomes"`
	Prefixes []string `json:"prefixes,omitempty"`
}

// contractListing lists the CETs of one descriptor and oracle pair.
type contractListing struct {
	EventID string     `json:"event_id"`
	NumCets int        `json:"num_cets"`
	Groups  []cetGroup `json:"groups"`
}

// listCets lays out the CETs of every pair of the contract info.
func listCets(info *dlcwire.ContractInfo) ([]contractListing, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	var listings []contractListing
	for i := range info.Contracts {
		co := &info.Contracts[i]
		ann := co.OracleInfo.FirstAnnouncement()
		listing := contractListing{EventID: ann.EventID}

		switch d := co.Descriptor.(type) {
		case *dlcwire.EnumeratedDescriptor:
			for _, o := range d.Outcomes {
				listing.Groups = append(listing.Groups, cetGroup{
					Payout:   uint64(o.OfferPayout),
					Outcomes: []string{o.Outcome},
				})
			}
			listing.NumCets = len(d.Outcomes)

		case *dlcwire.NumericDescriptor:
			event, ok := ann.Event.(*oracle.DigitEvent)
			if !ok {
				return nil, errors.New("numeric descriptor " +
					"without digit event")
			}

			groups, err := payout.GenerateGroups(
				d.GroupParams(event.Base, info.TotalCollateral),
			)
			if err != nil {
				return nil, err
			}

			for _, g := range groups {
				cg, err := describeGroup(
					g, event.Base, int(d.NumDigits),
				)
				if err != nil {
					return nil, err
				}
				listing.Groups = append(listing.Groups, cg)
			}
			listing.NumCets = payout.CetCount(groups)

		default:
			return nil, fmt.Errorf("unknown descriptor %T",
				co.Descriptor)
		}

		listings = append(listings, listing)
	}

	return listings, nil
}

// describeGroup renders the prefixes of a payout group and the outcome
// ranges they cover.
func describeGroup(g payout.Group, base uint64,
	numDigits int) (cetGroup, error) {

	cg := cetGroup{Payout: g.Payout}
	for _, prefix := range g.Prefixes {
		from, to, err := payout.PrefixRange(prefix, base, numDigits)
		if err != nil {
			return cetGroup{}, err
		}

		cg.Prefixes = append(
			cg.Prefixes, strings.Join(oracle.PrefixMessages(prefix), ""),
		)
		cg.Outcomes = append(cg.Outcomes, fmt.Sprintf("%d-%d", from, to))
	}

	return cg, nil
}
