package dlcwallet

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/input"
)

const (
	// DustLimit is the smallest output value the contract transactions
	// create. Smaller change and payouts are left to fees.
	DustLimit btcutil.Amount = 1000

	// txVersion is the version of every contract transaction.
	txVersion = 2

	// contractSequence is the sequence of the funding input of CETs,
	// refund and close transactions. It enables locktime without
	// signalling replaceability.
	contractSequence = wire.MaxTxInSequenceNum - 1
)

// PartyParams is one side's contribution to a contract.
type PartyParams struct {
	FundPubKey     *btcec.PublicKey
	PayoutSPK      []byte
	PayoutSerialID uint64
	ChangeSPK      []byte
	ChangeSerialID uint64
	Inputs         []dlcwire.FundingInput
	Collateral     btcutil.Amount
}

// OfferParams extracts the offerer's side of a contract.
func OfferParams(o *dlcwire.DlcOffer) *PartyParams {
	return &PartyParams{
		FundPubKey:     o.FundingPubKey,
		PayoutSPK:      o.PayoutSPK,
		PayoutSerialID: o.PayoutSerialID,
		ChangeSPK:      o.ChangeSPK,
		ChangeSerialID: o.ChangeSerialID,
		Inputs:         o.FundingInputs,
		Collateral:     o.OfferCollateral,
	}
}

// AcceptParams extracts the accepter's side of a contract.
func AcceptParams(a *dlcwire.DlcAccept) *PartyParams {
	return &PartyParams{
		FundPubKey:     a.FundingPubKey,
		PayoutSPK:      a.PayoutSPK,
		PayoutSerialID: a.PayoutSerialID,
		ChangeSPK:      a.ChangeSPK,
		ChangeSerialID: a.ChangeSerialID,
		Inputs:         a.FundingInputs,
		Collateral:     a.AcceptCollateral,
	}
}

// contributes returns false for a party bringing neither collateral nor
// inputs. Such a party pays no fees and gets no change output.
func (p *PartyParams) contributes() bool {
	return p.Collateral > 0 || len(p.Inputs) > 0
}

// inputWeight returns the weight a funding input adds to the funding
// transaction.
func inputWeight(in *dlcwire.FundingInput) int64 {
	scriptSigLen := 0
	if len(in.RedeemScript) > 0 {
		scriptSigLen = 1 + len(in.RedeemScript)
	}

	witnessLen := int(in.MaxWitnessLen)
	if in.DlcInput.IsSome() {
		witnessLen = input.MultiSigWitnessSize
	}

	return input.InputWeight(scriptSigLen, witnessLen)
}

// Fees returns the party's share of the funding transaction fee and of the
// CET (or refund) fee at feeRate sat/vbyte. Each party pays half of the
// shared transaction weight plus the weight of its own inputs and outputs.
func (p *PartyParams) Fees(feeRate uint64) (btcutil.Amount, btcutil.Amount) {
	if !p.contributes() {
		return 0, 0
	}

	fundWeight := int64(input.FundTxBaseWeight/2) +
		input.OutputWeight(len(p.ChangeSPK))
	for i := range p.Inputs {
		fundWeight += inputWeight(&p.Inputs[i])
	}

	cetWeight := int64(input.CetBaseWeight/2) +
		input.OutputWeight(len(p.PayoutSPK))

	fundFee := btcutil.Amount(input.FeeForWeight(fundWeight, feeRate))
	cetFee := btcutil.Amount(input.FeeForWeight(cetWeight, feeRate))

	return fundFee, cetFee
}

// inputsValue returns the total value spent by the party's inputs.
func (p *PartyParams) inputsValue() (btcutil.Amount, error) {
	var total btcutil.Amount
	for i := range p.Inputs {
		prevOut, err := p.Inputs[i].PrevOut()
		if err != nil {
			return 0, fmt.Errorf("input %d: %w",
				p.Inputs[i].InputSerialID, err)
		}
		total += btcutil.Amount(prevOut.Value)
	}

	return total, nil
}

// change returns the party's change and its CET fee share.
func (p *PartyParams) change(feeRate uint64) (btcutil.Amount,
	btcutil.Amount, error) {

	fundFee, cetFee := p.Fees(feeRate)

	available, err := p.inputsValue()
	if err != nil {
		return 0, 0, err
	}

	needed := p.Collateral + fundFee + cetFee
	if available < needed {
		return 0, 0, &ErrInsufficientFunds{
			Needed:    needed,
			Available: available,
		}
	}

	return available - needed, cetFee, nil
}

// checkDlcInput checks a spliced contract input really spends a 2-of-2
// output of the keys it claims.
func checkDlcInput(in *dlcwire.FundingInput) error {
	if in.DlcInput.IsNone() {
		return nil
	}

	marker := in.DlcInput.UnsafeFromSome()
	if marker.LocalFundPubKey == nil || marker.RemoteFundPubKey == nil {
		return dlcwire.ErrNilPublicKey
	}

	prevOut, err := in.PrevOut()
	if err != nil {
		return err
	}

	_, fundOut, err := input.GenFundingPkScript(
		marker.LocalFundPubKey.SerializeCompressed(),
		marker.RemoteFundPubKey.SerializeCompressed(),
		prevOut.Value,
	)
	if err != nil {
		return err
	}
	if string(fundOut.PkScript) != string(prevOut.PkScript) {
		return fmt.Errorf("dlc input %d does not spend a 2-of-2 of "+
			"its keys", in.InputSerialID)
	}

	return nil
}

// DlcTransactions are the transactions of a contract. FundTx is unsigned
// until both parties' funding witnesses are attached.
type DlcTransactions struct {
	FundTx *wire.MsgTx

	// FundTxVout is the index of the 2-of-2 output in FundTx.
	FundTxVout uint32

	// FundScript is the 2-of-2 witness script of the funding output.
	FundScript []byte

	// FundOutput is the funding output, as spent by the other
	// transactions.
	FundOutput *wire.TxOut

	Cets     []*wire.MsgTx
	RefundTx *wire.MsgTx

	ContractID ContractID
}

// FundOutPoint returns the outpoint of the funding output.
func (d *DlcTransactions) FundOutPoint() wire.OutPoint {
	return wire.OutPoint{
		Hash:  d.FundTx.TxHash(),
		Index: d.FundTxVout,
	}
}

// serialOutput is an output together with the serial id ordering it.
type serialOutput struct {
	serialID uint64
	txOut    *wire.TxOut
}

// serialInput is a funding input together with its serial id.
type serialInput struct {
	serialID uint64
	in       *dlcwire.FundingInput
}

// sortedInputs returns the funding inputs of both parties sorted by serial
// id.
func sortedInputs(offer, accept *PartyParams) []serialInput {
	inputs := make([]serialInput, 0, len(offer.Inputs)+len(accept.Inputs))
	for _, p := range []*PartyParams{offer, accept} {
		for i := range p.Inputs {
			inputs = append(inputs, serialInput{
				serialID: p.Inputs[i].InputSerialID,
				in:       &p.Inputs[i],
			})
		}
	}
	sort.Slice(inputs, func(i, j int) bool {
		return inputs[i].serialID < inputs[j].serialID
	})

	return inputs
}

// nestedScriptSig returns the script sig of a nested segwit input, which
// is known before signing and so is part of the txid.
func nestedScriptSig(redeemScript []byte) ([]byte, error) {
	if len(redeemScript) == 0 {
		return nil, nil
	}

	return txscript.NewScriptBuilder().AddData(redeemScript).Script()
}

// BuildFundTx creates the unsigned funding transaction: every funding input
// of both parties, the 2-of-2 output holding the total collateral plus both
// CET fee shares, and one change output per contributing party whose
// change is above dust. Inputs and outputs are ordered by serial id.
func BuildFundTx(offer, accept *PartyParams, fundOutputSerialID uint64,
	feeRate uint64) (*DlcTransactions, error) {

	if offer.FundPubKey.IsEqual(accept.FundPubKey) {
		return nil, ErrSameFundingPubkey
	}
	for _, p := range []*PartyParams{offer, accept} {
		for i := range p.Inputs {
			if err := checkDlcInput(&p.Inputs[i]); err != nil {
				return nil, err
			}
		}
	}

	offerChange, offerCetFee, err := offer.change(feeRate)
	if err != nil {
		return nil, fmt.Errorf("offer: %w", err)
	}
	acceptChange, acceptCetFee, err := accept.change(feeRate)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}

	fundValue := offer.Collateral + accept.Collateral + offerCetFee +
		acceptCetFee
	fundScript, fundOut, err := input.GenFundingPkScript(
		offer.FundPubKey.SerializeCompressed(),
		accept.FundPubKey.SerializeCompressed(),
		int64(fundValue),
	)
	if err != nil {
		return nil, err
	}

	for _, p := range []*PartyParams{offer, accept} {
		if bytes.Equal(p.ChangeSPK, fundOut.PkScript) {
			return nil, ErrChangeToFundScript
		}
	}

	fundTx := wire.NewMsgTx(txVersion)
	for _, si := range sortedInputs(offer, accept) {
		sigScript, err := nestedScriptSig(si.in.RedeemScript)
		if err != nil {
			return nil, err
		}
		if si.in.PrevTx == nil {
			return nil, dlcwire.ErrNilTx
		}

		fundTx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: si.in.OutPoint(),
			SignatureScript:  sigScript,
			Sequence:         si.in.Sequence,
		})
	}

	outputs := []serialOutput{{
		serialID: fundOutputSerialID,
		txOut:    fundOut,
	}}
	for _, c := range []struct {
		p      *PartyParams
		change btcutil.Amount
	}{
		{offer, offerChange},
		{accept, acceptChange},
	} {
		if !c.p.contributes() || c.change < DustLimit {
			continue
		}
		outputs = append(outputs, serialOutput{
			serialID: c.p.ChangeSerialID,
			txOut:    wire.NewTxOut(int64(c.change), c.p.ChangeSPK),
		})
	}
	sort.Slice(outputs, func(i, j int) bool {
		return outputs[i].serialID < outputs[j].serialID
	})

	for _, out := range outputs {
		fundTx.AddTxOut(out.txOut)
	}

	// Change outputs never reuse the funding script, so the first match
	// is the funding output.
	_, fundVout := input.FindScriptOutputIndex(fundTx, fundOut.PkScript)

	log.Tracef("Built funding tx: %v", newLogClosure(func() string {
		return spew.Sdump(fundTx)
	}))

	return &DlcTransactions{
		FundTx:     fundTx,
		FundTxVout: fundVout,
		FundScript: fundScript,
		FundOutput: fundOut,
	}, nil
}

// buildPayoutTx creates a transaction spending the funding output to both
// payout scripts, ordered by payout serial id. Outputs below dust are
// omitted.
func buildPayoutTx(fundOutPoint wire.OutPoint, offer, accept *PartyParams,
	offerPayout, acceptPayout btcutil.Amount, lockTime uint32) *wire.MsgTx {

	tx := wire.NewMsgTx(txVersion)
	tx.LockTime = lockTime
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundOutPoint,
		Sequence:         contractSequence,
	})

	outputs := make([]serialOutput, 0, 2)
	for _, o := range []struct {
		p      *PartyParams
		amount btcutil.Amount
	}{
		{offer, offerPayout},
		{accept, acceptPayout},
	} {
		if o.amount < DustLimit {
			continue
		}
		outputs = append(outputs, serialOutput{
			serialID: o.p.PayoutSerialID,
			txOut:    wire.NewTxOut(int64(o.amount), o.p.PayoutSPK),
		})
	}
	sort.Slice(outputs, func(i, j int) bool {
		return outputs[i].serialID < outputs[j].serialID
	})
	for _, out := range outputs {
		tx.AddTxOut(out.txOut)
	}

	return tx
}

// BuildCets creates one CET per offerer payout. The accepter gets the rest
// of the total collateral.
func BuildCets(txs *DlcTransactions, offer, accept *PartyParams,
	offerPayouts []btcutil.Amount, total btcutil.Amount,
	cetLockTime uint32) ([]*wire.MsgTx, error) {

	fundOutPoint := txs.FundOutPoint()

	cets := make([]*wire.MsgTx, len(offerPayouts))
	for i, offerPayout := range offerPayouts {
		if offerPayout < 0 || offerPayout > total {
			return nil, fmt.Errorf("cet %d: offer payout %v outside "+
				"[0, %v]", i, offerPayout, total)
		}

		cets[i] = buildPayoutTx(
			fundOutPoint, offer, accept, offerPayout,
			total-offerPayout, cetLockTime,
		)
	}

	return cets, nil
}

// BuildRefundTx creates the refund transaction returning each party its
// collateral once the refund locktime has passed.
func BuildRefundTx(txs *DlcTransactions, offer, accept *PartyParams,
	refundLockTime uint32) *wire.MsgTx {

	return buildPayoutTx(
		txs.FundOutPoint(), offer, accept, offer.Collateral,
		accept.Collateral, refundLockTime,
	)
}

// BuildDlcTransactions builds the funding transaction, every CET and the
// refund transaction of a negotiated contract, and derives its id.
func BuildDlcTransactions(offer *dlcwire.DlcOffer, accept *dlcwire.DlcAccept,
	plan *CetPlan) (*DlcTransactions, error) {

	offerParams := OfferParams(offer)
	acceptParams := AcceptParams(accept)

	txs, err := BuildFundTx(
		offerParams, acceptParams, offer.FundOutputSerialID,
		offer.FeeRatePerVByte,
	)
	if err != nil {
		return nil, err
	}

	txs.Cets, err = BuildCets(
		txs, offerParams, acceptParams, plan.OfferPayouts(),
		offer.ContractInfo.TotalCollateral, offer.CetLocktime,
	)
	if err != nil {
		return nil, err
	}

	txs.RefundTx = BuildRefundTx(
		txs, offerParams, acceptParams, offer.RefundLocktime,
	)

	txs.ContractID, err = NewContractID(
		txs.FundTx.TxHash(), txs.FundTxVout,
		offer.TemporaryContractID,
	)
	if err != nil {
		return nil, err
	}

	log.Debugf("Built contract %v: %d cets, fund output %v:%d",
		txs.ContractID, len(txs.Cets), txs.FundTx.TxHash(),
		txs.FundTxVout)

	return txs, nil
}
