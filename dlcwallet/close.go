package dlcwallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/dlcwire"
)

// ErrClosePayoutTooLarge is returned when a close pays out more than its
// inputs hold.
var ErrClosePayoutTooLarge = errors.New("close payouts exceed inputs")

// buildCloseTx creates the cooperative close transaction described by msg:
// the funding output plus any extra inputs, ordered by serial id, paying
// both parties' payout scripts ordered by payout serial id. Payouts below
// dust are omitted and whatever the payouts leave is the fee.
func buildCloseTx(c *Contract, msg *dlcwire.DlcClose) (*wire.MsgTx, error) {
	if msg.OfferPayout < 0 || msg.AcceptPayout < 0 {
		return nil, fmt.Errorf("negative close payout")
	}

	err := dlcwire.CheckDistinct(
		[]uint64{msg.FundInputSerialID},
		inputSerialIDsOf(msg.FundingInputs),
	)
	if err != nil {
		return nil, err
	}

	available := btcutil.Amount(c.Txs.FundOutput.Value)
	for i := range msg.FundingInputs {
		prevOut, err := msg.FundingInputs[i].PrevOut()
		if err != nil {
			return nil, err
		}
		available += btcutil.Amount(prevOut.Value)
	}
	if msg.OfferPayout+msg.AcceptPayout > available {
		return nil, fmt.Errorf("%w: %v + %v > %v",
			ErrClosePayoutTooLarge, msg.OfferPayout,
			msg.AcceptPayout, available)
	}

	type closeInput struct {
		serialID uint64
		txIn     *wire.TxIn
	}
	inputs := []closeInput{{
		serialID: msg.FundInputSerialID,
		txIn: &wire.TxIn{
			PreviousOutPoint: c.Txs.FundOutPoint(),
			Sequence:         contractSequence,
		},
	}}
	for i := range msg.FundingInputs {
		in := &msg.FundingInputs[i]

		sigScript, err := nestedScriptSig(in.RedeemScript)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, closeInput{
			serialID: in.InputSerialID,
			txIn: &wire.TxIn{
				PreviousOutPoint: in.OutPoint(),
				SignatureScript:  sigScript,
				Sequence:         in.Sequence,
			},
		})
	}
	sort.Slice(inputs, func(i, j int) bool {
		return inputs[i].serialID < inputs[j].serialID
	})

	tx := buildPayoutTx(
		wire.OutPoint{}, OfferParams(c.Offer), AcceptParams(c.Accept),
		msg.OfferPayout, msg.AcceptPayout, 0,
	)
	tx.TxIn = tx.TxIn[:0]
	for _, in := range inputs {
		tx.AddTxIn(in.txIn)
	}

	return tx, nil
}

// inputSerialIDsOf returns the serial ids of inputs.
func inputSerialIDsOf(inputs []dlcwire.FundingInput) []uint64 {
	ids := make([]uint64, len(inputs))
	for i := range inputs {
		ids[i] = inputs[i].InputSerialID
	}

	return ids
}

// CreateClose proposes to close a funded contract cooperatively, paying
// each party the given amount. extraInputs are wallet inputs added to the
// close, for instance to pay a higher fee than the funding output allows.
// The returned message carries the local signature of the funding output
// and the witnesses of the extra inputs.
func (m *Manager) CreateClose(contract *Contract, offerPayout,
	acceptPayout btcutil.Amount,
	extraInputs []dlcwire.FundingInput) (*dlcwire.DlcClose, error) {

	if contract.Txs == nil || contract.Accept == nil {
		return nil, errors.New("contract is not funded")
	}

	if err := assignInputSerialIDs(extraInputs); err != nil {
		return nil, err
	}
	ids, err := newSerialIDs(1, inputSerialIDsOf(extraInputs))
	if err != nil {
		return nil, err
	}

	msg := &dlcwire.DlcClose{
		ProtocolVersion:   dlcwire.ProtocolVersion,
		ContractID:        contract.Txs.ContractID,
		OfferPayout:       offerPayout,
		AcceptPayout:      acceptPayout,
		FundInputSerialID: ids[0],
		FundingInputs:     extraInputs,
	}

	tx, err := buildCloseTx(contract, msg)
	if err != nil {
		return nil, err
	}
	fundIdx, _ := inputIndex(tx, contract.Txs.FundOutPoint())

	local, _ := contract.fundPubKeys()
	key, err := m.cfg.Wallet.FindPrivateKeyForPubkey(local)
	if err != nil {
		return nil, err
	}
	msg.CloseSignature, err = signFundSpend(key, contract.Txs, tx, fundIdx)
	if err != nil {
		return nil, err
	}

	msg.FundingSignatures, err = signFundingInputs(
		m.cfg.Wallet, tx, extraInputs,
	)
	if err != nil {
		return nil, err
	}

	log.Infof("Proposed close of contract %v: offer %v, accept %v, %d "+
		"extra inputs", contract.Txs.ContractID, offerPayout,
		acceptPayout, len(extraInputs))

	return msg, nil
}

// FinalizeClose completes a close proposed by the counterparty: it rebuilds
// the close transaction from the message, verifies the counterparty's
// signature and input witnesses, adds the local signature and returns the
// transaction, ready to broadcast.
func (m *Manager) FinalizeClose(contract *Contract,
	msg *dlcwire.DlcClose) (*wire.MsgTx, error) {

	if contract.Txs == nil || contract.Accept == nil {
		return nil, errors.New("contract is not funded")
	}
	if msg.ContractID != contract.Txs.ContractID {
		return nil, fmt.Errorf("%w: got %x, expected %v",
			ErrContractIDMismatch, msg.ContractID[:],
			contract.Txs.ContractID)
	}

	tx, err := buildCloseTx(contract, msg)
	if err != nil {
		return nil, err
	}
	fundIdx, _ := inputIndex(tx, contract.Txs.FundOutPoint())

	local, remote := contract.fundPubKeys()
	err = verifyFundSpend(
		remote, &msg.CloseSignature, contract.Txs, tx, fundIdx,
	)
	if err != nil {
		return nil, &ErrInvalidSignatures{Step: "close", Index: -1, Err: err}
	}

	key, err := m.cfg.Wallet.FindPrivateKeyForPubkey(local)
	if err != nil {
		return nil, err
	}
	localSig, err := signFundSpend(key, contract.Txs, tx, fundIdx)
	if err != nil {
		return nil, err
	}
	tx.TxIn[fundIdx].Witness, err = fundSpendWitness(
		contract.Txs, local, &localSig, remote, &msg.CloseSignature,
	)
	if err != nil {
		return nil, err
	}

	err = attachWitnesses(tx, msg.FundingInputs, msg.FundingSignatures)
	if err != nil {
		return nil, err
	}

	prevOuts, err := prevOutputs(msg.FundingInputs)
	if err != nil {
		return nil, err
	}
	prevOuts[contract.Txs.FundOutPoint()] = contract.Txs.FundOutput

	check := append(
		outPoints(msg.FundingInputs), contract.Txs.FundOutPoint(),
	)
	if err := verifyInputs(tx, prevOuts, check); err != nil {
		return nil, &ErrInvalidSignatures{Step: "close", Index: -1, Err: err}
	}

	log.Infof("Closed contract %v with tx %v", contract.Txs.ContractID,
		tx.TxHash())

	return tx, nil
}
