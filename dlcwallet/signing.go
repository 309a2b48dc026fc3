package dlcwallet

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/input"
)

// fundSpend describes the 2-of-2 funding output as spent by the CETs, the
// refund and the close transaction.
func (d *DlcTransactions) fundSpend() *CetSpend {
	return &CetSpend{
		WitnessScript: d.FundScript,
		Value:         d.FundOutput.Value,
	}
}

// signFundSpend signs input idx of tx, which spends the funding output.
func signFundSpend(key *btcec.PrivateKey, txs *DlcTransactions,
	tx *wire.MsgTx, idx int) (dlcwire.Sig, error) {

	signer := &input.KeySigner{Privkeys: []*btcec.PrivateKey{key}}
	signDesc := input.NewSignDescriptor(
		tx, idx, key.PubKey(), txs.FundScript, txs.FundOutput,
	)

	sig, err := signer.SignOutputRaw(tx, signDesc)
	if err != nil {
		return dlcwire.Sig{}, err
	}

	return dlcwire.NewSigFromSignature(sig)
}

// verifyFundSpend checks sig is pubKey's signature of input idx of tx, which
// spends the funding output.
func verifyFundSpend(pubKey *btcec.PublicKey, sig *dlcwire.Sig,
	txs *DlcTransactions, tx *wire.MsgTx, idx int) error {

	hash, err := input.MultiSigSigHash(
		tx, idx, txs.FundScript, txs.FundOutput.Value,
	)
	if err != nil {
		return err
	}

	ecSig, err := sig.ToSignature()
	if err != nil {
		return err
	}
	if !ecSig.Verify(hash, pubKey) {
		return fmt.Errorf("invalid signature by %x over %x",
			pubKey.SerializeCompressed(), hash)
	}

	return nil
}

// fundSpendWitness assembles the 2-of-2 witness from both parties'
// signatures.
func fundSpendWitness(txs *DlcTransactions, pubA *btcec.PublicKey,
	sigA *dlcwire.Sig, pubB *btcec.PublicKey,
	sigB *dlcwire.Sig) (wire.TxWitness, error) {

	rawA, err := sigA.ToWitnessSig(byte(txscript.SigHashAll))
	if err != nil {
		return nil, err
	}
	rawB, err := sigB.ToWitnessSig(byte(txscript.SigHashAll))
	if err != nil {
		return nil, err
	}

	return input.SpendMultiSig(
		txs.FundScript, pubA.SerializeCompressed(), rawA,
		pubB.SerializeCompressed(), rawB,
	), nil
}

// inputIndex returns the index of the input spending op.
func inputIndex(tx *wire.MsgTx, op wire.OutPoint) (int, bool) {
	for i, txIn := range tx.TxIn {
		if txIn.PreviousOutPoint == op {
			return i, true
		}
	}

	return 0, false
}

// fundingSignDesc returns the sign descriptor of a wallet owned funding
// input.
func fundingSignDesc(tx *wire.MsgTx, idx int,
	in *dlcwire.FundingInput) (*input.SignDescriptor, error) {

	prevOut, err := in.PrevOut()
	if err != nil {
		return nil, err
	}

	if in.DlcInput.IsNone() {
		return input.NewSignDescriptor(
			tx, idx, nil, in.RedeemScript, prevOut,
		), nil
	}

	marker := in.DlcInput.UnsafeFromSome()
	witnessScript, err := input.GenMultiSigScript(
		marker.LocalFundPubKey.SerializeCompressed(),
		marker.RemoteFundPubKey.SerializeCompressed(),
	)
	if err != nil {
		return nil, err
	}

	return input.NewSignDescriptor(
		tx, idx, marker.LocalFundPubKey, witnessScript, prevOut,
	), nil
}

// signFundingInputs has the wallet produce the witness of each of inputs
// within tx.
func signFundingInputs(w Wallet, tx *wire.MsgTx,
	inputs []dlcwire.FundingInput) ([]dlcwire.FundingSignature, error) {

	sigs := make([]dlcwire.FundingSignature, 0, len(inputs))
	for i := range inputs {
		in := &inputs[i]

		idx, ok := inputIndex(tx, in.OutPoint())
		if !ok {
			return nil, fmt.Errorf("input %d not in transaction",
				in.InputSerialID)
		}

		signDesc, err := fundingSignDesc(tx, idx, in)
		if err != nil {
			return nil, err
		}

		script, err := w.ComputeInputScript(tx, signDesc)
		if err != nil {
			return nil, fmt.Errorf("unable to sign input %d: %w",
				in.InputSerialID, err)
		}

		sigs = append(sigs, dlcwire.FundingSignature{
			InputSerialID: in.InputSerialID,
			Witness:       script.Witness,
		})
	}

	return sigs, nil
}

// attachWitnesses sets the witness of every input of tx from sigs, matching
// inputs to witnesses by serial id.
func attachWitnesses(tx *wire.MsgTx, inputs []dlcwire.FundingInput,
	sigs []dlcwire.FundingSignature) error {

	witnesses := make(map[uint64]wire.TxWitness, len(sigs))
	for i := range sigs {
		witnesses[sigs[i].InputSerialID] = sigs[i].TxWitness()
	}

	for i := range inputs {
		in := &inputs[i]

		witness, ok := witnesses[in.InputSerialID]
		if !ok {
			return fmt.Errorf("%w: input %d",
				ErrMissingFundingSignature, in.InputSerialID)
		}

		idx, ok := inputIndex(tx, in.OutPoint())
		if !ok {
			return fmt.Errorf("input %d not in transaction",
				in.InputSerialID)
		}
		tx.TxIn[idx].Witness = witness
	}

	return nil
}

// prevOutputs returns the outputs spent by inputs, keyed by outpoint.
func prevOutputs(inputs ...[]dlcwire.FundingInput) (
	map[wire.OutPoint]*wire.TxOut, error) {

	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	for _, set := range inputs {
		for i := range set {
			prevOut, err := set[i].PrevOut()
			if err != nil {
				return nil, err
			}
			prevOuts[set[i].OutPoint()] = prevOut
		}
	}

	return prevOuts, nil
}

// verifyInputs runs the script engine over the inputs of tx spending the
// outpoints in check. prevOuts must hold every output tx spends.
func verifyInputs(tx *wire.MsgTx, prevOuts map[wire.OutPoint]*wire.TxOut,
	check []wire.OutPoint) error {

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	hashCache := txscript.NewTxSigHashes(tx, fetcher)

	for _, op := range check {
		idx, ok := inputIndex(tx, op)
		if !ok {
			return fmt.Errorf("outpoint %v not spent by tx", op)
		}
		prevOut, ok := prevOuts[op]
		if !ok {
			return fmt.Errorf("unknown previous output %v", op)
		}

		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, idx, txscript.StandardVerifyFlags,
			nil, hashCache, prevOut.Value, fetcher,
		)
		if err != nil {
			return err
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("input %v: %w", op, err)
		}
	}

	return nil
}

// outPoints returns the outpoints spent by inputs.
func outPoints(inputs []dlcwire.FundingInput) []wire.OutPoint {
	ops := make([]wire.OutPoint, len(inputs))
	for i := range inputs {
		ops[i] = inputs[i].OutPoint()
	}

	return ops
}

// randUint64 returns a uniformly random uint64.
func randUint64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(b[:]), nil
}

// newSerialIDs returns n random serial ids, distinct from each other and
// from every id in taken.
func newSerialIDs(n int, taken ...[]uint64) ([]uint64, error) {
	if err := dlcwire.CheckDistinct(taken...); err != nil {
		return nil, err
	}

	for {
		ids := make([]uint64, n)
		for i := range ids {
			id, err := randUint64()
			if err != nil {
				return nil, err
			}
			ids[i] = id
		}

		sets := make([][]uint64, 0, len(taken)+1)
		sets = append(sets, taken...)
		if dlcwire.CheckDistinct(append(sets, ids)...) == nil {
			return ids, nil
		}
	}
}

// assignInputSerialIDs gives every input without a serial id a fresh one,
// distinct from taken and from the ids inputs already carry.
func assignInputSerialIDs(inputs []dlcwire.FundingInput,
	taken ...[]uint64) error {

	var (
		existing []uint64
		missing  []int
	)
	for i := range inputs {
		if inputs[i].InputSerialID == 0 {
			missing = append(missing, i)
			continue
		}
		existing = append(existing, inputs[i].InputSerialID)
	}

	sets := make([][]uint64, 0, len(taken)+1)
	sets = append(sets, taken...)
	ids, err := newSerialIDs(len(missing), append(sets, existing)...)
	if err != nil {
		return err
	}
	for i, idx := range missing {
		inputs[idx].InputSerialID = ids[i]
	}

	return nil
}
