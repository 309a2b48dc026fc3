package input

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ErrMissingOutput is returned for a sign descriptor without the output it
// spends.
var ErrMissingOutput = errors.New("sign descriptor has no output")

// SignDescriptor houses the necessary information required to successfully
// sign a given segwit output. This struct is used by the Signer interface in
// order to gain access to critical data needed to generate a valid signature.
type SignDescriptor struct {
	// PubKey is the key whose private counterpart signs the input.
	PubKey *btcec.PublicKey

	// WitnessScript is the full script required to properly redeem the
	// output. This field should be set to the full script if a p2wsh
	// output is being signed. For p2wkh it should be set to the hashed
	// script (PkScript).
	WitnessScript []byte

	// Output is the target output which should be signed. The PkScript and
	// Value fields within the output should be properly populated,
	// otherwise an invalid signature may be generated.
	Output *wire.TxOut

	// HashType is the target sighash type that should be used when
	// generating the final sighash, and signature.
	HashType txscript.SigHashType

	// SigHashes is the pre-computed sighash midstate to be used when
	// generating the final sighash for signing.
	SigHashes *txscript.TxSigHashes

	// InputIndex is the target input within the transaction that should be
	// signed.
	InputIndex int
}

// NewSignDescriptor returns a SIGHASH_ALL descriptor for input idx of tx,
// which spends output. Only the spent output is known, so the sighash
// midstate is computed against a fetcher returning it for every outpoint.
func NewSignDescriptor(tx *wire.MsgTx, idx int, pubKey *btcec.PublicKey,
	witnessScript []byte, output *wire.TxOut) *SignDescriptor {

	fetcher := txscript.NewCannedPrevOutputFetcher(
		output.PkScript, output.Value,
	)

	return &SignDescriptor{
		PubKey:        pubKey,
		WitnessScript: witnessScript,
		Output:        output,
		HashType:      txscript.SigHashAll,
		SigHashes:     txscript.NewTxSigHashes(tx, fetcher),
		InputIndex:    idx,
	}
}
