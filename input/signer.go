package input

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Signer represents an abstract object capable of generating raw signatures as
// well as full complete input scripts given a valid SignDescriptor and
// transaction. This interface fully abstracts away signing paving the way for
// Signer implementations such as hardware wallets, hardware tokens, HSM's, or
// simply a regular wallet.
type Signer interface {
	// SignOutputRaw generates a signature for the passed transaction
	// according to the data within the passed SignDescriptor.
	//
	// NOTE: The resulting signature should be void of a sighash byte.
	SignOutputRaw(tx *wire.MsgTx, signDesc *SignDescriptor) (
		*ecdsa.Signature, error)

	// ComputeInputScript generates a complete InputIndex for the passed
	// transaction with the signature as defined within the passed
	// SignDescriptor. This method should be capable of generating the
	// proper input script for both regular p2wkh outputs and p2wkh outputs
	// nested within a regular p2sh output.
	ComputeInputScript(tx *wire.MsgTx, signDesc *SignDescriptor) (*Script,
		error)
}

// Script represents any script inputs required to redeem a previous
// output. This struct is used rather than just a witness, or scripSig in order
// to accommodate nested p2sh which utilizes both types of input scripts.
type Script struct {
	// Witness is the full witness stack required to unlock this output.
	Witness wire.TxWitness

	// SigScript will only be populated if this is an input script sweeping
	// a nested p2sh output.
	SigScript []byte
}

// KeySigner is a Signer backed by a fixed set of private keys.
type KeySigner struct {
	Privkeys []*btcec.PrivateKey
}

// A compile time check to ensure KeySigner implements the Signer interface.
var _ Signer = (*KeySigner)(nil)

// SignOutputRaw generates a signature for the passed transaction according to
// the data within the passed SignDescriptor.
func (k *KeySigner) SignOutputRaw(tx *wire.MsgTx,
	signDesc *SignDescriptor) (*ecdsa.Signature, error) {

	if signDesc.Output == nil {
		return nil, ErrMissingOutput
	}

	privKey := k.findKey(btcutil.Hash160(
		signDesc.PubKey.SerializeCompressed(),
	))
	if privKey == nil {
		return nil, fmt.Errorf("signer does not have key %x",
			signDesc.PubKey.SerializeCompressed())
	}

	sig, err := txscript.RawTxInWitnessSignature(
		tx, signDesc.SigHashes, signDesc.InputIndex,
		signDesc.Output.Value, signDesc.WitnessScript,
		signDesc.HashType, privKey,
	)
	if err != nil {
		return nil, err
	}

	return ecdsa.ParseDERSignature(sig[:len(sig)-1])
}

// ComputeInputScript generates a complete InputIndex for the passed
// transaction with the signature as defined within the passed SignDescriptor.
// Native and nested p2wkh outputs are supported.
func (k *KeySigner) ComputeInputScript(tx *wire.MsgTx,
	signDesc *SignDescriptor) (*Script, error) {

	if signDesc.Output == nil {
		return nil, ErrMissingOutput
	}

	pkScript := signDesc.Output.PkScript
	class := txscript.GetScriptClass(pkScript)

	var (
		witnessProgram []byte
		sigScript      []byte
		err            error
	)
	switch class {
	case txscript.WitnessV0PubKeyHashTy:
		witnessProgram = pkScript

	case txscript.ScriptHashTy:
		// A nested p2wkh output: the redeem script is the witness
		// program, pushed as the only element of the script sig.
		witnessProgram = signDesc.WitnessScript
		if txscript.GetScriptClass(witnessProgram) !=
			txscript.WitnessV0PubKeyHashTy {

			return nil, fmt.Errorf("unsupported nested script")
		}

		bldr := txscript.NewScriptBuilder()
		bldr.AddData(witnessProgram)
		sigScript, err = bldr.Script()
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported script class %v", class)
	}

	privKey := k.findKey(witnessProgram[2:])
	if privKey == nil {
		return nil, fmt.Errorf("signer does not have key for %x",
			pkScript)
	}

	witness, err := txscript.WitnessSignature(
		tx, signDesc.SigHashes, signDesc.InputIndex,
		signDesc.Output.Value, witnessProgram, signDesc.HashType,
		privKey, true,
	)
	if err != nil {
		return nil, err
	}

	return &Script{
		Witness:   witness,
		SigScript: sigScript,
	}, nil
}

// findKey searches through all stored private keys and returns one
// corresponding to the hashed pubkey passed in.
func (k *KeySigner) findKey(needleHash160 []byte) *btcec.PrivateKey {
	for _, privkey := range k.Privkeys {
		pkh := btcutil.Hash160(privkey.PubKey().SerializeCompressed())
		if bytes.Equal(pkh, needleHash160) {
			return privkey
		}
	}

	return nil
}
