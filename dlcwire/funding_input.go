package dlcwire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// dlcInputType is the TLV type of the DlcInput marker inside a
	// funding input's extension stream.
	dlcInputType tlv.Type = 1

	// dlcInputLen is the encoded size of a DlcInput: two compressed keys
	// and a contract id.
	dlcInputLen = 33 + 33 + 32
)

// DlcInput marks a funding input that spends the funding output of an
// earlier contract. The input is a 2-of-2 spend of that contract's keys.
type DlcInput struct {
	LocalFundPubKey  *btcec.PublicKey
	RemoteFundPubKey *btcec.PublicKey
	ContractID       [32]byte
}

// encode returns the fixed size encoding of the marker.
func (d *DlcInput) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePublicKey(&buf, d.LocalFundPubKey); err != nil {
		return nil, err
	}
	if err := WritePublicKey(&buf, d.RemoteFundPubKey); err != nil {
		return nil, err
	}
	if err := WriteBytes(&buf, d.ContractID[:]); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decodeDlcInput parses a marker written by encode.
func decodeDlcInput(b []byte) (DlcInput, error) {
	var d DlcInput
	if len(b) != dlcInputLen {
		return d, fmt.Errorf("dlc input must be %d bytes, got %d",
			dlcInputLen, len(b))
	}

	err := ReadElements(
		bytes.NewReader(b), &d.LocalFundPubKey, &d.RemoteFundPubKey,
		&d.ContractID,
	)

	return d, err
}

// FundingInput is an output a party contributes to the funding transaction.
// The whole previous transaction is carried so the counterparty can check
// the spent value and script.
type FundingInput struct {
	// InputSerialID orders the input within the funding transaction.
	InputSerialID uint64

	PrevTx     *wire.MsgTx
	PrevTxVout uint32
	Sequence   uint32

	// MaxWitnessLen is the largest witness the input may be spent with,
	// used for fee estimation.
	MaxWitnessLen uint16

	// RedeemScript is set for nested segwit inputs.
	RedeemScript []byte

	// DlcInput is set when the input spends an earlier contract.
	DlcInput fn.Option[DlcInput]
}

// OutPoint returns the outpoint the input spends.
func (f *FundingInput) OutPoint() wire.OutPoint {
	return wire.OutPoint{
		Hash:  f.PrevTx.TxHash(),
		Index: f.PrevTxVout,
	}
}

// PrevOut returns the output the input spends.
func (f *FundingInput) PrevOut() (*wire.TxOut, error) {
	if f.PrevTx == nil {
		return nil, ErrNilTx
	}
	if int(f.PrevTxVout) >= len(f.PrevTx.TxOut) {
		return nil, fmt.Errorf("vout %d out of range for tx with %d "+
			"outputs", f.PrevTxVout, len(f.PrevTx.TxOut))
	}

	return f.PrevTx.TxOut[f.PrevTxVout], nil
}

// Encode writes the funding input. Optional fields follow the fixed ones as
// a u16 length prefixed TLV stream.
func (f *FundingInput) Encode(w *bytes.Buffer) error {
	if err := WriteUint64(w, f.InputSerialID); err != nil {
		return err
	}
	if err := WriteTx(w, f.PrevTx); err != nil {
		return err
	}
	if err := WriteUint32(w, f.PrevTxVout); err != nil {
		return err
	}
	if err := WriteUint32(w, f.Sequence); err != nil {
		return err
	}
	if err := WriteUint16(w, f.MaxWitnessLen); err != nil {
		return err
	}
	err := WriteVarBytes(w, "redeem script", f.RedeemScript)
	if err != nil {
		return err
	}

	var records []tlv.Record
	var marker []byte
	f.DlcInput.WhenSome(func(d DlcInput) {
		marker, err = d.encode()
		records = append(
			records, tlv.MakePrimitiveRecord(dlcInputType, &marker),
		)
	})
	if err != nil {
		return err
	}

	var extra ExtraOpaqueData
	if err := extra.PackRecords(records...); err != nil {
		return err
	}

	return WriteVarBytes(w, "funding input tlv", extra)
}

// Decode reads a funding input written by Encode.
func (f *FundingInput) Decode(r io.Reader) error {
	var extra []byte
	err := ReadElements(
		r, &f.InputSerialID, &f.PrevTx, &f.PrevTxVout, &f.Sequence,
		&f.MaxWitnessLen, &f.RedeemScript, &extra,
	)
	if err != nil {
		return err
	}

	var marker []byte
	data := ExtraOpaqueData(extra)
	typeMap, err := data.ExtractRecords(
		tlv.MakePrimitiveRecord(dlcInputType, &marker),
	)
	if err != nil {
		return err
	}

	f.DlcInput = fn.None[DlcInput]()
	if val, ok := typeMap[dlcInputType]; ok && val == nil {
		d, err := decodeDlcInput(marker)
		if err != nil {
			return err
		}
		f.DlcInput = fn.Some(d)
	}

	return nil
}

// FundingSignature is the witness of one funding input, keyed by the
// input's serial id rather than by position.
type FundingSignature struct {
	InputSerialID uint64
	Witness       [][]byte
}

// TxWitness returns the witness in transaction form.
func (f *FundingSignature) TxWitness() wire.TxWitness {
	return wire.TxWitness(f.Witness)
}
