package dlcwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcutil"
)

// DlcClose proposes a cooperative close of a funded contract. The receiver
// rebuilds the close transaction from these fields alone, countersigns it
// and broadcasts.
type DlcClose struct {
	// ProtocolVersion is the DLC protocol version of the initiator.
	ProtocolVersion uint32

	ContractID [32]byte

	// CloseSignature is the initiator's signature of the 2-of-2 input.
	CloseSignature Sig

	OfferPayout  btcutil.Amount
	AcceptPayout btcutil.Amount

	// FundInputSerialID orders the contract's funding output among the
	// inputs of the close transaction.
	FundInputSerialID uint64

	// FundingInputs are extra wallet inputs the initiator adds.
	FundingInputs []FundingInput

	// FundingSignatures holds the witness of every extra input.
	FundingSignatures []FundingSignature

	// ExtraData is the set of data that was appended to this message to
	// fill out the full maximum transport message size. These fields can
	// be used to specify optional data such as custom TLV fields.
	ExtraData ExtraOpaqueData
}

// A compile time check to ensure DlcClose implements the Message interface.
var _ Message = (*DlcClose)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the Message interface.
func (c *DlcClose) MsgType() MessageType {
	return MsgDlcClose
}

// Encode serializes the target DlcClose into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the Message interface.
func (c *DlcClose) Encode(w *bytes.Buffer, pver uint32) error {
	if err := WriteUint32(w, c.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteBytes(w, c.ContractID[:]); err != nil {
		return err
	}
	if err := WriteSig(w, c.CloseSignature); err != nil {
		return err
	}
	if err := WriteSatoshi(w, c.OfferPayout); err != nil {
		return err
	}
	if err := WriteSatoshi(w, c.AcceptPayout); err != nil {
		return err
	}
	if err := WriteUint64(w, c.FundInputSerialID); err != nil {
		return err
	}
	if err := WriteFundingInputs(w, c.FundingInputs); err != nil {
		return err
	}
	err := WriteFundingSignatures(w, c.FundingSignatures)
	if err != nil {
		return err
	}

	return c.ExtraData.Encode(w)
}

// Decode deserializes a serialized DlcClose message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the Message interface.
func (c *DlcClose) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&c.ProtocolVersion,
		&c.ContractID,
		&c.CloseSignature,
		&c.OfferPayout,
		&c.AcceptPayout,
		&c.FundInputSerialID,
		&c.FundingInputs,
		&c.FundingSignatures,
		&c.ExtraData,
	)
}
