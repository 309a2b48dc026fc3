package dlcwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// DlcAccept is the counterparty's answer to a DlcOffer. It carries its
// funding contribution and its signatures over every CET and the refund
// transaction.
type DlcAccept struct {
	// ProtocolVersion is the DLC protocol version of the accepter.
	ProtocolVersion uint32

	// TemporaryContractID echoes the id of the offer being accepted.
	TemporaryContractID [32]byte

	AcceptCollateral btcutil.Amount

	FundingPubKey  *btcec.PublicKey
	PayoutSPK      []byte
	PayoutSerialID uint64

	FundingInputs  []FundingInput
	ChangeSPK      []byte
	ChangeSerialID uint64

	// CetAdaptorSignatures holds one adaptor signature per CET, in CET
	// order.
	CetAdaptorSignatures []AdaptorSig

	RefundSignature Sig

	// ExtraData is the set of data that was appended to this message to
	// fill out the full maximum transport message size. These fields can
	// be used to specify optional data such as custom TLV fields.
	ExtraData ExtraOpaqueData
}

// A compile time check to ensure DlcAccept implements the Message interface.
var _ Message = (*DlcAccept)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the Message interface.
func (a *DlcAccept) MsgType() MessageType {
	return MsgDlcAccept
}

// Encode serializes the target DlcAccept into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the Message interface.
func (a *DlcAccept) Encode(w *bytes.Buffer, pver uint32) error {
	if err := WriteUint32(w, a.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteBytes(w, a.TemporaryContractID[:]); err != nil {
		return err
	}
	if err := WriteSatoshi(w, a.AcceptCollateral); err != nil {
		return err
	}
	if err := WritePublicKey(w, a.FundingPubKey); err != nil {
		return err
	}
	if err := WriteVarBytes(w, "payout script", a.PayoutSPK); err != nil {
		return err
	}
	if err := WriteUint64(w, a.PayoutSerialID); err != nil {
		return err
	}
	if err := WriteFundingInputs(w, a.FundingInputs); err != nil {
		return err
	}
	if err := WriteVarBytes(w, "change script", a.ChangeSPK); err != nil {
		return err
	}
	if err := WriteUint64(w, a.ChangeSerialID); err != nil {
		return err
	}
	if err := WriteAdaptorSigs(w, a.CetAdaptorSignatures); err != nil {
		return err
	}
	if err := WriteSig(w, a.RefundSignature); err != nil {
		return err
	}

	return a.ExtraData.Encode(w)
}

// Decode deserializes a serialized DlcAccept message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the Message interface.
func (a *DlcAccept) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&a.ProtocolVersion,
		&a.TemporaryContractID,
		&a.AcceptCollateral,
		&a.FundingPubKey,
		&a.PayoutSPK,
		&a.PayoutSerialID,
		&a.FundingInputs,
		&a.ChangeSPK,
		&a.ChangeSerialID,
		&a.CetAdaptorSignatures,
		&a.RefundSignature,
		&a.ExtraData,
	)
}

// InputSerialIDs returns the serial ids of the accept's funding inputs.
func (a *DlcAccept) InputSerialIDs() []uint64 {
	return inputSerialIDs(a.FundingInputs)
}
