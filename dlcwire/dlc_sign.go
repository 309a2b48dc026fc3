package dlcwire

import (
	"bytes"
	"io"
)

// DlcSign completes the negotiation: the offerer's signatures over every CET
// and the refund transaction, plus the witnesses of its funding inputs.
type DlcSign struct {
	// ProtocolVersion is the DLC protocol version of the offerer.
	ProtocolVersion uint32

	// ContractID is the final id of the contract.
	ContractID [32]byte

	// CetAdaptorSignatures holds one adaptor signature per CET, in CET
	// order.
	CetAdaptorSignatures []AdaptorSig

	RefundSignature Sig

	// FundingSignatures holds the witness of every offerer funding input,
	// keyed by input serial id.
	FundingSignatures []FundingSignature

	// ExtraData is the set of data that was appended to this message to
	// fill out the full maximum transport message size. These fields can
	// be used to specify optional data such as custom TLV fields.
	ExtraData ExtraOpaqueData
}

// A compile time check to ensure DlcSign implements the Message interface.
var _ Message = (*DlcSign)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the Message interface.
func (s *DlcSign) MsgType() MessageType {
	return MsgDlcSign
}

// Encode serializes the target DlcSign into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the Message interface.
func (s *DlcSign) Encode(w *bytes.Buffer, pver uint32) error {
	if err := WriteUint32(w, s.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteBytes(w, s.ContractID[:]); err != nil {
		return err
	}
	if err := WriteAdaptorSigs(w, s.CetAdaptorSignatures); err != nil {
		return err
	}
	if err := WriteSig(w, s.RefundSignature); err != nil {
		return err
	}
	err := WriteFundingSignatures(w, s.FundingSignatures)
	if err != nil {
		return err
	}

	return s.ExtraData.Encode(w)
}

// Decode deserializes a serialized DlcSign message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the Message interface.
func (s *DlcSign) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&s.ProtocolVersion,
		&s.ContractID,
		&s.CetAdaptorSignatures,
		&s.RefundSignature,
		&s.FundingSignatures,
		&s.ExtraData,
	)
}
