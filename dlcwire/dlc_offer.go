package dlcwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrDuplicateSerialID is returned when two serial ids that must differ
// collide.
var ErrDuplicateSerialID = errors.New("duplicate serial id")

// DlcOffer is sent by the party proposing a contract. It carries the full
// contract terms plus the offerer's funding contribution.
type DlcOffer struct {
	// ProtocolVersion is the DLC protocol version of the offerer.
	ProtocolVersion uint32

	// ContractFlags is reserved and must be zero.
	ContractFlags uint8

	// ChainHash is the genesis hash of the chain the contract lives on.
	ChainHash chainhash.Hash

	// TemporaryContractID identifies the contract until the funding
	// transaction is known.
	TemporaryContractID [32]byte

	ContractInfo ContractInfo

	FundingPubKey  *btcec.PublicKey
	PayoutSPK      []byte
	PayoutSerialID uint64

	OfferCollateral btcutil.Amount
	FundingInputs   []FundingInput

	ChangeSPK      []byte
	ChangeSerialID uint64

	// FundOutputSerialID orders the funding output among the outputs of
	// the funding transaction.
	FundOutputSerialID uint64

	FeeRatePerVByte uint64
	CetLocktime     uint32
	RefundLocktime  uint32

	// ExtraData is the set of data that was appended to this message to
	// fill out the full maximum transport message size. These fields can
	// be used to specify optional data such as custom TLV fields.
	ExtraData ExtraOpaqueData
}

// A compile time check to ensure DlcOffer implements the Message interface.
var _ Message = (*DlcOffer)(nil)

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the Message interface.
func (o *DlcOffer) MsgType() MessageType {
	return MsgDlcOffer
}

// Encode serializes the target DlcOffer into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the Message interface.
func (o *DlcOffer) Encode(w *bytes.Buffer, pver uint32) error {
	if err := WriteUint32(w, o.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteUint8(w, o.ContractFlags); err != nil {
		return err
	}
	if err := WriteChainHash(w, o.ChainHash); err != nil {
		return err
	}
	if err := WriteBytes(w, o.TemporaryContractID[:]); err != nil {
		return err
	}
	if err := o.ContractInfo.Encode(w); err != nil {
		return err
	}
	if err := WritePublicKey(w, o.FundingPubKey); err != nil {
		return err
	}
	if err := WriteVarBytes(w, "payout script", o.PayoutSPK); err != nil {
		return err
	}
	if err := WriteUint64(w, o.PayoutSerialID); err != nil {
		return err
	}
	if err := WriteSatoshi(w, o.OfferCollateral); err != nil {
		return err
	}
	if err := WriteFundingInputs(w, o.FundingInputs); err != nil {
		return err
	}
	if err := WriteVarBytes(w, "change script", o.ChangeSPK); err != nil {
		return err
	}
	if err := WriteUint64(w, o.ChangeSerialID); err != nil {
		return err
	}
	if err := WriteUint64(w, o.FundOutputSerialID); err != nil {
		return err
	}
	if err := WriteUint64(w, o.FeeRatePerVByte); err != nil {
		return err
	}
	if err := WriteUint32(w, o.CetLocktime); err != nil {
		return err
	}
	if err := WriteUint32(w, o.RefundLocktime); err != nil {
		return err
	}

	return o.ExtraData.Encode(w)
}

// Decode deserializes a serialized DlcOffer message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the Message interface.
func (o *DlcOffer) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&o.ProtocolVersion,
		&o.ContractFlags,
		&o.ChainHash,
		&o.TemporaryContractID,
		&o.ContractInfo,
		&o.FundingPubKey,
		&o.PayoutSPK,
		&o.PayoutSerialID,
		&o.OfferCollateral,
		&o.FundingInputs,
		&o.ChangeSPK,
		&o.ChangeSerialID,
		&o.FundOutputSerialID,
		&o.FeeRatePerVByte,
		&o.CetLocktime,
		&o.RefundLocktime,
		&o.ExtraData,
	)
}

// InputSerialIDs returns the serial ids of the offer's funding inputs.
func (o *DlcOffer) InputSerialIDs() []uint64 {
	return inputSerialIDs(o.FundingInputs)
}

// Validate checks the offer on its own: contract terms are consistent, the
// collateral fits and its serial ids are distinct.
func (o *DlcOffer) Validate() error {
	if o.FundingPubKey == nil {
		return ErrNilPublicKey
	}
	if err := o.ContractInfo.Validate(); err != nil {
		return fmt.Errorf("invalid contract info: %w", err)
	}
	if o.OfferCollateral < 0 ||
		o.OfferCollateral > o.ContractInfo.TotalCollateral {

		return fmt.Errorf("offer collateral %v outside [0, %v]",
			o.OfferCollateral, o.ContractInfo.TotalCollateral)
	}
	if o.CetLocktime > o.RefundLocktime {
		return fmt.Errorf("cet locktime %d after refund locktime %d",
			o.CetLocktime, o.RefundLocktime)
	}

	outputs := []uint64{
		o.PayoutSerialID, o.ChangeSerialID, o.FundOutputSerialID,
	}
	if err := CheckDistinct(outputs); err != nil {
		return fmt.Errorf("offer output serial ids: %w", err)
	}

	return CheckDistinct(o.InputSerialIDs())
}

// inputSerialIDs returns the serial ids of the given inputs.
func inputSerialIDs(inputs []FundingInput) []uint64 {
	ids := make([]uint64, len(inputs))
	for i, in := range inputs {
		ids[i] = in.InputSerialID
	}

	return ids
}

// CheckDistinct returns ErrDuplicateSerialID if any id appears twice across
// the given sets.
func CheckDistinct(sets ...[]uint64) error {
	seen := make(map[uint64]struct{})
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				return fmt.Errorf("%w: %d", ErrDuplicateSerialID,
					id)
			}
			seen[id] = struct{}{}
		}
	}

	return nil
}
