package dlcwallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/dlcproto/dlcd/dlcwire"
)

var (
	// ErrDuplicateSerialID is returned when serial ids across the offer
	// and accept collide.
	ErrDuplicateSerialID = dlcwire.ErrDuplicateSerialID

	// ErrSameFundingPubkey is returned when both parties use the same
	// funding key.
	ErrSameFundingPubkey = errors.New("offer and accept funding pubkeys " +
		"are equal")

	// ErrCollateralExceedsTotal is returned when the collateral of both
	// parties does not add up to the contract's total collateral.
	ErrCollateralExceedsTotal = errors.New("collateral does not match " +
		"total collateral")

	// ErrChangeToFundScript is returned when a party's change script is
	// the contract's funding script.
	ErrChangeToFundScript = errors.New("change script pays the funding " +
		"output")

	// ErrTempIDMismatch is returned for an accept answering another
	// offer.
	ErrTempIDMismatch = errors.New("temporary contract id mismatch")

	// ErrContractIDMismatch is returned for a sign message whose contract
	// id differs from the locally derived one.
	ErrContractIDMismatch = errors.New("contract id mismatch")

	// ErrWrongChain is returned for an offer on another chain.
	ErrWrongChain = errors.New("offer is for a different chain")

	// ErrMissingFundingSignature is returned when a funding input has no
	// witness.
	ErrMissingFundingSignature = errors.New("missing funding signature")
)

// ErrInsufficientFunds is returned when a party's inputs do not cover its
// collateral and fees. It is also what a Wallet returns from input
// selection when its balance is too low.
type ErrInsufficientFunds struct {
	Needed    btcutil.Amount
	Available btcutil.Amount
}

// Error returns a human-readable string describing the error.
func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: need %v only have %v",
		e.Needed, e.Available)
}

// ErrInvalidSignatures is returned when any signature received from the
// counterparty fails to verify. All signatures of a step must verify.
type ErrInvalidSignatures struct {
	// Step names the protocol step that received the signatures.
	Step string

	// Index is the CET index of the first invalid adaptor signature, or
	// -1 if the failing signature is not a CET signature.
	Index int

	Err error
}

// Error returns a human-readable string describing the error.
func (e *ErrInvalidSignatures) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: invalid adaptor signature for cet "+
			"%d: %v", e.Step, e.Index, e.Err)
	}

	return fmt.Sprintf("%s: invalid signature: %v", e.Step, e.Err)
}

// Unwrap returns the underlying verification error.
func (e *ErrInvalidSignatures) Unwrap() error {
	return e.Err
}

// ErrUnknownEvent is returned when an attestation is for an event none of
// the contract's announcements commit to. It usually means an oracle or
// version mismatch rather than a local fault.
type ErrUnknownEvent struct {
	EventID string
	Known   []string
}

// Error returns a human-readable string describing the error.
func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("attestation for unknown event %q, contract "+
		"knows [%s]", e.EventID, strings.Join(e.Known, ", "))
}

// ErrNoMatchingGroup is returned when an attested outcome matches none of
// the contract's CETs.
type ErrNoMatchingGroup struct {
	EventID string
	Outcome string
}

// Error returns a human-readable string describing the error.
func (e *ErrNoMatchingGroup) Error() string {
	return fmt.Sprintf("no cet matches outcome %s of event %q",
		e.Outcome, e.EventID)
}
