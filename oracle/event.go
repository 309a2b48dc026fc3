package oracle

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/dlcproto/dlcd/payout"
)

var (
	// ErrNoNonces is returned for an announcement without nonces.
	ErrNoNonces = errors.New("announcement carries no nonces")

	// ErrSignedEventUnsupported is returned for digit events that reserve
	// a sign nonce.
	ErrSignedEventUnsupported = errors.New("signed digit decomposition " +
		"events are not supported")

	// ErrNoOutcomes is returned for an enumerated event with no outcomes.
	ErrNoOutcomes = errors.New("enumerated event has no outcomes")
)

// EventDescriptor describes the outcome domain of an oracle event. The set of
// implementations is closed: *EnumEvent and *DigitEvent.
type EventDescriptor interface {
	// NumNonces is the number of nonces the oracle must commit to for
	// this event.
	NumNonces() int

	isEventDescriptor()
}

// EnumEvent is an event whose outcome is one of a fixed set of strings.
type EnumEvent struct {
	Outcomes []string
}

// NumNonces returns 1: an enumerated outcome is attested with one signature.
func (e *EnumEvent) NumNonces() int {
	return 1
}

func (e *EnumEvent) isEventDescriptor() {}

// DigitEvent is a numeric event whose outcome is attested digit by digit in
// the given base, most significant digit first.
type DigitEvent struct {
	Base      uint64
	IsSigned  bool
	Unit      string
	Precision int32
	NumDigits uint16
}

// NumNonces returns one nonce per digit.
func (d *DigitEvent) NumNonces() int {
	return int(d.NumDigits)
}

func (d *DigitEvent) isEventDescriptor() {}

// MaxOutcome returns the largest outcome of the event.
func (d *DigitEvent) MaxOutcome() (uint64, error) {
	return payout.MaxOutcome(d.Base, int(d.NumDigits))
}

// A compile time check to ensure both descriptors implement the interface.
var (
	_ EventDescriptor = (*EnumEvent)(nil)
	_ EventDescriptor = (*DigitEvent)(nil)
)

// Announcement is an oracle's public commitment to attest to an event: its
// key, one nonce per signature it will produce, and the event's domain.
// Keys and nonces are BIP-340 x-only points lifted to even y.
type Announcement struct {
	OraclePubKey  *btcec.PublicKey
	Nonces        []*btcec.PublicKey
	EventMaturity uint32
	Event         EventDescriptor
	EventID       string
}

// Validate checks the announcement is usable for building a contract.
func (a *Announcement) Validate() error {
	if a.OraclePubKey == nil {
		return errors.New("announcement has no oracle public key")
	}
	if len(a.Nonces) == 0 {
		return ErrNoNonces
	}

	switch e := a.Event.(type) {
	case *EnumEvent:
		if len(e.Outcomes) == 0 {
			return ErrNoOutcomes
		}

	case *DigitEvent:
		if e.IsSigned {
			return ErrSignedEventUnsupported
		}
		if _, err := e.MaxOutcome(); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown event descriptor %T", a.Event)
	}

	if len(a.Nonces) != a.Event.NumNonces() {
		return fmt.Errorf("announcement has %d nonces, event %q needs "+
			"%d", len(a.Nonces), a.EventID, a.Event.NumNonces())
	}

	return nil
}

// ParseXOnly parses a 32 byte BIP-340 public key.
func ParseXOnly(b []byte) (*btcec.PublicKey, error) {
	return schnorr.ParsePubKey(b)
}

// SerializeXOnly returns the 32 byte BIP-340 encoding of a public key.
func SerializeXOnly(pub *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pub)
}
