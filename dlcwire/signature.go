package dlcwire

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/dlcproto/dlcd/adaptor"
)

// minSigLen is the shortest possible DER encoded signature: both r and s a
// single byte.
const minSigLen = 8

var (
	errSigTooShort = errors.New("malformed signature: too short")
	errBadLength   = errors.New("malformed signature: bad length")
	errBadRLength  = errors.New("malformed signature: bogus R length")
	errBadSLength  = errors.New("malformed signature: bogus S length")
	errRTooLong    = errors.New("R is over 32 bytes long without padding")
	errSTooLong    = errors.New("S is over 32 bytes long without padding")
)

// Sig is a fixed-sized ECDSA signature in the 64 byte compact wire form:
// the big-endian r value followed by the big-endian s value. Unlike DER it
// has a fixed size and carries no sighash flag.
type Sig [64]byte

// NewSigFromRawSignature returns a Sig from a DER encoded signature, without
// the trailing sighash flag.
func NewSigFromRawSignature(sig []byte) (Sig, error) {
	var b Sig

	// Check the total length is above the minimal.
	if len(sig) < minSigLen {
		return b, errSigTooShort
	}

	// The DER representation is laid out as:
	//   0x30 <length> 0x02 <length r> r 0x02 <length s> s
	// which means the length of R is the 4th byte and the length of S is
	// the second byte after R ends. 0x02 signifies a length-prefixed,
	// zero-padded, big-endian bigint. 0x30 signifies a DER signature.

	// Reading <length>, remaining: [0x02 <length r> r 0x02 <length s> s]
	sigLen := int(sig[1])

	// siglen should be less than the entire message and greater than
	// the minimal message size.
	if sigLen+2 > len(sig) || sigLen+2 < minSigLen {
		return b, errBadLength
	}

	// Reading <length r>, remaining: [r 0x02 <length s> s]
	rLen := int(sig[3])

	// rLen must be positive and must be able to fit in other elements.
	// Assuming s is one byte, then we have 0x30, <length>, 0x20,
	// <length r>, 0x20, <length s>, s, a total of 7 bytes.
	if rLen <= 0 || rLen+7 > len(sig) {
		return b, errBadRLength
	}

	// Reading <length s>, remaining: [s]
	sLen := int(sig[5+rLen])

	// S should be the rest of the string. sLen must be positive and must
	// be able to fit in other elements. We know r is rLen bytes, and we
	// have 0x30, <length>, 0x20, <length r>, 0x20, <length s>, a total of
	// rLen+6 bytes.
	if sLen <= 0 || sLen+rLen+6 > len(sig) {
		return b, errBadSLength
	}

	// Check to make sure R and S can both fit into their intended buffers.
	// We check S first because these code blocks decrement sLen and rLen
	// and we'd need to make sure that the decrement happens after the
	// checks. We use this code block to get rid of leading 0s.
	if sLen > 32 {
		if (sLen > 33) || (sig[6+rLen] != 0x00) {
			return Sig{}, errSTooLong
		}
		sLen--
		copy(b[64-sLen:], sig[7+rLen:7+rLen+sLen])
	} else {
		copy(b[64-sLen:], sig[6+rLen:6+rLen+sLen])
	}

	// Do the same for R as we did for S
	if rLen > 32 {
		if (rLen > 33) || (sig[4] != 0x00) {
			return Sig{}, errRTooLong
		}
		rLen--
		copy(b[32-rLen:], sig[5:5+rLen])
	} else {
		copy(b[32-rLen:], sig[4:4+rLen])
	}

	return b, nil
}

// NewSigFromSignature creates a new signature as used on the wire from an
// ecdsa signature.
func NewSigFromSignature(e *ecdsa.Signature) (Sig, error) {
	if e == nil {
		return Sig{}, fmt.Errorf("cannot decode empty signature")
	}

	var b Sig
	r, s := e.R(), e.S()
	r.PutBytesUnchecked(b[:32])
	s.PutBytesUnchecked(b[32:])

	return b, nil
}

// scalars returns r and s, rejecting values outside [1, n-1].
func (b *Sig) scalars() (btcec.ModNScalar, btcec.ModNScalar, error) {
	var r, s btcec.ModNScalar
	if r.SetByteSlice(b[:32]) || r.IsZero() {
		return r, s, errors.New("signature R isn't 1 or more")
	}
	if s.SetByteSlice(b[32:]) || s.IsZero() {
		return r, s, errors.New("signature S isn't 1 or more")
	}

	return r, s, nil
}

// ToSignature converts the fixed-sized signature to an ecdsa.Signature
// object which can be used for signature validation checks.
func (b *Sig) ToSignature() (*ecdsa.Signature, error) {
	r, s, err := b.scalars()
	if err != nil {
		return nil, err
	}

	return ecdsa.NewSignature(&r, &s), nil
}

// ToDER returns the strict DER encoding of the signature, without a sighash
// flag. The s value is encoded as is, high or low.
func (b *Sig) ToDER() ([]byte, error) {
	if _, _, err := b.scalars(); err != nil {
		return nil, err
	}

	rBytes := derInt(b[:32])
	sBytes := derInt(b[32:])

	der := make([]byte, 0, 6+len(rBytes)+len(sBytes))
	der = append(der, 0x30, byte(4+len(rBytes)+len(sBytes)))
	der = append(der, 0x02, byte(len(rBytes)))
	der = append(der, rBytes...)
	der = append(der, 0x02, byte(len(sBytes)))
	der = append(der, sBytes...)

	return der, nil
}

// ToWitnessSig returns the DER encoding with the sighash flag appended, the
// form a signature takes inside a witness.
func (b *Sig) ToWitnessSig(hashType byte) ([]byte, error) {
	der, err := b.ToDER()
	if err != nil {
		return nil, err
	}

	return append(der, hashType), nil
}

// derInt returns the minimal big-endian DER integer encoding of a 32 byte
// unsigned value: leading zeros are stripped and a zero byte is prepended if
// the high bit is set.
func derInt(v []byte) []byte {
	i := 0
	for i < len(v)-1 && v[i] == 0 {
		i++
	}
	v = v[i:]

	if v[0]&0x80 != 0 {
		out := make([]byte, len(v)+1)
		copy(out[1:], v)

		return out
	}

	out := make([]byte, len(v))
	copy(out, v)

	return out
}

// AdaptorSig is an adaptor signature with its DLEQ proof, as carried on the
// wire. It is kept in serialized form until it is verified.
type AdaptorSig [adaptor.SignatureSize]byte

// NewAdaptorSig serializes an adaptor signature for the wire.
func NewAdaptorSig(sig *adaptor.Signature) AdaptorSig {
	return AdaptorSig(sig.Serialize())
}

// ToSignature parses the adaptor signature.
func (a *AdaptorSig) ToSignature() (*adaptor.Signature, error) {
	return adaptor.ParseSignature(a[:])
}
