package oracle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// attestationTag is the BIP-340 tag domain separating attestation messages.
var attestationTag = []byte("DLC/oracle/attestation/v0")

var (
	// ErrNoSignatures is returned for an attestation without signatures.
	ErrNoSignatures = errors.New("attestation carries no signatures")

	// ErrOracleMismatch is returned when an attestation was produced by a
	// different oracle than the one announced.
	ErrOracleMismatch = errors.New("attestation oracle key does not " +
		"match announcement")

	// ErrInvalidAttestationSig is returned when an attestation signature
	// does not verify.
	ErrInvalidAttestationSig = errors.New("invalid attestation signature")
)

// Attestation is the oracle's signed statement of an event outcome: one
// signature per revealed value, in nonce order.
type Attestation struct {
	EventID      string
	OraclePubKey *btcec.PublicKey
	Signatures   []*schnorr.Signature
	Outcomes     []string
}

// MessageHash returns the hash an oracle signs to attest to outcome.
func MessageHash(outcome string) [32]byte {
	return *chainhash.TaggedHash(attestationTag, []byte(outcome))
}

// OutcomeHash returns the hex encoded sha256 of outcome. Some oracles attest
// to this hash rather than to the outcome string itself.
func OutcomeHash(outcome string) string {
	h := sha256.Sum256([]byte(outcome))
	return hex.EncodeToString(h[:])
}

// challenge computes the BIP-340 challenge scalar for the given nonce x
// coordinate, x-only public key and message.
func challenge(rx, px, msg []byte) btcec.ModNScalar {
	h := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, rx, px, msg)

	var e btcec.ModNScalar
	e.SetByteSlice(h[:])

	return e
}

// liftEven returns the point with the same x coordinate and even y.
func liftEven(pub *btcec.PublicKey) (*btcec.PublicKey, error) {
	return schnorr.ParsePubKey(schnorr.SerializePubKey(pub))
}

// SigPoint returns s*G for the signature s the oracle will produce over
// outcome with the given nonce, i.e. R + e*P. It is computable from public
// data before the attestation exists.
func SigPoint(oraclePub, nonce *btcec.PublicKey,
	outcome string) (*btcec.PublicKey, error) {

	p, err := liftEven(oraclePub)
	if err != nil {
		return nil, err
	}
	r, err := liftEven(nonce)
	if err != nil {
		return nil, err
	}

	msg := MessageHash(outcome)
	e := challenge(
		schnorr.SerializePubKey(r), schnorr.SerializePubKey(p), msg[:],
	)

	var pJ, rJ, eP, sum btcec.JacobianPoint
	p.AsJacobian(&pJ)
	r.AsJacobian(&rJ)
	btcec.ScalarMultNonConst(&e, &pJ, &eP)
	btcec.AddNonConst(&rJ, &eP, &sum)

	sum.Z.Normalize()
	if sum.Z.IsZero() {
		return nil, errors.New("signature point is at infinity")
	}
	sum.ToAffine()

	return btcec.NewPublicKey(&sum.X, &sum.Y), nil
}

// SumPoints adds the given points.
func SumPoints(points []*btcec.PublicKey) (*btcec.PublicKey, error) {
	if len(points) == 0 {
		return nil, errors.New("no points to sum")
	}

	var acc btcec.JacobianPoint
	points[0].AsJacobian(&acc)
	for _, pt := range points[1:] {
		var j, next btcec.JacobianPoint
		pt.AsJacobian(&j)
		btcec.AddNonConst(&acc, &j, &next)
		acc = next
	}

	acc.Z.Normalize()
	if acc.Z.IsZero() {
		return nil, errors.New("point sum is at infinity")
	}
	acc.ToAffine()

	return btcec.NewPublicKey(&acc.X, &acc.Y), nil
}

// Verify checks the attestation against the announcement it claims to answer:
// same event and oracle, each signature made with the announced nonce at
// its position and valid over the attested value.
func (a *Attestation) Verify(ann *Announcement) error {
	if len(a.Signatures) == 0 {
		return ErrNoSignatures
	}
	if len(a.Signatures) != len(a.Outcomes) {
		return fmt.Errorf("attestation has %d signatures for %d "+
			"outcomes", len(a.Signatures), len(a.Outcomes))
	}
	if len(a.Signatures) > len(ann.Nonces) {
		return fmt.Errorf("attestation has %d signatures, announcement "+
			"only %d nonces", len(a.Signatures), len(ann.Nonces))
	}
	if a.EventID != ann.EventID {
		return fmt.Errorf("attestation for event %q, announcement for "+
			"%q", a.EventID, ann.EventID)
	}
	if a.OraclePubKey != nil && !bytes.Equal(
		schnorr.SerializePubKey(a.OraclePubKey),
		schnorr.SerializePubKey(ann.OraclePubKey),
	) {

		return ErrOracleMismatch
	}

	for i, sig := range a.Signatures {
		raw := sig.Serialize()
		nonce := schnorr.SerializePubKey(ann.Nonces[i])
		if !bytes.Equal(raw[:32], nonce) {
			return fmt.Errorf("%w: signature %d uses unannounced "+
				"nonce", ErrInvalidAttestationSig, i)
		}

		msg := MessageHash(a.Outcomes[i])
		if !sig.Verify(msg[:], ann.OraclePubKey) {
			return fmt.Errorf("%w: signature %d over %q",
				ErrInvalidAttestationSig, i, a.Outcomes[i])
		}
	}

	log.Tracef("Verified attestation of %d values for event %q",
		len(a.Signatures), a.EventID)

	return nil
}

// Secret returns the sum of the s values of the first n signatures. It is the
// discrete log of the adaptor point of the CET covering the attested values.
func (a *Attestation) Secret(n int) (*btcec.ModNScalar, error) {
	if n <= 0 || n > len(a.Signatures) {
		return nil, fmt.Errorf("cannot take secret of %d signatures out "+
			"of %d", n, len(a.Signatures))
	}

	var secret btcec.ModNScalar
	for _, sig := range a.Signatures[:n] {
		var s btcec.ModNScalar
		if s.SetByteSlice(sig.Serialize()[32:]) {
			return nil, errors.New("attestation s value overflows")
		}
		secret.Add(&s)
	}

	return &secret, nil
}

// Attest produces the attestation for the given outcomes, signing the i-th
// outcome with the i-th nonce. It is the oracle side of the protocol and is
// used to drive local settlement.
func Attest(oracleKey *btcec.PrivateKey, nonces []*btcec.PrivateKey,
	eventID string, outcomes []string) (*Attestation, error) {

	if len(outcomes) > len(nonces) {
		return nil, fmt.Errorf("%d outcomes but only %d nonces",
			len(outcomes), len(nonces))
	}

	sigs := make([]*schnorr.Signature, len(outcomes))
	for i, outcome := range outcomes {
		msg := MessageHash(outcome)
		sig, err := signWithNonce(oracleKey, nonces[i], msg[:])
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}

	return &Attestation{
		EventID:      eventID,
		OraclePubKey: oracleKey.PubKey(),
		Signatures:   sigs,
		Outcomes:     outcomes,
	}, nil
}

// signWithNonce creates a BIP-340 signature with a caller chosen nonce.
func signWithNonce(key, nonce *btcec.PrivateKey,
	msg []byte) (*schnorr.Signature, error) {

	k := nonce.Key
	if k.IsZero() {
		return nil, errors.New("zero nonce")
	}

	var r btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&k, &r)
	r.ToAffine()
	if r.Y.IsOdd() {
		k.Negate()
	}

	d := key.Key
	pub := key.PubKey()
	if pub.SerializeCompressed()[0] == 0x03 {
		d.Negate()
	}

	rx := r.X.Bytes()
	e := challenge(rx[:], schnorr.SerializePubKey(pub), msg)

	s := new(btcec.ModNScalar).Mul2(&e, &d).Add(&k)

	return schnorr.NewSignature(&r.X, s), nil
}
