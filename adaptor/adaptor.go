// Package adaptor implements ECDSA adaptor signatures over secp256k1: an
// ECDSA signature encrypted under a public point Y such that whoever knows
// y = log(Y) can decrypt it into a valid signature, and whoever sees both
// the adaptor signature and the decrypted one learns y. A DLEQ proof binds
// the encrypted nonce to Y so the receiver can check the encryption point
// before relying on it.
package adaptor

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SignatureSize is the serialized size of an adaptor signature.
const SignatureSize = 33 + 33 + 32 + 32 + 32

var (
	nonceTag     = []byte("DLC/adaptor/nonce")
	dleqTag      = []byte("DLC/adaptor/dleq")
	dleqNonceTag = []byte("DLC/adaptor/dleq/nonce")
)

var (
	// ErrInvalidProof is returned when the DLEQ proof of an adaptor
	// signature does not hold.
	ErrInvalidProof = errors.New("invalid adaptor dleq proof")

	// ErrInvalidSignature is returned when the encrypted signature does
	// not verify against the public key and message.
	ErrInvalidSignature = errors.New("invalid adaptor signature")

	// ErrSecretMismatch is returned when a recovered secret does not match
	// the encryption point.
	ErrSecretMismatch = errors.New("recovered secret does not match " +
		"encryption point")
)

// Signature is an encrypted ECDSA signature. R = k*Y is the nonce of the
// decrypted signature, RA = k*G the nonce the encrypted s value commits to,
// and (E, Z) a DLEQ proof that both share k.
type Signature struct {
	R  btcec.JacobianPoint
	RA btcec.JacobianPoint
	S  btcec.ModNScalar
	E  btcec.ModNScalar
	Z  btcec.ModNScalar
}

// Serialize encodes the signature as R || RA || s || e || z with both points
// compressed.
func (s *Signature) Serialize() [SignatureSize]byte {
	var b [SignatureSize]byte

	copy(b[0:33], pointBytes(&s.R))
	copy(b[33:66], pointBytes(&s.RA))
	s.S.PutBytesUnchecked(b[66:98])
	s.E.PutBytesUnchecked(b[98:130])
	s.Z.PutBytesUnchecked(b[130:162])

	return b
}

// ParseSignature decodes a serialized adaptor signature.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("adaptor signature must be %d bytes, "+
			"got %d", SignatureSize, len(b))
	}

	var sig Signature

	r, err := btcec.ParsePubKey(b[0:33])
	if err != nil {
		return nil, fmt.Errorf("invalid R: %w", err)
	}
	r.AsJacobian(&sig.R)

	ra, err := btcec.ParsePubKey(b[33:66])
	if err != nil {
		return nil, fmt.Errorf("invalid RA: %w", err)
	}
	ra.AsJacobian(&sig.RA)

	for _, f := range []struct {
		dst  *btcec.ModNScalar
		src  []byte
		name string
	}{
		{&sig.S, b[66:98], "s"},
		{&sig.E, b[98:130], "e"},
		{&sig.Z, b[130:162], "z"},
	} {
		if f.dst.SetByteSlice(f.src) {
			return nil, fmt.Errorf("%s overflows the group order",
				f.name)
		}
	}
	if sig.S.IsZero() {
		return nil, errors.New("zero s value")
	}

	return &sig, nil
}

// Encrypt creates an adaptor signature of hash by key, encrypted under
// encKey.
func Encrypt(key *btcec.PrivateKey, hash []byte,
	encKey *btcec.PublicKey) (*Signature, error) {

	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}

	var y btcec.JacobianPoint
	encKey.AsJacobian(&y)

	keyBytes := key.Key.Bytes()
	k := hashToScalar(
		nonceTag, keyBytes[:], hash, encKey.SerializeCompressed(),
	)
	if k.IsZero() {
		return nil, errors.New("derived zero nonce")
	}

	var sig Signature
	btcec.ScalarBaseMultNonConst(&k, &sig.RA)
	sig.RA.ToAffine()
	btcec.ScalarMultNonConst(&k, &y, &sig.R)
	sig.R.ToAffine()

	r := xScalar(&sig.R)
	if r.IsZero() {
		return nil, errors.New("zero r value")
	}

	// s = k^-1 * (m + r*x)
	var m btcec.ModNScalar
	m.SetByteSlice(hash)

	s := new(btcec.ModNScalar).Mul2(&r, &key.Key).Add(&m)
	kInv := new(btcec.ModNScalar).InverseValNonConst(&k)
	s.Mul(kInv)
	if s.IsZero() {
		return nil, errors.New("zero s value")
	}
	sig.S = *s

	sig.E, sig.Z = proveDLEQ(&k, &y, &sig.RA, &sig.R)

	return &sig, nil
}

// Verify checks the adaptor signature was produced by pubKey over hash and
// encrypted under encKey.
func (s *Signature) Verify(pubKey *btcec.PublicKey, hash []byte,
	encKey *btcec.PublicKey) error {

	if len(hash) != 32 {
		return fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}

	var y btcec.JacobianPoint
	encKey.AsJacobian(&y)

	if !verifyDLEQ(&s.E, &s.Z, &y, &s.RA, &s.R) {
		return ErrInvalidProof
	}

	r := xScalar(&s.R)
	if r.IsZero() || s.S.IsZero() {
		return ErrInvalidSignature
	}

	// RA must equal s^-1 * (m*G + r*X).
	var m btcec.ModNScalar
	m.SetByteSlice(hash)

	sInv := new(btcec.ModNScalar).InverseValNonConst(&s.S)
	u1 := new(btcec.ModNScalar).Mul2(&m, sInv)
	u2 := new(btcec.ModNScalar).Mul2(&r, sInv)

	var x, u1G, u2X, sum btcec.JacobianPoint
	pubKey.AsJacobian(&x)
	btcec.ScalarBaseMultNonConst(u1, &u1G)
	btcec.ScalarMultNonConst(u2, &x, &u2X)
	btcec.AddNonConst(&u1G, &u2X, &sum)
	sum.ToAffine()

	if !equalAffine(&sum, &s.RA) {
		return ErrInvalidSignature
	}

	return nil
}

// Decrypt completes the adaptor signature with the secret of its
// encryption point, returning a low-s ECDSA signature.
func (s *Signature) Decrypt(secret *btcec.ModNScalar) (*ecdsa.Signature,
	error) {

	if secret.IsZero() {
		return nil, errors.New("zero decryption secret")
	}

	yInv := new(btcec.ModNScalar).InverseValNonConst(secret)
	sig := new(btcec.ModNScalar).Mul2(&s.S, yInv)
	if sig.IsOverHalfOrder() {
		sig.Negate()
	}

	r := xScalar(&s.R)

	return ecdsa.NewSignature(&r, sig), nil
}

// Recover extracts the encryption secret from the adaptor signature and the
// decrypted signature that was published.
func (s *Signature) Recover(sig *ecdsa.Signature,
	encKey *btcec.PublicKey) (*btcec.ModNScalar, error) {

	sigR, sigS := sig.R(), sig.S()
	r := xScalar(&s.R)
	if !sigR.Equals(&r) {
		return nil, errors.New("signature nonce does not match adaptor")
	}
	if sigS.IsZero() {
		return nil, errors.New("zero s value")
	}

	// y = s_a / s, up to the sign flipped by low-s normalization.
	sInv := new(btcec.ModNScalar).InverseValNonConst(&sigS)
	y := new(btcec.ModNScalar).Mul2(&s.S, sInv)

	var expected, candidate btcec.JacobianPoint
	encKey.AsJacobian(&expected)

	btcec.ScalarBaseMultNonConst(y, &candidate)
	candidate.ToAffine()
	if equalAffine(&candidate, &expected) {
		return y, nil
	}

	y.Negate()
	btcec.ScalarBaseMultNonConst(y, &candidate)
	candidate.ToAffine()
	if equalAffine(&candidate, &expected) {
		return y, nil
	}

	return nil, ErrSecretMismatch
}

// proveDLEQ proves log_G(ra) == log_Y(r) == k.
func proveDLEQ(k *btcec.ModNScalar, y, ra,
	r *btcec.JacobianPoint) (btcec.ModNScalar, btcec.ModNScalar) {

	kBytes := k.Bytes()
	u := hashToScalar(
		dleqNonceTag, kBytes[:], pointBytes(ra), pointBytes(r),
	)

	var a1, a2 btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&u, &a1)
	a1.ToAffine()
	btcec.ScalarMultNonConst(&u, y, &a2)
	a2.ToAffine()

	e := dleqChallenge(y, ra, r, &a1, &a2)

	// z = u + e*k
	z := new(btcec.ModNScalar).Mul2(&e, k).Add(&u)

	return e, *z
}

// verifyDLEQ checks a proof produced by proveDLEQ.
func verifyDLEQ(e, z *btcec.ModNScalar, y, ra, r *btcec.JacobianPoint) bool {
	negE := new(btcec.ModNScalar).Set(e).Negate()

	// A1 = z*G - e*RA, A2 = z*Y - e*R
	var zG, eRA, a1 btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(z, &zG)
	btcec.ScalarMultNonConst(negE, ra, &eRA)
	btcec.AddNonConst(&zG, &eRA, &a1)
	a1.ToAffine()

	var zY, eR, a2 btcec.JacobianPoint
	btcec.ScalarMultNonConst(z, y, &zY)
	btcec.ScalarMultNonConst(negE, r, &eR)
	btcec.AddNonConst(&zY, &eR, &a2)
	a2.ToAffine()

	expected := dleqChallenge(y, ra, r, &a1, &a2)

	return expected.Equals(e)
}

// dleqChallenge hashes the proof transcript into a scalar.
func dleqChallenge(y, ra, r, a1, a2 *btcec.JacobianPoint) btcec.ModNScalar {
	return hashToScalar(
		dleqTag, pointBytes(y), pointBytes(ra), pointBytes(r),
		pointBytes(a1), pointBytes(a2),
	)
}

// hashToScalar reduces a tagged hash of msgs modulo the group order.
func hashToScalar(tag []byte, msgs ...[]byte) btcec.ModNScalar {
	h := chainhash.TaggedHash(tag, msgs...)

	var s btcec.ModNScalar
	s.SetByteSlice(h[:])

	return s
}

// xScalar returns the x coordinate of an affine point reduced modulo the
// group order.
func xScalar(p *btcec.JacobianPoint) btcec.ModNScalar {
	x := p.X
	x.Normalize()
	xBytes := x.Bytes()

	var r btcec.ModNScalar
	r.SetByteSlice(xBytes[:])

	return r
}

// pointBytes returns the compressed encoding of an affine point.
func pointBytes(p *btcec.JacobianPoint) []byte {
	return btcec.NewPublicKey(&p.X, &p.Y).SerializeCompressed()
}

// equalAffine compares two affine points.
func equalAffine(a, b *btcec.JacobianPoint) bool {
	ax, ay, bx, by := a.X, a.Y, b.X, b.Y
	ax.Normalize()
	ay.Normalize()
	bx.Normalize()
	by.Normalize()

	return ax.Equals(&bx) && ay.Equals(&by)
}
