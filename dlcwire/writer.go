package dlcwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

var (
	// ErrNilPublicKey is returned when a nil pubkey is used.
	ErrNilPublicKey = errors.New("cannot write nil pubkey")

	// ErrNilTx is returned when a nil transaction is used.
	ErrNilTx = errors.New("cannot write nil transaction")
)

// ErrFieldTooLong is used when a u16 length prefixed field does not fit.
func ErrFieldTooLong(field string, size int) error {
	return fmt.Errorf("%s is %d bytes, max is %d", field, size,
		math.MaxUint16)
}

// WriteBytes appends the given bytes to the provided buffer.
func WriteBytes(buf *bytes.Buffer, b []byte) error {
	_, err := buf.Write(b)
	return err
}

// WriteUint8 appends the uint8 to the provided buffer.
func WriteUint8(buf *bytes.Buffer, n uint8) error {
	_, err := buf.Write([]byte{n})
	return err
}

// WriteBool appends the boolean as a single byte.
func WriteBool(buf *bytes.Buffer, b bool) error {
	if b {
		return WriteUint8(buf, 1)
	}

	return WriteUint8(buf, 0)
}

// WriteUint16 appends the uint16 to the provided buffer. It encodes the
// integer using big endian byte order.
func WriteUint16(buf *bytes.Buffer, n uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], n)
	_, err := buf.Write(b[:])
	return err
}

// WriteUint32 appends the uint32 to the provided buffer. It encodes the
// integer using big endian byte order.
func WriteUint32(buf *bytes.Buffer, n uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	_, err := buf.Write(b[:])
	return err
}

// WriteUint64 appends the uint64 to the provided buffer. It encodes the
// integer using big endian byte order.
func WriteUint64(buf *bytes.Buffer, n uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	_, err := buf.Write(b[:])
	return err
}

// WriteBigSize appends n as a BigSize varint, the encoding used for list
// counts and string lengths.
func WriteBigSize(buf *bytes.Buffer, n uint64) error {
	var scratch [8]byte
	return tlv.WriteVarInt(buf, n, &scratch)
}

// WriteSatoshi appends the Satoshi value to the provided buffer.
func WriteSatoshi(buf *bytes.Buffer, amount btcutil.Amount) error {
	return WriteUint64(buf, uint64(amount))
}

// WritePublicKey appends the compressed public key to the provided buffer.
func WritePublicKey(buf *bytes.Buffer, pub *btcec.PublicKey) error {
	if pub == nil {
		return ErrNilPublicKey
	}

	serializedPubkey := pub.SerializeCompressed()
	return WriteBytes(buf, serializedPubkey)
}

// WriteChainHash appends the chain hash to the provided buffer.
func WriteChainHash(buf *bytes.Buffer, h chainhash.Hash) error {
	return WriteBytes(buf, h[:])
}

// WriteSig appends the compact signature to the provided buffer.
func WriteSig(buf *bytes.Buffer, sig Sig) error {
	return WriteBytes(buf, sig[:])
}

// WriteAdaptorSigs appends a BigSize count followed by every adaptor
// signature.
func WriteAdaptorSigs(buf *bytes.Buffer, sigs []AdaptorSig) error {
	if err := WriteBigSize(buf, uint64(len(sigs))); err != nil {
		return err
	}
	for i := range sigs {
		if err := WriteBytes(buf, sigs[i][:]); err != nil {
			return err
		}
	}

	return nil
}

// WriteVarBytes appends b prefixed with its u16 length. Scripts and witness
// elements are written this way.
func WriteVarBytes(buf *bytes.Buffer, field string, b []byte) error {
	if len(b) > math.MaxUint16 {
		return ErrFieldTooLong(field, len(b))
	}
	if err := WriteUint16(buf, uint16(len(b))); err != nil {
		return err
	}

	return WriteBytes(buf, b)
}

// WriteString appends s prefixed with its BigSize length.
func WriteString(buf *bytes.Buffer, s string) error {
	if err := WriteBigSize(buf, uint64(len(s))); err != nil {
		return err
	}

	return WriteBytes(buf, []byte(s))
}

// WriteTx appends the u16 length prefixed serialization of tx.
func WriteTx(buf *bytes.Buffer, tx *wire.MsgTx) error {
	if tx == nil {
		return ErrNilTx
	}

	var b bytes.Buffer
	if err := tx.Serialize(&b); err != nil {
		return err
	}

	return WriteVarBytes(buf, "transaction", b.Bytes())
}

// WriteFundingInputs appends a BigSize count followed by every input.
func WriteFundingInputs(buf *bytes.Buffer, inputs []FundingInput) error {
	if err := WriteBigSize(buf, uint64(len(inputs))); err != nil {
		return err
	}
	for i := range inputs {
		if err := inputs[i].Encode(buf); err != nil {
			return fmt.Errorf("funding input %d: %w", i, err)
		}
	}

	return nil
}

// WriteFundingSignatures appends a BigSize count followed by every witness,
// each as its serial id and u16 counted elements.
func WriteFundingSignatures(buf *bytes.Buffer,
	sigs []FundingSignature) error {

	if err := WriteBigSize(buf, uint64(len(sigs))); err != nil {
		return err
	}
	for _, sig := range sigs {
		if err := WriteUint64(buf, sig.InputSerialID); err != nil {
			return err
		}
		if len(sig.Witness) > math.MaxUint16 {
			return ErrFieldTooLong("witness", len(sig.Witness))
		}
		err := WriteUint16(buf, uint16(len(sig.Witness)))
		if err != nil {
			return err
		}
		for _, elem := range sig.Witness {
			err := WriteVarBytes(buf, "witness element", elem)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
