package dlcwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

// ReadBigSize reads a BigSize varint, rejecting values larger than max so a
// corrupt count cannot trigger a huge allocation.
func ReadBigSize(r io.Reader, max uint64) (uint64, error) {
	var scratch [8]byte
	n, err := tlv.ReadVarInt(r, &scratch)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("count %d exceeds maximum %d", n, max)
	}

	return n, nil
}

// readVarBytes reads a u16 length prefixed byte slice.
func readVarBytes(r io.Reader) ([]byte, error) {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return nil, err
	}

	b := make([]byte, binary.BigEndian.Uint16(l[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	return b, nil
}

// ReadElement is a one-stop utility function to deserialize any datastructure
// encoded using the serialization format of dlcwire.
func ReadElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *bool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}

		switch b[0] {
		case 0:
			*e = false
		case 1:
			*e = true
		default:
			return fmt.Errorf("invalid boolean byte %d", b[0])
		}

	case *uint8:
		var b [1]uint8
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]

	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(b[:])

	case *uint32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(b[:])

	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(b[:])

	case *btcutil.Amount:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = btcutil.Amount(int64(binary.BigEndian.Uint64(b[:])))

	case *[32]byte:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *chainhash.Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case **btcec.PublicKey:
		var b [btcec.PubKeyBytesLenCompressed]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}

		pubKey, err := btcec.ParsePubKey(b[:])
		if err != nil {
			return err
		}
		*e = pubKey

	case *Sig:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *[]AdaptorSig:
		n, err := ReadBigSize(r, MaxMsgBody/uint64(len(AdaptorSig{})))
		if err != nil {
			return err
		}

		sigs := make([]AdaptorSig, n)
		for i := range sigs {
			if _, err := io.ReadFull(r, sigs[i][:]); err != nil {
				return err
			}
		}
		*e = sigs

	case *[]byte:
		b, err := readVarBytes(r)
		if err != nil {
			return err
		}
		*e = b

	case *string:
		n, err := ReadBigSize(r, MaxMsgBody)
		if err != nil {
			return err
		}

		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return err
		}
		*e = string(b)

	case **wire.MsgTx:
		b, err := readVarBytes(r)
		if err != nil {
			return err
		}

		tx := &wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
			return err
		}
		*e = tx

	case *[]FundingInput:
		n, err := ReadBigSize(r, MaxMsgBody)
		if err != nil {
			return err
		}

		inputs := make([]FundingInput, 0, min(n, 64))
		for i := uint64(0); i < n; i++ {
			var in FundingInput
			if err := in.Decode(r); err != nil {
				return fmt.Errorf("funding input %d: %w", i, err)
			}
			inputs = append(inputs, in)
		}
		*e = inputs

	case *[]FundingSignature:
		n, err := ReadBigSize(r, MaxMsgBody)
		if err != nil {
			return err
		}

		sigs := make([]FundingSignature, 0, min(n, 64))
		for i := uint64(0); i < n; i++ {
			var sig FundingSignature
			if err := ReadElement(r, &sig.InputSerialID); err != nil {
				return err
			}

			var count uint16
			if err := ReadElement(r, &count); err != nil {
				return err
			}
			sig.Witness = make([][]byte, count)
			for j := range sig.Witness {
				sig.Witness[j], err = readVarBytes(r)
				if err != nil {
					return err
				}
			}
			sigs = append(sigs, sig)
		}
		*e = sigs

	case *ContractInfo:
		return e.Decode(r)

	case *ExtraOpaqueData:
		return e.Decode(r)

	default:
		return fmt.Errorf("unknown type in ReadElement: %T", e)
	}

	return nil
}

// ReadElements deserializes a variable number of elements into the passed
// io.Reader, with each element being deserialized according to the ReadElement
// function.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}
