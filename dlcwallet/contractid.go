package dlcwallet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ContractID is the 32 byte identifier of a funded contract. It is computed
// from the funding outpoint and the temporary id both parties used during
// negotiation.
type ContractID [32]byte

// String returns the hex encoding of the contract id.
func (c ContractID) String() string {
	return hex.EncodeToString(c[:])
}

// NewContractID derives the contract id: the byte-reversed funding txid
// XOR'd with the temporary id, with the big-endian funding output index
// XOR'd into the last two bytes.
func NewContractID(fundTxID chainhash.Hash, fundOutputIndex uint32,
	tempID [32]byte) (ContractID, error) {

	if fundOutputIndex > math.MaxUint16 {
		return ContractID{}, fmt.Errorf("funding output index %d does "+
			"not fit in 16 bits", fundOutputIndex)
	}

	var cid ContractID
	for i := range cid {
		cid[i] = fundTxID[31-i] ^ tempID[i]
	}
	xorOutputIndex(&cid, uint16(fundOutputIndex))

	return cid, nil
}

// xorOutputIndex XORs the big-endian output index into the lower two bytes
// of the id.
func xorOutputIndex(cid *ContractID, outputIndex uint16) {
	var buf [32]byte
	binary.BigEndian.PutUint16(buf[30:], outputIndex)

	cid[30] = cid[30] ^ buf[30]
	cid[31] = cid[31] ^ buf[31]
}
