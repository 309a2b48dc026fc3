package input

const (
	// FundTxBaseWeight is the weight of a funding transaction without any
	// input or change output, shared equally by both parties: version,
	// locktime, segwit marker, counts and the 2-of-2 p2wsh output.
	FundTxBaseWeight = 214

	// CetBaseWeight is the weight of a CET or refund transaction without
	// its payout outputs, shared equally by both parties: version,
	// locktime, counts and the fully witnessed 2-of-2 input.
	CetBaseWeight = 500

	// InputBaseWeight is the non-witness weight of a transaction input
	// with an empty script sig: outpoint (36), script length (1) and
	// sequence (4), times four.
	InputBaseWeight = 164

	// OutputBaseWeight is the weight of a transaction output without its
	// script, value (8) and script length (1) times four.
	OutputBaseWeight = 36

	// P2WSHSize 34 bytes
	//	- OP_0: 1 byte
	//	- OP_DATA: 1 byte (WitnessScriptSHA256 length)
	//	- WitnessScriptSHA256: 32 bytes
	P2WSHSize = 1 + 1 + 32

	// P2WPKHSize 22 bytes
	//	- OP_0: 1 byte
	//	- OP_DATA: 1 byte (PublicKeyHASH160 length)
	//	- PublicKeyHASH160: 20 bytes
	P2WPKHSize = 1 + 1 + 20

	// P2WKHWitnessSize 109 bytes
	//	- number_of_witness_elements: 1 byte
	//	- signature_length: 1 byte
	//	- signature: 73 bytes
	//	- pubkey_length: 1 byte
	//	- pubkey: 33 bytes
	P2WKHWitnessSize = 1 + 1 + 73 + 1 + 33

	// MultiSigSize 71 bytes
	//	- OP_2: 1 byte
	//	- OP_DATA: 1 byte (pubKeyAlice length)
	//	- pubKeyAlice: 33 bytes
	//	- OP_DATA: 1 byte (pubKeyBob length)
	//	- pubKeyBob: 33 bytes
	//	- OP_2: 1 byte
	//	- OP_CHECKMULTISIG: 1 byte
	MultiSigSize = 1 + 1 + 33 + 1 + 33 + 1 + 1

	// MultiSigWitnessSize 222 bytes
	//	- NumberOfWitnessElements: 1 byte
	//	- NilLength: 1 byte
	//	- sigAliceLength: 1 byte
	//	- sigAlice: 73 bytes
	//	- sigBobLength: 1 byte
	//	- sigBob: 73 bytes
	//	- WitnessScriptLength: 1 byte
	//	- WitnessScript (MultiSig)
	MultiSigWitnessSize = 1 + 1 + 1 + 73 + 1 + 73 + 1 + MultiSigSize
)

// InputWeight returns the weight an input contributes to a transaction given
// the length of its script sig and its maximum witness length.
func InputWeight(scriptSigLen, maxWitnessLen int) int64 {
	return InputBaseWeight + 4*int64(scriptSigLen) + int64(maxWitnessLen)
}

// OutputWeight returns the weight of an output with the given script length.
func OutputWeight(pkScriptLen int) int64 {
	return OutputBaseWeight + 4*int64(pkScriptLen)
}

// FeeForWeight returns the fee of the given weight at feeRate satoshis per
// virtual byte, rounding the virtual size up.
func FeeForWeight(weight int64, feeRate uint64) uint64 {
	vsize := (weight + 3) / 4
	return uint64(vsize) * feeRate
}
