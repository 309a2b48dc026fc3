package dlcwallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/input"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testPartyParams returns party parameters funded by one p2wpkh coin.
func testPartyParams(t *testing.T, w *mockWallet, collateral,
	coin btcutil.Amount, serialIDs [3]uint64) *PartyParams {

	t.Helper()

	key, err := w.newKey()
	require.NoError(t, err)

	p2wpkh := append([]byte{0x00, 0x14}, make([]byte, 20)...)
	p := &PartyParams{
		FundPubKey:     key.PubKey(),
		PayoutSPK:      p2wpkh,
		PayoutSerialID: serialIDs[0],
		ChangeSPK:      p2wpkh,
		ChangeSerialID: serialIDs[1],
		Collateral:     collateral,
	}
	if coin > 0 {
		in := w.newCoin(t, coin)
		in.InputSerialID = serialIDs[2]
		p.Inputs = []dlcwire.FundingInput{in}
	}

	return p
}

// TestPartyFees checks the per party fee split.
func TestPartyFees(t *testing.T) {
	t.Parallel()

	w := newMockWallet(t)
	p := testPartyParams(t, w, 100_000, 200_000, [3]uint64{1, 2, 3})

	// 107 + (164 + 109) + (36 + 4*22) = 504 weight, 126 vbytes.
	// 250 + (36 + 4*22) = 374 weight, 94 vbytes.
	fundFee, cetFee := p.Fees(10)
	require.Equal(t, btcutil.Amount(1260), fundFee)
	require.Equal(t, btcutil.Amount(940), cetFee)

	// A nested segwit input pays for its script sig as well.
	p.Inputs[0].RedeemScript = make([]byte, 22)
	fundFee, _ = p.Fees(10)
	require.Equal(t, btcutil.Amount(10*((504+4*23+3)/4)), fundFee)

	empty := &PartyParams{PayoutSPK: p.PayoutSPK, ChangeSPK: p.ChangeSPK}
	fundFee, cetFee = empty.Fees(10)
	require.Zero(t, fundFee)
	require.Zero(t, cetFee)
}

// TestBuildFundTx checks the funding transaction amounts, the omitted
// change outputs and the insufficient funds error.
func TestBuildFundTx(t *testing.T) {
	t.Parallel()

	w := newMockWallet(t)
	offer := testPartyParams(t, w, 600_000, 700_000, [3]uint64{10, 20, 30})
	accept := testPartyParams(t, w, 400_000, 500_000, [3]uint64{40, 50, 60})

	txs, err := BuildFundTx(offer, accept, 5, testFeeRate)
	require.NoError(t, err)

	_, offerCet := offer.Fees(testFeeRate)
	_, acceptCet := accept.Fees(testFeeRate)
	require.Equal(
		t, int64(1_000_000+offerCet+acceptCet), txs.FundOutput.Value,
	)
	require.Len(t, txs.FundTx.TxOut, 3)
	require.Equal(t, uint32(0), txs.FundTxVout)
	require.Equal(t, txs.FundOutput, txs.FundTx.TxOut[txs.FundTxVout])
	require.Equal(t, int32(2), txs.FundTx.Version)
	require.Zero(t, txs.FundTx.LockTime)

	// Inputs follow serial id order.
	require.Equal(
		t, offer.Inputs[0].OutPoint(),
		txs.FundTx.TxIn[0].PreviousOutPoint,
	)

	// A party bringing nothing adds no change output.
	empty := &PartyParams{
		FundPubKey:     accept.FundPubKey,
		PayoutSPK:      accept.PayoutSPK,
		PayoutSerialID: 40,
		ChangeSPK:      accept.ChangeSPK,
		ChangeSerialID: 1,
	}
	offer.Collateral = 1_000_000
	offer.Inputs = []dlcwire.FundingInput{w.newCoin(t, 1_200_000)}
	offer.Inputs[0].InputSerialID = 30
	txs, err = BuildFundTx(offer, empty, 25, testFeeRate)
	require.NoError(t, err)
	require.Len(t, txs.FundTx.TxOut, 2)
	require.Equal(t, uint32(1), txs.FundTxVout)

	// Change below dust is dropped.
	fundFee, cetFee := offer.Fees(testFeeRate)
	offer.Inputs = []dlcwire.FundingInput{w.newCoin(
		t, 1_000_000+fundFee+cetFee+DustLimit-1,
	)}
	txs, err = BuildFundTx(offer, empty, 25, testFeeRate)
	require.NoError(t, err)
	require.Len(t, txs.FundTx.TxOut, 1)

	offer.Inputs = []dlcwire.FundingInput{w.newCoin(t, 1_000_000)}
	_, err = BuildFundTx(offer, empty, 25, testFeeRate)
	var insufficient *ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)

	_, err = BuildFundTx(offer, offer, 25, testFeeRate)
	require.ErrorIs(t, err, ErrSameFundingPubkey)
}

// TestChangeToFundScript checks a change script paying the funding output
// is refused, so the funding output index is unambiguous.
func TestChangeToFundScript(t *testing.T) {
	t.Parallel()

	w := newMockWallet(t)
	offer := testPartyParams(t, w, 600_000, 700_000, [3]uint64{10, 20, 30})
	accept := testPartyParams(t, w, 400_000, 500_000, [3]uint64{40, 50, 60})

	// The p2wsh script does not depend on the output value.
	_, fundOut, err := input.GenFundingPkScript(
		offer.FundPubKey.SerializeCompressed(),
		accept.FundPubKey.SerializeCompressed(), 1,
	)
	require.NoError(t, err)

	accept.ChangeSPK = fundOut.PkScript
	_, err = BuildFundTx(offer, accept, 5, testFeeRate)
	require.ErrorIs(t, err, ErrChangeToFundScript)

	// With a distinct change script the funding output is found by its
	// script.
	accept.ChangeSPK = offer.ChangeSPK
	txs, err := BuildFundTx(offer, accept, 55, testFeeRate)
	require.NoError(t, err)
	require.Equal(t, uint32(2), txs.FundTxVout)
	require.Equal(
		t, fundOut.PkScript, txs.FundTx.TxOut[txs.FundTxVout].PkScript,
	)
}

// TestFundOutputRank checks the funding output index is the rank of its
// serial id among the outputs present, for every ordering of the serial ids.
func TestFundOutputRank(t *testing.T) {
	t.Parallel()

	w := newMockWallet(t)
	perms := [][3]uint64{
		{1, 2, 3}, {1, 3, 2}, {2, 1, 3},
		{2, 3, 1}, {3, 1, 2}, {3, 2, 1},
	}

	for _, perm := range perms {
		offerChange, acceptChange, fund := perm[0], perm[1], perm[2]

		offer := testPartyParams(
			t, w, 500_000, 800_000, [3]uint64{100, offerChange, 200},
		)
		accept := testPartyParams(
			t, w, 500_000, 800_000, [3]uint64{101, acceptChange, 201},
		)

		txs, err := BuildFundTx(offer, accept, fund, testFeeRate)
		require.NoError(t, err)
		require.Equal(t, uint32(fund-1), txs.FundTxVout, "perm %v", perm)
		require.Equal(
			t, txs.FundOutput.PkScript,
			txs.FundTx.TxOut[txs.FundTxVout].PkScript,
		)

		// Without the accepter's change the rank shrinks if its id
		// was below the funding output's.
		accept.Inputs = nil
		accept.Collateral = 0
		offer.Collateral = 1_000_000
		offer.Inputs = []dlcwire.FundingInput{w.newCoin(t, 1_500_000)}
		offer.Inputs[0].InputSerialID = 200

		txs, err = BuildFundTx(offer, accept, fund, testFeeRate)
		require.NoError(t, err)

		want := uint32(0)
		if offerChange < fund {
			want++
		}
		require.Equal(t, want, txs.FundTxVout, "perm %v", perm)
	}
}

// TestDlcInputWeight checks a spliced contract input is weighed as a 2-of-2
// spend and must really spend the 2-of-2 of its keys.
func TestDlcInputWeight(t *testing.T) {
	t.Parallel()

	w := newMockWallet(t)
	offer := testPartyParams(t, w, 100_000, 0, [3]uint64{1, 2, 3})
	accept := testPartyParams(t, w, 0, 0, [3]uint64{4, 5, 6})

	local, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	remote, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	_, fundOut, err := input.GenFundingPkScript(
		local.PubKey().SerializeCompressed(),
		remote.PubKey().SerializeCompressed(), 300_000,
	)
	require.NoError(t, err)

	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(&wire.TxIn{})
	prevTx.AddTxOut(fundOut)

	in := dlcwire.FundingInput{
		InputSerialID: 7,
		PrevTx:        prevTx,
		Sequence:      wire.MaxTxInSequenceNum,
		MaxWitnessLen: input.P2WKHWitnessSize,
	}
	in.DlcInput = fn.Some(dlcwire.DlcInput{
		LocalFundPubKey:  local.PubKey(),
		RemoteFundPubKey: remote.PubKey(),
	})
	offer.Inputs = []dlcwire.FundingInput{in}

	require.Equal(
		t, input.InputWeight(0, input.MultiSigWitnessSize),
		inputWeight(&offer.Inputs[0]),
	)

	_, err = BuildFundTx(offer, accept, 8, testFeeRate)
	require.NoError(t, err)

	// Claiming other keys is rejected.
	in.DlcInput = fn.Some(dlcwire.DlcInput{
		LocalFundPubKey:  remote.PubKey(),
		RemoteFundPubKey: offer.FundPubKey,
	})
	offer.Inputs = []dlcwire.FundingInput{in}
	_, err = BuildFundTx(offer, accept, 8, testFeeRate)
	require.Error(t, err)
}

// TestPayoutTxs checks CET and refund structure.
func TestPayoutTxs(t *testing.T) {
	t.Parallel()

	w := newMockWallet(t)
	offer := testPartyParams(t, w, 600_000, 700_000, [3]uint64{9, 2, 3})
	accept := testPartyParams(t, w, 400_000, 500_000, [3]uint64{4, 5, 6})

	txs, err := BuildFundTx(offer, accept, 1, testFeeRate)
	require.NoError(t, err)

	cets, err := BuildCets(
		txs, offer, accept,
		[]btcutil.Amount{0, 500, 250_000, 1_000_000}, 1_000_000,
		testLockTime,
	)
	require.NoError(t, err)
	require.Len(t, cets, 4)

	for _, cet := range cets {
		require.Len(t, cet.TxIn, 1)
		require.Equal(t, txs.FundOutPoint(), cet.TxIn[0].PreviousOutPoint)
		require.Equal(t, uint32(contractSequence), cet.TxIn[0].Sequence)
		require.Equal(t, uint32(testLockTime), cet.LockTime)
	}

	// Dust payouts are dropped.
	require.Len(t, cets[0].TxOut, 1)
	require.Len(t, cets[1].TxOut, 1)
	require.Equal(t, int64(1_000_000-500), cets[1].TxOut[0].Value)

	// The accepter's payout serial id sorts first.
	require.Len(t, cets[2].TxOut, 2)
	require.Equal(t, int64(750_000), cets[2].TxOut[0].Value)
	require.Equal(t, int64(250_000), cets[2].TxOut[1].Value)

	_, err = BuildCets(
		txs, offer, accept, []btcutil.Amount{1_000_001}, 1_000_000, 0,
	)
	require.Error(t, err)

	refund := BuildRefundTx(txs, offer, accept, testRefund)
	require.Equal(t, uint32(testRefund), refund.LockTime)
	require.Len(t, refund.TxOut, 2)
	require.Equal(t, int64(400_000), refund.TxOut[0].Value)
	require.Equal(t, int64(600_000), refund.TxOut[1].Value)
}

// TestContractIDInvolution checks deriving the id again from its reversal
// with the same output index and temporary id gives back the txid, and
// that every input bit maps to exactly one output bit.
func TestContractIDInvolution(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		var txid chainhash.Hash
		copy(txid[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "txid"))

		var tempID [32]byte
		copy(tempID[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(
			t, "temp",
		))
		vout := rapid.Uint32Range(0, 0xffff).Draw(t, "vout")

		cid, err := NewContractID(txid, vout, tempID)
		require.NoError(t, err)

		var reversed chainhash.Hash
		for i := range cid {
			reversed[i] = cid[31-i]
		}
		back, err := NewContractID(reversed, vout, tempID)
		require.NoError(t, err)
		for i := range back {
			require.Equal(t, txid[31-i], back[i])
		}

		// Flipping one txid bit flips the mirrored output bit.
		bit := rapid.IntRange(0, 255).Draw(t, "bit")
		flipped := txid
		flipped[bit/8] ^= 1 << (bit % 8)
		cid2, err := NewContractID(flipped, vout, tempID)
		require.NoError(t, err)

		var diff ContractID
		for i := range diff {
			diff[i] = cid[i] ^ cid2[i]
		}
		var want ContractID
		want[31-bit/8] = 1 << (bit % 8)
		require.Equal(t, want, diff)

		// Flipping one temp id bit flips the same output bit.
		tempFlipped := tempID
		tempFlipped[bit/8] ^= 1 << (bit % 8)
		cid3, err := NewContractID(txid, vout, tempFlipped)
		require.NoError(t, err)
		require.Equal(t, cid[bit/8]^(1<<(bit%8)), cid3[bit/8])
	})

	_, err := NewContractID(chainhash.Hash{}, 1<<16, [32]byte{})
	require.Error(t, err)
}

// TestContractIDVector checks the output index lands big-endian in the last
// two bytes.
func TestContractIDVector(t *testing.T) {
	t.Parallel()

	var txid chainhash.Hash
	txid[0] = 0xaa

	cid, err := NewContractID(txid, 0x0102, [32]byte{})
	require.NoError(t, err)

	var want ContractID
	want[31] = 0xaa ^ 0x02
	want[30] = 0x01
	require.Equal(t, want, cid)
	require.Equal(t, "00000000000000000000000000000000"+
		"000000000000000000000000000001a8", cid.String())
}
