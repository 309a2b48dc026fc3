package dlcwallet

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/dlccfg"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/input"
	"github.com/stretchr/testify/require"
)

// testCets returns n CETs spending a 2-of-2 output with distinct payouts,
// one random adaptor point per CET, and the shared spend.
func testCets(t *testing.T, n int) ([]*wire.MsgTx, []*btcec.PublicKey,
	*CetSpend, *btcec.PrivateKey) {

	t.Helper()

	local, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	remote, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	script, out, err := input.GenFundingPkScript(
		local.PubKey().SerializeCompressed(),
		remote.PubKey().SerializeCompressed(), testTotal,
	)
	require.NoError(t, err)

	fundOutPoint := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	payoutSPK := append([]byte{0x00, 0x14}, make([]byte, 20)...)

	cets := make([]*wire.MsgTx, n)
	points := make([]*btcec.PublicKey, n)
	for i := range cets {
		cet := wire.NewMsgTx(txVersion)
		cet.AddTxIn(&wire.TxIn{
			PreviousOutPoint: fundOutPoint,
			Sequence:         contractSequence,
		})
		cet.AddTxOut(wire.NewTxOut(int64(10_000+i), payoutSPK))
		cets[i] = cet

		point, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		points[i] = point.PubKey()
	}

	return cets, points, &CetSpend{
		WitnessScript: script,
		Value:         out.Value,
	}, local
}

// TestSigPoolDeterministic checks the signatures do not depend on the
// worker count or batch size.
func TestSigPoolDeterministic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cets, points, spend, key := testCets(t, 23)

	var first []byte
	for _, cfg := range []struct {
		workers, batch int
	}{
		{1, 1}, {1, 100}, {4, 3}, {8, 7}, {16, 23},
	} {
		pool := NewSigPool(
			&dlccfg.Workers{Sig: cfg.workers},
			&dlccfg.Batching{CetBatchSize: cfg.batch},
		)

		sigs, err := pool.SignCets(ctx, key, spend, cets, points)
		require.NoError(t, err)
		require.Len(t, sigs, len(cets))

		var flat []byte
		for _, sig := range sigs {
			flat = append(flat, sig[:]...)
		}
		if first == nil {
			first = flat
		}
		require.Equal(t, first, flat, "workers %d batch %d",
			cfg.workers, cfg.batch)

		err = pool.VerifyCets(
			ctx, "test", key.PubKey(), spend, cets, points, sigs,
		)
		require.NoError(t, err)
	}
}

// TestSigPoolVerifyFailure checks the failing CET is reported.
func TestSigPoolVerifyFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cets, points, spend, key := testCets(t, 10)
	pool := NewSigPool(
		&dlccfg.Workers{Sig: 3}, &dlccfg.Batching{CetBatchSize: 2},
	)

	sigs, err := pool.SignCets(ctx, key, spend, cets, points)
	require.NoError(t, err)

	// A signature under another CET's point.
	bad := append([]*btcec.PublicKey(nil), points...)
	bad[7] = points[6]
	err = pool.VerifyCets(
		ctx, "accept", key.PubKey(), spend, cets, bad, sigs,
	)
	var invalid *ErrInvalidSignatures
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "accept", invalid.Step)
	require.Equal(t, 7, invalid.Index)

	// A signature by another key.
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	err = pool.VerifyCets(
		ctx, "sign", other.PubKey(), spend, cets, points, sigs,
	)
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "sign", invalid.Step)

	// Too few signatures.
	err = pool.VerifyCets(
		ctx, "sign", key.PubKey(), spend, cets, points, sigs[:9],
	)
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, -1, invalid.Index)

	_, err = pool.SignCets(ctx, key, spend, cets, points[:9])
	require.Error(t, err)
}

// TestSigPoolCancel checks a cancelled context stops signing.
func TestSigPoolCancel(t *testing.T) {
	t.Parallel()

	cets, points, spend, key := testCets(t, 10)
	pool := NewSigPool(
		&dlccfg.Workers{Sig: 2}, &dlccfg.Batching{CetBatchSize: 1},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.SignCets(ctx, key, spend, cets, points)
	require.ErrorIs(t, err, context.Canceled)

	err = pool.VerifyCets(
		ctx, "accept", key.PubKey(), spend, cets, points,
		make([]dlcwire.AdaptorSig, len(cets)),
	)
	require.ErrorIs(t, err, context.Canceled)
}
