package dlcwallet

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/dlccfg"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/input"
	"github.com/dlcproto/dlcd/oracle"
	"github.com/dlcproto/dlcd/payout"
	"github.com/stretchr/testify/require"
)

const (
	testTotal    = 1_000_000
	testFeeRate  = 2
	testStrike   = 4000
	testNumBits  = 18
	testLockTime = 100
	testRefund   = 200
)

// mockWallet is an in memory Wallet holding p2wpkh coins.
type mockWallet struct {
	mu sync.Mutex

	keys  []*btcec.PrivateKey
	utxos []dlcwire.FundingInput

	// failSelection makes every coin selection fail for lack of funds.
	failSelection bool

	// exactCoins makes coin selection mint a single coin worth exactly
	// the requested amount plus its own fee.
	exactCoins bool

	// ignoreFees makes coin selection mint a single coin worth only the
	// requested amount, leaving out the fixed inputs.
	ignoreFees bool
}

// testInputFee is the fee of one wallet coin at feeRate.
func testInputFee(feeRate uint64) btcutil.Amount {
	return btcutil.Amount(input.FeeForWeight(
		input.InputWeight(0, input.P2WKHWitnessSize), feeRate,
	))
}

var _ Wallet = (*mockWallet)(nil)

func newMockWallet(t *testing.T, values ...btcutil.Amount) *mockWallet {
	t.Helper()

	w := &mockWallet{}
	for _, v := range values {
		w.utxos = append(w.utxos, w.newCoin(t, v))
	}

	return w
}

// newKey adds a fresh key to the wallet.
func (w *mockWallet) newKey() (*btcec.PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.keys = append(w.keys, key)
	w.mu.Unlock()

	return key, nil
}

// newCoin creates a p2wpkh output of the given value paying a wallet key,
// inside a previous transaction of its own.
func (w *mockWallet) newCoin(t *testing.T,
	value btcutil.Amount) dlcwire.FundingInput {

	t.Helper()

	coin, err := w.mintCoin(value)
	require.NoError(t, err)

	return coin
}

func (w *mockWallet) mintCoin(value btcutil.Amount) (dlcwire.FundingInput,
	error) {

	key, err := w.newKey()
	if err != nil {
		return dlcwire.FundingInput{}, err
	}

	pkScript, err := input.WitnessPubKeyHash(
		key.PubKey().SerializeCompressed(),
	)
	if err != nil {
		return dlcwire.FundingInput{}, err
	}

	var prevHash chainhash.Hash
	if _, err := rand.Read(prevHash[:]); err != nil {
		return dlcwire.FundingInput{}, err
	}

	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	prevTx.AddTxOut(wire.NewTxOut(int64(value), pkScript))

	return dlcwire.FundingInput{
		PrevTx:        prevTx,
		PrevTxVout:    0,
		Sequence:      wire.MaxTxInSequenceNum,
		MaxWitnessLen: input.P2WKHWitnessSize,
	}, nil
}

func (w *mockWallet) GetUnusedAddress(_ bool) (*AddressInfo, error) {
	key, err := w.newKey()
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()),
		&chaincfg.RegressionNetParams,
	)
	if err != nil {
		return nil, err
	}

	return &AddressInfo{
		Address: addr,
		PubKey:  key.PubKey(),
	}, nil
}

func (w *mockWallet) FindPrivateKeyForPubkey(
	pub *btcec.PublicKey) (*btcec.PrivateKey, error) {

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, key := range w.keys {
		if key.PubKey().IsEqual(pub) {
			return key, nil
		}
	}

	return nil, fmt.Errorf("unknown key %x", pub.SerializeCompressed())
}

func (w *mockWallet) SelectInputsForAmount(amount btcutil.Amount,
	feeRate uint64,
	fixed []dlcwire.FundingInput) ([]dlcwire.FundingInput, error) {

	switch {
	case w.exactCoins:
		coin, err := w.mintCoin(amount + testInputFee(feeRate))
		if err != nil {
			return nil, err
		}
		return append(
			append([]dlcwire.FundingInput(nil), fixed...), coin,
		), nil

	case w.ignoreFees:
		coin, err := w.mintCoin(amount)
		if err != nil {
			return nil, err
		}
		return []dlcwire.FundingInput{coin}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Every selected coin pays for itself on top of the amount.
	needed := amount
	selected := append([]dlcwire.FundingInput(nil), fixed...)
	var total btcutil.Amount
	for i := range fixed {
		prevOut, err := fixed[i].PrevOut()
		if err != nil {
			return nil, err
		}
		total += btcutil.Amount(prevOut.Value)
		needed += testInputFee(feeRate)
	}

	for _, utxo := range w.utxos {
		if w.failSelection || total >= needed {
			break
		}
		selected = append(selected, utxo)
		total += btcutil.Amount(utxo.PrevTx.TxOut[0].Value)
		needed += testInputFee(feeRate)
	}

	if w.failSelection || total < needed {
		return nil, &ErrInsufficientFunds{
			Needed:    needed,
			Available: total,
		}
	}

	return selected, nil
}

func (w *mockWallet) ComputeInputScript(tx *wire.MsgTx,
	signDesc *input.SignDescriptor) (*input.Script, error) {

	w.mu.Lock()
	signer := &input.KeySigner{Privkeys: w.keys}
	w.mu.Unlock()

	return signer.ComputeInputScript(tx, signDesc)
}

// testOracle is an oracle able to attest to a single event.
type testOracle struct {
	key    *btcec.PrivateKey
	nonces []*btcec.PrivateKey
	ann    *oracle.Announcement
}

func newTestOracle(t *testing.T, event oracle.EventDescriptor,
	eventID string) *testOracle {

	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	nonces := make([]*btcec.PrivateKey, event.NumNonces())
	noncePubs := make([]*btcec.PublicKey, event.NumNonces())
	for i := range nonces {
		nonces[i], err = btcec.NewPrivateKey()
		require.NoError(t, err)

		noncePubs[i], err = oracle.ParseXOnly(
			oracle.SerializeXOnly(nonces[i].PubKey()),
		)
		require.NoError(t, err)
	}

	oraclePub, err := oracle.ParseXOnly(
		oracle.SerializeXOnly(key.PubKey()),
	)
	require.NoError(t, err)

	ann := &oracle.Announcement{
		OraclePubKey:  oraclePub,
		Nonces:        noncePubs,
		EventMaturity: testLockTime,
		Event:         event,
		EventID:       eventID,
	}
	require.NoError(t, ann.Validate())

	return &testOracle{key: key, nonces: nonces, ann: ann}
}

// attest signs the given outcome values.
func (o *testOracle) attest(t *testing.T,
	outcomes []string) *oracle.Attestation {

	t.Helper()

	att, err := oracle.Attest(o.key, o.nonces, o.ann.EventID, outcomes)
	require.NoError(t, err)

	return att
}

// attestNumber signs the base 2 digits of outcome.
func (o *testOracle) attestNumber(t *testing.T,
	outcome uint64) *oracle.Attestation {

	t.Helper()

	event := o.ann.Event.(*oracle.DigitEvent)
	digits := payout.Digits(outcome, event.Base, int(event.NumDigits))

	return o.attest(t, oracle.PrefixMessages(digits))
}

// enumContractInfo returns the three outcome contract paying the offerer
// everything on "1", nothing on "2" and half on "3".
func enumContractInfo(t *testing.T) (*testOracle, dlcwire.ContractInfo) {
	t.Helper()

	o := newTestOracle(t, &oracle.EnumEvent{
		Outcomes: []string{"1", "2", "3"},
	}, "enum-event")

	return o, dlcwire.ContractInfo{
		TotalCollateral: testTotal,
		Contracts: []dlcwire.ContractOracle{{
			Descriptor: &dlcwire.EnumeratedDescriptor{
				Outcomes: []dlcwire.EnumOutcome{
					{Outcome: "1", OfferPayout: testTotal},
					{Outcome: "2", OfferPayout: 0},
					{Outcome: "3", OfferPayout: testTotal / 2},
				},
			},
			OracleInfo: &dlcwire.SingleOracleInfo{
				Announcement: o.ann,
			},
		}},
	}
}

// coveredCallFunction pays nothing up to the strike, then
// 2*total*(1 - strike/x), reaching the full collateral at twice the strike.
func coveredCallFunction() payout.Function {
	return payout.Function{
		Pieces: []payout.Piece{
			{
				EndOutcome: testStrike,
				Curve: &payout.Polynomial{Points: []payout.Point{
					{Outcome: 0, Payout: 0},
					{Outcome: testStrike, Payout: 0},
				}},
			},
			{
				EndOutcome: 1<<testNumBits - 1,
				Curve: &payout.Hyperbola{
					UsePositivePiece: true,
					A:                payout.NewDecimal(1),
					D: payout.NewDecimal(
						-2 * testTotal * testStrike,
					),
					TranslatePayout: payout.NewDecimal(
						2 * testTotal,
					),
				},
			},
		},
	}
}

// coveredCallInfo returns a numeric covered call contract over an 18 bit
// outcome.
func coveredCallInfo(t *testing.T) (*testOracle, dlcwire.ContractInfo) {
	t.Helper()

	o := newTestOracle(t, &oracle.DigitEvent{
		Base:      2,
		Unit:      "usd/btc",
		NumDigits: testNumBits,
	}, "btcusd")

	return o, dlcwire.ContractInfo{
		TotalCollateral: testTotal,
		Contracts: []dlcwire.ContractOracle{{
			Descriptor: &dlcwire.NumericDescriptor{
				NumDigits: testNumBits,
				Function:  coveredCallFunction(),
				Rounding: payout.RoundingIntervals{
					Intervals: []payout.RoundingInterval{{
						BeginInterval: 0,
						RoundingMod:   10_000,
					}},
				},
			},
			OracleInfo: &dlcwire.SingleOracleInfo{
				Announcement: o.ann,
			},
		}},
	}
}

// testManager creates a manager over w.
func testManager(t *testing.T, w Wallet) *Manager {
	t.Helper()

	m, err := NewManager(&Config{
		Wallet:      w,
		ChainParams: &chaincfg.RegressionNetParams,
		Workers:     &dlccfg.Workers{Sig: 4},
		Batching:    &dlccfg.Batching{CetBatchSize: 7},
	})
	require.NoError(t, err)

	return m
}

// testParties are both sides of one negotiated contract.
type testParties struct {
	offerer, accepter *Manager

	offerWallet  *mockWallet
	acceptWallet *mockWallet

	offerContract  *Contract
	acceptContract *Contract

	// fundTx is the fully witnessed funding transaction.
	fundTx *wire.MsgTx

	offerCollateral  btcutil.Amount
	acceptCollateral btcutil.Amount
}

// negotiate runs offer, accept, sign and finalize between two fresh
// wallets.
func negotiate(t *testing.T, info dlcwire.ContractInfo,
	offerCollateral btcutil.Amount) *testParties {

	t.Helper()

	ctx := context.Background()
	p := &testParties{
		offerWallet:      newMockWallet(t, 600_000, 700_000),
		acceptWallet:     newMockWallet(t, 900_000),
		offerCollateral:  offerCollateral,
		acceptCollateral: info.TotalCollateral - offerCollateral,
	}
	p.offerer = testManager(t, p.offerWallet)
	p.accepter = testManager(t, p.acceptWallet)

	var err error
	p.offerContract, err = p.offerer.CreateOffer(&OfferRequest{
		ContractInfo:    info,
		OfferCollateral: offerCollateral,
		FeeRate:         testFeeRate,
		CetLocktime:     testLockTime,
		RefundLocktime:  testRefund,
	})
	require.NoError(t, err)

	offer := roundTripMsg(t, p.offerContract.Offer).(*dlcwire.DlcOffer)
	p.acceptContract, err = p.accepter.Accept(ctx, offer, nil)
	require.NoError(t, err)

	accept := roundTripMsg(t, p.acceptContract.Accept).(*dlcwire.DlcAccept)
	require.NoError(t, p.offerer.Sign(ctx, p.offerContract, accept))

	sign := roundTripMsg(t, p.offerContract.Sign).(*dlcwire.DlcSign)
	p.fundTx, err = p.accepter.Finalize(ctx, p.acceptContract, sign)
	require.NoError(t, err)

	return p
}

// roundTripMsg sends msg through the wire codec.
func roundTripMsg(t *testing.T, msg dlcwire.Message) dlcwire.Message {
	t.Helper()

	var buf bytes.Buffer
	_, err := dlcwire.WriteMessage(&buf, msg, 0)
	require.NoError(t, err)

	decoded, err := dlcwire.ReadMessage(&buf, 0)
	require.NoError(t, err)

	return decoded
}

// fundPrevOuts returns the outputs spent by the funding transaction.
func (p *testParties) fundPrevOuts(
	t *testing.T) map[wire.OutPoint]*wire.TxOut {
	t.Helper()

	prevOuts, err := prevOutputs(
		p.offerContract.Offer.FundingInputs,
		p.acceptContract.Accept.FundingInputs,
	)
	require.NoError(t, err)

	return prevOuts
}

// requireSpendsFunding runs the script engine over the input of tx spending
// the funding output.
func requireSpendsFunding(t *testing.T, txs *DlcTransactions,
	tx *wire.MsgTx) {

	t.Helper()

	prevOuts := map[wire.OutPoint]*wire.TxOut{
		txs.FundOutPoint(): txs.FundOutput,
	}
	require.NoError(t, verifyInputs(
		tx, prevOuts, []wire.OutPoint{txs.FundOutPoint()},
	))
}
