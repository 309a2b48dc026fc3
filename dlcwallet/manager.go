package dlcwallet

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/dlccfg"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/oracle"
)

// Config holds the collaborators and tunables of a Manager.
type Config struct {
	// Wallet supplies keys, addresses and coins.
	Wallet Wallet

	// ChainParams is the network contracts are negotiated on.
	ChainParams *chaincfg.Params

	// Workers bounds the parallelism of CET signing and verification.
	Workers *dlccfg.Workers

	// Batching sets the number of CETs per sig pool job.
	Batching *dlccfg.Batching

	// DefaultFeeRate is the fee rate in sat/vbyte of offers that don't
	// set one.
	DefaultFeeRate uint64
}

// Manager drives contracts through negotiation, funding and settlement.
// Every method completes its protocol step before returning; the caller
// stores the returned Contract between steps.
type Manager struct {
	cfg     *Config
	sigPool *SigPool
}

// NewManager creates a Manager from a validated configuration.
func NewManager(cfg *Config) (*Manager, error) {
	switch {
	case cfg.Wallet == nil:
		return nil, errors.New("wallet required")

	case cfg.ChainParams == nil:
		return nil, errors.New("chain params required")
	}

	if cfg.Workers == nil {
		cfg.Workers = dlccfg.DefaultWorkers()
	}
	if cfg.Batching == nil {
		cfg.Batching = dlccfg.DefaultBatching()
	}
	if err := cfg.Workers.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Batching.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		cfg:     cfg,
		sigPool: NewSigPool(cfg.Workers, cfg.Batching),
	}, nil
}

// Contract is the state of one contract as seen by one party: the messages
// exchanged so far and the transactions derived from them.
type Contract struct {
	Offer  *dlcwire.DlcOffer
	Accept *dlcwire.DlcAccept
	Sign   *dlcwire.DlcSign

	// Txs is set once both parties' contributions are known.
	Txs *DlcTransactions

	// IsOfferer is true for the party that created the offer.
	IsOfferer bool

	plan *CetPlan
}

// Plan returns the CET layout of the contract.
func (c *Contract) Plan() (*CetPlan, error) {
	if c.plan != nil {
		return c.plan, nil
	}

	plan, err := NewCetPlan(&c.Offer.ContractInfo)
	if err != nil {
		return nil, err
	}
	c.plan = plan

	return plan, nil
}

// ID returns the contract id, or the zero id before the funding transaction
// is known.
func (c *Contract) ID() ContractID {
	if c.Txs == nil {
		return ContractID{}
	}

	return c.Txs.ContractID
}

// fundPubKeys returns the local and the remote funding key.
func (c *Contract) fundPubKeys() (*btcec.PublicKey, *btcec.PublicKey) {
	if c.IsOfferer {
		return c.Offer.FundingPubKey, c.Accept.FundingPubKey
	}

	return c.Accept.FundingPubKey, c.Offer.FundingPubKey
}

// remoteCetSigs returns the counterparty's CET adaptor signatures.
func (c *Contract) remoteCetSigs() ([]dlcwire.AdaptorSig, error) {
	if c.IsOfferer {
		if c.Accept == nil {
			return nil, errors.New("contract not accepted")
		}
		return c.Accept.CetAdaptorSignatures, nil
	}

	if c.Sign == nil {
		return nil, errors.New("contract not signed")
	}

	return c.Sign.CetAdaptorSignatures, nil
}

// remoteRefundSig returns the counterparty's refund signature.
func (c *Contract) remoteRefundSig() (*dlcwire.Sig, error) {
	if c.IsOfferer {
		if c.Accept == nil {
			return nil, errors.New("contract not accepted")
		}
		return &c.Accept.RefundSignature, nil
	}

	if c.Sign == nil {
		return nil, errors.New("contract not signed")
	}

	return &c.Sign.RefundSignature, nil
}

// OfferRequest holds the local choices of a new offer.
type OfferRequest struct {
	ContractInfo    dlcwire.ContractInfo
	OfferCollateral btcutil.Amount

	// FeeRate is the fee rate of the funding transaction and the CETs in
	// sat/vbyte. Zero selects the configured default.
	FeeRate uint64

	CetLocktime    uint32
	RefundLocktime uint32

	// FixedInputs are used when the wallet cannot fund the offer.
	FixedInputs []dlcwire.FundingInput
}

// partyKeys are the fresh keys and scripts a party contributes.
type partyKeys struct {
	fundPubKey *btcec.PublicKey
	payoutSPK  []byte
	changeSPK  []byte
}

// newPartyKeys draws a funding key, a payout address and a change address
// from the wallet.
func (m *Manager) newPartyKeys() (*partyKeys, error) {
	fund, err := m.cfg.Wallet.GetUnusedAddress(false)
	if err != nil {
		return nil, fmt.Errorf("funding key: %w", err)
	}
	payout, err := m.cfg.Wallet.GetUnusedAddress(false)
	if err != nil {
		return nil, fmt.Errorf("payout address: %w", err)
	}
	change, err := m.cfg.Wallet.GetUnusedAddress(true)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}

	payoutSPK, err := txscript.PayToAddrScript(payout.Address)
	if err != nil {
		return nil, err
	}
	changeSPK, err := txscript.PayToAddrScript(change.Address)
	if err != nil {
		return nil, err
	}

	return &partyKeys{
		fundPubKey: fund.PubKey,
		payoutSPK:  payoutSPK,
		changeSPK:  changeSPK,
	}, nil
}

// CreateOffer builds an offer for the requested contract, funding the
// offerer's collateral from the wallet.
func (m *Manager) CreateOffer(req *OfferRequest) (*Contract, error) {
	if err := req.ContractInfo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid contract info: %w", err)
	}
	if req.OfferCollateral > req.ContractInfo.TotalCollateral {
		return nil, ErrCollateralExceedsTotal
	}

	feeRate := req.FeeRate
	if feeRate == 0 {
		feeRate = m.cfg.DefaultFeeRate
	}
	if feeRate == 0 {
		return nil, errors.New("no fee rate given")
	}

	keys, err := m.newPartyKeys()
	if err != nil {
		return nil, err
	}

	inputs, err := selectInputs(m.cfg.Wallet, &PartyParams{
		PayoutSPK:  keys.payoutSPK,
		ChangeSPK:  keys.changeSPK,
		Collateral: req.OfferCollateral,
	}, feeRate, req.FixedInputs)
	if err != nil {
		return nil, err
	}

	ids, err := newSerialIDs(3)
	if err != nil {
		return nil, err
	}
	if err := assignInputSerialIDs(inputs); err != nil {
		return nil, err
	}

	var tempID [32]byte
	if _, err := rand.Read(tempID[:]); err != nil {
		return nil, err
	}

	offer := &dlcwire.DlcOffer{
		ProtocolVersion:     dlcwire.ProtocolVersion,
		ChainHash:           *m.cfg.ChainParams.GenesisHash,
		TemporaryContractID: tempID,
		ContractInfo:        req.ContractInfo,
		FundingPubKey:       keys.fundPubKey,
		PayoutSPK:           keys.payoutSPK,
		PayoutSerialID:      ids[0],
		OfferCollateral:     req.OfferCollateral,
		FundingInputs:       inputs,
		ChangeSPK:           keys.changeSPK,
		ChangeSerialID:      ids[1],
		FundOutputSerialID:  ids[2],
		FeeRatePerVByte:     feeRate,
		CetLocktime:         req.CetLocktime,
		RefundLocktime:      req.RefundLocktime,
	}
	if err := offer.Validate(); err != nil {
		return nil, err
	}

	log.Infof("Created offer %x: collateral %v of %v, %d inputs",
		tempID[:], offer.OfferCollateral,
		offer.ContractInfo.TotalCollateral, len(inputs))

	return &Contract{
		Offer:     offer,
		IsOfferer: true,
	}, nil
}

// checkCollateral checks both contributions add up to the total.
func checkCollateral(offer *dlcwire.DlcOffer,
	accept *dlcwire.DlcAccept) error {

	total := offer.ContractInfo.TotalCollateral
	if accept.AcceptCollateral < 0 ||
		offer.OfferCollateral+accept.AcceptCollateral != total {

		return fmt.Errorf("%w: offer %v + accept %v != %v",
			ErrCollateralExceedsTotal, offer.OfferCollateral,
			accept.AcceptCollateral, total)
	}

	return nil
}

// checkSerialIDs checks every serial id of offer and accept is distinct.
func checkSerialIDs(offer *dlcwire.DlcOffer, accept *dlcwire.DlcAccept) error {
	outputs := []uint64{
		offer.PayoutSerialID, offer.ChangeSerialID,
		offer.FundOutputSerialID, accept.PayoutSerialID,
		accept.ChangeSerialID,
	}
	if err := dlcwire.CheckDistinct(outputs); err != nil {
		return err
	}

	return dlcwire.CheckDistinct(
		offer.InputSerialIDs(), accept.InputSerialIDs(),
	)
}

// Accept answers an offer: it funds the remaining collateral, builds every
// contract transaction and signs the CETs and the refund transaction.
func (m *Manager) Accept(ctx context.Context, offer *dlcwire.DlcOffer,
	fixedInputs []dlcwire.FundingInput) (*Contract, error) {

	if err := offer.Validate(); err != nil {
		return nil, fmt.Errorf("invalid offer: %w", err)
	}
	if offer.ChainHash != *m.cfg.ChainParams.GenesisHash {
		return nil, ErrWrongChain
	}

	keys, err := m.newPartyKeys()
	if err != nil {
		return nil, err
	}
	if keys.fundPubKey.IsEqual(offer.FundingPubKey) {
		return nil, ErrSameFundingPubkey
	}

	collateral := offer.ContractInfo.TotalCollateral - offer.OfferCollateral
	inputs, err := selectInputs(m.cfg.Wallet, &PartyParams{
		PayoutSPK:  keys.payoutSPK,
		ChangeSPK:  keys.changeSPK,
		Collateral: collateral,
	}, offer.FeeRatePerVByte, fixedInputs)
	if err != nil {
		return nil, err
	}

	offerOutputs := []uint64{
		offer.PayoutSerialID, offer.ChangeSerialID,
		offer.FundOutputSerialID,
	}
	ids, err := newSerialIDs(2, offerOutputs)
	if err != nil {
		return nil, err
	}
	err = assignInputSerialIDs(inputs, offer.InputSerialIDs())
	if err != nil {
		return nil, err
	}

	accept := &dlcwire.DlcAccept{
		ProtocolVersion:     dlcwire.ProtocolVersion,
		TemporaryContractID: offer.TemporaryContractID,
		AcceptCollateral:    collateral,
		FundingPubKey:       keys.fundPubKey,
		PayoutSPK:           keys.payoutSPK,
		PayoutSerialID:      ids[0],
		FundingInputs:       inputs,
		ChangeSPK:           keys.changeSPK,
		ChangeSerialID:      ids[1],
	}
	if err := checkSerialIDs(offer, accept); err != nil {
		return nil, err
	}

	contract := &Contract{
		Offer:  offer,
		Accept: accept,
	}
	plan, err := contract.Plan()
	if err != nil {
		return nil, err
	}

	contract.Txs, err = BuildDlcTransactions(offer, accept, plan)
	if err != nil {
		return nil, err
	}

	fundKey, err := m.cfg.Wallet.FindPrivateKeyForPubkey(keys.fundPubKey)
	if err != nil {
		return nil, err
	}

	accept.CetAdaptorSignatures, accept.RefundSignature, err =
		m.signContract(ctx, fundKey, contract)
	if err != nil {
		return nil, err
	}

	log.Infof("Accepted offer %x as contract %v", offer.TemporaryContractID[:],
		contract.Txs.ContractID)

	return contract, nil
}

// signContract creates the local adaptor signatures of every CET and the
// local refund signature.
func (m *Manager) signContract(ctx context.Context, key *btcec.PrivateKey,
	c *Contract) ([]dlcwire.AdaptorSig, dlcwire.Sig, error) {

	plan, err := c.Plan()
	if err != nil {
		return nil, dlcwire.Sig{}, err
	}
	points, err := plan.AdaptorPoints()
	if err != nil {
		return nil, dlcwire.Sig{}, err
	}

	cetSigs, err := m.sigPool.SignCets(
		ctx, key, c.Txs.fundSpend(), c.Txs.Cets, points,
	)
	if err != nil {
		return nil, dlcwire.Sig{}, err
	}

	refundSig, err := signFundSpend(key, c.Txs, c.Txs.RefundTx, 0)
	if err != nil {
		return nil, dlcwire.Sig{}, err
	}

	return cetSigs, refundSig, nil
}

// verifyContract checks the counterparty's adaptor signatures of every CET
// and its refund signature. Failures are reported for step.
func (m *Manager) verifyContract(ctx context.Context, step string,
	remote *btcec.PublicKey, c *Contract, cetSigs []dlcwire.AdaptorSig,
	refundSig *dlcwire.Sig) error {

	err := verifyFundSpend(remote, refundSig, c.Txs, c.Txs.RefundTx, 0)
	if err != nil {
		return &ErrInvalidSignatures{Step: step, Index: -1, Err: err}
	}

	plan, err := c.Plan()
	if err != nil {
		return err
	}
	points, err := plan.AdaptorPoints()
	if err != nil {
		return err
	}

	return m.sigPool.VerifyCets(
		ctx, step, remote, c.Txs.fundSpend(), c.Txs.Cets, points,
		cetSigs,
	)
}

// Sign processes the accept of an offer this party created: it rebuilds the
// contract transactions, verifies every signature of the accepter and
// answers with its own signatures and funding witnesses.
func (m *Manager) Sign(ctx context.Context, contract *Contract,
	accept *dlcwire.DlcAccept) error {

	offer := contract.Offer
	if !contract.IsOfferer {
		return errors.New("only the offerer signs an accept")
	}
	if accept.TemporaryContractID != offer.TemporaryContractID {
		return ErrTempIDMismatch
	}
	if accept.FundingPubKey == nil {
		return dlcwire.ErrNilPublicKey
	}
	if accept.FundingPubKey.IsEqual(offer.FundingPubKey) {
		return ErrSameFundingPubkey
	}
	if err := checkCollateral(offer, accept); err != nil {
		return err
	}
	if err := checkSerialIDs(offer, accept); err != nil {
		return err
	}

	// Work on a copy so a rejected accept leaves the contract as it was.
	pending := &Contract{
		Offer:     offer,
		Accept:    accept,
		IsOfferer: true,
		plan:      contract.plan,
	}
	plan, err := pending.Plan()
	if err != nil {
		return err
	}
	if len(accept.CetAdaptorSignatures) != plan.NumCets() {
		return &ErrInvalidSignatures{
			Step:  "accept",
			Index: -1,
			Err: fmt.Errorf("expected %d cet signatures, got %d",
				plan.NumCets(), len(accept.CetAdaptorSignatures)),
		}
	}

	pending.Txs, err = BuildDlcTransactions(offer, accept, plan)
	if err != nil {
		return err
	}

	err = m.verifyContract(
		ctx, "accept", accept.FundingPubKey, pending,
		accept.CetAdaptorSignatures, &accept.RefundSignature,
	)
	if err != nil {
		return err
	}

	fundKey, err := m.cfg.Wallet.FindPrivateKeyForPubkey(
		offer.FundingPubKey,
	)
	if err != nil {
		return err
	}

	cetSigs, refundSig, err := m.signContract(ctx, fundKey, pending)
	if err != nil {
		return err
	}

	fundingSigs, err := signFundingInputs(
		m.cfg.Wallet, pending.Txs.FundTx, offer.FundingInputs,
	)
	if err != nil {
		return err
	}

	pending.Sign = &dlcwire.DlcSign{
		ProtocolVersion:      dlcwire.ProtocolVersion,
		ContractID:           pending.Txs.ContractID,
		CetAdaptorSignatures: cetSigs,
		RefundSignature:      refundSig,
		FundingSignatures:    fundingSigs,
	}
	*contract = *pending

	log.Infof("Signed contract %v (%d cets)", contract.Txs.ContractID,
		len(cetSigs))

	return nil
}

// Finalize processes the offerer's sign message on the accepter side: it
// verifies the offerer's signatures, signs the accepter's funding inputs
// and returns the fully witnessed funding transaction, ready to broadcast.
func (m *Manager) Finalize(ctx context.Context, contract *Contract,
	sign *dlcwire.DlcSign) (*wire.MsgTx, error) {

	if contract.IsOfferer || contract.Txs == nil {
		return nil, errors.New("only an accepted contract is finalized")
	}
	if sign.ContractID != contract.Txs.ContractID {
		return nil, fmt.Errorf("%w: got %x, expected %v",
			ErrContractIDMismatch, sign.ContractID[:],
			contract.Txs.ContractID)
	}

	offer, accept := contract.Offer, contract.Accept
	err := m.verifyContract(
		ctx, "sign", offer.FundingPubKey, contract,
		sign.CetAdaptorSignatures, &sign.RefundSignature,
	)
	if err != nil {
		return nil, err
	}

	fundTx := contract.Txs.FundTx.Copy()
	if err := attachWitnesses(
		fundTx, offer.FundingInputs, sign.FundingSignatures,
	); err != nil {
		return nil, err
	}

	prevOuts, err := prevOutputs(offer.FundingInputs, accept.FundingInputs)
	if err != nil {
		return nil, err
	}
	err = verifyInputs(fundTx, prevOuts, outPoints(offer.FundingInputs))
	if err != nil {
		return nil, &ErrInvalidSignatures{Step: "sign", Index: -1, Err: err}
	}

	localSigs, err := signFundingInputs(
		m.cfg.Wallet, fundTx, accept.FundingInputs,
	)
	if err != nil {
		return nil, err
	}
	err = attachWitnesses(fundTx, accept.FundingInputs, localSigs)
	if err != nil {
		return nil, err
	}

	contract.Sign = sign
	contract.Txs.FundTx = fundTx

	log.Infof("Finalized contract %v, funding tx %v",
		contract.Txs.ContractID, fundTx.TxHash())

	return fundTx, nil
}

// ExecuteCet settles the contract with the oracle's attestation: it finds
// the CET the attested outcome unlocks, decrypts the counterparty's adaptor
// signature with the attestation secret and adds the local signature.
func (m *Manager) ExecuteCet(contract *Contract,
	att *oracle.Attestation) (*wire.MsgTx, *Resolution, error) {

	if contract.Txs == nil {
		return nil, nil, errors.New("contract has no transactions")
	}

	plan, err := contract.Plan()
	if err != nil {
		return nil, nil, err
	}
	res, err := plan.Resolve(att)
	if err != nil {
		return nil, nil, err
	}

	remoteSigs, err := contract.remoteCetSigs()
	if err != nil {
		return nil, nil, err
	}
	if res.CetIndex >= len(remoteSigs) {
		return nil, nil, fmt.Errorf("no adaptor signature for cet %d",
			res.CetIndex)
	}

	adaptorSig, err := remoteSigs[res.CetIndex].ToSignature()
	if err != nil {
		return nil, nil, err
	}
	secret, err := att.Secret(res.GroupLength)
	if err != nil {
		return nil, nil, err
	}
	ecSig, err := adaptorSig.Decrypt(secret)
	if err != nil {
		return nil, nil, err
	}
	remoteSig, err := dlcwire.NewSigFromSignature(ecSig)
	if err != nil {
		return nil, nil, err
	}

	cet := contract.Txs.Cets[res.CetIndex].Copy()
	local, remote := contract.fundPubKeys()
	if err := verifyFundSpend(
		remote, &remoteSig, contract.Txs, cet, 0,
	); err != nil {
		return nil, nil, fmt.Errorf("decrypted signature of cet %d: %w",
			res.CetIndex, err)
	}

	witness, err := m.completeFundSpend(
		contract, cet, local, remote, &remoteSig,
	)
	if err != nil {
		return nil, nil, err
	}
	cet.TxIn[0].Witness = witness

	log.Infof("Executing cet %d of contract %v for outcome %s",
		res.CetIndex, contract.Txs.ContractID, res.Outcome)

	return cet, res, nil
}

// RefundTx returns the fully signed refund transaction. It is only valid
// once the refund locktime has passed.
func (m *Manager) RefundTx(contract *Contract) (*wire.MsgTx, error) {
	if contract.Txs == nil {
		return nil, errors.New("contract has no transactions")
	}

	remoteSig, err := contract.remoteRefundSig()
	if err != nil {
		return nil, err
	}

	refund := contract.Txs.RefundTx.Copy()
	local, remote := contract.fundPubKeys()
	witness, err := m.completeFundSpend(
		contract, refund, local, remote, remoteSig,
	)
	if err != nil {
		return nil, err
	}
	refund.TxIn[0].Witness = witness

	return refund, nil
}

// completeFundSpend adds the local signature to the counterparty's signature
// of the funding output spend of tx and returns the complete witness.
func (m *Manager) completeFundSpend(c *Contract, tx *wire.MsgTx,
	local, remote *btcec.PublicKey, remoteSig *dlcwire.Sig) (wire.TxWitness,
	error) {

	key, err := m.cfg.Wallet.FindPrivateKeyForPubkey(local)
	if err != nil {
		return nil, err
	}

	localSig, err := signFundSpend(key, c.Txs, tx, 0)
	if err != nil {
		return nil, err
	}

	return fundSpendWitness(c.Txs, local, &localSig, remote, remoteSig)
}
