package dlcwallet

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/input"
)

// AddressInfo is a fresh wallet address with the key behind it.
type AddressInfo struct {
	Address        btcutil.Address
	PubKey         *btcec.PublicKey
	DerivationPath string
}

// Wallet is the on-chain wallet a Manager draws keys, addresses and coins
// from. Implementations own key derivation and coin selection.
type Wallet interface {
	// GetUnusedAddress returns an address that was never handed out
	// before, from the change branch if isChange is set.
	GetUnusedAddress(isChange bool) (*AddressInfo, error)

	// FindPrivateKeyForPubkey returns the private key of a key the
	// wallet handed out.
	FindPrivateKeyForPubkey(pub *btcec.PublicKey) (*btcec.PrivateKey,
		error)

	// SelectInputsForAmount returns inputs worth at least amount plus
	// their own fees at feeRate sat/vbyte. The amount already holds the
	// collateral and every other fee of the party. Inputs in fixed must
	// be part of the result. An *ErrInsufficientFunds is returned if the
	// balance is too low.
	SelectInputsForAmount(amount btcutil.Amount, feeRate uint64,
		fixed []dlcwire.FundingInput) ([]dlcwire.FundingInput, error)

	// ComputeInputScript produces the witness and script sig of a wallet
	// owned funding input.
	ComputeInputScript(tx *wire.MsgTx,
		signDesc *input.SignDescriptor) (*input.Script, error)
}

// selectInputs runs coin selection for party, whose inputs are still empty.
// The wallet is asked for the collateral plus the party's fee shares, and the
// result is checked to cover them. If the wallet lacks the balance and the
// caller supplied fixed inputs, those are used on their own; every other
// failure propagates unchanged.
func selectInputs(w Wallet, party *PartyParams, feeRate uint64,
	fixed []dlcwire.FundingInput) ([]dlcwire.FundingInput, error) {

	// A party contributing nothing needs no inputs.
	if party.Collateral == 0 && len(fixed) == 0 {
		return nil, nil
	}

	// Fees of the party's outputs and of its share of the shared weight.
	// The wallet adds the fees of the inputs it picks.
	fundFee, cetFee := party.Fees(feeRate)
	amount := party.Collateral + fundFee + cetFee

	inputs, err := w.SelectInputsForAmount(amount, feeRate, fixed)
	if err == nil {
		err = checkFunded(party, inputs, feeRate)
		if err == nil {
			return inputs, nil
		}
	}

	var insufficient *ErrInsufficientFunds
	if !errors.As(err, &insufficient) || len(fixed) == 0 {
		return nil, err
	}

	log.Infof("Input selection failed (%v), falling back to %d fixed "+
		"inputs", err, len(fixed))

	if err := checkFunded(party, fixed, feeRate); err != nil {
		return nil, err
	}

	return fixed, nil
}

// checkFunded checks the inputs cover the party's collateral and fees.
func checkFunded(party *PartyParams, inputs []dlcwire.FundingInput,
	feeRate uint64) error {

	funded := *party
	funded.Inputs = inputs
	_, _, err := funded.change(feeRate)

	return err
}
