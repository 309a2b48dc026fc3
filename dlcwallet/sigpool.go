package dlcwallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/dlcproto/dlcd/adaptor"
	"github.com/dlcproto/dlcd/dlccfg"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/input"
	"golang.org/x/sync/errgroup"
)

// CetSpend describes the 2-of-2 funding output every CET spends through its
// only input.
type CetSpend struct {
	// WitnessScript is the 2-of-2 multisig script of the funding output.
	WitnessScript []byte

	// Value is the value of the funding output.
	Value int64
}

// sigHash returns the digest the signatures of cet commit to.
func (c *CetSpend) sigHash(cet *wire.MsgTx) ([]byte, error) {
	return input.MultiSigSigHash(cet, 0, c.WitnessScript, c.Value)
}

// SigPool parallelizes adaptor signature generation and verification over
// the CETs of a contract. CETs are split into fixed size batches and every
// batch is one job; at most numWorkers jobs run at a time. Results land in
// the slot of the CET they belong to, so the output order never depends on
// scheduling.
type SigPool struct {
	numWorkers int
	batchSize  int
}

// NewSigPool creates a sig pool from the worker and batching configuration.
func NewSigPool(workers *dlccfg.Workers, batching *dlccfg.Batching) *SigPool {
	return &SigPool{
		numWorkers: workers.Sig,
		batchSize:  batching.CetBatchSize,
	}
}

// forEachBatch runs job over [lo, hi) ranges covering [0, n). The first job
// error cancels the batches not yet started and is returned. ctx is checked
// before every batch is handed out.
func (s *SigPool) forEachBatch(ctx context.Context, n int,
	job func(lo, hi int) error) error {

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.numWorkers)

	for lo := 0; lo < n; lo += s.batchSize {
		if gctx.Err() != nil {
			break
		}

		hi := min(lo+s.batchSize, n)
		g.Go(func() error {
			return job(lo, hi)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// SignCets creates one adaptor signature per CET, encrypted under the
// CET's adaptor point.
func (s *SigPool) SignCets(ctx context.Context, key *btcec.PrivateKey,
	spend *CetSpend, cets []*wire.MsgTx,
	points []*btcec.PublicKey) ([]dlcwire.AdaptorSig, error) {

	if len(cets) != len(points) {
		return nil, fmt.Errorf("%d cets but %d adaptor points",
			len(cets), len(points))
	}

	log.Debugf("Adaptor signing %d cets in batches of %d", len(cets),
		s.batchSize)

	sigs := make([]dlcwire.AdaptorSig, len(cets))
	err := s.forEachBatch(ctx, len(cets), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			hash, err := spend.sigHash(cets[i])
			if err != nil {
				return fmt.Errorf("cet %d: %w", i, err)
			}

			sig, err := adaptor.Encrypt(key, hash, points[i])
			if err != nil {
				return fmt.Errorf("cet %d: %w", i, err)
			}
			sigs[i] = dlcwire.NewAdaptorSig(sig)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return sigs, nil
}

// VerifyCets checks every adaptor signature is pubKey's signature of its
// CET, encrypted under the CET's adaptor point. The first failure is
// returned as an *ErrInvalidSignatures for step.
func (s *SigPool) VerifyCets(ctx context.Context, step string,
	pubKey *btcec.PublicKey, spend *CetSpend, cets []*wire.MsgTx,
	points []*btcec.PublicKey, sigs []dlcwire.AdaptorSig) error {

	if len(sigs) != len(cets) {
		return &ErrInvalidSignatures{
			Step:  step,
			Index: -1,
			Err: fmt.Errorf("expected %d adaptor signatures, got %d",
				len(cets), len(sigs)),
		}
	}
	if len(points) != len(cets) {
		return fmt.Errorf("%d cets but %d adaptor points",
			len(cets), len(points))
	}

	log.Debugf("Verifying %d cet adaptor signatures in batches of %d",
		len(cets), s.batchSize)

	return s.forEachBatch(ctx, len(cets), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			hash, err := spend.sigHash(cets[i])
			if err != nil {
				return fmt.Errorf("cet %d: %w", i, err)
			}

			sig, err := sigs[i].ToSignature()
			if err == nil {
				err = sig.Verify(pubKey, hash, points[i])
			}
			if err != nil {
				return &ErrInvalidSignatures{
					Step:  step,
					Index: i,
					Err:   err,
				}
			}
		}

		return nil
	})
}
