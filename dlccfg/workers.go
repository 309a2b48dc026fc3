package dlccfg

import "fmt"

const (
	// DefaultSigWorkers is the default maximum number of concurrent workers
	// used by the sig pool.
	DefaultSigWorkers = 8
)

// Workers exposes CLI configuration for turning resources consumed by worker
// pools.
type Workers struct {
	// Sig is the maximum number of concurrent sig pool workers.
	Sig int `long:"sig" description:"Maximum number of concurrent sig pool workers."`
}

// DefaultWorkers returns the default worker configuration.
func DefaultWorkers() *Workers {
	return &Workers{
		Sig: DefaultSigWorkers,
	}
}

// Validate checks the Workers configuration to ensure that the input values
// are sane.
func (w *Workers) Validate() error {
	if w.Sig <= 0 {
		return fmt.Errorf("number of sig workers (%d) must be "+
			"positive", w.Sig)
	}

	return nil
}
