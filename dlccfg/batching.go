package dlccfg

import "fmt"

const (
	// DefaultCetBatchSize is the number of CETs signed or verified by one
	// sig pool job.
	DefaultCetBatchSize = 100

	// MaxCetBatchSize bounds the batch size so a single job cannot hold a
	// worker for the whole contract.
	MaxCetBatchSize = 10_000
)

// Batching holds the configuration of CET batch processing.
//
//nolint:ll
type Batching struct {
	CetBatchSize int `long:"cetbatchsize" description:"Number of CETs adaptor signed or verified per sig pool job."`
}

// DefaultBatching returns the default batching configuration.
func DefaultBatching() *Batching {
	return &Batching{
		CetBatchSize: DefaultCetBatchSize,
	}
}

// Validate checks the batch size is within bounds.
func (b *Batching) Validate() error {
	if b.CetBatchSize <= 0 || b.CetBatchSize > MaxCetBatchSize {
		return fmt.Errorf("cet batch size (%d) must be in [1, %d]",
			b.CetBatchSize, MaxCetBatchSize)
	}

	return nil
}
