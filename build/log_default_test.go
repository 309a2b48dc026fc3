//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLogWriterSetSecondary swaps the secondary sink while other goroutines
// write and checks a removed sink sees no further output.
func TestLogWriterSetSecondary(t *testing.T) {
	t.Parallel()

	var (
		w     LogWriter
		first bytes.Buffer
		wg    sync.WaitGroup
	)

	w.SetSecondary(&first)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 25; j++ {
				_, err := w.Write([]byte("x"))
				require.NoError(t, err)
			}
		}()
	}

	var second bytes.Buffer
	w.SetSecondary(&second)
	wg.Wait()

	require.Equal(t, 100, first.Len()+second.Len())

	w.SetSecondary(nil)
	written := second.Len()
	_, err := w.Write([]byte("y"))
	require.NoError(t, err)
	require.Equal(t, written, second.Len())
}
