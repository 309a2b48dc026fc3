//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

import "os"

// LoggingType is a log type that writes to stdout and, if set, to the
// configured secondary writer.
const LoggingType = LogTypeDefault

// Write writes the provided byte slice to stdout and the secondary writer.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.secondary != nil {
		if _, err := w.secondary.Write(b); err != nil {
			return 0, err
		}
	}

	return len(b), nil
}
