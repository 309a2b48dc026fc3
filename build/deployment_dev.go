//go:build dev
// +build dev

package build

// Deployment specifies a development build.
const Deployment = Development

// LogLevel is the level used by stdout sub loggers created outside of a
// configured backend. Development builds default to the noisiest level so
// that unit tests built with `-tags="dev stdlog"` surface everything.
const LogLevel = "trace"
