package dlcd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/dlcproto/dlcd/build"
	"github.com/dlcproto/dlcd/dlcwallet"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/oracle"
	"github.com/dlcproto/dlcd/payout"
	"github.com/jrick/logrotate/rotator"
)

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it will write to the backend. When adding
// new subsystems, add the subsystem logger variable here and to the
// subsystem registry.
var (
	logWriter = &build.LogWriter{}

	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter)

	dlcdLog = build.NewSubLogger("DLCD", backendLog.Logger)
	dlcwLog = build.NewSubLogger(dlcwallet.Subsystem, backendLog.Logger)
	wireLog = build.NewSubLogger(dlcwire.Subsystem, backendLog.Logger)
	orclLog = build.NewSubLogger(oracle.Subsystem, backendLog.Logger)
	pyotLog = build.NewSubLogger(payout.Subsystem, backendLog.Logger)
)

// logRegistry maps each subsystem identifier to its associated logger.
var logRegistry = &subLoggerRegistry{
	loggers: build.SubLoggers{
		"DLCD":              dlcdLog,
		dlcwallet.Subsystem: dlcwLog,
		dlcwire.Subsystem:   wireLog,
		oracle.Subsystem:    orclLog,
		payout.Subsystem:    pyotLog,
	},
}

// Initialize package-global logger variables.
func init() {
	dlcwallet.UseLogger(dlcwLog)
	dlcwire.UseLogger(wireLog)
	oracle.UseLogger(orclLog)
	payout.UseLogger(pyotLog)
}

// subLoggerRegistry exposes the subsystem loggers to
// build.ParseAndSetDebugLevels.
type subLoggerRegistry struct {
	loggers build.SubLoggers
}

var _ build.LeveledSubLogger = (*subLoggerRegistry)(nil)

// SubLoggers returns the map of all registered subsystem loggers.
func (r *subLoggerRegistry) SubLoggers() build.SubLoggers {
	return r.loggers
}

// SupportedSubsystems returns the sorted subsystem names.
func (r *subLoggerRegistry) SupportedSubsystems() []string {
	return r.loggers.SupportedSubsystems()
}

// SetLogLevel assigns an individual subsystem logger a new log level.
func (r *subLoggerRegistry) SetLogLevel(subsystemID string, logLevel string) {
	r.loggers.SetLogLevel(subsystemID, logLevel)
}

// SetLogLevels assigns all subsystem loggers the same new log level.
func (r *subLoggerRegistry) SetLogLevels(logLevel string) {
	r.loggers.SetLogLevels(logLevel)
}

// SetLogLevels sets the log level of every subsystem, for embedders that do
// not go through LoadConfig.
func SetLogLevels(level string) error {
	return build.ParseAndSetDebugLevels(level, logRegistry)
}

// SupportedSubsystems returns the names of all logging subsystems.
func SupportedSubsystems() []string {
	return logRegistry.SupportedSubsystems()
}

// LogRotator writes log output to a size rotated log file.
type LogRotator struct {
	rotator *rotator.Rotator
	pipe    *io.PipeWriter
}

// InitLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. Log output is written to the
// rotator in addition to stdout until Close is called.
func InitLogRotator(logFile string, maxLogFileSize,
	maxLogFiles int) (*LogRotator, error) {

	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(
		logFile, int64(maxLogFileSize*1024), false, maxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		_ = r.Run(pr)
	}()

	logWriter.SetSecondary(pw)

	return &LogRotator{rotator: r, pipe: pw}, nil
}

// Close stops writing to the log file and flushes it.
func (l *LogRotator) Close() error {
	logWriter.SetSecondary(nil)

	if err := l.pipe.Close(); err != nil {
		return err
	}

	return l.rotator.Close()
}
