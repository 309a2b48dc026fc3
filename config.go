// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2020 The Lightning Network Developers

package dlcd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/dlcproto/dlcd/build"
	"github.com/dlcproto/dlcd/dlccfg"
	"github.com/dlcproto/dlcd/dlcwallet"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "dlcd.log"

	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	// defaultFeeRate is the fee rate, in sat/vbyte, offers are created
	// with unless the caller picks one.
	defaultFeeRate = 2
)

var (
	// DefaultDlcDir is the default directory holding the config file and
	// logs.
	DefaultDlcDir = btcutil.AppDataDir("dlcd", false)

	// DefaultConfigFile is the default full path of the config file.
	DefaultConfigFile = filepath.Join(
		DefaultDlcDir, dlccfg.DefaultConfigFilename,
	)

	defaultLogDir = filepath.Join(DefaultDlcDir, defaultLogDirname)
)

// Config defines the configuration options for dlcd.
//
// See LoadConfig for further details regarding the configuration
// loading+parsing process.
//
//nolint:ll
type Config struct {
	DlcDir     string `long:"dlcdir" description:"The base directory that contains the config file and logs."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`

	LogDir         string `long:"logdir" description:"Directory to log output."`
	NoFileLog      bool   `long:"nofilelog" description:"Only log to stdout."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	FeeRate uint64 `long:"feerate" description:"Default fee rate of new offers in sat/vbyte."`

	Chain *dlccfg.Chain `group:"chain" namespace:"chain"`

	Workers *dlccfg.Workers `group:"workers" namespace:"workers"`

	Batching *dlccfg.Batching `group:"batching" namespace:"batching"`

	// ActiveNetParams are the parameters of the configured network,
	// resolved by ValidateConfig.
	ActiveNetParams *chaincfg.Params `no-flag:"true"`

	// LogRotator writes log output to the rotated log files, unless file
	// logging is disabled.
	LogRotator *LogRotator `no-flag:"true"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		DlcDir:         DefaultDlcDir,
		ConfigFile:     DefaultConfigFile,
		LogDir:         defaultLogDir,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		DebugLevel:     defaultLogLevel,
		FeeRate:        defaultFeeRate,
		Chain:          dlccfg.DefaultChain(),
		Workers:        dlccfg.DefaultWorkers(),
		Batching:       dlccfg.DefaultBatching(),
	}
}

// LoadConfig initializes and parses the config using a config file and the
// given command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(args []string) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.ParseArgs(&preCfg, args); err != nil {
		return nil, err
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their dlcdir, then we should assume they intend to use the
	// config file within it.
	configFileDir := dlccfg.CleanAndExpandPath(preCfg.DlcDir)
	configFilePath := dlccfg.CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultDlcDir {
		if configFilePath == DefaultConfigFile {
			configFilePath = filepath.Join(
				configFileDir, dlccfg.DefaultConfigFilename,
			)
		}
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := flags.ParseArgs(&cfg, args); err != nil {
		return nil, err
	}

	cleanCfg, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Warn about missing config file only after all other configuration
	// is done. This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		dlcdLog.Debugf("%v", configFileError)
	}

	dlcdLog.Debugf("Loaded %v config for %v", build.Deployment,
		cleanCfg.ActiveNetParams.Name)

	return cleanCfg, nil
}

// ValidateConfig checks the given configuration to be sane, sets up file
// logging and applies the debug levels. The cleaned up config is returned
// on success.
func ValidateConfig(cfg Config) (*Config, error) {
	// If the provided dlcd directory is not the default, the log
	// directory lives within it.
	dlcDir := dlccfg.CleanAndExpandPath(cfg.DlcDir)
	if dlcDir != DefaultDlcDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(dlcDir, defaultLogDirname)
	}
	cfg.LogDir = dlccfg.CleanAndExpandPath(cfg.LogDir)

	if cfg.FeeRate == 0 {
		return nil, fmt.Errorf("feerate must be positive")
	}

	// Validate the config groups.
	for _, v := range []interface{ Validate() error }{
		cfg.Chain, cfg.Workers, cfg.Batching,
	} {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	params, err := cfg.Chain.Params()
	if err != nil {
		return nil, err
	}
	cfg.ActiveNetParams = params

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			logRegistry.SupportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, logRegistry)
	if err != nil {
		return nil, fmt.Errorf("error parsing debug level: %w", err)
	}

	if !cfg.NoFileLog {
		logFile := filepath.Join(
			cfg.LogDir, params.Name, defaultLogFilename,
		)
		cfg.LogRotator, err = InitLogRotator(
			logFile, cfg.MaxLogFileSize, cfg.MaxLogFiles,
		)
		if err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// ManagerConfig returns the configuration of a contract manager that draws
// keys and coins from w and negotiates on the configured network.
func (c *Config) ManagerConfig(w dlcwallet.Wallet) *dlcwallet.Config {
	return &dlcwallet.Config{
		Wallet:         w,
		ChainParams:    c.ActiveNetParams,
		Workers:        c.Workers,
		Batching:       c.Batching,
		DefaultFeeRate: c.FeeRate,
	}
}
