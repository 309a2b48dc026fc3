package dlccfg

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// DefaultConfigFilename is the default configuration file name.
	DefaultConfigFilename = "dlcd.conf"

	// DefaultNetwork is the network contracts are negotiated on unless
	// configured otherwise.
	DefaultNetwork = "mainnet"
)

// Chain selects the bitcoin network contracts are negotiated on.
//
//nolint:ll
type Chain struct {
	Network string `long:"network" description:"The network contracts are negotiated on." choice:"mainnet" choice:"testnet" choice:"testnet4" choice:"regtest" choice:"simnet" choice:"signet"`
}

// DefaultChain returns the default chain configuration.
func DefaultChain() *Chain {
	return &Chain{
		Network: DefaultNetwork,
	}
}

// Params returns the chain parameters of the configured network.
func (c *Chain) Params() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "testnet4":
		return &chaincfg.TestNet4Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}

	return nil, fmt.Errorf("unknown network %q", c.Network)
}

// Validate checks the network is known.
func (c *Chain) Validate() error {
	_, err := c.Params()
	return err
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
