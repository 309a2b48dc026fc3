package dlcd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/dlcproto/dlcd/dlccfg"
	"github.com/dlcproto/dlcd/dlcwallet"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigFlags checks command line options override the defaults.
func TestLoadConfigFlags(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{
		"--dlcdir=" + dir,
		"--nofilelog",
		"--chain.network=regtest",
		"--workers.sig=3",
		"--batching.cetbatchsize=50",
		"--debuglevel=info,DLCW=debug",
	})
	require.NoError(t, err)

	require.Equal(t, &chaincfg.RegressionNetParams, cfg.ActiveNetParams)
	require.Equal(t, 3, cfg.Workers.Sig)
	require.Equal(t, 50, cfg.Batching.CetBatchSize)
	require.Equal(t, uint64(defaultFeeRate), cfg.FeeRate)
	require.Equal(t, filepath.Join(dir, defaultLogDirname), cfg.LogDir)
	require.Nil(t, cfg.LogRotator)
}

// stubWallet satisfies dlcwallet.Wallet without implementing any of it.
type stubWallet struct {
	dlcwallet.Wallet
}

// TestManagerConfig checks the loaded options reach the contract manager.
func TestManagerConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{
		"--dlcdir=" + dir,
		"--nofilelog",
		"--chain.network=signet",
		"--workers.sig=5",
		"--batching.cetbatchsize=25",
		"--feerate=12",
	})
	require.NoError(t, err)

	w := &stubWallet{}
	mcfg := cfg.ManagerConfig(w)
	require.Equal(t, w, mcfg.Wallet)
	require.Equal(t, &chaincfg.SigNetParams, mcfg.ChainParams)
	require.Equal(t, 5, mcfg.Workers.Sig)
	require.Equal(t, 25, mcfg.Batching.CetBatchSize)
	require.Equal(t, uint64(12), mcfg.DefaultFeeRate)

	_, err = dlcwallet.NewManager(mcfg)
	require.NoError(t, err)
}

// TestLoadConfigFile checks options are read from the config file in the
// dlc directory and that the command line still wins.
func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	conf := "[Application Options]\nfeerate=7\nnofilelog=true\n" +
		"debuglevel=debug\n"
	err := os.WriteFile(
		filepath.Join(dir, dlccfg.DefaultConfigFilename), []byte(conf),
		0600,
	)
	require.NoError(t, err)

	cfg, err := LoadConfig([]string{"--dlcdir=" + dir})
	require.NoError(t, err)
	require.Equal(t, uint64(7), cfg.FeeRate)
	require.Equal(t, &chaincfg.MainNetParams, cfg.ActiveNetParams)

	cfg, err = LoadConfig([]string{"--dlcdir=" + dir, "--feerate=9"})
	require.NoError(t, err)
	require.Equal(t, uint64(9), cfg.FeeRate)

	// A malformed file is an error rather than ignored.
	err = os.WriteFile(
		filepath.Join(dir, dlccfg.DefaultConfigFilename),
		[]byte("[Application Options]\nfeerate=lots\n"), 0600,
	)
	require.NoError(t, err)
	_, err = LoadConfig([]string{"--dlcdir=" + dir})
	require.Error(t, err)
}

// TestLoadConfigInvalid checks invalid values are rejected.
func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--dlcdir=" + dir, "--nofilelog"}

	for _, args := range [][]string{
		{"--chain.network=litecoin"},
		{"--workers.sig=0"},
		{"--batching.cetbatchsize=0"},
		{"--feerate=0"},
		{"--debuglevel=loud"},
		{"--debuglevel=info,NOPE=debug"},
	} {
		_, err := LoadConfig(append(append([]string{}, base...), args...))
		require.Error(t, err, "args %v", args)
	}
}

// TestLogRotator checks log output reaches the log file.
func TestLogRotator(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{
		"--dlcdir=" + dir, "--chain.network=simnet",
	})
	require.NoError(t, err)
	require.NotNil(t, cfg.LogRotator)

	dlcdLog.Infof("rotated log line")
	require.NoError(t, cfg.LogRotator.Close())

	logFile := filepath.Join(
		dir, defaultLogDirname, "simnet", defaultLogFilename,
	)
	require.FileExists(t, logFile)
}

// TestSupportedSubsystems checks every package logger is registered.
func TestSupportedSubsystems(t *testing.T) {
	require.Equal(
		t, []string{"DLCD", "DLCW", "ORCL", "PYOT", "WIRE"},
		SupportedSubsystems(),
	)
	require.NoError(t, SetLogLevels("info"))
	require.Error(t, SetLogLevels("info,XXXX=debug"))
}
