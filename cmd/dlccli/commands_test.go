package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/dlcproto/dlcd/dlcwire"
	"github.com/dlcproto/dlcd/oracle"
	"github.com/dlcproto/dlcd/payout"
	"github.com/stretchr/testify/require"
)

// TestDeriveContractID checks the first byte of the displayed txid becomes
// the first byte of the contract id.
func TestDeriveContractID(t *testing.T) {
	t.Parallel()

	txid := "aa" + strings.Repeat("00", 31)
	tempID := strings.Repeat("00", 32)

	cid, err := deriveContractID(txid, 1, tempID)
	require.NoError(t, err)
	require.Equal(t, "aa"+strings.Repeat("00", 30)+"01", cid.String())

	_, err = deriveContractID("xyz", 1, tempID)
	require.Error(t, err)

	_, err = deriveContractID(txid, 1, "00")
	require.Error(t, err)

	_, err = deriveContractID(txid, 1<<16, tempID)
	require.Error(t, err)
}

// TestSummarizeClose checks a close message is decoded from hex.
func TestSummarizeClose(t *testing.T) {
	t.Parallel()

	msg := &dlcwire.DlcClose{
		ProtocolVersion:   dlcwire.ProtocolVersion,
		ContractID:        [32]byte{0xab},
		OfferPayout:       70_000,
		AcceptPayout:      29_000,
		FundInputSerialID: 5,
	}

	var buf bytes.Buffer
	_, err := dlcwire.WriteMessage(&buf, msg, 0)
	require.NoError(t, err)

	s, err := summarizeMsg(
		hex.EncodeToString(buf.Bytes())+"\n", &chaincfg.MainNetParams,
	)
	require.NoError(t, err)
	require.Equal(t, "DlcClose", s.Type)
	require.Equal(t, "ab"+strings.Repeat("00", 31), s.ContractID)
	require.Equal(t, int64(70_000), s.OfferPayout)
	require.Equal(t, int64(29_000), s.AcceptPayout)
	require.Zero(t, s.NumFundingInputs)

	_, err = summarizeMsg("zz", &chaincfg.MainNetParams)
	require.Error(t, err)

	_, err = summarizeMsg("ffff", &chaincfg.MainNetParams)
	require.Error(t, err)
}

// TestScriptAddress checks standard scripts render as addresses.
func TestScriptAddress(t *testing.T) {
	t.Parallel()

	p2wpkh := append([]byte{0x00, 0x14}, make([]byte, 20)...)
	addr := scriptAddress(p2wpkh, &chaincfg.MainNetParams)
	require.True(t, strings.HasPrefix(addr, "bc1q"))
	require.Len(t, addr, 42)

	require.True(t, strings.HasPrefix(
		scriptAddress(p2wpkh, &chaincfg.RegressionNetParams), "bcrt1",
	))
	require.Equal(
		t, "6a", scriptAddress([]byte{0x6a}, &chaincfg.MainNetParams),
	)
}

// TestListCets checks enumerated contracts list one CET per outcome.
func TestListCets(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	nonce, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	info := &dlcwire.ContractInfo{
		TotalCollateral: 100_000,
		Contracts: []dlcwire.ContractOracle{{
			Descriptor: &dlcwire.EnumeratedDescriptor{
				Outcomes: []dlcwire.EnumOutcome{
					{Outcome: "win", OfferPayout: 100_000},
					{Outcome: "lose", OfferPayout: 0},
				},
			},
			OracleInfo: &dlcwire.SingleOracleInfo{
				Announcement: &oracle.Announcement{
					OraclePubKey: key.PubKey(),
					Nonces: []*btcec.PublicKey{
						nonce.PubKey(),
					},
					Event: &oracle.EnumEvent{
						Outcomes: []string{"win", "lose"},
					},
					EventID: "match",
				},
			},
		}},
	}

	listings, err := listCets(info)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "match", listings[0].EventID)
	require.Equal(t, 2, listings[0].NumCets)
	require.Equal(t, []cetGroup{
		{Payout: 100_000, Outcomes: []string{"win"}},
		{Payout: 0, Outcomes: []string{"lose"}},
	}, listings[0].Groups)
}

// TestDescribeGroup checks prefixes are shown with the outcomes they cover.
func TestDescribeGroup(t *testing.T) {
	t.Parallel()

	g := payout.Group{
		Payout:   5,
		Prefixes: [][]int{{0, 1}, {1}},
	}

	cg, err := describeGroup(g, 2, 3)
	require.NoError(t, err)
	require.Equal(t, cetGroup{
		Payout:   5,
		Outcomes: []string{"2-3", "4-7"},
		Prefixes: []string{"01", "1"},
	}, cg)

	_, err = describeGroup(payout.Group{Prefixes: [][]int{{}}}, 2, 3)
	require.Error(t, err)
}
