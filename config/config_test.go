package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeAppliesFields(t *testing.T) {
	src := `
Port = 7670
KSize = 32
Alpha = 5
RPCTimeoutSecs = 10
RefreshSecs = 1800
BeaconSecs = 2
GetPeersSecs = 15
`
	f, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 7670, f.Port)
	require.Equal(t, 32, f.KSize)
	require.Equal(t, 5, f.Alpha)

	cfg, err := f.ToServerConfig()
	require.NoError(t, err)
	require.Equal(t, 7670, cfg.Port)
	require.Equal(t, 32, cfg.K)
	require.Equal(t, 5, cfg.Alpha)
	require.Equal(t, 10*time.Second, cfg.RPCTimeout)
	require.Equal(t, 1800*time.Second, cfg.RefreshInterval)
}

func TestDecodeWithFixedNodeID(t *testing.T) {
	src := `NodeID = "0102030405060708090a0b0c0d0e0f1011121314"`
	f, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	cfg, err := f.ToServerConfig()
	require.NoError(t, err)
	require.Equal(t, "0102030405060708090a0b0c0d0e0f1011121314", cfg.NodeID.String())
}

func TestDecodeWithMalformedNodeIDFails(t *testing.T) {
	src := `NodeID = "not-hex"`
	f, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	_, err = f.ToServerConfig()
	require.Error(t, err)
}

func TestDecodeRejectsMalformedTOML(t *testing.T) {
	_, err := Decode(strings.NewReader("this is not = valid [[[ toml"))
	require.Error(t, err)
}
