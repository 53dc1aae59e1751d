package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultProducesEnabledSubBandOneChannels(t *testing.T) {
	cfg := Default()
	require.Equal(t, 1, cfg.LoRa.SubBand)
	require.Len(t, cfg.LoRa.Channels, 8)
	for _, ch := range cfg.LoRa.Channels {
		require.True(t, ch.Enabled)
		require.GreaterOrEqual(t, ch.Index, 0)
		require.Less(t, ch.Index, 8)
	}
}

func TestYAMLStoreLoadMissingFileReturnsDefault(t *testing.T) {
	store := NewYAMLStore(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestYAMLStoreSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	store := NewYAMLStore(path)

	cfg := Default()
	cfg.Gateway.EUIHex = "0011223344556677"
	cfg.Server.Host = "ns.example.com"
	require.NoError(t, store.Save(cfg))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "0011223344556677", loaded.Gateway.EUIHex)
	require.Equal(t, "ns.example.com", loaded.Server.Host)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	store := NewYAMLStore(path)
	require.NoError(t, store.Save(Default()))

	os.Setenv("AU915GW_SERVER_HOST", "override.example.com")
	defer os.Unsetenv("AU915GW_SERVER_HOST")

	cfg, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "override.example.com", cfg.Server.Host)
}
