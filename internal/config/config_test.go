package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSenderFlagsRequiresInputAndRemote(t *testing.T) {
	_, err := ParseSenderFlags([]string{})
	require.Error(t, err)
}

func TestParseSenderFlagsMinimal(t *testing.T) {
	cfg, err := ParseSenderFlags([]string{"--input", "in.wav", "--remote", "127.0.0.1:5004"})
	require.NoError(t, err)
	require.Equal(t, "in.wav", cfg.Input)
	require.Equal(t, "127.0.0.1:5004", cfg.Remote)
	require.Equal(t, 20, cfg.IntervalMs)
}

func TestParseSenderFlagsYAMLOverriddenByFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sender.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input: file.wav\nremote: 10.0.0.1:6000\ninterval_ms: 40\n"), 0o644))

	cfg, err := ParseSenderFlags([]string{"--config", path, "--remote", "192.168.0.1:7000"})
	require.NoError(t, err)
	require.Equal(t, "file.wav", cfg.Input)          // from YAML
	require.Equal(t, "192.168.0.1:7000", cfg.Remote) // flag wins over YAML
	require.Equal(t, 40, cfg.IntervalMs)             // from YAML
}

func TestParseReceiverFlagsDefaults(t *testing.T) {
	cfg, err := ParseReceiverFlags([]string{})
	require.NoError(t, err)
	require.Equal(t, 5004, cfg.Port)
	require.Equal(t, 60, cfg.BufferDepth)
}

func TestParseReceiverFlagsOverride(t *testing.T) {
	cfg, err := ParseReceiverFlags([]string{"--port", "6000", "--buffer-depth-ms", "100"})
	require.NoError(t, err)
	require.Equal(t, 6000, cfg.Port)
	require.Equal(t, 100, cfg.BufferDepth)
}
