package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, list, err := parseFlags(nil)
	require.NoError(t, err)
	require.False(t, list)
	require.Equal(t, 1.0, cfg.Capture.Seconds)
	require.Equal(t, 2*time.Second, cfg.Instrument.Timeout)
}

func TestParseFlags_OverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  seconds: 5\n  sample_rate_ms: 20\n"), 0o644))

	cfg, _, err := parseFlags([]string{"-c", path, "--rate", "50", "--serial", "LSA1"})
	require.NoError(t, err)
	require.Equal(t, 5.0, cfg.Capture.Seconds)
	require.Equal(t, 50, cfg.Capture.SampleRateMs)
	require.Equal(t, "LSA1", cfg.Instrument.SerialNumber)
}

func TestParseFlags_Invalid(t *testing.T) {
	_, _, err := parseFlags([]string{"--rate", "15"})
	require.Error(t, err)

	_, _, err = parseFlags([]string{"--bogus"})
	require.Error(t, err)
}
