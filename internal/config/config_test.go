package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teslameter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
instrument:
  serial_number: LSA1234
  timeout: 500ms
capture:
  seconds: 2.5
  sample_rate_ms: 20
  output: field
metrics:
  addr: ":9101"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "LSA1234", cfg.Instrument.SerialNumber)
	require.Equal(t, 500*time.Millisecond, cfg.Instrument.Timeout)
	require.Equal(t, 115200, cfg.Instrument.BaudRate)
	require.Equal(t, 2.5, cfg.Capture.Seconds)
	require.Equal(t, 20, cfg.Capture.SampleRateMs)
	require.Equal(t, "field", cfg.Capture.Output)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, ":9101", cfg.Metrics.Addr)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "capture:\n  sample_rate_ms: 15\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "capture: [\n"))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
