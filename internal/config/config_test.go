package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/fiberspec/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, time.Second, c.Spectrograph.PollTimeout)
	assert.Equal(t, time.Millisecond, c.Spectrograph.PollInterval)
	assert.Equal(t, "1606192U1", c.Spectrograph.Serials["blue"])
	assert.Equal(t, "1606190U1", c.Spectrograph.Serials["red"])
	assert.Equal(t, "1606191U1", c.Spectrograph.Serials["broad"])
	assert.Equal(t, "", c.Spectrograph.TargetSerial())
}

func TestLoadSpectrographSection(t *testing.T) {
	c, err := Load(writeConfig(t, `
spectrograph:
  band: blue
  simulate: true
  poll_timeout: 2s
  poll_interval: 5ms
`))
	require.NoError(t, err)

	assert.True(t, c.Spectrograph.Simulate)
	assert.Equal(t, 2*time.Second, c.Spectrograph.PollTimeout)
	assert.Equal(t, 5*time.Millisecond, c.Spectrograph.PollInterval)
	assert.Equal(t, "1606192U1", c.Spectrograph.TargetSerial())
}

func TestTargetSerialPrefersExplicitSerial(t *testing.T) {
	sc := SpectrographConfig{
		Band:         "red",
		SerialNumber: "12345",
		Serials:      map[string]string{"red": "1606190U1"},
	}
	assert.Equal(t, "12345", sc.TargetSerial())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FIBERSPEC_SPECTROGRAPH_BAND", "broad")
	c, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "broad", c.Spectrograph.Band)
	assert.Equal(t, "1606191U1", c.Spectrograph.TargetSerial())
	assert.Equal(t, "debug", c.Log.Level)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "spectrograph:\n  band: green\n"))
	assert.True(t, errors.Is(err, errors.ErrConfigMissing), "got %v", err)

	// 显式序列号时 band 只用于标记
	c, err := Load(writeConfig(t, "spectrograph:\n  band: green\n  serial_number: 9999999U1\n"))
	require.NoError(t, err)
	assert.Equal(t, "9999999U1", c.Spectrograph.TargetSerial())

	_, err = Load(writeConfig(t, "database:\n  driver: oracle\n"))
	assert.True(t, errors.Is(err, errors.ErrConfigValidate), "got %v", err)

	_, err = Load(writeConfig(t, "spectrograph:\n  poll_timeout: 1ms\n  poll_interval: 10ms\n"))
	assert.True(t, errors.Is(err, errors.ErrConfigValidate), "got %v", err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated\n"))
	assert.True(t, errors.Is(err, errors.ErrConfigLoad), "got %v", err)

	_, err = Load(writeConfig(t, "server:\n  port: not-a-number\n"))
	assert.True(t, errors.Is(err, errors.ErrConfigParse), "got %v", err)
}
