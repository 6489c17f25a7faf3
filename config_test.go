package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(WithDefaults())
	require.NoError(t, err)

	require.Equal(t, "/dev/ttyUSB0", config.SerialPort)
	require.Equal(t, 115200, config.BaudRate)
	require.Equal(t, "1883", config.TargetPort)
	require.Equal(t, "json", config.LogFormat)
}

func TestLoadConfigEnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyAMA0")
	t.Setenv("BAUD_RATE", "9600")
	t.Setenv("TARGET_HOST", "10.0.0.7")
	t.Setenv("LOG_FORMAT", "console")

	config, err := LoadConfig(WithDefaults(), WithEnv())
	require.NoError(t, err)

	require.Equal(t, "/dev/ttyAMA0", config.SerialPort)
	require.Equal(t, 9600, config.BaudRate)
	require.Equal(t, "10.0.0.7", config.TargetHost)
	require.Equal(t, "console", config.LogFormat)
	// Untouched values keep their defaults.
	require.Equal(t, "1883", config.TargetPort)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esplink.yaml")
	content := "serial_port: /dev/ttyS3\nbaud_rate: 57600\ntopic: bench/loop\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadConfig(WithDefaults(), WithFile(path))
	require.NoError(t, err)

	require.Equal(t, "/dev/ttyS3", config.SerialPort)
	require.Equal(t, 57600, config.BaudRate)
	require.Equal(t, "bench/loop", config.Topic)
	require.Equal(t, "192.168.0.235", config.TargetHost)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfig(WithDefaults(), WithFile("/nonexistent/esplink.yaml"))
	require.Error(t, err)
}

func TestLoadConfigFlagsWinOverEnv(t *testing.T) {
	t.Setenv("TARGET_HOST", "10.0.0.7")

	fSet := flag.NewFlagSet("test", flag.ContinueOnError)
	fSet.String("host", "", "")
	fSet.String("baud-rate", "", "")
	require.NoError(t, fSet.Parse([]string{"-host", "172.16.0.2", "-baud-rate", "230400"}))

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fSet))
	require.NoError(t, err)

	require.Equal(t, "172.16.0.2", config.TargetHost)
	require.Equal(t, 230400, config.BaudRate)
}
