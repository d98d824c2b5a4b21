package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picospi/core"
)

const baseConfig = `
serial:
  device: /dev/ttyACM1
  read_timeout_ms: 50
timeout: 250ms
logging:
  level: DEBUG
  format: json
buses:
  - bus: 0
    pin: 16
    clock_hz: 1000000
    bit_order: lsb
    mode: 3
  - bus: 1
    pin: 12
    hw_cs: true
`

func createConfigFile(t *testing.T, configData string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(configFile, []byte(configData), 0o644)
	if err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configFile
}

func TestRead(t *testing.T) {
	conf, err := Read(createConfigFile(t, baseConfig))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", conf.Serial.Device)
	assert.Equal(t, 115200, conf.Serial.Baud, "unset baud keeps the default")
	assert.Equal(t, 50, conf.Serial.ReadTimeout)
	assert.Equal(t, 250*time.Millisecond, conf.Timeout)
	assert.Equal(t, LogConfig{Level: "DEBUG", Format: "json"}, conf.Logging)
	require.Len(t, conf.Buses, 2)

	s, err := conf.Buses[0].Settings()
	require.NoError(t, err)
	assert.Equal(t, core.NewSPISettings(1000000, core.LSBFirst, core.Mode3), s)

	s, err = conf.Buses[1].Settings()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultSPISettings(), s)
	assert.True(t, conf.Buses[1].HardwareCS)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		message string
	}{
		{"unknown key", "timeout: 250ms", "timeout: 250ms\nretries: 3", "field retries not found"},
		{"bad pin", "pin: 16", "pin: 17", "pin not valid for SPI bus"},
		{"pin on other bus", "pin: 12", "pin: 16", "gpio16 on spi1"},
		{"bad bus", "bus: 1", "bus: 2", "invalid SPI bus"},
		{"duplicate bus", "bus: 1", "bus: 0", "listed twice"},
		{"bad mode", "mode: 3", "mode: 4", "invalid SPI mode"},
		{"bad bit order", "bit_order: lsb", "bit_order: middle", "invalid SPI bit order"},
		{"empty device", "device: /dev/ttyACM1", "device: \"\"", "serial.device is required"},
		{"bad timeout", "timeout: 250ms", "timeout: -1s", "timeout must be positive"},
		{"bad duration", "timeout: 250ms", "timeout: soon", "reading"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(baseConfig, tt.from, tt.to, 1)
			require.NotEqual(t, baseConfig, data, "replacement did not apply")

			_, err := Read(createConfigFile(t, data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read("")
	assert.Error(t, err)

	_, err = Read(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault(t *testing.T) {
	conf := Default()
	assert.NoError(t, conf.Validate())
	assert.Empty(t, conf.Buses)
	assert.Equal(t, "INFO", conf.Logging.Level)
}

func TestParseBitOrder(t *testing.T) {
	for in, want := range map[string]core.BitOrder{"": core.MSBFirst, "MSB": core.MSBFirst, "lsb": core.LSBFirst, "Lsb": core.LSBFirst} {
		got, err := ParseBitOrder(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBitOrder("both")
	assert.ErrorIs(t, err, core.ErrInvalidBitOrder)
}

func TestWatch(t *testing.T) {
	configFile := createConfigFile(t, baseConfig)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, configFile, logger, func(c *Config) { reloaded <- c })
	}()

	updated := strings.Replace(baseConfig, "clock_hz: 1000000", "clock_hz: 2000000", 1)

	// The watcher starts asynchronously, so keep rewriting until it notices
	var got *Config
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for got == nil {
		select {
		case got = <-reloaded:
		case <-tick.C:
			require.NoError(t, os.WriteFile(configFile, []byte(updated), 0o644))
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
	assert.Equal(t, uint32(2000000), got.Buses[0].ClockHz)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
