// Package config loads the spi-host configuration file
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"picospi/core"
	"picospi/host/serial"
)

// Config is the top level of the YAML file
type Config struct {
	Serial  serial.Config `yaml:"serial"`
	Timeout time.Duration `yaml:"timeout"`
	Logging LogConfig     `yaml:"logging"`

	// Buses are started when the client connects
	Buses []BusConfig `yaml:"buses"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // Optional copy of the log
}

// BusConfig describes one bus to begin at startup
type BusConfig struct {
	Bus        uint8  `yaml:"bus"`
	Pin        uint8  `yaml:"pin"`
	HardwareCS bool   `yaml:"hw_cs"`
	ClockHz    uint32 `yaml:"clock_hz"`
	BitOrder   string `yaml:"bit_order"` // msb or lsb
	Mode       uint8  `yaml:"mode"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Serial:  *serial.DefaultConfig("/dev/ttyACM0"),
		Timeout: time.Second,
		Logging: LogConfig{Level: "INFO", Format: "text"},
	}
}

// ParseBitOrder accepts "msb" or "lsb" in any case
func ParseBitOrder(s string) (core.BitOrder, error) {
	switch strings.ToLower(s) {
	case "", "msb":
		return core.MSBFirst, nil
	case "lsb":
		return core.LSBFirst, nil
	}
	return 0, fmt.Errorf("%w: %q", core.ErrInvalidBitOrder, s)
}

// Settings converts the bus entry to transaction settings
func (b BusConfig) Settings() (core.SPISettings, error) {
	order, err := ParseBitOrder(b.BitOrder)
	if err != nil {
		return core.SPISettings{}, err
	}
	clock := b.ClockHz
	if clock == 0 {
		clock = core.DefaultSPIClock
	}
	s := core.NewSPISettings(clock, order, core.SPIMode(b.Mode))
	return s, s.Validate()
}

// Validate checks every bus entry against the pin tables
func (c *Config) Validate() error {
	if c.Serial.Device == "" {
		return errors.New("serial.device is required")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	seen := make(map[uint8]bool)
	for i, b := range c.Buses {
		if seen[b.Bus] {
			return fmt.Errorf("buses[%d]: spi%d listed twice", i, b.Bus)
		}
		seen[b.Bus] = true
		if b.Bus > uint8(core.SPI1) {
			return fmt.Errorf("buses[%d]: %w: %d", i, core.ErrInvalidBus, b.Bus)
		}
		if !core.ValidRXPin(core.SPIBusID(b.Bus), core.GPIOPin(b.Pin)) {
			return fmt.Errorf("buses[%d]: %w: gpio%d on spi%d", i, core.ErrInvalidPin, b.Pin, b.Bus)
		}
		if _, err := b.Settings(); err != nil {
			return fmt.Errorf("buses[%d]: %w", i, err)
		}
	}
	return nil
}

// Read loads filename over the defaults. Unknown keys are rejected.
func Read(filename string) (*Config, error) {
	if filename == "" {
		return nil, errors.New("missing config file")
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}
