// Package serial opens the USB CDC port of a picospi board
package serial

import (
	"io"
)

// Port is the byte stream the host transport runs over.
// Tests substitute a net.Pipe end.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate; USB CDC ignores it but the OS driver still wants one
	Baud int `yaml:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `yaml:"read_timeout_ms"`
}

// DefaultConfig returns the configuration for a Pico on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
