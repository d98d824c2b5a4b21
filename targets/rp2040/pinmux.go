//go:build rp2040

package main

import (
	"machine"

	"picospi/core"
)

const rp2040GPIOCount = 30

// RPPinMux routes GPIO pads between SIO and an SPI backend. spiMode is the
// pad function of the backend (machine.PinSPI or a PIO block).
type RPPinMux struct {
	spiMode machine.PinMode

	// External is set for backends that configure their own pads
	// (bit-banged SPI goes through the GPIO driver)
	External bool
}

var _ core.PinMux = (*RPPinMux)(nil)

// NewRPPinMux creates a mux that routes pads to spiMode
func NewRPPinMux(spiMode machine.PinMode) *RPPinMux {
	return &RPPinMux{spiMode: spiMode}
}

// SetFunction configures the pad. Pins past GPIO29 are accepted and ignored
// so upper pin groups only route the pads that exist.
func (m *RPPinMux) SetFunction(pin core.GPIOPin, fn core.PinFunction) error {
	if pin >= rp2040GPIOCount {
		return nil
	}
	p := machine.Pin(pin)
	switch fn {
	case core.PinFuncSIO:
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	case core.PinFuncSPI:
		if !m.External {
			p.Configure(machine.PinConfig{Mode: m.spiMode})
		}
	default:
		return core.ErrInvalidPin
	}
	return nil
}
