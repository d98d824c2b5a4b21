//go:build rp2040

package main

import (
	"machine"

	"picospi/core"
)

// SPIBackend selects what drives a bus
type SPIBackend uint8

const (
	BackendHardware SPIBackend = iota // PL022 controller
	BackendPIO                        // PIO state machine, CPOL=0 only
	BackendSoftware                   // Bit-banged through the GPIO driver
)

// BusConfig describes how one bus is built at boot
type BusConfig struct {
	Backend SPIBackend

	// PIO backend only
	PIOBlock uint8
	PIOSM    uint8
	PIOPhase core.Phase
}

// FirmwareConfig is fixed at compile time
type FirmwareConfig struct {
	Buses map[core.SPIBusID]BusConfig

	// Debug output on UART0. GPIO28 overlaps the spi1 group at 28.
	DebugUART bool
	DebugTX   machine.Pin
	DebugRX   machine.Pin
}

// GetConfig returns the build configuration.
// Change the backends here to move a bus off its controller.
func GetConfig() FirmwareConfig {
	return FirmwareConfig{
		Buses: map[core.SPIBusID]BusConfig{
			core.SPI0: {Backend: BackendHardware},
			core.SPI1: {Backend: BackendHardware},
		},
		DebugUART: false,
		DebugTX:   machine.GPIO28,
		DebugRX:   machine.GPIO29,
	}
}

// newBusPeripheral builds the backend and pin mux for bus
func newBusPeripheral(bus core.SPIBusID, cfg BusConfig, gpio core.GPIODriver) (core.SPIPeripheral, core.PinMux, error) {
	switch cfg.Backend {
	case BackendPIO:
		p, err := NewPIOSPI(cfg.PIOBlock, cfg.PIOSM, cfg.PIOPhase)
		if err != nil {
			return nil, nil, err
		}
		return p, NewRPPinMux(p.PinMode()), nil
	case BackendSoftware:
		mux := NewRPPinMux(machine.PinOutput)
		mux.External = true
		return core.NewSoftwareSPI(gpio), mux, nil
	}

	spi := machine.SPI0
	if bus == core.SPI1 {
		spi = machine.SPI1
	}
	return NewHardwareSPI(spi), NewRPPinMux(machine.PinSPI), nil
}
