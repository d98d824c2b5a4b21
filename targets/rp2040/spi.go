//go:build rp2040

package main

import (
	"device/rp"
	"machine"
	"sync"

	"picospi/core"
)

// HardwareSPI implements core.SPIPeripheral on one of the RP2040 PL022
// controllers through TinyGo's machine.SPI
type HardwareSPI struct {
	mu sync.Mutex

	spi     *machine.SPI
	sck     machine.Pin
	sdo     machine.Pin
	sdi     machine.Pin
	format  core.SPIFormat
	baud    uint32
	enabled bool
}

var (
	_ core.SPIPeripheral = (*HardwareSPI)(nil)
	_ core.SPIPinBinder  = (*HardwareSPI)(nil)
)

// NewHardwareSPI wraps machine.SPI0 or machine.SPI1
func NewHardwareSPI(spi *machine.SPI) *HardwareSPI {
	return &HardwareSPI{
		spi:    spi,
		format: core.SPIFormat{DataBits: 8},
		sck:    machine.NoPin,
		sdo:    machine.NoPin,
		sdi:    machine.NoPin,
	}
}

// BindPins records the group selected by Begin. CSn is routed by the pin mux.
func (h *HardwareSPI) BindPins(rx, cs, sck, tx core.GPIOPin) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sdi = machine.Pin(rx)
	h.sck = machine.Pin(sck)
	h.sdo = machine.Pin(tx)
	return nil
}

func (h *HardwareSPI) configure() error {
	mode := uint8(h.format.Polarity)<<1 | uint8(h.format.Phase)
	return h.spi.Configure(machine.SPIConfig{
		Frequency: h.baud,
		SCK:       h.sck,
		SDO:       h.sdo, // SDO = Serial Data Out (MOSI)
		SDI:       h.sdi, // SDI = Serial Data In (MISO)
		Mode:      mode,
	})
}

// Init enables the controller and returns the rate the prescalers achieve
func (h *HardwareSPI) Init(baud uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sck == machine.NoPin {
		return 0, core.ErrPinsNotBound
	}
	h.baud = baud
	if err := h.configure(); err != nil {
		return 0, err
	}
	h.enabled = true
	return h.spi.GetBaudRate(), nil
}

// Deinit clears SSE so the controller stops driving the bus
func (h *HardwareSPI) Deinit() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.spi.Bus.SSPCR1.ClearBits(rp.SPI0_SSPCR1_SSE)
	h.enabled = false
	return nil
}

// SetFormat writes polarity and phase to the controller on every call.
// 16-bit frames are sent as two 8-bit frames, so DataBits never reaches
// the controller.
func (h *HardwareSPI) SetFormat(format core.SPIFormat) error {
	if format.DataBits != 8 && format.DataBits != 16 {
		return core.ErrInvalidFormat
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.format = format
	if h.enabled {
		h.writeFormat()
	}
	return nil
}

// writeFormat programs SPO/SPH in SSPCR0. The PL022 only accepts format
// changes with SSE clear, so the controller is paused around the write.
func (h *HardwareSPI) writeFormat() {
	bus := h.spi.Bus
	wasEnabled := bus.SSPCR1.HasBits(rp.SPI0_SSPCR1_SSE)
	bus.SSPCR1.ClearBits(rp.SPI0_SSPCR1_SSE)

	var cr0 uint32
	if h.format.Polarity == core.PolarityHigh {
		cr0 |= rp.SPI0_SSPCR0_SPO
	}
	if h.format.Phase == core.PhaseTrailing {
		cr0 |= rp.SPI0_SSPCR0_SPH
	}
	bus.SSPCR0.ReplaceBits(cr0, rp.SPI0_SSPCR0_SPO|rp.SPI0_SSPCR0_SPH, 0)

	if wasEnabled {
		bus.SSPCR1.SetBits(rp.SPI0_SSPCR1_SSE)
	}
}

// WriteRead exchanges 8-bit frames
func (h *HardwareSPI) WriteRead(w, r []byte) error {
	if len(w) != len(r) {
		return core.ErrBufferLength
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return core.ErrNotInitialized
	}
	return h.spi.Tx(w, r)
}

// WriteRead16 exchanges 16-bit frames, high byte first
func (h *HardwareSPI) WriteRead16(w, r []uint16) error {
	if len(w) != len(r) {
		return core.ErrBufferLength
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return core.ErrNotInitialized
	}

	var tx, rx [2]byte
	for i, v := range w {
		tx[0], tx[1] = byte(v>>8), byte(v)
		if err := h.spi.Tx(tx[:], rx[:]); err != nil {
			return err
		}
		r[i] = uint16(rx[0])<<8 | uint16(rx[1])
	}
	return nil
}
