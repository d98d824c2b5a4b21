//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"

	"picospi/core"
)

// PIOSPI implements core.SPIPeripheral on a PIO state machine. The program
// only supports CPOL=0, 8-bit frames, and the phase chosen at construction.
// 16-bit frames are split into two bytes.
type PIOSPI struct {
	sm    rp2pio.StateMachine
	phase core.Phase

	spi     *piolib.SPI
	sck     machine.Pin
	sdo     machine.Pin
	sdi     machine.Pin
	bound   bool
	enabled bool
}

var (
	_ core.SPIPeripheral = (*PIOSPI)(nil)
	_ core.SPIPinBinder  = (*PIOSPI)(nil)
)

// NewPIOSPI claims state machine smNum of PIO block pioNum
func NewPIOSPI(pioNum, smNum uint8, phase core.Phase) (*PIOSPI, error) {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	sm := pioHW.StateMachine(smNum)
	if !sm.TryClaim() {
		return nil, core.ErrBusClaimed
	}
	return &PIOSPI{sm: sm, phase: phase}, nil
}

// PinMode is the pad function the pin mux must select for this backend
func (p *PIOSPI) PinMode() machine.PinMode {
	return p.sm.PIO().PinMode()
}

// BindPins records the pins; the program is loaded on the first Init
func (p *PIOSPI) BindPins(rx, cs, sck, tx core.GPIOPin) error {
	if p.spi != nil && (machine.Pin(rx) != p.sdi || machine.Pin(sck) != p.sck || machine.Pin(tx) != p.sdo) {
		// The program's pin mapping is fixed once loaded
		return core.ErrInvalidPin
	}
	p.sdi, p.sck, p.sdo = machine.Pin(rx), machine.Pin(sck), machine.Pin(tx)
	p.bound = true
	return nil
}

// Init loads the program on first use and otherwise only changes the clock
// divider. Returns the state machine clock derived from the divider.
func (p *PIOSPI) Init(baud uint32) (uint32, error) {
	if !p.bound {
		return 0, core.ErrPinsNotBound
	}
	whole, frac, err := rp2pio.ClkDivFromFrequency(baud, machine.CPUFrequency())
	if err != nil {
		return 0, core.ErrInvalidClock
	}

	if p.spi == nil {
		spi, err := piolib.NewSPI(p.sm, machine.SPIConfig{
			Frequency: baud,
			SCK:       p.sck,
			SDO:       p.sdo,
			SDI:       p.sdi,
			Mode:      uint8(p.phase),
		})
		if err != nil {
			return 0, err
		}
		p.spi = spi
	} else {
		p.sm.SetEnabled(false)
		p.sm.HW().CLKDIV.Set(uint32(whole)<<16 | uint32(frac)<<8)
		p.sm.ClearFIFOs()
		p.sm.Restart()
		p.sm.SetEnabled(true)
	}
	p.enabled = true

	div := uint64(whole)<<8 | uint64(frac)
	return uint32(uint64(machine.CPUFrequency()) << 8 / div), nil
}

// Deinit stops the state machine. The program stays loaded.
func (p *PIOSPI) Deinit() error {
	if p.spi != nil {
		p.sm.SetEnabled(false)
	}
	p.enabled = false
	return nil
}

// SetFormat accepts the one format the loaded program can shift
func (p *PIOSPI) SetFormat(format core.SPIFormat) error {
	if format.DataBits != 8 && format.DataBits != 16 {
		return core.ErrInvalidFormat
	}
	if format.Polarity != core.PolarityLow || format.Phase != p.phase {
		return core.ErrInvalidFormat
	}
	return nil
}

// WriteRead exchanges 8-bit frames
func (p *PIOSPI) WriteRead(w, r []byte) error {
	if len(w) != len(r) {
		return core.ErrBufferLength
	}
	if !p.enabled {
		return core.ErrNotInitialized
	}
	return p.spi.Tx(w, r)
}

// WriteRead16 exchanges 16-bit frames, high byte first
func (p *PIOSPI) WriteRead16(w, r []uint16) error {
	if len(w) != len(r) {
		return core.ErrBufferLength
	}
	if !p.enabled {
		return core.ErrNotInitialized
	}
	var tx, rx [2]byte
	for i, v := range w {
		tx[0], tx[1] = byte(v>>8), byte(v)
		if err := p.spi.Tx(tx[:], rx[:]); err != nil {
			return err
		}
		r[i] = uint16(rx[0])<<8 | uint16(rx[1])
	}
	return nil
}
