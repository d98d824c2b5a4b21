package core

import "time"

// SoftwareSPI is a bit-banged SPIPeripheral on top of a GPIODriver.
// It is used where no controller is free and as a reference backend in tests.
type SoftwareSPI struct {
	gpio GPIODriver

	sck  GPIOPin
	mosi GPIOPin
	miso GPIOPin

	bound      bool
	enabled    bool
	halfPeriod time.Duration
	format     SPIFormat

	// Sleep is called between clock edges; defaults to time.Sleep
	Sleep func(time.Duration)
}

var (
	_ SPIPeripheral = (*SoftwareSPI)(nil)
	_ SPIPinBinder  = (*SoftwareSPI)(nil)
)

// NewSoftwareSPI creates a bit-banged SPI backend using gpio
func NewSoftwareSPI(gpio GPIODriver) *SoftwareSPI {
	return &SoftwareSPI{
		gpio:   gpio,
		format: SPIFormat{DataBits: 8},
		Sleep:  time.Sleep,
	}
}

// BindPins takes the RX, SCK and TX pins of the group. Chip select is left
// to the caller.
func (s *SoftwareSPI) BindPins(rx, cs, sck, tx GPIOPin) error {
	s.miso, s.sck, s.mosi = rx, sck, tx

	if err := s.gpio.ConfigureOutput(s.sck); err != nil {
		return err
	}
	if err := s.gpio.ConfigureOutput(s.mosi); err != nil {
		return err
	}
	if err := s.gpio.ConfigureInputPullUp(s.miso); err != nil {
		return err
	}
	s.bound = true
	return s.idleClock()
}

// Init computes the half period for baud and enables the backend.
// Returns the rate the half period actually achieves.
func (s *SoftwareSPI) Init(baud uint32) (uint32, error) {
	if !s.bound {
		return 0, ErrPinsNotBound
	}
	if baud == 0 {
		return 0, ErrInvalidClock
	}
	half := max(time.Duration(500000000/baud), time.Nanosecond)
	s.halfPeriod = half
	s.enabled = true
	if err := s.idleClock(); err != nil {
		return 0, err
	}
	return uint32(time.Second / (2 * half)), nil
}

// Deinit disables the backend; the pins keep their last state
func (s *SoftwareSPI) Deinit() error {
	s.enabled = false
	return nil
}

// SetFormat stores polarity and phase and parks the clock at its idle level
func (s *SoftwareSPI) SetFormat(format SPIFormat) error {
	if format.DataBits != 8 && format.DataBits != 16 {
		return ErrInvalidFormat
	}
	s.format = format
	return s.idleClock()
}

func (s *SoftwareSPI) idleClock() error {
	if !s.bound {
		return nil
	}
	return s.gpio.SetPin(s.sck, s.format.Polarity == PolarityHigh)
}

// WriteRead exchanges 8-bit frames
func (s *SoftwareSPI) WriteRead(w, r []byte) error {
	if len(w) != len(r) {
		return ErrBufferLength
	}
	if !s.enabled {
		return errPeripheralIdle
	}
	for i := range w {
		v, err := s.shift(uint16(w[i]), 8)
		if err != nil {
			return err
		}
		r[i] = byte(v)
	}
	return nil
}

// WriteRead16 exchanges 16-bit frames
func (s *SoftwareSPI) WriteRead16(w, r []uint16) error {
	if len(w) != len(r) {
		return ErrBufferLength
	}
	if !s.enabled {
		return errPeripheralIdle
	}
	for i := range w {
		v, err := s.shift(w[i], 16)
		if err != nil {
			return err
		}
		r[i] = v
	}
	return nil
}

// shift clocks one frame MSB first.
// CPHA=0: data is set up before the leading edge and sampled on it.
// CPHA=1: data changes on the leading edge and is sampled on the trailing edge.
func (s *SoftwareSPI) shift(out uint16, bits uint8) (uint16, error) {
	idle := s.format.Polarity == PolarityHigh
	var in uint16

	for bit := int(bits) - 1; bit >= 0; bit-- {
		level := out&(1<<bit) != 0

		if s.format.Phase == PhaseLeading {
			if err := s.gpio.SetPin(s.mosi, level); err != nil {
				return 0, err
			}
			s.Sleep(s.halfPeriod)
			if err := s.gpio.SetPin(s.sck, !idle); err != nil {
				return 0, err
			}
			sample, err := s.gpio.GetPin(s.miso)
			if err != nil {
				return 0, err
			}
			if sample {
				in |= 1 << bit
			}
			s.Sleep(s.halfPeriod)
			if err := s.gpio.SetPin(s.sck, idle); err != nil {
				return 0, err
			}
			continue
		}

		if err := s.gpio.SetPin(s.sck, !idle); err != nil {
			return 0, err
		}
		if err := s.gpio.SetPin(s.mosi, level); err != nil {
			return 0, err
		}
		s.Sleep(s.halfPeriod)
		if err := s.gpio.SetPin(s.sck, idle); err != nil {
			return 0, err
		}
		sample, err := s.gpio.GetPin(s.miso)
		if err != nil {
			return 0, err
		}
		if sample {
			in |= 1 << bit
		}
		s.Sleep(s.halfPeriod)
	}
	return in, nil
}
