package core

// BitOrder is the order bits of each frame are shifted onto the wire
type BitOrder uint8

const (
	LSBFirst BitOrder = 0
	MSBFirst BitOrder = 1
)

func (o BitOrder) valid() bool {
	return o == LSBFirst || o == MSBFirst
}

func (o BitOrder) String() string {
	switch o {
	case LSBFirst:
		return "lsb"
	case MSBFirst:
		return "msb"
	}
	return "invalid(" + itoa(int(o)) + ")"
}

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on leading edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on trailing edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on leading edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on trailing edge)
type SPIMode uint8

const (
	Mode0 SPIMode = 0
	Mode1 SPIMode = 1
	Mode2 SPIMode = 2
	Mode3 SPIMode = 3
)

// Format returns the polarity and phase for the mode. Out of range modes
// yield (PolarityLow, PhaseLeading) along with ErrInvalidMode.
func (m SPIMode) Format() (Polarity, Phase, error) {
	switch m {
	case Mode0:
		return PolarityLow, PhaseLeading, nil
	case Mode1:
		return PolarityLow, PhaseTrailing, nil
	case Mode2:
		return PolarityHigh, PhaseLeading, nil
	case Mode3:
		return PolarityHigh, PhaseTrailing, nil
	}
	return PolarityLow, PhaseLeading, ErrInvalidMode
}

// DefaultSPIClock matches the Arduino SPISettings default
const DefaultSPIClock = 4000000

// SPISettings is the immutable transaction configuration
type SPISettings struct {
	clock uint32
	order BitOrder
	mode  SPIMode
}

// NewSPISettings creates a settings value. Validation happens when the
// settings are applied with BeginTransaction.
func NewSPISettings(clock uint32, order BitOrder, mode SPIMode) SPISettings {
	return SPISettings{clock: clock, order: order, mode: mode}
}

// DefaultSPISettings returns 4MHz, MSB first, mode 0
func DefaultSPISettings() SPISettings {
	return NewSPISettings(DefaultSPIClock, MSBFirst, Mode0)
}

func (s SPISettings) ClockHz() uint32    { return s.clock }
func (s SPISettings) BitOrder() BitOrder { return s.order }
func (s SPISettings) DataMode() SPIMode  { return s.mode }

// WithBitOrder returns a copy with the bit order replaced
func (s SPISettings) WithBitOrder(order BitOrder) SPISettings {
	return NewSPISettings(s.clock, order, s.mode)
}

// WithDataMode returns a copy with the mode replaced
func (s SPISettings) WithDataMode(mode SPIMode) SPISettings {
	return NewSPISettings(s.clock, s.order, mode)
}

// Validate checks every field
func (s SPISettings) Validate() error {
	if s.clock == 0 {
		return ErrInvalidClock
	}
	if !s.order.valid() {
		return ErrInvalidBitOrder
	}
	if _, _, err := s.mode.Format(); err != nil {
		return err
	}
	return nil
}
