package core

// SPIBusID identifies a hardware SPI controller instance
type SPIBusID uint8

const (
	SPI0 SPIBusID = 0
	SPI1 SPIBusID = 1
)

// Polarity is the clock idle level (CPOL)
type Polarity uint8

const (
	PolarityLow  Polarity = 0 // Clock idles low
	PolarityHigh Polarity = 1 // Clock idles high
)

// Phase selects the clock edge data is sampled on (CPHA)
type Phase uint8

const (
	PhaseLeading  Phase = 0 // Sample on the first edge
	PhaseTrailing Phase = 1 // Sample on the second edge
)

// SPIFormat describes the frame format programmed before each transfer.
// Frames are always shifted MSB first; LSB-first ordering is handled in software.
type SPIFormat struct {
	DataBits uint8 // 8 or 16
	Polarity Polarity
	Phase    Phase
}

// SPIPeripheral is the abstract SPI controller interface the adapter drives.
// Platform-specific implementations handle actual hardware control.
type SPIPeripheral interface {
	// Init enables the controller at the requested clock rate.
	// Returns the rate the hardware actually achieved.
	Init(baud uint32) (uint32, error)

	// Deinit disables the controller
	Deinit() error

	// SetFormat programs frame width, polarity and phase
	SetFormat(format SPIFormat) error

	// WriteRead performs a blocking full-duplex exchange of 8-bit frames.
	// w and r must be the same length.
	WriteRead(w, r []byte) error

	// WriteRead16 performs a blocking full-duplex exchange of 16-bit frames
	WriteRead16(w, r []uint16) error
}

// SPIPinBinder is implemented by peripherals that need to know the pins
// selected by Begin (PIO and bit-banged backends).
type SPIPinBinder interface {
	BindPins(rx, cs, sck, tx GPIOPin) error
}

// PinFunction selects what drives a GPIO pad
type PinFunction uint8

const (
	PinFuncSIO PinFunction = iota // Software controlled GPIO
	PinFuncSPI                    // SPI controller
)

// PinMux routes GPIO pads to peripheral functions
type PinMux interface {
	SetFunction(pin GPIOPin, fn PinFunction) error
}
