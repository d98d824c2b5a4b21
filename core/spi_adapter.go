// SPI bus adapter
// Arduino-style begin/transaction/transfer API over an SPIPeripheral
package core

import (
	"tinygo.org/x/drivers"
)

var _ drivers.SPI = (*SPIAdapter)(nil)

// Number of consecutive pins in an SPI pin group: RX, CSn, SCK, TX
const spiPinGroupSize = 4

// spiRXPins lists the RX pins that start a valid pin group for each controller
var spiRXPins = map[SPIBusID][]GPIOPin{
	SPI0: {0, 4, 16, 20},
	SPI1: {8, 12, 24, 28},
}

// ValidRXPin reports whether pin starts a legal pin group for bus
func ValidRXPin(bus SPIBusID, pin GPIOPin) bool {
	for _, p := range spiRXPins[bus] {
		if p == pin {
			return true
		}
	}
	return false
}

// SPIAdapter drives one SPI controller. It is not safe for concurrent use;
// exclusive ownership is handed out by SPIRegistry.
type SPIAdapter struct {
	bus      SPIBusID
	periph   SPIPeripheral
	mux      PinMux
	settings SPISettings
	baud     uint32 // Rate reported by the peripheral

	initialized bool
	pinsRouted  bool
	pin         GPIOPin // RX pin, first of the group
	hwCS        bool
}

func newSPIAdapter(bus SPIBusID, periph SPIPeripheral, mux PinMux) *SPIAdapter {
	return &SPIAdapter{
		bus:      bus,
		periph:   periph,
		mux:      mux,
		settings: DefaultSPISettings(),
	}
}

// Bus returns the controller this adapter is bound to
func (a *SPIAdapter) Bus() SPIBusID {
	return a.bus
}

// Settings returns the current transaction settings
func (a *SPIAdapter) Settings() SPISettings {
	return a.settings
}

// Initialized reports whether the peripheral is configured and usable
func (a *SPIAdapter) Initialized() bool {
	return a.initialized
}

// Baud returns the clock rate achieved by the peripheral, 0 when uninitialized
func (a *SPIAdapter) Baud() uint32 {
	if !a.initialized {
		return 0
	}
	return a.baud
}

// RXPin returns the pin passed to the last successful Begin
func (a *SPIAdapter) RXPin() (GPIOPin, bool) {
	return a.pin, a.pinsRouted
}

// HardwareCS reports whether the CSn pin is routed to the controller
func (a *SPIAdapter) HardwareCS() bool {
	return a.pinsRouted && a.hwCS
}

// Begin routes the pin group starting at rx to the controller and
// initializes it with the current settings.
// rx must be one of the RX pins listed for the bus; otherwise the adapter is
// left untouched and ErrInvalidPin (or ErrInvalidBus) is returned.
func (a *SPIAdapter) Begin(hwCS bool, rx GPIOPin) error {
	if _, ok := spiRXPins[a.bus]; !ok {
		DebugPrintln("[SPI] begin: unknown bus " + itoa(int(a.bus)))
		return ErrInvalidBus
	}
	if !ValidRXPin(a.bus, rx) {
		DebugPrintln("[SPI] begin: pin " + itoa(int(rx)) + " invalid for spi" + itoa(int(a.bus)))
		return ErrInvalidPin
	}

	if a.pinsRouted {
		if err := a.routePins(PinFuncSIO); err != nil {
			return err
		}
		a.pinsRouted = false
	}

	a.pin = rx
	a.hwCS = hwCS
	if err := a.attachPins(); err != nil {
		// Leave no pin on SPI and the bus uninitialized
		a.releasePins()
		_ = a.EndTransaction()
		return err
	}
	a.pinsRouted = true
	RecordSPIEvent(EvtBegin, a.bus, uint32(rx), boolToUint32(hwCS))

	// Default config in case the caller never starts a transaction
	return a.BeginTransaction(a.settings)
}

// End returns the pin group to SIO and shuts the controller down.
// Transfers after End behave as uninitialized.
func (a *SPIAdapter) End() error {
	var routeErr error
	if a.pinsRouted {
		routeErr = a.routePins(PinFuncSIO)
		a.pinsRouted = false
	}
	err := a.EndTransaction()
	RecordSPIEvent(EvtEnd, a.bus, uint32(a.pin), 0)
	if routeErr != nil {
		return routeErr
	}
	return err
}

func (a *SPIAdapter) attachPins() error {
	if binder, ok := a.periph.(SPIPinBinder); ok {
		if err := binder.BindPins(a.pin, a.pin+1, a.pin+2, a.pin+3); err != nil {
			return err
		}
	}
	return a.routePins(PinFuncSPI)
}

// releasePins returns every pin of the group to SIO, continuing past
// mux failures
func (a *SPIAdapter) releasePins() {
	for i := GPIOPin(0); i < spiPinGroupSize; i++ {
		if i == 1 && !a.hwCS {
			continue
		}
		_ = a.mux.SetFunction(a.pin+i, PinFuncSIO)
	}
}

func (a *SPIAdapter) routePins(fn PinFunction) error {
	for i := GPIOPin(0); i < spiPinGroupSize; i++ {
		if i == 1 && !a.hwCS {
			continue
		}
		if err := a.mux.SetFunction(a.pin+i, fn); err != nil {
			return err
		}
	}
	return nil
}

// BeginTransaction stores settings and fully reconfigures the controller.
// Clock and mode cannot be changed incrementally, so the peripheral is
// always deinitialized and initialized again.
func (a *SPIAdapter) BeginTransaction(settings SPISettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	a.settings = settings

	if a.initialized {
		a.initialized = false
		if err := a.periph.Deinit(); err != nil {
			return err
		}
	}

	// Controllers that latch the mode at init need the format first
	if err := a.periph.SetFormat(a.format(8)); err != nil {
		return err
	}
	baud, err := a.periph.Init(settings.ClockHz())
	if err != nil {
		return err
	}
	a.baud = baud
	a.initialized = true
	RecordSPIEvent(EvtBeginTransaction, a.bus, settings.ClockHz(), uint32(settings.DataMode())<<8|uint32(settings.BitOrder()))
	return nil
}

// EndTransaction shuts the controller down
func (a *SPIAdapter) EndTransaction() error {
	if !a.initialized {
		return nil
	}
	a.initialized = false
	a.baud = 0
	RecordSPIEvent(EvtEndTransaction, a.bus, 0, 0)
	return a.periph.Deinit()
}

// SetBitOrder replaces the bit order and reapplies the transaction
func (a *SPIAdapter) SetBitOrder(order BitOrder) error {
	if !order.valid() {
		return ErrInvalidBitOrder
	}
	return a.BeginTransaction(a.settings.WithBitOrder(order))
}

// SetDataMode replaces the mode and reapplies the transaction
func (a *SPIAdapter) SetDataMode(mode SPIMode) error {
	if _, _, err := mode.Format(); err != nil {
		return err
	}
	return a.BeginTransaction(a.settings.WithDataMode(mode))
}

// SetClockDivider is accepted for compatibility with the AVR API and ignored.
// Use BeginTransaction to change the clock rate.
func (a *SPIAdapter) SetClockDivider(div uint8) {
	_ = div
}

func (a *SPIAdapter) format(bits uint8) SPIFormat {
	// Settings were validated when applied
	pol, pha, _ := a.settings.DataMode().Format()
	return SPIFormat{DataBits: bits, Polarity: pol, Phase: pha}
}

// Transfer exchanges one byte. Returns 0 and ErrNotInitialized when the bus
// has not been started.
func (a *SPIAdapter) Transfer(b byte) (byte, error) {
	if !a.initialized {
		return 0, ErrNotInitialized
	}
	lsb := a.settings.BitOrder() == LSBFirst
	if lsb {
		b = ReverseByte(b)
	}
	if err := a.periph.SetFormat(a.format(8)); err != nil {
		return 0, err
	}
	tx := [1]byte{b}
	var rx [1]byte
	if err := a.periph.WriteRead(tx[:], rx[:]); err != nil {
		return 0, err
	}
	if lsb {
		rx[0] = ReverseByte(rx[0])
	}
	return rx[0], nil
}

// Transfer16 exchanges one 16-bit frame
func (a *SPIAdapter) Transfer16(w uint16) (uint16, error) {
	if !a.initialized {
		return 0, ErrNotInitialized
	}
	lsb := a.settings.BitOrder() == LSBFirst
	if lsb {
		w = Reverse16(w)
	}
	if err := a.periph.SetFormat(a.format(16)); err != nil {
		return 0, err
	}
	tx := [1]uint16{w}
	var rx [1]uint16
	if err := a.periph.WriteRead16(tx[:], rx[:]); err != nil {
		return 0, err
	}
	if lsb {
		rx[0] = Reverse16(rx[0])
	}
	return rx[0], nil
}

// TransferBuffer exchanges buf in place, one frame per byte. The result is
// identical to calling Transfer for each element.
func (a *SPIAdapter) TransferBuffer(buf []byte) error {
	if !a.initialized {
		clear(buf)
		return ErrNotInitialized
	}
	for i := range buf {
		rx, err := a.Transfer(buf[i])
		if err != nil {
			return err
		}
		buf[i] = rx
	}
	return nil
}

// TransferBuffers sends tx while receiving into rx in a single peripheral
// call. Either slice may be nil: a nil tx clocks out zeros, a nil rx
// discards the received data. Otherwise the lengths must match.
func (a *SPIAdapter) TransferBuffers(tx, rx []byte) error {
	n := len(tx)
	if tx == nil {
		n = len(rx)
	} else if rx != nil && len(rx) != len(tx) {
		return ErrBufferLength
	}
	if !a.initialized {
		clear(rx)
		return ErrNotInitialized
	}
	if n == 0 {
		return nil
	}

	order := a.settings.BitOrder()
	out := make([]byte, n)
	if tx != nil {
		AdjustBuffer(out, tx, order)
	}
	in := make([]byte, n)
	if err := a.periph.SetFormat(a.format(8)); err != nil {
		return err
	}
	if err := a.periph.WriteRead(out, in); err != nil {
		return err
	}
	if rx != nil {
		AdjustBuffer(rx, in, order)
	}
	return nil
}

// Tx implements drivers.SPI
func (a *SPIAdapter) Tx(w, r []byte) error {
	return a.TransferBuffers(w, r)
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
