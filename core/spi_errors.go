package core

import "errors"

var (
	ErrInvalidBus       = errors.New("invalid SPI bus")
	ErrInvalidPin       = errors.New("pin not valid for SPI bus")
	ErrInvalidMode      = errors.New("invalid SPI mode")
	ErrInvalidBitOrder  = errors.New("invalid SPI bit order")
	ErrInvalidClock     = errors.New("invalid SPI clock rate")
	ErrNotInitialized   = errors.New("SPI bus not initialized")
	ErrBusRegistered    = errors.New("SPI bus already registered")
	ErrBusNotRegistered = errors.New("SPI bus not registered")
	ErrBusClaimed       = errors.New("SPI bus already claimed")
	ErrBufferLength     = errors.New("tx and rx buffer lengths must match")
	ErrValueRange       = errors.New("value does not fit the SPI frame")

	// Peripheral errors, reported to the host as ResultHardware
	ErrInvalidFormat  = errors.New("unsupported SPI frame format")
	ErrPinsNotBound   = errors.New("SPI pins not bound")
	errPeripheralIdle = errors.New("SPI peripheral not initialized")
)

// Result codes reported to the host in spi_status responses
const (
	ResultOK uint8 = iota
	ResultInvalidBus
	ResultInvalidPin
	ResultInvalidMode
	ResultInvalidBitOrder
	ResultInvalidClock
	ResultNotInitialized
	ResultBufferLength
	ResultHardware
	ResultValueRange
)

var resultErrors = []error{
	ResultInvalidBus:      ErrInvalidBus,
	ResultInvalidPin:      ErrInvalidPin,
	ResultInvalidMode:     ErrInvalidMode,
	ResultInvalidBitOrder: ErrInvalidBitOrder,
	ResultInvalidClock:    ErrInvalidClock,
	ResultNotInitialized:  ErrNotInitialized,
	ResultBufferLength:    ErrBufferLength,
	ResultValueRange:      ErrValueRange,
}

// ResultCode maps an error to its wire result code.
// Errors without a dedicated code are reported as ResultHardware.
func ResultCode(err error) uint8 {
	if err == nil {
		return ResultOK
	}
	for code, e := range resultErrors {
		if e != nil && errors.Is(err, e) {
			return uint8(code)
		}
	}
	return ResultHardware
}

// ErrHardware is returned by ResultError for peripheral failures reported by the MCU
var ErrHardware = errors.New("SPI hardware error")

// ResultError is the inverse of ResultCode
func ResultError(code uint8) error {
	if code == ResultOK {
		return nil
	}
	if int(code) < len(resultErrors) && resultErrors[code] != nil {
		return resultErrors[code]
	}
	return ErrHardware
}
