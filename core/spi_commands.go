// SPI command surface
// Exposes the bus adapters to the host over the command protocol
package core

import (
	"picospi/protocol"
)

// SPITransferMax is the largest spi_transfer payload that fits in one frame
const SPITransferMax = 48

// Adapters claimed by the command layer, indexed by bus
var spiAdapters = make(map[SPIBusID]*SPIAdapter)

// InitSPICommands registers SPI commands and claims every bus registered
// with RegisterSPIBus. Call after target code has registered its buses.
func InitSPICommands() {
	RegisterCommand("spi_begin", "bus=%c hw_cs=%c pin=%u", handleSPIBegin)
	RegisterCommand("spi_end", "bus=%c", handleSPIEnd)
	RegisterCommand("spi_begin_transaction", "bus=%c rate=%u bit_order=%c mode=%c", handleSPIBeginTransaction)
	RegisterCommand("spi_end_transaction", "bus=%c", handleSPIEndTransaction)
	RegisterCommand("spi_set_bit_order", "bus=%c bit_order=%c", handleSPISetBitOrder)
	RegisterCommand("spi_set_data_mode", "bus=%c mode=%c", handleSPISetDataMode)
	RegisterCommand("spi_set_clock_divider", "bus=%c divider=%c", handleSPISetClockDivider)
	RegisterCommand("spi_query", "bus=%c", handleSPIQuery)
	RegisterCommand("spi_transfer", "bus=%c data=%*s", handleSPITransfer)
	RegisterCommand("spi_transfer16", "bus=%c value=%hu", handleSPITransfer16)

	// Responses (MCU -> host)
	RegisterResponse("spi_status", "bus=%c result=%c initialized=%c rate=%u bit_order=%c mode=%c baud=%u pin=%c hw_cs=%c")
	RegisterResponse("spi_transfer_response", "bus=%c result=%c response=%*s")
	RegisterResponse("spi_transfer16_response", "bus=%c result=%c value=%hu")

	names := make([]string, 0, 2)
	for _, bus := range spiRegistry.Buses() {
		a, err := ClaimSPI(bus)
		if err != nil {
			DebugPrintln("[SPI] cannot claim bus " + itoa(int(bus)) + ": " + err.Error())
			continue
		}
		spiAdapters[bus] = a
		for len(names) <= int(bus) {
			names = append(names, "")
		}
		names[bus] = "spi" + itoa(int(bus))
	}
	RegisterEnumeration("spi_bus", names)
	RegisterConstant("SPI_TRANSFER_MAX", itoa(SPITransferMax))
}

// decodeArgs decodes len(args) VLQ values in order
func decodeArgs(data *[]byte, args ...*uint32) error {
	for _, arg := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*arg = v
	}
	return nil
}

func lookupAdapter(bus uint32) (*SPIAdapter, error) {
	a, ok := spiAdapters[SPIBusID(bus)]
	if !ok || bus > 0xFF {
		return nil, ErrInvalidBus
	}
	return a, nil
}

// sendSPIStatus reports the adapter state together with the result of the
// command that triggered it
func sendSPIStatus(bus uint32, result error) error {
	a, err := lookupAdapter(bus)
	if err != nil {
		result = err
	}
	return SendResponse("spi_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, bus)
		protocol.EncodeVLQUint(output, uint32(ResultCode(result)))
		if a == nil {
			for i := 0; i < 7; i++ {
				protocol.EncodeVLQUint(output, 0)
			}
			return
		}
		s := a.Settings()
		pin, routed := a.RXPin()
		protocol.EncodeVLQUint(output, boolToUint32(a.Initialized()))
		protocol.EncodeVLQUint(output, s.ClockHz())
		protocol.EncodeVLQUint(output, uint32(s.BitOrder()))
		protocol.EncodeVLQUint(output, uint32(s.DataMode()))
		protocol.EncodeVLQUint(output, a.Baud())
		if routed {
			protocol.EncodeVLQUint(output, uint32(pin))
		} else {
			protocol.EncodeVLQUint(output, 0xFF)
		}
		protocol.EncodeVLQUint(output, boolToUint32(a.HardwareCS()))
	})
}

// withAdapter runs fn against the adapter for bus and reports spi_status
func withAdapter(bus uint32, fn func(a *SPIAdapter) error) error {
	a, err := lookupAdapter(bus)
	if err == nil {
		err = fn(a)
	}
	return sendSPIStatus(bus, err)
}

// handleSPIBegin validates the pin group and starts the bus
// Format: spi_begin bus=%c hw_cs=%c pin=%u
func handleSPIBegin(data *[]byte) error {
	var bus, hwCS, pin uint32
	if err := decodeArgs(data, &bus, &hwCS, &pin); err != nil {
		return err
	}
	return withAdapter(bus, func(a *SPIAdapter) error {
		return a.Begin(hwCS != 0, GPIOPin(pin))
	})
}

// handleSPIEnd releases the pin group and stops the bus
// Format: spi_end bus=%c
func handleSPIEnd(data *[]byte) error {
	var bus uint32
	if err := decodeArgs(data, &bus); err != nil {
		return err
	}
	return withAdapter(bus, (*SPIAdapter).End)
}

// handleSPIBeginTransaction applies new settings
// Format: spi_begin_transaction bus=%c rate=%u bit_order=%c mode=%c
func handleSPIBeginTransaction(data *[]byte) error {
	var bus, rate, order, mode uint32
	if err := decodeArgs(data, &bus, &rate, &order, &mode); err != nil {
		return err
	}
	if order > 0xFF {
		return sendSPIStatus(bus, ErrInvalidBitOrder)
	}
	if mode > 0xFF {
		return sendSPIStatus(bus, ErrInvalidMode)
	}
	return withAdapter(bus, func(a *SPIAdapter) error {
		return a.BeginTransaction(NewSPISettings(rate, BitOrder(order), SPIMode(mode)))
	})
}

// Format: spi_end_transaction bus=%c
func handleSPIEndTransaction(data *[]byte) error {
	var bus uint32
	if err := decodeArgs(data, &bus); err != nil {
		return err
	}
	return withAdapter(bus, (*SPIAdapter).EndTransaction)
}

// Format: spi_set_bit_order bus=%c bit_order=%c
func handleSPISetBitOrder(data *[]byte) error {
	var bus, order uint32
	if err := decodeArgs(data, &bus, &order); err != nil {
		return err
	}
	return withAdapter(bus, func(a *SPIAdapter) error {
		if order > 0xFF {
			return ErrInvalidBitOrder
		}
		return a.SetBitOrder(BitOrder(order))
	})
}

// Format: spi_set_data_mode bus=%c mode=%c
func handleSPISetDataMode(data *[]byte) error {
	var bus, mode uint32
	if err := decodeArgs(data, &bus, &mode); err != nil {
		return err
	}
	return withAdapter(bus, func(a *SPIAdapter) error {
		if mode > 0xFF {
			return ErrInvalidMode
		}
		return a.SetDataMode(SPIMode(mode))
	})
}

// Format: spi_set_clock_divider bus=%c divider=%c
func handleSPISetClockDivider(data *[]byte) error {
	var bus, div uint32
	if err := decodeArgs(data, &bus, &div); err != nil {
		return err
	}
	return withAdapter(bus, func(a *SPIAdapter) error {
		a.SetClockDivider(uint8(div))
		return nil
	})
}

// Format: spi_query bus=%c
func handleSPIQuery(data *[]byte) error {
	var bus uint32
	if err := decodeArgs(data, &bus); err != nil {
		return err
	}
	return sendSPIStatus(bus, nil)
}

// handleSPITransfer exchanges the payload in place, byte by byte
// Format: spi_transfer bus=%c data=%*s
// Response: spi_transfer_response bus=%c result=%c response=%*s
func handleSPITransfer(data *[]byte) error {
	var bus uint32
	if err := decodeArgs(data, &bus); err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	// Copy out of the receive buffer before transferring in place
	buf := make([]byte, len(payload))
	copy(buf, payload)

	a, err := lookupAdapter(bus)
	if err == nil {
		if len(buf) > SPITransferMax {
			err = ErrBufferLength
		} else {
			err = a.TransferBuffer(buf)
		}
	}
	if err != nil {
		// Observable result of a failed transfer is all zeros
		clear(buf)
	}

	return SendResponse("spi_transfer_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, bus)
		protocol.EncodeVLQUint(output, uint32(ResultCode(err)))
		protocol.EncodeVLQBytes(output, buf)
	})
}

// handleSPITransfer16 exchanges one 16-bit frame
// Format: spi_transfer16 bus=%c value=%hu
// Response: spi_transfer16_response bus=%c result=%c value=%hu
func handleSPITransfer16(data *[]byte) error {
	var bus, value uint32
	if err := decodeArgs(data, &bus, &value); err != nil {
		return err
	}

	var rx uint16
	a, err := lookupAdapter(bus)
	if err == nil && value > 0xFFFF {
		err = ErrValueRange
	}
	if err == nil {
		rx, err = a.Transfer16(uint16(value))
	}

	return SendResponse("spi_transfer16_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, bus)
		protocol.EncodeVLQUint(output, uint32(ResultCode(err)))
		protocol.EncodeVLQUint(output, uint32(rx))
	})
}

// ShutdownSPI ends every adapter owned by the command layer
func ShutdownSPI() {
	for _, a := range spiAdapters {
		if err := a.End(); err != nil {
			DebugPrintln("[SPI] shutdown spi" + itoa(int(a.Bus())) + ": " + err.Error())
		}
	}
}
