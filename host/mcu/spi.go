package mcu

import (
	"fmt"
	"strconv"

	"picospi/core"
	"picospi/protocol"
)

// pinNotRouted is reported in spi_status when Begin has not routed a group
const pinNotRouted = 0xFF

// Status mirrors the firmware's spi_status response
type Status struct {
	Bus         core.SPIBusID
	Initialized bool
	ClockHz     uint32
	BitOrder    core.BitOrder
	Mode        core.SPIMode
	Baud        uint32 // Rate achieved by the peripheral
	Pin         core.GPIOPin
	PinRouted   bool
	HardwareCS  bool
}

// Settings returns the transaction settings the bus reported
func (s Status) Settings() core.SPISettings {
	return core.NewSPISettings(s.ClockHz, s.BitOrder, s.Mode)
}

func (s Status) String() string {
	pin := "none"
	if s.PinRouted {
		pin = fmt.Sprintf("gpio%d", s.Pin)
	}
	return fmt.Sprintf("spi%d initialized=%t clock=%d order=%s mode=%d baud=%d pin=%s hw_cs=%t",
		s.Bus, s.Initialized, s.ClockHz, s.BitOrder, s.Mode, s.Baud, pin, s.HardwareCS)
}

func decodeUints(data *[]byte, values ...*uint32) error {
	for _, v := range values {
		n, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*v = n
	}
	return nil
}

// resultError maps a firmware result code to a core error
func resultError(bus uint32, result uint32) error {
	if err := core.ResultError(uint8(result)); err != nil {
		return fmt.Errorf("spi%d: %w", bus, err)
	}
	return nil
}

func (m *MCU) commandError(name string, payload []byte) error {
	var cmdID, result uint32
	if err := decodeUints(&payload, &cmdID, &result); err != nil {
		return fmt.Errorf("%s: decode command_error: %w", name, err)
	}
	return fmt.Errorf("%s failed: %w", name, core.ResultError(uint8(result)))
}

// statusRequest sends a command answered by spi_status
func (m *MCU) statusRequest(name string, bus core.SPIBusID, args ...uint32) (Status, error) {
	payload, err := m.Request(name, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(bus))
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	}, "spi_status")
	if err != nil {
		return Status{}, err
	}

	var rbus, result, initialized, rate, order, mode, baud, pin, hwCS uint32
	if err := decodeUints(&payload, &rbus, &result, &initialized, &rate, &order, &mode, &baud, &pin, &hwCS); err != nil {
		return Status{}, fmt.Errorf("%s: decode spi_status: %w", name, err)
	}
	st := Status{
		Bus:         core.SPIBusID(rbus),
		Initialized: initialized != 0,
		ClockHz:     rate,
		BitOrder:    core.BitOrder(order),
		Mode:        core.SPIMode(mode),
		Baud:        baud,
		Pin:         core.GPIOPin(pin),
		PinRouted:   pin != pinNotRouted,
		HardwareCS:  hwCS != 0,
	}
	return st, resultError(rbus, result)
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Begin routes the pin group starting at pin and starts the bus
func (m *MCU) Begin(bus core.SPIBusID, hwCS bool, pin core.GPIOPin) (Status, error) {
	return m.statusRequest("spi_begin", bus, boolArg(hwCS), uint32(pin))
}

// End releases the pins and stops the bus
func (m *MCU) End(bus core.SPIBusID) (Status, error) {
	return m.statusRequest("spi_end", bus)
}

// BeginTransaction applies settings to the bus
func (m *MCU) BeginTransaction(bus core.SPIBusID, s core.SPISettings) (Status, error) {
	return m.statusRequest("spi_begin_transaction", bus, s.ClockHz(), uint32(s.BitOrder()), uint32(s.DataMode()))
}

// EndTransaction stops the bus
func (m *MCU) EndTransaction(bus core.SPIBusID) (Status, error) {
	return m.statusRequest("spi_end_transaction", bus)
}

// SetBitOrder changes the bit order and restarts the transaction
func (m *MCU) SetBitOrder(bus core.SPIBusID, order core.BitOrder) (Status, error) {
	return m.statusRequest("spi_set_bit_order", bus, uint32(order))
}

// SetDataMode changes the mode and restarts the transaction
func (m *MCU) SetDataMode(bus core.SPIBusID, mode core.SPIMode) (Status, error) {
	return m.statusRequest("spi_set_data_mode", bus, uint32(mode))
}

// SetClockDivider is accepted by the firmware and has no effect
func (m *MCU) SetClockDivider(bus core.SPIBusID, div uint8) (Status, error) {
	return m.statusRequest("spi_set_clock_divider", bus, uint32(div))
}

// Query reports the bus state
func (m *MCU) Query(bus core.SPIBusID) (Status, error) {
	return m.statusRequest("spi_query", bus)
}

// maxTransfer returns SPI_TRANSFER_MAX from the dictionary
func (m *MCU) maxTransfer() int {
	if m.dictionary != nil {
		if v, err := strconv.Atoi(m.dictionary.Config["SPI_TRANSFER_MAX"]); err == nil && v > 0 {
			return v
		}
	}
	return core.SPITransferMax
}

// Transfer exchanges data byte by byte and returns the received bytes.
// Payloads longer than one frame are split.
func (m *MCU) Transfer(bus core.SPIBusID, data []byte) ([]byte, error) {
	limit := m.maxTransfer()
	out := make([]byte, 0, len(data))
	for start := 0; ; start += limit {
		end := min(start+limit, len(data))
		rx, err := m.transferChunk(bus, data[start:end])
		out = append(out, rx...)
		if err != nil {
			return out, err
		}
		if end == len(data) {
			break
		}
	}
	return out, nil
}

func (m *MCU) transferChunk(bus core.SPIBusID, chunk []byte) ([]byte, error) {
	payload, err := m.Request("spi_transfer", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(bus))
		protocol.EncodeVLQBytes(output, chunk)
	}, "spi_transfer_response")
	if err != nil {
		return nil, err
	}

	var rbus, result uint32
	if err := decodeUints(&payload, &rbus, &result); err != nil {
		return nil, fmt.Errorf("decode spi_transfer_response: %w", err)
	}
	rx, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("decode spi_transfer_response data: %w", err)
	}
	return append([]byte(nil), rx...), resultError(rbus, result)
}

// Transfer16 exchanges one 16-bit frame
func (m *MCU) Transfer16(bus core.SPIBusID, value uint16) (uint16, error) {
	payload, err := m.Request("spi_transfer16", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(bus))
		protocol.EncodeVLQUint(output, uint32(value))
	}, "spi_transfer16_response")
	if err != nil {
		return 0, err
	}

	var rbus, result, rx uint32
	if err := decodeUints(&payload, &rbus, &result, &rx); err != nil {
		return 0, fmt.Errorf("decode spi_transfer16_response: %w", err)
	}
	return uint16(rx), resultError(rbus, result)
}
