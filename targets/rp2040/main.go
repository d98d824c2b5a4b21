//go:build rp2040

package main

import (
	"machine"
	"time"

	"picospi/core"
	"picospi/protocol"
)

// usbLink carries protocol frames between USB CDC and the command transport
type usbLink struct {
	in        *protocol.FifoBuffer
	out       *protocol.ScratchOutput
	transport *protocol.Transport

	received uint32
	sent     uint32
	errors   uint32
	failures uint32 // consecutive write failures
	hostGone bool   // set after repeated write failures
}

func newUSBLink() *usbLink {
	l := &usbLink{
		in:  protocol.NewFifoBuffer(256),
		out: protocol.NewScratchOutput(),
	}
	l.transport = protocol.NewTransport(l.out, core.DispatchCommand)
	l.transport.SetErrorHandler(core.ReportCommandError)
	return l
}

func main() {
	// Clear any watchdog state left over from a previous run
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	cfg := GetConfig()

	if cfg.DebugUART && InitDebugUART(cfg.DebugTX, cfg.DebugRX) {
		core.SetDebugWriter(DebugPrintln)
		core.SetDebugEnabled(true)
		core.InitAsyncDebug()
	}

	core.SetGPIODriver(NewRPGPIODriver())
	registerBuses(cfg)

	// identify_response and identify must be registered first
	core.InitCoreCommands()
	core.InitSPICommands()
	core.RegisterConstant("MCU", "rp2040")

	link := newUSBLink()
	core.SetGlobalTransport(link.transport)

	go link.readLoop()
	for {
		link.step()
		time.Sleep(10 * time.Microsecond)
	}
}

// registerBuses builds the configured backend for each controller
func registerBuses(cfg FirmwareConfig) {
	for _, bus := range []core.SPIBusID{core.SPI0, core.SPI1} {
		busCfg, ok := cfg.Buses[bus]
		if !ok {
			continue
		}
		name := "spi" + itoa(int(bus))
		periph, mux, err := newBusPeripheral(bus, busCfg, core.MustGPIO())
		if err != nil {
			core.DebugPrintln("[SPI] " + name + " backend: " + err.Error())
			continue
		}
		if err := core.RegisterSPIBus(bus, periph, mux); err != nil {
			core.DebugPrintln("[SPI] register " + name + ": " + err.Error())
		}
	}
}

// step decodes buffered input and flushes any responses. A panic in a
// handler drops both buffers and the loop carries on.
func (l *usbLink) step() {
	defer func() {
		if r := recover(); r != nil {
			l.errors++
			l.in.Reset()
			l.out.Reset()
		}
	}()

	if l.in.Available() > 0 {
		data := l.in.Data()
		frames := protocol.NewSliceInputBuffer(data)
		l.transport.Receive(frames)
		l.received++
		if consumed := len(data) - frames.Available(); consumed > 0 {
			l.in.Pop(consumed)
		}
	}

	if len(l.out.Result()) > 0 {
		l.flush()
	}
}

// readLoop moves bytes from USB into the input FIFO. It restarts itself
// after a panic.
func (l *usbLink) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			l.errors++
			time.Sleep(100 * time.Millisecond)
			go l.readLoop()
		}
	}()

	for {
		if USBAvailable() == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		b, err := USBRead()
		if err != nil {
			l.errors++
			time.Sleep(time.Millisecond)
			continue
		}
		if l.hostGone {
			l.newSession()
		}
		if l.in.Write([]byte{b}) == 0 {
			l.errors++
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// newSession drops all state from the previous host connection,
// including open SPI buses
func (l *usbLink) newSession() {
	core.DebugPrintln("[USB] new session after rx=" + itoa(int(l.received)) +
		" tx=" + itoa(int(l.sent)) + " errors=" + itoa(int(l.errors)))
	l.hostGone = false
	l.in.Reset()
	l.out.Reset()
	l.transport.Reset()
	core.ResetFirmwareState()
	l.received, l.sent, l.failures = 0, 0, 0
}

// flush writes the output buffer. More than ten failed writes in a row
// mark the host as gone.
func (l *usbLink) flush() {
	result := l.out.Result()
	for written := 0; written < len(result); {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			l.failures++
			if l.failures > 10 {
				l.hostGone = true
				l.failures = 0
				l.out.Reset()
				l.in.Reset()
			}
			return
		}
		written += n
	}
	l.failures = 0
	l.sent++
	l.out.Reset()
}

func itoa(i int) string {
	if i < 0 {
		return "-" + itoa(-i)
	}
	var buf [20]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
		if i == 0 {
			return string(buf[pos:])
		}
	}
}
