//go:build rp2040

package main

import (
	"machine"
)

var debugUART *machine.UART

// InitDebugUART starts UART0 at 115200 for core debug output
func InitDebugUART(tx, rx machine.Pin) bool {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       tx,
		RX:       rx,
	})
	if err != nil {
		return false
	}
	debugUART = uart
	DebugPrintln("=== picospi debug UART ===")
	return true
}

// DebugPrintln writes a line to the debug UART
func DebugPrintln(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
