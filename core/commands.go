package core

import (
	"picospi/protocol"
)

// InitCoreCommands registers the protocol bootstrap commands.
// Registration order matters: the host relies on
//
//	identify_response = ID 0
//	identify = ID 1
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s") // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("set_debug", "enable=%c", handleSetDebug)
	RegisterCommand("debug_dump_trace", "", handleDumpTrace)
	RegisterResponse("command_error", "cmd=%hu result=%c")

	RegisterConstant("MCU_PROTOCOL", protocol.Version)
}

// handleIdentify returns chunks of the data dictionary
// Format: identify offset=%u count=%c
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	// Leave room for the response header in one frame
	chunk := GetGlobalDictionary().GetChunk(offset, uint8(min(count, 40)))

	return SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
}

// handleSetDebug toggles debug output
// Format: set_debug enable=%c
func handleSetDebug(data *[]byte) error {
	enable, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	SetDebugEnabled(enable != 0)
	return nil
}

// handleDumpTrace writes the SPI trace ring to the debug writer
// Format: debug_dump_trace
func handleDumpTrace(data *[]byte) error {
	DumpSPITrace()
	return nil
}

// ReportCommandError tells the host a command failed. Installed as the
// transport's error handler by target code.
func ReportCommandError(cmdID uint16, err error) {
	code := ResultCode(err)
	RecordSPIEvent(EvtCommandError, 0, uint32(cmdID), uint32(code))
	DebugPrintln("[CMD] command " + itoa(int(cmdID)) + " failed: " + err.Error())
	_ = SendResponse("command_error", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(cmdID))
		protocol.EncodeVLQUint(output, uint32(code))
	})
}

// ResetFirmwareState ends every adapter held by the command layer.
// Called when the USB host reconnects.
func ResetFirmwareState() {
	ShutdownSPI()
}
