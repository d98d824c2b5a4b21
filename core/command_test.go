package core

import (
	"errors"
	"testing"

	"picospi/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	// Register a command
	var called bool
	handler := func(data *[]byte) error {
		called = true
		return nil
	}

	id := registry.Register("test_command", "arg=%u", handler)

	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	// Verify command can be retrieved
	cmd, ok := registry.GetCommand(id)
	if !ok {
		t.Error("Failed to retrieve registered command")
	}

	if cmd.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", cmd.Name)
	}

	// Test dispatch
	var data []byte
	err := registry.Dispatch(id, &data)
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if !called {
		t.Error("Command handler was not called")
	}

	// Test unknown command
	err = registry.Dispatch(999, &data)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}

	// Responses cannot be dispatched
	respID := registry.Register("test_response", "value=%u", nil)
	if err := registry.Dispatch(respID, &data); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Dispatching a response returned %v", err)
	}

	// Re-registering keeps the original ID
	if again := registry.Register("test_command", "other=%c", handler); again != id {
		t.Errorf("Duplicate registration returned ID %d, want %d", again, id)
	}
}

func TestCommandRegistryMultiple(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	id3 := registry.Register("command3", "arg3=%u", func(data *[]byte) error { return nil })

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}

	// Verify all commands exist
	for i := uint16(0); i < 3; i++ {
		if _, ok := registry.GetCommand(i); !ok {
			t.Errorf("Command %d not found", i)
		}
	}
}

func TestCommandSnapshot(t *testing.T) {
	registry := NewCommandRegistry()

	registry.Register("spi_query", "bus=%c", func(data *[]byte) error { return nil })
	registry.Register("spi_status", "bus=%c result=%c", nil)

	cmds := registry.Commands()
	if len(cmds) != 2 || registry.Count() != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(cmds))
	}

	// Snapshot is a copy
	cmds[0].Name = "changed"
	if cmd, _ := registry.GetCommand(0); cmd.Name != "spi_query" {
		t.Error("Snapshot aliases registry storage")
	}

	for _, cmd := range cmds {
		t.Logf("%d: %s %s", cmd.ID, cmd.Name, cmd.Format)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var receivedValue uint32

	handler := func(data *[]byte) error {
		val, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		receivedValue = val
		return nil
	}

	id := registry.Register("test_args", "value=%u", handler)

	// Create test data
	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	err := registry.Dispatch(id, &data)
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if receivedValue != 12345 {
		t.Errorf("Expected value 12345, got %d", receivedValue)
	}
}

func TestSendResponse(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	RegisterResponse("spi_transfer16_response", "bus=%c result=%c value=%hu")

	// Dropped without a transport
	if err := SendResponse("spi_transfer16_response", nil); err != nil {
		t.Errorf("SendResponse without transport: %v", err)
	}

	sender := &fakeSender{}
	SetGlobalTransport(sender)
	err := SendResponse("spi_transfer16_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, 1)
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, 0xBEEF)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sender.ids) != 1 || sender.ids[0] != 0 {
		t.Fatalf("Sent IDs %v", sender.ids)
	}
	if v := sender.last(3); v[2] != 0xBEEF {
		t.Errorf("Sent values %v", v)
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unregistered response")
		}
	}()
	_ = SendResponse("no_such_response", nil)
}
