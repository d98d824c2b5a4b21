package core

import (
	"errors"
	"sync"

	"picospi/protocol"
)

// CommandHandler is a function that handles a command with raw frame data.
// The handler decodes its own arguments from the data pointer.
type CommandHandler func(data *[]byte) error

// Command is a registered message. Responses (MCU -> host) have a nil Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // Argument format for the dictionary (e.g., "bus=%c pin=%u")
	Handler CommandHandler
}

// CommandRegistry holds all registered commands
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command // Indexed by ID
	nameToID map[string]uint16
}

var globalRegistry = NewCommandRegistry()

// ErrUnknownCommand is returned by Dispatch for unregistered IDs and responses
var ErrUnknownCommand = errors.New("unknown command")

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		nameToID: make(map[string]uint16),
	}
}

// RegisterCommand registers a command handler in the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse registers a response message (MCU -> host)
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a command and returns its ID. Registering an existing name
// returns the original ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.nameToID[name] = id
	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered messages
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}
	return cmd.Handler(data)
}

// Commands returns a snapshot of all registered messages ordered by ID
func (r *CommandRegistry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Command, len(r.commands))
	for i, cmd := range r.commands {
		out[i] = *cmd
	}
	return out
}

// DispatchCommand dispatches through the global registry.
// It matches protocol.CommandHandler.
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}

// ResponseSender frames responses to the host; implemented by protocol.Transport
type ResponseSender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) error
}

var globalTransport ResponseSender

// SetGlobalTransport sets the transport used by SendResponse
func SetGlobalTransport(t ResponseSender) {
	globalTransport = t
}

// SendResponse sends a registered response message.
// Without a transport the response is dropped.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) error {
	if globalTransport == nil {
		return nil
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// All responses are registered at init time
		panic("Response not registered: " + responseName)
	}
	return globalTransport.SendCommand(cmd.ID, args)
}
