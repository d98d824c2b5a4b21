// Package mcu is the host-side client for picospi firmware
package mcu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"picospi/host/serial"
	"picospi/protocol"
)

// Message IDs fixed by the firmware before the dictionary is known
const (
	identifyResponseID = 0
	identifyID         = 1
	identifyChunk      = 40
)

var (
	ErrNotConnected     = errors.New("not connected to MCU")
	ErrNoDictionary     = errors.New("dictionary not loaded")
	ErrUnknownMessage   = errors.New("message not in dictionary")
	ErrUnexpectedOffset = errors.New("identify offset mismatch")
)

// MCU is a connection to a picospi board
type MCU struct {
	mu sync.Mutex // One request in flight

	transport *protocol.HostTransport
	logger    *slog.Logger
	timeout   time.Duration

	dictionary     *Dictionary
	dictionaryData []byte
	commandIDs     map[string]uint16
	responseNames  map[uint16]string
}

// Dictionary is the parsed firmware data dictionary
type Dictionary struct {
	Version      string                    `json:"version"`
	MCU          string                    `json:"mcu"`
	Config       map[string]string         `json:"config"`
	Commands     map[string]int            `json:"commands"`
	Responses    map[string]int            `json:"responses"`
	Enumerations map[string]map[string]int `json:"enumerations,omitempty"`
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU(logger *slog.Logger) *MCU {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCU{
		logger:  logger,
		timeout: time.Second,
	}
}

// SetTimeout sets how long a request waits for its response
func (m *MCU) SetTimeout(d time.Duration) {
	m.timeout = d
}

// Connect opens a serial device with default settings
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the serial port described by cfg
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	m.logger.Info("connected", "device", cfg.Device, "baud", cfg.Baud)
	m.Attach(port)
	return nil
}

// Attach runs the protocol over an already open stream
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.transport == nil {
		return nil
	}
	err := m.transport.Close()
	m.transport = nil
	return err
}

// IsConnected returns whether a transport is attached
func (m *MCU) IsConnected() bool {
	return m.transport != nil
}

// RetrieveDictionary downloads and parses the data dictionary
func (m *MCU) RetrieveDictionary() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transport == nil {
		return ErrNotConnected
	}
	m.transport.Drain()

	var dictBuffer bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := m.sendIdentify(offset)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}
		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(dictBuffer.Bytes(), dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	m.setDictionary(dict, dictBuffer.Bytes())
	m.logger.Info("dictionary loaded",
		"bytes", dictBuffer.Len(),
		"version", dict.Version,
		"commands", len(dict.Commands),
		"responses", len(dict.Responses))
	return nil
}

func (m *MCU) setDictionary(dict *Dictionary, raw []byte) {
	m.dictionary = dict
	m.dictionaryData = raw
	m.commandIDs = make(map[string]uint16, len(dict.Commands))
	for msg, id := range dict.Commands {
		m.commandIDs[messageName(msg)] = uint16(id)
	}
	m.responseNames = make(map[uint16]string, len(dict.Responses))
	for msg, id := range dict.Responses {
		m.responseNames[uint16(id)] = messageName(msg)
	}
}

// messageName strips the argument format from a dictionary key
func messageName(msg string) string {
	name, _, _ := strings.Cut(msg, " ")
	return name
}

// sendIdentify requests one dictionary chunk
func (m *MCU) sendIdentify(offset uint32) ([]byte, error) {
	err := m.transport.SendCommand(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, identifyChunk)
	})
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.timeout)
	for {
		resp, err := m.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		payload := resp.Payload
		cmdID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("decode response ID: %w", err)
		}
		if cmdID != identifyResponseID {
			m.logger.Debug("skipping message during identify", "id", cmdID)
			continue
		}

		respOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("decode offset: %w", err)
		}
		if respOffset != offset {
			return nil, fmt.Errorf("%w: sent %d, got %d", ErrUnexpectedOffset, offset, respOffset)
		}
		return protocol.DecodeVLQBytes(&payload)
	}
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary JSON
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// SendCommand sends a command by name without waiting for a response
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(name, args)
}

func (m *MCU) send(name string, args func(output protocol.OutputBuffer)) error {
	if m.transport == nil {
		return ErrNotConnected
	}
	if m.dictionary == nil {
		return ErrNoDictionary
	}
	cmdID, ok := m.commandIDs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}
	return m.transport.SendCommand(cmdID, args)
}

// Request sends a command and waits for the named response. The returned
// data starts after the response ID. A command_error from the firmware is
// returned as an error.
func (m *MCU) Request(name string, args func(output protocol.OutputBuffer), response string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.send(name, args); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.timeout)
	for {
		resp, err := m.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		payload := resp.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("%s: decode response ID: %w", name, err)
		}

		switch got := m.responseNames[uint16(id)]; got {
		case response:
			return payload, nil
		case "command_error":
			return nil, m.commandError(name, payload)
		default:
			m.logger.Debug("ignoring response", "want", response, "got", got, "id", id)
		}
	}
}
