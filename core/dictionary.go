package core

import (
	"sync"

	"picospi/protocol"
)

// Enumeration maps names to their index, e.g. bus names
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary describes the firmware's messages, constants and enumerations
// to the host. It is served in chunks by the identify command.
type Dictionary struct {
	mu           sync.RWMutex
	constants    map[string]string
	enumerations map[string]*Enumeration
	commandReg   *CommandRegistry
	version      string
	mcu          string
	cached       []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a new dictionary
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:    make(map[string]string),
		enumerations: make(map[string]*Enumeration),
		commandReg:   cmdReg,
		version:      "picospi-" + protocol.Version,
		mcu:          "rp2040",
	}
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant registers a constant in the global dictionary
func RegisterConstant(name string, value string) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds a constant. Invalidates the cached dictionary.
func (d *Dictionary) AddConstant(name string, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = value
	d.cached = nil
}

// AddEnumeration adds an enumeration. Invalidates the cached dictionary.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Keep our own copy, the caller may reuse the slice
	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)
	d.enumerations[name] = &Enumeration{Name: name, Values: valuesCopy}
	d.cached = nil
}

// SetMCU sets the MCU name reported to the host
func (d *Dictionary) SetMCU(mcu string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mcu = mcu
	d.cached = nil
}

// Generate returns the JSON dictionary, building it on first use
func (d *Dictionary) Generate() []byte {
	// Snapshot commands before taking our lock so the two locks never nest
	commands := d.commandReg.Commands()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = d.buildJSONLocked(commands)
	}
	return d.cached
}

// buildJSONLocked writes the dictionary by hand to keep encoding/json out
// of the firmware image
func (d *Dictionary) buildJSONLocked(commands []Command) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, `{"version":`...)
	result = appendQuoted(result, d.version)
	result = append(result, `,"mcu":`...)
	result = appendQuoted(result, d.mcu)

	result = append(result, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			result = append(result, ',')
		}
		result = appendQuoted(result, name)
		result = append(result, ':')
		result = appendQuoted(result, d.constants[name])
	}

	result = append(result, `},"commands":{`...)
	result = appendMessages(result, commands, true)
	result = append(result, `},"responses":{`...)
	result = appendMessages(result, commands, false)
	result = append(result, '}')

	if len(d.enumerations) > 0 {
		result = append(result, `,"enumerations":{`...)
		names := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			names = append(names, name)
		}
		sortStrings(names)
		for i, name := range names {
			if i > 0 {
				result = append(result, ',')
			}
			result = appendQuoted(result, name)
			result = append(result, ":{"...)
			first := true
			for idx, value := range d.enumerations[name].Values {
				if value == "" {
					continue
				}
				if !first {
					result = append(result, ',')
				}
				result = appendQuoted(result, value)
				result = append(result, ':')
				result = append(result, itoa(idx)...)
				first = false
			}
			result = append(result, '}')
		}
		result = append(result, '}')
	}

	return append(result, '}')
}

// appendMessages writes "name format":id pairs, commands or responses only
func appendMessages(result []byte, commands []Command, withHandler bool) []byte {
	first := true
	for _, cmd := range commands {
		if (cmd.Handler != nil) != withHandler {
			continue
		}
		if !first {
			result = append(result, ',')
		}
		msg := cmd.Name
		if cmd.Format != "" {
			msg += " " + cmd.Format
		}
		result = appendQuoted(result, msg)
		result = append(result, ':')
		result = append(result, itoa(int(cmd.ID))...)
		first = false
	}
	return result
}

// appendQuoted appends s as a JSON string. Only quotes and backslashes need
// escaping in dictionary content.
func appendQuoted(result []byte, s string) []byte {
	result = append(result, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			result = append(result, '\\')
		}
		result = append(result, s[i])
	}
	return append(result, '"')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// GetChunk returns a copy of up to count bytes starting at offset
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
