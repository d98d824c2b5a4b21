package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"picospi/core"
	"picospi/host/config"
	"picospi/host/mcu"
)

// spiClient is the part of *mcu.MCU the shell drives
type spiClient interface {
	Begin(bus core.SPIBusID, hwCS bool, pin core.GPIOPin) (mcu.Status, error)
	End(bus core.SPIBusID) (mcu.Status, error)
	BeginTransaction(bus core.SPIBusID, s core.SPISettings) (mcu.Status, error)
	EndTransaction(bus core.SPIBusID) (mcu.Status, error)
	SetBitOrder(bus core.SPIBusID, order core.BitOrder) (mcu.Status, error)
	SetDataMode(bus core.SPIBusID, mode core.SPIMode) (mcu.Status, error)
	SetClockDivider(bus core.SPIBusID, div uint8) (mcu.Status, error)
	Query(bus core.SPIBusID) (mcu.Status, error)
	Transfer(bus core.SPIBusID, data []byte) ([]byte, error)
	Transfer16(bus core.SPIBusID, value uint16) (uint16, error)
	GetDictionary() *mcu.Dictionary
	GetDictionaryRaw() []byte
}

var errQuit = errors.New("quit")

type shell struct {
	client spiClient
	out    io.Writer
	logger *slog.Logger
}

type shellCommand struct {
	usage string
	help  string
	run   func(s *shell, args []string) error
}

var shellCommands map[string]shellCommand

func init() {
	shellCommands = map[string]shellCommand{
		"help":        {"help", "Show this help", (*shell).cmdHelp},
		"quit":        {"quit", "Exit", func(*shell, []string) error { return errQuit }},
		"dict":        {"dict", "Print dictionary summary", (*shell).cmdDict},
		"raw":         {"raw", "Print raw dictionary JSON", (*shell).cmdRaw},
		"begin":       {"begin BUS PIN [hw_cs]", "Route the pin group at PIN and start the bus", (*shell).cmdBegin},
		"end":         {"end BUS", "Stop the bus and release its pins", (*shell).cmdEnd},
		"transaction": {"transaction BUS HZ msb|lsb MODE", "Apply transaction settings", (*shell).cmdTransaction},
		"endtx":       {"endtx BUS", "End the transaction", (*shell).cmdEndTransaction},
		"order":       {"order BUS msb|lsb", "Set the bit order", (*shell).cmdOrder},
		"mode":        {"mode BUS MODE", "Set the data mode (0-3)", (*shell).cmdMode},
		"divider":     {"divider BUS DIV", "Set the clock divider (no effect)", (*shell).cmdDivider},
		"query":       {"query BUS", "Show bus status", (*shell).cmdQuery},
		"transfer":    {"transfer BUS BYTE...", "Exchange bytes, e.g. transfer 0 0x9f 0 0", (*shell).cmdTransfer},
		"transfer16":  {"transfer16 BUS WORD", "Exchange one 16-bit frame", (*shell).cmdTransfer16},
	}
}

// run reads lines from in until EOF or quit
func (s *shell) run(in io.Reader, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(s.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := s.exec(scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// exec runs a single command line
func (s *shell) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	switch name {
	case "exit", "q":
		name = "quit"
	case "?":
		name = "help"
	}
	cmd, ok := shellCommands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (type 'help')", args[0])
	}
	s.logger.Debug("shell command", "cmd", name, "args", args[1:])
	return cmd.run(s, args[1:])
}

func (s *shell) cmdHelp([]string) error {
	names := make([]string, 0, len(shellCommands))
	for name := range shellCommands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := shellCommands[name]
		fmt.Fprintf(s.out, "  %-34s %s\n", c.usage, c.help)
	}
	return nil
}

func (s *shell) cmdDict([]string) error {
	dict := s.client.GetDictionary()
	if dict == nil {
		return mcu.ErrNoDictionary
	}
	fmt.Fprintf(s.out, "version=%s mcu=%s commands=%d responses=%d\n",
		dict.Version, dict.MCU, len(dict.Commands), len(dict.Responses))
	for k, v := range dict.Config {
		fmt.Fprintf(s.out, "  %s=%s\n", k, v)
	}
	return nil
}

func (s *shell) cmdRaw([]string) error {
	fmt.Fprintf(s.out, "%s\n", s.client.GetDictionaryRaw())
	return nil
}

func (s *shell) printStatus(st mcu.Status, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, st)
	return nil
}

func (s *shell) cmdBegin(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usageError("begin")
	}
	bus, err := parseBus(args[0])
	if err != nil {
		return err
	}
	pin, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	hwCS := len(args) == 3 && strings.EqualFold(args[2], "hw_cs")
	if len(args) == 3 && !hwCS {
		return usageError("begin")
	}
	return s.printStatus(s.client.Begin(bus, hwCS, core.GPIOPin(pin)))
}

func (s *shell) cmdEnd(args []string) error {
	bus, err := busOnly("end", args)
	if err != nil {
		return err
	}
	return s.printStatus(s.client.End(bus))
}

func (s *shell) cmdTransaction(args []string) error {
	if len(args) != 4 {
		return usageError("transaction")
	}
	bus, err := parseBus(args[0])
	if err != nil {
		return err
	}
	hz, err := parseUint(args[1], 32)
	if err != nil {
		return err
	}
	order, err := config.ParseBitOrder(args[2])
	if err != nil {
		return err
	}
	mode, err := parseUint(args[3], 8)
	if err != nil {
		return err
	}
	settings := core.NewSPISettings(uint32(hz), order, core.SPIMode(mode))
	return s.printStatus(s.client.BeginTransaction(bus, settings))
}

func (s *shell) cmdEndTransaction(args []string) error {
	bus, err := busOnly("endtx", args)
	if err != nil {
		return err
	}
	return s.printStatus(s.client.EndTransaction(bus))
}

func (s *shell) cmdOrder(args []string) error {
	if len(args) != 2 {
		return usageError("order")
	}
	bus, err := parseBus(args[0])
	if err != nil {
		return err
	}
	order, err := config.ParseBitOrder(args[1])
	if err != nil {
		return err
	}
	return s.printStatus(s.client.SetBitOrder(bus, order))
}

func (s *shell) cmdMode(args []string) error {
	if len(args) != 2 {
		return usageError("mode")
	}
	bus, err := parseBus(args[0])
	if err != nil {
		return err
	}
	mode, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	return s.printStatus(s.client.SetDataMode(bus, core.SPIMode(mode)))
}

func (s *shell) cmdDivider(args []string) error {
	if len(args) != 2 {
		return usageError("divider")
	}
	bus, err := parseBus(args[0])
	if err != nil {
		return err
	}
	div, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	return s.printStatus(s.client.SetClockDivider(bus, uint8(div)))
}

func (s *shell) cmdQuery(args []string) error {
	bus, err := busOnly("query", args)
	if err != nil {
		return err
	}
	return s.printStatus(s.client.Query(bus))
}

func (s *shell) cmdTransfer(args []string) error {
	if len(args) < 2 {
		return usageError("transfer")
	}
	bus, err := parseBus(args[0])
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(args)-1)
	for _, a := range args[1:] {
		b, err := parseUint(a, 8)
		if err != nil {
			return err
		}
		data = append(data, byte(b))
	}
	rx, err := s.client.Transfer(bus, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "tx: % X\nrx: % X\n", data, rx)
	return nil
}

func (s *shell) cmdTransfer16(args []string) error {
	if len(args) != 2 {
		return usageError("transfer16")
	}
	bus, err := parseBus(args[0])
	if err != nil {
		return err
	}
	v, err := parseUint(args[1], 16)
	if err != nil {
		return err
	}
	rx, err := s.client.Transfer16(bus, uint16(v))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "tx: 0x%04X\nrx: 0x%04X\n", v, rx)
	return nil
}

func usageError(name string) error {
	return fmt.Errorf("usage: %s", shellCommands[name].usage)
}

func busOnly(name string, args []string) (core.SPIBusID, error) {
	if len(args) != 1 {
		return 0, usageError(name)
	}
	return parseBus(args[0])
}

// parseBus accepts "0", "1", "spi0" or "spi1"
func parseBus(s string) (core.SPIBusID, error) {
	n, err := parseUint(strings.TrimPrefix(strings.ToLower(s), "spi"), 8)
	if err != nil {
		return 0, err
	}
	if n > uint64(core.SPI1) {
		return 0, fmt.Errorf("%w: %s", core.ErrInvalidBus, s)
	}
	return core.SPIBusID(n), nil
}

// parseUint accepts decimal, 0x hex or 0b binary
func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}
