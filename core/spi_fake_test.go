package core

import (
	"errors"

	"picospi/protocol"
)

// fakePeripheral records everything the adapter asks of the controller.
// Received frames come from reply, or loop back the sent frame when nil.
type fakePeripheral struct {
	inits    []uint32
	deinits  int
	formats  []SPIFormat
	sent     []byte
	sent16   []uint16
	bound    []GPIOPin
	enabled  bool
	reply    func(b byte) byte
	reply16  func(w uint16) uint16
	initErr  error
	writeErr error
}

func (p *fakePeripheral) Init(baud uint32) (uint32, error) {
	if p.initErr != nil {
		return 0, p.initErr
	}
	p.inits = append(p.inits, baud)
	p.enabled = true
	return baud - baud%1000, nil
}

func (p *fakePeripheral) Deinit() error {
	p.deinits++
	p.enabled = false
	return nil
}

func (p *fakePeripheral) SetFormat(format SPIFormat) error {
	p.formats = append(p.formats, format)
	return nil
}

func (p *fakePeripheral) WriteRead(w, r []byte) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	if !p.enabled {
		return errors.New("write to disabled peripheral")
	}
	for i, b := range w {
		p.sent = append(p.sent, b)
		if p.reply != nil {
			r[i] = p.reply(b)
		} else {
			r[i] = b
		}
	}
	return nil
}

func (p *fakePeripheral) WriteRead16(w, r []uint16) error {
	if !p.enabled {
		return errors.New("write to disabled peripheral")
	}
	for i, v := range w {
		p.sent16 = append(p.sent16, v)
		if p.reply16 != nil {
			r[i] = p.reply16(v)
		} else {
			r[i] = v
		}
	}
	return nil
}

func (p *fakePeripheral) BindPins(rx, cs, sck, tx GPIOPin) error {
	p.bound = []GPIOPin{rx, cs, sck, tx}
	return nil
}

func (p *fakePeripheral) transfers() int {
	return len(p.sent) + len(p.sent16)
}

// fakeMux remembers the last function set on each pin. Routing failPin to
// SPI fails when failSPI is set.
type fakeMux struct {
	funcs   map[GPIOPin]PinFunction
	failSPI bool
	failPin GPIOPin
}

func newFakeMux() *fakeMux {
	return &fakeMux{funcs: make(map[GPIOPin]PinFunction)}
}

func (m *fakeMux) SetFunction(pin GPIOPin, fn PinFunction) error {
	if m.failSPI && fn == PinFuncSPI && pin == m.failPin {
		return errors.New("mux fault")
	}
	m.funcs[pin] = fn
	return nil
}

func newTestAdapter(bus SPIBusID) (*SPIAdapter, *fakePeripheral, *fakeMux) {
	p := &fakePeripheral{}
	m := newFakeMux()
	return newSPIAdapter(bus, p, m), p, m
}

// fakeSender captures responses instead of framing them
type fakeSender struct {
	ids  []uint16
	args [][]byte
}

func (s *fakeSender) SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) error {
	out := protocol.NewScratchOutput()
	if args != nil {
		args(out)
	}
	s.ids = append(s.ids, cmdID)
	s.args = append(s.args, append([]byte(nil), out.Result()...))
	return nil
}

// last decodes the VLQ integers of the most recent response
func (s *fakeSender) last(n int) []uint32 {
	if len(s.args) == 0 {
		return nil
	}
	data := s.args[len(s.args)-1]
	values := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		v, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			break
		}
		values = append(values, v)
	}
	return values
}

// resetGlobals restores package state shared between tests
func resetGlobals() {
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	spiRegistry = NewSPIRegistry()
	spiAdapters = make(map[SPIBusID]*SPIAdapter)
	globalTransport = nil
	ClearSPITrace()
}
