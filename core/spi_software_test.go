package core

import (
	"errors"
	"testing"
	"time"
)

// loopbackGPIO ties MISO to MOSI and counts clock edges
type loopbackGPIO struct {
	levels     map[GPIOPin]bool
	outputs    map[GPIOPin]bool
	mosi, miso GPIOPin
	sck        GPIOPin
	edges      int
}

func newLoopbackGPIO(miso, sck, mosi GPIOPin) *loopbackGPIO {
	return &loopbackGPIO{
		levels:  make(map[GPIOPin]bool),
		outputs: make(map[GPIOPin]bool),
		miso:    miso,
		sck:     sck,
		mosi:    mosi,
	}
}

func (g *loopbackGPIO) ConfigureOutput(pin GPIOPin) error {
	g.outputs[pin] = true
	return nil
}

func (g *loopbackGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	g.levels[pin] = true
	return nil
}

func (g *loopbackGPIO) SetPin(pin GPIOPin, value bool) error {
	if !g.outputs[pin] {
		return errors.New("pin not an output")
	}
	if pin == g.sck && g.levels[pin] != value {
		g.edges++
	}
	g.levels[pin] = value
	return nil
}

func (g *loopbackGPIO) GetPin(pin GPIOPin) (bool, error) {
	if pin == g.miso {
		return g.levels[g.mosi], nil
	}
	return g.levels[pin], nil
}

func newTestSoftwareSPI() (*SoftwareSPI, *loopbackGPIO) {
	g := newLoopbackGPIO(16, 18, 19)
	s := NewSoftwareSPI(g)
	s.Sleep = func(time.Duration) {}
	return s, g
}

func TestSoftwareSPIRequiresPins(t *testing.T) {
	s, _ := newTestSoftwareSPI()
	if _, err := s.Init(1000000); !errors.Is(err, ErrPinsNotBound) {
		t.Errorf("Init before BindPins = %v", err)
	}
	if err := s.WriteRead([]byte{1}, make([]byte, 1)); err == nil {
		t.Error("WriteRead on disabled backend succeeded")
	}
}

func TestSoftwareSPIBaud(t *testing.T) {
	s, _ := newTestSoftwareSPI()
	if err := s.BindPins(16, 17, 18, 19); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		req, want uint32
	}{
		{1000000, 1000000},
		{4000000, 4000000},
		{3000000, 3012048}, // 166ns half period
		{1000000000, 500000000},
	}
	for _, tt := range tests {
		got, err := s.Init(tt.req)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Init(%d) = %d, want %d", tt.req, got, tt.want)
		}
	}
	if _, err := s.Init(0); !errors.Is(err, ErrInvalidClock) {
		t.Errorf("Init(0) = %v", err)
	}
}

func TestSoftwareSPILoopback(t *testing.T) {
	for mode := Mode0; mode <= Mode3; mode++ {
		s, g := newTestSoftwareSPI()
		if err := s.BindPins(16, 17, 18, 19); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Init(1000000); err != nil {
			t.Fatal(err)
		}
		pol, phase, _ := mode.Format()
		if err := s.SetFormat(SPIFormat{DataBits: 8, Polarity: pol, Phase: phase}); err != nil {
			t.Fatal(err)
		}

		g.edges = 0
		w := []byte{0x00, 0xA5, 0x3C, 0xFF}
		r := make([]byte, len(w))
		if err := s.WriteRead(w, r); err != nil {
			t.Fatal(err)
		}
		for i := range w {
			if r[i] != w[i] {
				t.Errorf("mode %d: r[%d] = 0x%02X, want 0x%02X", mode, i, r[i], w[i])
			}
		}
		if g.edges != 2*8*len(w) {
			t.Errorf("mode %d: %d clock edges, want %d", mode, g.edges, 2*8*len(w))
		}
		if g.levels[18] != (pol == PolarityHigh) {
			t.Errorf("mode %d: clock did not return to idle", mode)
		}

		w16 := []uint16{0x1234, 0x8001}
		r16 := make([]uint16, 2)
		if err := s.WriteRead16(w16, r16); err != nil {
			t.Fatal(err)
		}
		if r16[0] != w16[0] || r16[1] != w16[1] {
			t.Errorf("mode %d: 16-bit loopback got %04X %04X", mode, r16[0], r16[1])
		}
	}
}

func TestSoftwareSPIFormat(t *testing.T) {
	s, _ := newTestSoftwareSPI()
	if err := s.SetFormat(SPIFormat{DataBits: 12}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("12-bit format = %v", err)
	}
	if err := s.WriteRead([]byte{1, 2}, make([]byte, 1)); !errors.Is(err, ErrBufferLength) {
		t.Errorf("length mismatch = %v", err)
	}
}

func TestAdapterOverSoftwareSPI(t *testing.T) {
	s, _ := newTestSoftwareSPI()
	a := newSPIAdapter(SPI0, s, newFakeMux())

	if err := a.Begin(false, 16); err != nil {
		t.Fatal(err)
	}
	if err := a.BeginTransaction(NewSPISettings(2000000, LSBFirst, Mode3)); err != nil {
		t.Fatal(err)
	}

	got, err := a.Transfer(0x01)
	if err != nil || got != 0x01 {
		t.Errorf("loopback Transfer = 0x%02X, %v", got, err)
	}
	got16, err := a.Transfer16(0x1234)
	if err != nil || got16 != 0x1234 {
		t.Errorf("loopback Transfer16 = 0x%04X, %v", got16, err)
	}

	if err := a.End(); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteRead([]byte{0}, make([]byte, 1)); err == nil {
		t.Error("backend still enabled after End")
	}
}
