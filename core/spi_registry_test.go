package core

import (
	"errors"
	"testing"
)

func TestRegistryClaimRelease(t *testing.T) {
	r := NewSPIRegistry()
	p := &fakePeripheral{}
	m := newFakeMux()

	if err := r.Register(SPI0, p, m); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(SPI0, p, m); !errors.Is(err, ErrBusRegistered) {
		t.Errorf("duplicate Register = %v", err)
	}
	if err := r.Register(SPI1, nil, m); !errors.Is(err, ErrInvalidBus) {
		t.Errorf("nil peripheral = %v", err)
	}

	a, err := r.Claim(SPI0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Bus() != SPI0 {
		t.Errorf("claimed bus %d", a.Bus())
	}
	if _, err := r.Claim(SPI0); !errors.Is(err, ErrBusClaimed) {
		t.Errorf("second Claim = %v", err)
	}
	if _, err := r.Claim(SPI1); !errors.Is(err, ErrBusNotRegistered) {
		t.Errorf("Claim of unregistered bus = %v", err)
	}

	if err := a.Begin(false, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Release(a); err != nil {
		t.Fatal(err)
	}
	if a.Initialized() || p.enabled {
		t.Error("Release did not end the adapter")
	}
	if err := r.Release(a); !errors.Is(err, ErrBusNotRegistered) {
		t.Errorf("double Release = %v", err)
	}

	b, err := r.Claim(SPI0)
	if err != nil {
		t.Fatalf("Claim after Release: %v", err)
	}
	if b == a {
		t.Error("Claim reused the released adapter")
	}
	if b.Settings().Validate() != nil {
		t.Error("fresh adapter has invalid settings")
	}
}

func TestRegistryBusesSorted(t *testing.T) {
	r := NewSPIRegistry()
	for _, bus := range []SPIBusID{SPI1, SPI0} {
		if err := r.Register(bus, &fakePeripheral{}, newFakeMux()); err != nil {
			t.Fatal(err)
		}
	}
	buses := r.Buses()
	if len(buses) != 2 || buses[0] != SPI0 || buses[1] != SPI1 {
		t.Errorf("Buses() = %v", buses)
	}
}

func TestIndependentBuses(t *testing.T) {
	r := NewSPIRegistry()
	p0, p1 := &fakePeripheral{}, &fakePeripheral{}
	_ = r.Register(SPI0, p0, newFakeMux())
	_ = r.Register(SPI1, p1, newFakeMux())

	a0, _ := r.Claim(SPI0)
	a1, _ := r.Claim(SPI1)
	if err := a0.Begin(false, 0); err != nil {
		t.Fatal(err)
	}
	if err := a1.Begin(false, 8); err != nil {
		t.Fatal(err)
	}
	if err := a0.SetBitOrder(LSBFirst); err != nil {
		t.Fatal(err)
	}

	if a1.Settings().BitOrder() != MSBFirst {
		t.Error("settings leaked between buses")
	}
	if err := a0.End(); err != nil {
		t.Fatal(err)
	}
	if !a1.Initialized() {
		t.Error("ending spi0 stopped spi1")
	}
}

func TestMustClaimSPIPanics(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	defer func() {
		if recover() == nil {
			t.Error("MustClaimSPI did not panic for unregistered bus")
		}
	}()
	MustClaimSPI(SPI1)
}
