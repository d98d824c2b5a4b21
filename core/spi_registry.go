package core

import (
	"slices"
	"sync"
)

// SPIRegistry owns the SPI controllers and hands out at most one adapter per
// controller at a time
type SPIRegistry struct {
	mu    sync.Mutex
	buses map[SPIBusID]*spiBusSlot
}

type spiBusSlot struct {
	periph  SPIPeripheral
	mux     PinMux
	adapter *SPIAdapter // Non-nil while claimed
}

// NewSPIRegistry creates an empty registry
func NewSPIRegistry() *SPIRegistry {
	return &SPIRegistry{
		buses: make(map[SPIBusID]*spiBusSlot),
	}
}

// Register makes a controller available for claiming.
// Each bus can only be registered once.
func (r *SPIRegistry) Register(bus SPIBusID, periph SPIPeripheral, mux PinMux) error {
	if periph == nil || mux == nil {
		return ErrInvalidBus
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.buses[bus]; exists {
		return ErrBusRegistered
	}
	r.buses[bus] = &spiBusSlot{periph: periph, mux: mux}
	return nil
}

// Claim returns the adapter for bus. A bus stays claimed until Release.
func (r *SPIRegistry) Claim(bus SPIBusID) (*SPIAdapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, exists := r.buses[bus]
	if !exists {
		return nil, ErrBusNotRegistered
	}
	if slot.adapter != nil {
		return nil, ErrBusClaimed
	}
	slot.adapter = newSPIAdapter(bus, slot.periph, slot.mux)
	return slot.adapter, nil
}

// Release ends the adapter and frees its bus for a later Claim.
// The released adapter must not be used again.
func (r *SPIRegistry) Release(a *SPIAdapter) error {
	if a == nil {
		return nil
	}
	r.mu.Lock()
	slot, exists := r.buses[a.bus]
	if !exists || slot.adapter != a {
		r.mu.Unlock()
		return ErrBusNotRegistered
	}
	slot.adapter = nil
	r.mu.Unlock()

	return a.End()
}

// Buses returns the registered bus IDs in ascending order
func (r *SPIRegistry) Buses() []SPIBusID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]SPIBusID, 0, len(r.buses))
	for id := range r.buses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Global registry used by target and command code
var spiRegistry = NewSPIRegistry()

// RegisterSPIBus is called by target-specific code to register a controller
func RegisterSPIBus(bus SPIBusID, periph SPIPeripheral, mux PinMux) error {
	return spiRegistry.Register(bus, periph, mux)
}

// ClaimSPI claims a controller from the global registry
func ClaimSPI(bus SPIBusID) (*SPIAdapter, error) {
	return spiRegistry.Claim(bus)
}

// MustClaimSPI claims a controller or panics if it is missing or taken
func MustClaimSPI(bus SPIBusID) *SPIAdapter {
	a, err := spiRegistry.Claim(bus)
	if err != nil {
		panic("SPI bus " + itoa(int(bus)) + ": " + err.Error())
	}
	return a
}

// ReleaseSPI returns an adapter to the global registry
func ReleaseSPI(a *SPIAdapter) error {
	return spiRegistry.Release(a)
}
