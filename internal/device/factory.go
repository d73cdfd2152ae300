package device

import (
	"fmt"
	"slices"
	"sync"
)

// Constructor builds a device from its description.
type Constructor func(desc Description) (Device, error)

// Factory maps description types to constructors.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Constructor)}
}

// Register binds typ to ctor, replacing any earlier binding.
func (f *Factory) Register(typ string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[typ] = ctor
}

// Types returns the registered type names, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.ctors))
	for typ := range f.ctors {
		out = append(out, typ)
	}
	slices.Sort(out)
	return out
}

// Create builds the device described by desc.
// Returns ErrUnknownDeviceType if no constructor is registered for desc.Type.
func (f *Factory) Create(desc Description) (Device, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[desc.Type]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (device %s)", ErrUnknownDeviceType, desc.Type, desc.DeviceID)
	}

	dev, err := ctor(desc)
	if err != nil {
		return nil, fmt.Errorf("creating %s device %s: %w", desc.Type, desc.DeviceID, err)
	}
	return dev, nil
}
