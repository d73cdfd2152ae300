package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ShutdownRegistrar accepts hooks to run when the process exits.
type ShutdownRegistrar interface {
	OnShutdown(name string, fn func(context.Context) error)
}

// Registry owns a controller's local devices.
//
// Devices are kept in registration order. InitialiseAll and DeinitialiseAll
// walk that order and each runs its devices at most once.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
	order   []string

	dispatcher Dispatcher
	shutdown   ShutdownRegistrar
	logger     Logger

	initialised bool
	deinitOnce  sync.Once
	deinitErr   error
}

// NewRegistry creates an empty device registry.
// dispatcher is handed to every DispatcherAware device on Add; it may be nil.
func NewRegistry(dispatcher Dispatcher) *Registry {
	return &Registry{
		devices:    make(map[string]Device),
		dispatcher: dispatcher,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetShutdown sets where InitialiseAll registers its DeinitialiseAll hook.
func (r *Registry) SetShutdown(s ShutdownRegistrar) {
	r.shutdown = s
}

// Add registers a device.
//
// If the device implements DispatcherAware it receives the registry's
// dispatcher. A device added after InitialiseAll is initialised immediately;
// if that fails the device is removed again.
//
// Parameters:
//   - ctx: Used only when the device is initialised on add
//   - dev: Device to register
//
// Returns:
//   - error: ErrDuplicateDeviceID if the ID is taken, or the Initialise error
func (r *Registry) Add(ctx context.Context, dev Device) error {
	id := dev.ID()

	r.mu.Lock()
	if _, exists := r.devices[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateDeviceID, id)
	}
	r.devices[id] = dev
	r.order = append(r.order, id)
	late := r.initialised
	r.mu.Unlock()

	if aware, ok := dev.(DispatcherAware); ok && r.dispatcher != nil {
		aware.RegisterDispatcher(r.dispatcher)
	}

	if late {
		if err := dev.Initialise(ctx); err != nil {
			r.remove(id)
			return fmt.Errorf("initialising device %s: %w", id, err)
		}
	}

	r.logger.Debug("device added", "device_id", id, "count", r.Count())
	return nil
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.devices, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the device with the given ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return dev, nil
}

// Has reports whether a device with the given ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// IDs returns the registered device IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// snapshot returns the devices in registration order.
func (r *Registry) snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// InitialiseAll initialises every device in registration order.
//
// Before the first device is touched, a shutdown hook calling DeinitialiseAll
// is registered. The first failure stops the walk and is returned; callers
// treat it as fatal. Subsequent calls are no-ops.
func (r *Registry) InitialiseAll(ctx context.Context) error {
	r.mu.Lock()
	if r.initialised {
		r.mu.Unlock()
		return nil
	}
	r.initialised = true
	r.mu.Unlock()

	if r.shutdown != nil {
		r.shutdown.OnShutdown("devices", r.DeinitialiseAll)
	}

	for _, dev := range r.snapshot() {
		if err := dev.Initialise(ctx); err != nil {
			return fmt.Errorf("initialising device %s: %w", dev.ID(), err)
		}
		r.logger.Debug("device initialised", "device_id", dev.ID())
	}

	r.logger.Info("devices initialised", "count", r.Count())
	return nil
}

// DeinitialiseAll deinitialises every device in registration order.
//
// It runs at most once; later calls return the first call's result. A
// failing device is logged and the walk continues. All failures are joined
// into the returned error.
func (r *Registry) DeinitialiseAll(ctx context.Context) error {
	r.deinitOnce.Do(func() {
		var errs []error
		for _, dev := range r.snapshot() {
			if err := dev.Deinitialise(ctx); err != nil {
				r.logger.Error("device deinitialise failed", "device_id", dev.ID(), "error", err)
				errs = append(errs, fmt.Errorf("deinitialising device %s: %w", dev.ID(), err))
			}
		}
		r.deinitErr = errors.Join(errs...)
		r.logger.Info("devices deinitialised", "count", r.Count(), "failures", len(errs))
	})
	return r.deinitErr
}
