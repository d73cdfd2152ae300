package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/logring"
	"github.com/nerrad567/avx-core/internal/naming"
	"github.com/nerrad567/avx-core/internal/remote"
	"github.com/nerrad567/avx-core/internal/sequencer"
)

// Default timeouts used when Deps leaves them zero.
const (
	DefaultSlaveTimeout  = 2 * time.Second
	DefaultClientTimeout = 5 * time.Second
	DefaultParallelism   = 8
)

// Deps holds the dependencies required by the controller.
type Deps struct {
	// Version is this controller's semantic version.
	Version string

	// BaseURL is where this controller's API is reachable by others.
	BaseURL string

	Factory *device.Factory
	Naming  naming.Service
	Ring    *logring.Ring

	// SlaveDialer overrides NamingDialer(Naming, Version, HTTP).
	SlaveDialer SlaveDialer

	// ClientDialer reaches registered clients; defaults to HTTP only.
	ClientDialer remote.ClientDialer

	// HTTP is used for device proxies and the default dialers.
	HTTP *http.Client

	// Shutdown receives the device deinitialise hook and the name
	// unregistration hook.
	Shutdown device.ShutdownRegistrar

	SlaveTimeout  time.Duration
	ClientTimeout time.Duration
	Parallelism   int

	Logger  Logger
	Metrics Metrics
	Auditor Auditor
}

// Controller owns local devices, delegates to slaves and broadcasts to clients.
type Controller struct {
	version string
	factory *device.Factory
	naming  naming.Service
	ring    *logring.Ring
	http    *http.Client
	hooks   device.ShutdownRegistrar

	registry    *device.Registry
	objects     *remote.ObjectTable
	resolver    *Resolver
	federation  *Federation
	broadcaster *Broadcaster
	sequencer   *sequencer.Sequencer

	logger  Logger
	auditor Auditor

	mu           sync.RWMutex
	controllerID string
	httpEnabled  bool
}

// New creates a controller with no devices, slaves or clients.
//
// Parameters:
//   - deps: Version and Factory are required; everything else has a default
//
// Returns:
//   - *Controller: Ready for LoadConfig
//   - error: If a required dependency is missing
func New(deps Deps) (*Controller, error) {
	if deps.Version == "" {
		return nil, errors.New("controller: version is required")
	}
	if deps.Factory == nil {
		return nil, errors.New("controller: device factory is required")
	}
	if deps.Naming == nil {
		deps.Naming = naming.NewStatic(nil)
	}
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{}
	}
	if deps.SlaveDialer == nil {
		deps.SlaveDialer = NamingDialer(deps.Naming, deps.Version, deps.HTTP)
	}
	if deps.ClientDialer == nil {
		hd := remote.HTTPClientDialer{HTTP: deps.HTTP}
		deps.ClientDialer = remote.SchemeDialer{"http": hd, "https": hd}
	}
	if deps.SlaveTimeout <= 0 {
		deps.SlaveTimeout = DefaultSlaveTimeout
	}
	if deps.ClientTimeout <= 0 {
		deps.ClientTimeout = DefaultClientTimeout
	}
	if deps.Parallelism <= 0 {
		deps.Parallelism = DefaultParallelism
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Auditor == nil {
		deps.Auditor = noopAuditor{}
	}

	c := &Controller{
		version: deps.Version,
		factory: deps.Factory,
		naming:  deps.Naming,
		ring:    deps.Ring,
		http:    deps.HTTP,
		hooks:   deps.Shutdown,
		logger:  deps.Logger,
		auditor: deps.Auditor,
	}

	c.registry = device.NewRegistry(c)
	c.registry.SetLogger(deps.Logger)
	if deps.Shutdown != nil {
		c.registry.SetShutdown(deps.Shutdown)
	}

	c.objects = remote.NewObjectTable(deps.BaseURL, naming.ControllerName(""))

	c.federation = NewFederation(deps.SlaveDialer, deps.SlaveTimeout)
	c.federation.SetLogger(deps.Logger)
	c.federation.SetAuditor(deps.Auditor)

	c.resolver = NewResolver(c.registry, c.objects, c.federation.Slaves, deps.SlaveTimeout)
	c.resolver.SetLogger(deps.Logger)
	c.resolver.SetMetrics(deps.Metrics)
	c.federation.OnRemove(func(owner string) {
		n := c.resolver.InvalidateOwner(owner)
		c.logger.Debug("invalidated proxies", "owner", owner, "count", n)
	})

	c.broadcaster = NewBroadcaster(deps.ClientDialer, deps.Parallelism, deps.ClientTimeout)
	c.broadcaster.SetLogger(deps.Logger)
	c.broadcaster.SetMetrics(deps.Metrics)
	c.broadcaster.SetAuditor(deps.Auditor)

	c.sequencer = sequencer.New(c)
	c.sequencer.SetLogger(deps.Logger)

	return c, nil
}

// GetVersion returns this controller's version.
func (c *Controller) GetVersion() string { return c.version }

// ControllerID returns the ID set by the controller document, or "".
func (c *Controller) ControllerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.controllerID
}

// SetControllerID changes the controller ID and the owner stamped on
// handles exported from now on.
func (c *Controller) SetControllerID(id string) {
	c.mu.Lock()
	c.controllerID = id
	c.mu.Unlock()
	c.objects.SetOwner(naming.ControllerName(id))
}

// Name returns the name this controller registers under.
func (c *Controller) Name() string {
	return naming.ControllerName(c.ControllerID())
}

// HTTPEnabled reports whether the document enabled the HTTP front-end.
func (c *Controller) HTTPEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpEnabled
}

// SetHTTPEnabled toggles the HTTP front-end.
func (c *Controller) SetHTTPEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpEnabled = enabled
}

// Registry returns the local device registry.
func (c *Controller) Registry() *device.Registry { return c.registry }

// Objects returns the table of exported local devices.
func (c *Controller) Objects() *remote.ObjectTable { return c.objects }

// Federation returns the slave set.
func (c *Controller) Federation() *Federation { return c.federation }

// Resolver returns the proxy resolver.
func (c *Controller) Resolver() *Resolver { return c.resolver }

// Broadcaster returns the client set.
func (c *Controller) Broadcaster() *Broadcaster { return c.broadcaster }

// AddDevice creates a device from desc and registers it.
//
// Returns:
//   - error: device.ErrUnknownDeviceType, device.ErrInvalidDescription,
//     device.ErrDuplicateDeviceID, or an Initialise error for late additions
func (c *Controller) AddDevice(ctx context.Context, desc device.Description) error {
	dev, err := c.factory.Create(desc)
	if err != nil {
		return err
	}
	if err := c.registry.Add(ctx, dev); err != nil {
		return err
	}
	c.auditor.Record(ctx, ActionDeviceAdded, "device", dev.ID(), map[string]any{"type": desc.Type})
	return nil
}

// HasDevice reports whether id is a local device. Slaves are not consulted.
func (c *Controller) HasDevice(id string) bool {
	return c.registry.Has(id)
}

// GetDevice returns a handle for a local device without caching it.
func (c *Controller) GetDevice(id string) (*remote.Handle, error) {
	dev, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return c.objects.Export(dev), nil
}

// ProxyDevice resolves id locally or through a slave. See Resolver.Resolve.
func (c *Controller) ProxyDevice(ctx context.Context, id string) (*remote.Handle, error) {
	return c.resolver.Resolve(ctx, id)
}

// AddSlave federates with the controller registered under controllerID.
func (c *Controller) AddSlave(ctx context.Context, controllerID string) error {
	return c.federation.AddSlave(ctx, controllerID)
}

// RemoveSlave drops a slave and the cached proxies it supplied.
func (c *Controller) RemoveSlave(ctx context.Context, controllerID string) bool {
	return c.federation.RemoveSlave(ctx, controllerID)
}

// RegisterClient adds uri to the broadcast set.
func (c *Controller) RegisterClient(ctx context.Context, uri string) {
	c.broadcaster.Register(ctx, uri)
}

// UnregisterClient removes uri from the broadcast set.
func (c *Controller) UnregisterClient(ctx context.Context, uri string) bool {
	return c.broadcaster.Unregister(ctx, uri)
}

// ShowPowerOnDialogOnClients asks every client to show the power-on dialog.
func (c *Controller) ShowPowerOnDialogOnClients(ctx context.Context) {
	c.broadcaster.Broadcast(ctx, remote.MethodShowPowerOnDialog, nil)
}

// ShowPowerOffDialogOnClients asks every client to show the power-off dialog.
func (c *Controller) ShowPowerOffDialogOnClients(ctx context.Context) {
	c.broadcaster.Broadcast(ctx, remote.MethodShowPowerOffDialog, nil)
}

// HidePowerDialogOnClients asks every client to hide the power dialog.
func (c *Controller) HidePowerDialogOnClients(ctx context.Context) {
	c.broadcaster.Broadcast(ctx, remote.MethodHidePowerDialog, nil)
}

// UpdateOutputMappings pushes mapping to every client.
func (c *Controller) UpdateOutputMappings(ctx context.Context, mapping json.RawMessage) {
	c.broadcaster.Broadcast(ctx, remote.MethodUpdateOutputMappings, mapping)
}

// Sequence queues events on the controller's sequencer.
// It implements device.Dispatcher.
func (c *Controller) Sequence(ctx context.Context, events ...sequencer.Event) error {
	return c.sequencer.Sequence(ctx, events...)
}

// Execute runs one sequenced event. It implements sequencer.Executor.
func (c *Controller) Execute(ctx context.Context, e sequencer.Event) error {
	_, err := c.InvokeDevice(ctx, e.DeviceID, e.Method, e.Args)
	return err
}

// InvokeDevice calls method on the device id, wherever it lives.
//
// Local devices are called directly. Devices owned by a slave are called
// through their handle.
func (c *Controller) InvokeDevice(ctx context.Context, id, method string, args json.RawMessage) (json.RawMessage, error) {
	if dev, err := c.registry.Get(id); err == nil {
		inv, ok := dev.(device.Invoker)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", device.ErrMethodNotSupported, method, id)
		}
		return inv.Invoke(ctx, method, args)
	}

	h, err := c.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return remote.NewDeviceProxy(h, c.http).Invoke(ctx, method, args)
}

// GetLog returns the recent log entries, oldest first.
func (c *Controller) GetLog() []logring.Entry {
	if c.ring == nil {
		return []logring.Entry{}
	}
	return c.ring.Entries()
}

// Initialise initialises every device and starts the sequencer.
// A device failure is fatal and returned.
//
// The sequencer's shutdown hook is registered after the devices' hook, so
// at shutdown it stops before any device is deinitialised.
func (c *Controller) Initialise(ctx context.Context) error {
	if err := c.registry.InitialiseAll(ctx); err != nil {
		return err
	}

	c.sequencer.Start(ctx)
	if c.hooks != nil {
		c.hooks.OnShutdown("sequencer", func(context.Context) error {
			c.sequencer.Stop()
			return nil
		})
	}
	return nil
}

// Serve registers this controller's name with the naming service and
// arranges for it to be withdrawn at shutdown.
func (c *Controller) Serve(ctx context.Context, baseURL string) error {
	name := c.Name()
	c.logger.Info("registering controller", "name", name, "uri", baseURL)

	if err := c.naming.Register(ctx, name, baseURL); err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	if c.hooks != nil {
		c.hooks.OnShutdown("naming", func(ctx context.Context) error {
			return c.naming.Unregister(ctx, name)
		})
	}

	c.auditor.Record(ctx, ActionControllerStarted, "controller", name,
		map[string]any{"uri": baseURL, "version": c.version})
	return nil
}
