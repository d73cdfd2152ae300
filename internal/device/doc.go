// Package device provides the local device registry of an AVX controller.
//
// A controller owns a set of devices: AV switches, projectors, screens and
// the like. Each one is built from a Description in the controller document,
// registered under a unique ID, initialised once after every device has been
// loaded and deinitialised once when the process exits.
//
// # Architecture
//
//	controller document ──▶ Factory.Create ──▶ Registry.Add ──▶ InitialiseAll
//	                                               │
//	                                               └─▶ RegisterDispatcher (optional)
//
// # Key Types
//
//   - Device: ID, Initialise and Deinitialise; the minimum every device provides
//   - DispatcherAware: devices that queue events back through the controller
//   - Invoker: devices that accept remote method calls
//   - Registry: ordered, thread-safe map of local devices
//   - Factory: maps description types ("virtual", "bridged") to constructors
//
// # Usage
//
//	factory := device.NewFactory()
//	factory.Register(device.TypeVirtual, device.NewVirtual)
//	factory.Register(device.TypeBridged, device.NewBridgedConstructor(mqttClient))
//
//	registry := device.NewRegistry(ctrl)
//	registry.SetShutdown(hooks)
//	dev, err := factory.Create(desc)
//	if err == nil {
//	    err = registry.Add(ctx, dev)
//	}
//	if errors.Is(err, device.ErrDuplicateDeviceID) {
//	    // second device with the same ID
//	}
package device
