// Package controller implements the AVX controller: a bucket of local devices
// that can delegate to other controllers ("slaves") and push UI events to
// registered clients.
//
// The controller is assembled from three parts:
//
//   - Resolver: turns a device ID into a reachable remote.Handle, checking
//     the local registry first and then each slave in the order it was added
//   - Federation: the ordered set of version-checked slave links
//   - Broadcaster: the ordered set of client URIs, pruned on failure
//
// Usage:
//
//	ctrl, err := controller.New(controller.Deps{...})
//	ctrl.LoadConfig(ctx, "controller.json")
//	ctrl.Initialise(ctx)
//	h, err := ctrl.ProxyDevice(ctx, "projector")
//
// Thread Safety: All exported methods are safe for concurrent use.
package controller
