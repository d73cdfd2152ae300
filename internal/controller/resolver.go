package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/remote"
)

// Slave is a controller this one delegates to.
// *remote.ControllerClient satisfies it.
type Slave interface {
	Name() string
	HasDevice(ctx context.Context, id string) (bool, error)
	ProxyDevice(ctx context.Context, id string) (*remote.Handle, error)
}

// LocalDevices is the part of the device registry the resolver reads.
type LocalDevices interface {
	Get(id string) (device.Device, error)
}

// Exporter issues handles for local devices.
type Exporter interface {
	Export(dev device.Device) *remote.Handle
}

// Resolver turns device IDs into handles and caches them.
//
// A cached handle is returned as the identical pointer on every later call.
// Entries are only removed through Invalidate and InvalidateOwner.
type Resolver struct {
	local    LocalDevices
	exporter Exporter
	slaves   func() []Slave
	timeout  time.Duration

	logger  Logger
	metrics Metrics

	mu    sync.RWMutex
	cache map[string]*remote.Handle

	group singleflight.Group
}

// NewResolver creates a resolver.
//
// Parameters:
//   - local: Registry consulted first
//   - exporter: Issues handles for local devices
//   - slaves: Returns the current slaves in the order they were added
//   - timeout: Bound on each call to a single slave
func NewResolver(local LocalDevices, exporter Exporter, slaves func() []Slave, timeout time.Duration) *Resolver {
	return &Resolver{
		local:    local,
		exporter: exporter,
		slaves:   slaves,
		timeout:  timeout,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		cache:    make(map[string]*remote.Handle),
	}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// SetMetrics sets the telemetry sink for the resolver.
func (r *Resolver) SetMetrics(m Metrics) {
	r.metrics = m
}

// Resolve returns a handle for id.
//
// Order of lookup: the cache, the local registry, then each slave in the
// order it was added. A slave that errors or times out is treated as not
// having the device and the scan moves on. Concurrent calls for the same ID
// share one lookup. A caller whose ctx ends stops waiting; the lookup
// carries on for the others.
//
// Returns:
//   - *remote.Handle: The cached handle
//   - error: device.ErrDeviceNotFound if nobody has the device
func (r *Resolver) Resolve(ctx context.Context, id string) (*remote.Handle, error) {
	start := time.Now()

	if h, ok := r.cached(id); ok {
		r.metrics.RecordResolution(id, SourceCache, time.Since(start))
		return h, nil
	}

	// The shared lookup outlives any one caller; per-slave timeouts bound it.
	lookupCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(id, func() (any, error) {
		if h, ok := r.cached(id); ok {
			return h, nil
		}

		h, source, err := r.lookup(lookupCtx, id)
		r.metrics.RecordResolution(id, source, time.Since(start))
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[id] = h
		r.mu.Unlock()
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*remote.Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) cached(id string) (*remote.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.cache[id]
	return h, ok
}

func (r *Resolver) lookup(ctx context.Context, id string) (*remote.Handle, string, error) {
	if dev, err := r.local.Get(id); err == nil {
		r.logger.Debug("device resolved locally", "device_id", id)
		return r.exporter.Export(dev), SourceLocal, nil
	}

	for _, slave := range r.slaves() {
		h, err := r.askSlave(ctx, slave, id)
		if err != nil {
			r.logger.Warn("slave query failed",
				"slave", slave.Name(),
				"device_id", id,
				"error", err,
			)
			continue
		}
		if h != nil {
			r.logger.Debug("device resolved by slave", "device_id", id, "slave", slave.Name())
			return h, SourceSlave, nil
		}
	}

	r.logger.Debug("device not found", "device_id", id)
	return nil, SourceNotFound, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
}

// askSlave returns (nil, nil) when the slave does not have the device.
func (r *Resolver) askSlave(ctx context.Context, slave Slave, id string) (*remote.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	has, err := slave.HasDevice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("hasDevice: %w", err)
	}
	if !has {
		return nil, nil
	}

	h, err := slave.ProxyDevice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("proxyDevice: %w", err)
	}
	return h, nil
}

// Invalidate drops the cached handle for id, if any.
func (r *Resolver) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, id)
}

// InvalidateOwner drops every cached handle exported by owner and returns
// how many were removed.
func (r *Resolver) InvalidateOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, h := range r.cache {
		if h.Owner == owner {
			delete(r.cache, id)
			n++
		}
	}
	return n
}

// Len returns the number of cached handles.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
