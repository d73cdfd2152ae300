// Package naming maps controller names such as "avx.controller.rack-2" to the
// base URI the controller serves on.
//
// Three backends are provided:
//
//   - Static: a fixed map from config, plus anything registered at runtime
//   - MQTT:   retained messages under avx/naming/<name>
//   - MDNS:   zeroconf service instances of _avx._tcp on the local link
//
// A controller registers its own name at startup and unregisters it at
// shutdown. Masters look up slave names before dialling them.
package naming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/avx-core/internal/infrastructure/config"
)

// ControllerNamePrefix is the name every controller registers under.
const ControllerNamePrefix = "avx.controller"

// ErrNameNotFound is returned when a name is not registered.
var ErrNameNotFound = errors.New("naming: name not found")

// ErrInvalidName is returned for empty names or URIs.
var ErrInvalidName = errors.New("naming: invalid name")

// Service resolves controller names to URIs.
type Service interface {
	// Register publishes name → uri.
	Register(ctx context.Context, name, uri string) error

	// Lookup returns the URI registered for name, or ErrNameNotFound.
	Lookup(ctx context.Context, name string) (string, error)

	// Unregister withdraws name. Unknown names are not an error.
	Unregister(ctx context.Context, name string) error
}

// ControllerName returns the registered name for a controller ID.
// An empty ID yields the bare prefix.
func ControllerName(controllerID string) string {
	if controllerID == "" {
		return ControllerNamePrefix
	}
	return ControllerNamePrefix + "." + controllerID
}

// New builds the backend selected by cfg.Backend.
//
// Parameters:
//   - cfg: Naming section of the application config
//   - retained: MQTT client; required only for the mqtt backend
//
// Returns:
//   - Service: Ready to use
//   - error: If the backend is unknown or its dependency is missing
func New(cfg config.NamingConfig, retained RetainedClient) (Service, error) {
	var svc Service
	switch cfg.Backend {
	case config.NamingBackendStatic, "":
		svc = NewStatic(cfg.Static)
	case config.NamingBackendMQTT:
		if retained == nil {
			return nil, errors.New("naming: mqtt backend requires an mqtt client")
		}
		svc = NewMQTT(retained)
	case config.NamingBackendMDNS:
		svc = NewMDNS(cfg.MDNS.Service, cfg.MDNS.Domain)
	default:
		return nil, fmt.Errorf("naming: unknown backend %q", cfg.Backend)
	}

	if cfg.LookupTimeout > 0 {
		svc = WithLookupTimeout(svc, time.Duration(cfg.LookupTimeout)*time.Second)
	}
	return svc, nil
}

// WithLookupTimeout bounds every Lookup on svc to d.
func WithLookupTimeout(svc Service, d time.Duration) Service {
	return boundedLookup{Service: svc, timeout: d}
}

type boundedLookup struct {
	Service
	timeout time.Duration
}

func (b boundedLookup) Lookup(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.Service.Lookup(ctx, name)
}

func validate(name, uri string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if uri == "" {
		return fmt.Errorf("%w: empty uri for %s", ErrInvalidName, name)
	}
	return nil
}
