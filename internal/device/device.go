package device

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/avx-core/internal/sequencer"
)

// Device is a controllable endpoint owned by a controller.
type Device interface {
	// ID returns the device's unique identifier within its controller.
	ID() string

	// Initialise brings the device up. It is called once after all devices are loaded.
	Initialise(ctx context.Context) error

	// Deinitialise releases the device. It is called once at shutdown.
	Deinitialise(ctx context.Context) error
}

// Dispatcher lets a device queue events through its controller.
type Dispatcher interface {
	Sequence(ctx context.Context, events ...sequencer.Event) error
}

// DispatcherAware is implemented by devices that want a Dispatcher.
// The registry calls RegisterDispatcher once, when the device is added.
type DispatcherAware interface {
	RegisterDispatcher(d Dispatcher)
}

// Invoker is implemented by devices that accept remote method calls.
type Invoker interface {
	Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error)
}

// Description is one entry of the controller document's devices list.
//
// Type selects the constructor and DeviceID becomes the device's ID. Every
// other key is passed through in Params.
type Description struct {
	Type     string
	DeviceID string
	Params   map[string]any
}

const (
	keyType     = "type"
	keyDeviceID = "deviceID"
)

// UnmarshalYAML decodes a flat mapping into a Description.
func (d *Description) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDescription, err)
	}
	return d.fromMap(raw)
}

// UnmarshalJSON decodes a flat JSON object into a Description.
func (d *Description) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDescription, err)
	}
	return d.fromMap(raw)
}

// MarshalJSON encodes the Description back to its flat form.
func (d Description) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Params)+2)
	maps.Copy(out, d.Params)
	out[keyType] = d.Type
	out[keyDeviceID] = d.DeviceID
	return json.Marshal(out)
}

func (d *Description) fromMap(raw map[string]any) error {
	typ, _ := raw[keyType].(string)
	if typ == "" {
		return fmt.Errorf("%w: missing %q", ErrInvalidDescription, keyType)
	}
	id, _ := raw[keyDeviceID].(string)
	if id == "" {
		return fmt.Errorf("%w: missing %q", ErrInvalidDescription, keyDeviceID)
	}

	params := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == keyType || k == keyDeviceID {
			continue
		}
		params[k] = v
	}

	*d = Description{Type: typ, DeviceID: id, Params: params}
	return nil
}

// Param returns the string parameter key, or def when absent or not a string.
func (d Description) Param(key, def string) string {
	if v, ok := d.Params[key].(string); ok && v != "" {
		return v
	}
	return def
}
