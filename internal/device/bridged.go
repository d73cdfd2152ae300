package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/avx-core/internal/infrastructure/mqtt"
)

// TypeBridged is the description type for devices driven by an MQTT protocol bridge.
const TypeBridged = "bridged"

// Publisher sends MQTT messages. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// bridgeCommandQoS is at-least-once.
const bridgeCommandQoS = 1

// BridgeCommand is the payload published to avx/command/<bridge>/<device>.
type BridgeCommand struct {
	DeviceID  string          `json:"device_id"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bridged forwards invocations to a protocol bridge as MQTT commands.
//
// The description must name the bridge:
//
//	{"type": "bridged", "deviceID": "switch-main", "bridge": "extron"}
//
// Initialise and Deinitialise are forwarded as the "initialise" and
// "deinitialise" commands so the bridge can open or close its own link.
type Bridged struct {
	id     string
	bridge string
	pub    Publisher

	mu          sync.RWMutex
	initialised bool
}

// NewBridgedConstructor returns the Constructor for TypeBridged.
// A nil publisher yields a constructor that rejects every description,
// which is what a controller without MQTT wants.
func NewBridgedConstructor(pub Publisher) Constructor {
	return func(desc Description) (Device, error) {
		if pub == nil {
			return nil, errors.New("bridged devices require mqtt to be enabled")
		}
		bridge := desc.Param("bridge", "")
		if bridge == "" {
			return nil, fmt.Errorf("%w: bridged device %s has no bridge", ErrInvalidDescription, desc.DeviceID)
		}
		return &Bridged{id: desc.DeviceID, bridge: bridge, pub: pub}, nil
	}
}

// ID returns the device ID.
func (b *Bridged) ID() string { return b.id }

// Bridge returns the bridge name used in command topics.
func (b *Bridged) Bridge() string { return b.bridge }

// Initialise sends the initialise command.
func (b *Bridged) Initialise(ctx context.Context) error {
	if err := b.send(ctx, "initialise", nil); err != nil {
		return err
	}
	b.mu.Lock()
	b.initialised = true
	b.mu.Unlock()
	return nil
}

// Deinitialise sends the deinitialise command.
func (b *Bridged) Deinitialise(ctx context.Context) error {
	b.mu.Lock()
	b.initialised = false
	b.mu.Unlock()
	return b.send(ctx, "deinitialise", nil)
}

// Invoke publishes method as a command. Bridges do not reply, so the
// result is always JSON null.
func (b *Bridged) Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	b.mu.RLock()
	ready := b.initialised
	b.mu.RUnlock()
	if !ready {
		return nil, ErrNotInitialised
	}

	if err := b.send(ctx, method, args); err != nil {
		return nil, err
	}
	return json.RawMessage(`null`), nil
}

func (b *Bridged) send(ctx context.Context, method string, args json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(BridgeCommand{
		DeviceID:  b.id,
		Method:    method,
		Args:      args,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", method, err)
	}

	topic := mqtt.Topics{}.BridgeCommand(b.bridge, b.id)
	if err := b.pub.Publish(topic, payload, bridgeCommandQoS, false); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", method, topic, err)
	}
	return nil
}
