package device

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
)

// TypeVirtual is the description type for in-memory devices.
const TypeVirtual = "virtual"

// Call is one invocation recorded by a Virtual device.
type Call struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Virtual is an in-memory device used for commissioning and tests.
//
// Every invocation is recorded and its arguments are kept as the state for
// that method. The "state" method returns the state map instead of recording.
type Virtual struct {
	id string

	mu          sync.Mutex
	initialised bool
	calls       []Call
	state       map[string]json.RawMessage
	dispatcher  Dispatcher
}

// NewVirtual is the Constructor for TypeVirtual.
func NewVirtual(desc Description) (Device, error) {
	return &Virtual{
		id:    desc.DeviceID,
		state: make(map[string]json.RawMessage),
	}, nil
}

// ID returns the device ID.
func (v *Virtual) ID() string { return v.id }

// Initialise marks the device ready.
func (v *Virtual) Initialise(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initialised = true
	return nil
}

// Deinitialise marks the device stopped.
func (v *Virtual) Deinitialise(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initialised = false
	return nil
}

// RegisterDispatcher keeps the controller's dispatcher.
func (v *Virtual) RegisterDispatcher(d Dispatcher) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dispatcher = d
}

// Dispatcher returns the registered dispatcher, or nil.
func (v *Virtual) Dispatcher() Dispatcher {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dispatcher
}

// Invoke records the call.
func (v *Virtual) Invoke(_ context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialised {
		return nil, ErrNotInitialised
	}

	if method == "state" {
		return json.Marshal(v.state)
	}

	v.calls = append(v.calls, Call{Method: method, Args: append(json.RawMessage(nil), args...)})
	if len(args) > 0 {
		v.state[method] = append(json.RawMessage(nil), args...)
	}
	return json.RawMessage(`null`), nil
}

// Calls returns the recorded invocations in order.
func (v *Virtual) Calls() []Call {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Call(nil), v.calls...)
}

// State returns a copy of the per-method state.
func (v *Virtual) State() map[string]json.RawMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return maps.Clone(v.state)
}
