package device

import "errors"

// Registry and factory errors. Callers match them with errors.Is; the API
// maps ErrDeviceNotFound to 404 and ErrDuplicateDeviceID to 409.
var (
	ErrDeviceNotFound     = errors.New("device: not found")
	ErrDuplicateDeviceID  = errors.New("device: duplicate device ID")
	ErrUnknownDeviceType  = errors.New("device: unknown type")
	ErrInvalidDescription = errors.New("device: invalid description")
)

// Invocation errors.
var (
	// ErrMethodNotSupported means the device has no handler for the method.
	ErrMethodNotSupported = errors.New("device: method not supported")

	ErrNotInitialised = errors.New("device: not initialised")
)
