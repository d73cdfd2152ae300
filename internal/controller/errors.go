package controller

import "errors"

var (
	// ErrConfig is returned when a controller document cannot be parsed.
	ErrConfig = errors.New("controller: malformed controller document")

	// ErrSlaveUnreachable is returned when a slave's name cannot be resolved
	// or its version cannot be fetched.
	ErrSlaveUnreachable = errors.New("controller: slave unreachable")

	// ErrDuplicateSlave is returned when a controller ID is already federated.
	ErrDuplicateSlave = errors.New("controller: slave already added")

	// ErrClientUnreachable wraps the failure of a single client call during a broadcast.
	ErrClientUnreachable = errors.New("controller: client unreachable")

	// ErrHTTPDisabled is reported by the HTTP device-invoke route when the
	// controller document did not set options.http.
	ErrHTTPDisabled = errors.New("controller: http front-end disabled")
)
