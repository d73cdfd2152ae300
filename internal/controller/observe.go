package controller

import (
	"context"
	"time"
)

// Logger defines the logging interface used by the controller.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// Exception logs err together with stack detail.
	Exception(msg string, err error, args ...any)

	// Panic logs a recovered panic value together with stack detail.
	Panic(msg string, recovered any, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any)            {}
func (noopLogger) Info(string, ...any)             {}
func (noopLogger) Warn(string, ...any)             {}
func (noopLogger) Error(string, ...any)            {}
func (noopLogger) Exception(string, error, ...any) {}
func (noopLogger) Panic(string, any, ...any)       {}

// Resolution sources reported to Metrics.
const (
	SourceCache    = "cache"
	SourceLocal    = "local"
	SourceSlave    = "slave"
	SourceNotFound = "not_found"
)

// Metrics receives controller telemetry. Implementations must not block.
type Metrics interface {
	RecordResolution(deviceID, source string, elapsed time.Duration)
	RecordBroadcast(method string, clients, failed int, elapsed time.Duration)
	RecordClients(count int)
}

type noopMetrics struct{}

func (noopMetrics) RecordResolution(string, string, time.Duration)  {}
func (noopMetrics) RecordBroadcast(string, int, int, time.Duration) {}
func (noopMetrics) RecordClients(int)                               {}

// Audit actions.
const (
	ActionDeviceAdded       = "device_added"
	ActionSlaveAdded        = "slave_added"
	ActionSlaveRejected     = "slave_rejected"
	ActionSlaveRemoved      = "slave_removed"
	ActionClientRegistered  = "client_registered"
	ActionClientRemoved     = "client_unregistered"
	ActionClientPruned      = "client_pruned"
	ActionControllerStarted = "controller_started"
)

// Auditor records federation, client and device events.
// Failures are the auditor's to log; the controller does not act on them.
type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID string, details map[string]any)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, string, string, string, map[string]any) {}
