package influxdb

import "errors"

// ErrDisabled is returned by Connect when influxdb.enabled is false.
var ErrDisabled = errors.New("influxdb: disabled in configuration")

var (
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")
)
