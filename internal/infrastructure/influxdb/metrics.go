package influxdb

import "time"

// Measurement names written by the controller.
const (
	MeasurementResolutions = "avx_resolutions"
	MeasurementBroadcasts  = "avx_broadcasts"
	MeasurementClients     = "avx_clients"
)

// RecordResolution writes one device resolution and where it was answered
// from (cache, local, slave or not_found).
func (c *Client) RecordResolution(deviceID, source string, elapsed time.Duration) {
	c.WritePoint(MeasurementResolutions,
		map[string]string{"device_id": deviceID, "source": source},
		map[string]any{"elapsed_ms": millis(elapsed)},
	)
}

// RecordBroadcast writes the outcome of one client broadcast.
func (c *Client) RecordBroadcast(method string, clients, failed int, elapsed time.Duration) {
	c.WritePoint(MeasurementBroadcasts,
		map[string]string{"method": method},
		map[string]any{
			"clients":    clients,
			"failed":     failed,
			"elapsed_ms": millis(elapsed),
		},
	)
}

// RecordClients writes the current size of the client set.
func (c *Client) RecordClients(count int) {
	c.WritePoint(MeasurementClients, nil, map[string]any{"count": count})
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
