// Package influxdb writes controller telemetry to InfluxDB v2.
//
// The Client satisfies the controller's Metrics interface, recording:
//   - device resolutions, tagged by device and answer source
//   - client broadcasts, with client and failure counts
//   - the size of the registered client set
//
// Writes are buffered and sent in batches (batch_size, flush_interval in
// config.yaml). Asynchronous write errors are delivered to the callback
// set with SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influxdb write failed", "error", err) })
package influxdb
