// Package config loads the controller's application config.
//
// Values come from built-in defaults, then the YAML file, then AVX_*
// environment variables, and are checked by Validate. A missing file at the
// default path is not an error for the CLI, which falls back to Defaults.
//
// The application config says how the process runs: API address, broker,
// naming backend, telemetry, audit database and logging. What the
// controller owns (its devices, slaves and options) lives in the separate
// controller document named by controller.config_file.
//
// Keep broker passwords and InfluxDB tokens out of the file; set
// AVX_MQTT_PASSWORD and AVX_INFLUXDB_TOKEN instead.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	baseURL := cfg.BaseURL()
package config
