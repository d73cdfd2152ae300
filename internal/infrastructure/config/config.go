package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the AVX controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Naming     NamingConfig     `yaml:"naming"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig contains settings for the controller core.
type ControllerConfig struct {
	// ConfigFile is the controller document listing devices, slaves and options.
	// Empty means the controller starts with no devices.
	ConfigFile string `yaml:"config_file"`

	// ControllerID suffixes the registered name (avx.controller.<id>).
	// The controller document's options.controllerID takes precedence.
	ControllerID string `yaml:"controller_id"`

	// PublicURL is the base URI other controllers and clients use to reach
	// this one. Defaults to http://<api.host>:<api.port>.
	PublicURL string `yaml:"public_url"`

	// SlaveTimeout bounds each hasDevice/proxyDevice call to a slave (seconds).
	SlaveTimeout int `yaml:"slave_timeout"`

	// ClientTimeout bounds each broadcast call to a client (seconds).
	ClientTimeout int `yaml:"client_timeout"`

	// BroadcastParallelism is the maximum number of clients called at once.
	BroadcastParallelism int `yaml:"broadcast_parallelism"`

	// LogCapacity is the number of entries kept for getLog.
	LogCapacity int `yaml:"log_capacity"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// NamingConfig selects how controllers find each other.
type NamingConfig struct {
	// Backend is one of "mqtt", "mdns" or "static".
	Backend string `yaml:"backend"`

	// LookupTimeout bounds a single name lookup (seconds).
	LookupTimeout int `yaml:"lookup_timeout"`

	// Static maps names to base URIs for the static backend.
	Static map[string]string `yaml:"static"`

	// MDNS holds zeroconf settings for the mdns backend.
	MDNS MDNSConfig `yaml:"mdns"`
}

// MDNSConfig contains zeroconf service settings.
type MDNSConfig struct {
	Service string `yaml:"service"`
	Domain  string `yaml:"domain"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Naming backends.
const (
	NamingBackendMQTT   = "mqtt"
	NamingBackendMDNS   = "mdns"
	NamingBackendStatic = "static"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AVX_SECTION_KEY
// For example: AVX_CONTROLLER_ID, AVX_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// Defaults returns the default configuration with environment overrides
// applied. It is used when no configuration file exists.
func Defaults() (*Config, error) {
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			SlaveTimeout:         2,
			ClientTimeout:        5,
			BroadcastParallelism: 8,
			LogCapacity:          100,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/avx.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "avx-controller",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Naming: NamingConfig{
			Backend:       NamingBackendStatic,
			LookupTimeout: 3,
			MDNS: MDNSConfig{
				Service: "_avx._tcp",
				Domain:  "local.",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AVX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Controller
	if v := os.Getenv("AVX_CONTROLLER_CONFIG_FILE"); v != "" {
		cfg.Controller.ConfigFile = v
	}
	if v := os.Getenv("AVX_CONTROLLER_ID"); v != "" {
		cfg.Controller.ControllerID = v
	}
	if v := os.Getenv("AVX_CONTROLLER_PUBLIC_URL"); v != "" {
		cfg.Controller.PublicURL = v
	}

	// Database
	if v := os.Getenv("AVX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AVX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AVX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AVX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Naming
	if v := os.Getenv("AVX_NAMING_BACKEND"); v != "" {
		cfg.Naming.Backend = v
	}

	// API
	if v := os.Getenv("AVX_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AVX_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("AVX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("AVX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Controller validation
	if c.Controller.SlaveTimeout < 1 {
		errs = append(errs, "controller.slave_timeout must be at least 1 second")
	}
	if c.Controller.ClientTimeout < 1 {
		errs = append(errs, "controller.client_timeout must be at least 1 second")
	}
	if c.Controller.BroadcastParallelism < 1 {
		errs = append(errs, "controller.broadcast_parallelism must be at least 1")
	}
	if c.Controller.LogCapacity < 1 {
		errs = append(errs, "controller.log_capacity must be at least 1")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Naming validation
	switch c.Naming.Backend {
	case NamingBackendStatic, NamingBackendMDNS:
	case NamingBackendMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "naming.backend mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("naming.backend %q must be mqtt, mdns, or static", c.Naming.Backend))
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetSlaveTimeout returns the per-call slave timeout as a Duration.
func (c *Config) GetSlaveTimeout() time.Duration {
	return time.Duration(c.Controller.SlaveTimeout) * time.Second
}

// GetClientTimeout returns the per-call broadcast timeout as a Duration.
func (c *Config) GetClientTimeout() time.Duration {
	return time.Duration(c.Controller.ClientTimeout) * time.Second
}

// GetLookupTimeout returns the naming lookup timeout as a Duration.
func (c *Config) GetLookupTimeout() time.Duration {
	return time.Duration(c.Naming.LookupTimeout) * time.Second
}

// BaseURL returns the URI this controller advertises to peers.
func (c *Config) BaseURL() string {
	if c.Controller.PublicURL != "" {
		return strings.TrimRight(c.Controller.PublicURL, "/")
	}
	host := c.API.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		if h, err := os.Hostname(); err == nil {
			host = h
		} else {
			host = "localhost"
		}
	}
	scheme := "http"
	if c.API.TLS.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.API.Port)
}
