package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Control4 bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Director DirectorConfig `yaml:"director"`
	Account  AccountConfig  `yaml:"account"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Alarm    AlarmConfig    `yaml:"alarm"`
}

// BridgeConfig contains bridge identity settings.
type BridgeConfig struct {
	ID             string `yaml:"id"`
	HealthInterval int    `yaml:"health_interval"` // seconds
}

// DirectorConfig contains Control4 Director connection settings.
type DirectorConfig struct {
	// Host is the Director's IP address or hostname on the LAN.
	Host string `yaml:"host"`

	// Port is the Director's HTTPS port. Default: 443.
	Port int `yaml:"port"`

	// VerifyTLS controls certificate verification. Directors ship with
	// self-signed certificates, so this defaults to false.
	VerifyTLS bool `yaml:"verify_tls"`

	// RequestTimeout is the HTTP request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// ScanInterval is how often to re-enumerate items (seconds).
	// 0 disables periodic rescans; events still update known items.
	ScanInterval int `yaml:"scan_interval"`

	// LightTransitionTime is the default ramp time for dimmer commands
	// in milliseconds.
	LightTransitionTime int `yaml:"light_transition_time"`

	// Reconnect controls WebSocket event feed reconnection backoff.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// AccountConfig contains Control4 cloud account credentials.
// These are used once per token lifetime to mint director bearer tokens.
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// RefreshMargin is how many seconds before expiry the director
	// token is refreshed.
	RefreshMargin int `yaml:"refresh_margin"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// APIConfig contains HTTP status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for variable history.
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

// AlarmConfig maps standard arm states to the panel's configured mode names.
// Control4 security panels name their arm modes per installation, so the
// mapping cannot be derived from item data. Unset modes reject arm commands.
type AlarmConfig struct {
	AwayMode         string `yaml:"away_mode"`
	HomeMode         string `yaml:"home_mode"`
	NightMode        string `yaml:"night_mode"`
	CustomBypassMode string `yaml:"custom_bypass_mode"`
	VacationMode     string `yaml:"vacation_mode"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: C4BRIDGE_SECTION_KEY
// For example: C4BRIDGE_DIRECTOR_HOST, C4BRIDGE_ACCOUNT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "control4",
			HealthInterval: 30,
		},
		Director: DirectorConfig{
			Port:                443,
			VerifyTLS:           false,
			RequestTimeout:      10,
			ScanInterval:        0,
			LightTransitionTime: 0,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Account: AccountConfig{
			RefreshMargin: 3600,
		},
		Database: DatabaseConfig{
			Path:        "./data/c4bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "c4bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8084,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: C4BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Director
	if v := os.Getenv("C4BRIDGE_DIRECTOR_HOST"); v != "" {
		cfg.Director.Host = v
	}
	if v := os.Getenv("C4BRIDGE_DIRECTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Director.Port = port
		}
	}

	// Account credentials (never commit these to the config file)
	if v := os.Getenv("C4BRIDGE_ACCOUNT_USERNAME"); v != "" {
		cfg.Account.Username = v
	}
	if v := os.Getenv("C4BRIDGE_ACCOUNT_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}

	// Database
	if v := os.Getenv("C4BRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("C4BRIDGE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("C4BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("C4BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("C4BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	// Director validation
	if c.Director.Host == "" {
		errs = append(errs, "director.host is required (set C4BRIDGE_DIRECTOR_HOST)")
	}
	if c.Director.Port < 1 || c.Director.Port > 65535 {
		errs = append(errs, "director.port must be between 1 and 65535")
	}

	// Account validation - both or neither; a persisted token can carry
	// the bridge across restarts, but refresh needs credentials.
	if c.Account.Username == "" || c.Account.Password == "" {
		errs = append(errs, "account.username and account.password are required (set C4BRIDGE_ACCOUNT_USERNAME / C4BRIDGE_ACCOUNT_PASSWORD)")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
