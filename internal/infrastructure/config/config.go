package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Alnor Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud    CloudConfig    `yaml:"cloud"`
	Modbus   ModbusConfig   `yaml:"modbus"`
	Polling  PollingConfig  `yaml:"polling"`
	Devices  DevicesConfig  `yaml:"devices"`
	Humidity HumidityConfig `yaml:"humidity"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CloudConfig contains vendor cloud API connection settings.
type CloudConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Timeout is the per-request deadline in seconds.
	Timeout int `yaml:"timeout"`
}

// ModbusConfig contains local Modbus-TCP transport settings.
type ModbusConfig struct {
	// Port is the Modbus-TCP port devices listen on. Default: 502.
	Port int `yaml:"port"`
	// Timeout is the per-call deadline in seconds. Default: 10.
	Timeout int `yaml:"timeout"`
	// UnitID is the Modbus unit identifier used for all devices. Default: 1.
	UnitID int `yaml:"unit_id"`
}

// PollingConfig contains coordinator scheduling settings.
type PollingConfig struct {
	// LocalInterval is the poll period for devices on the local transport (seconds).
	LocalInterval int `yaml:"local_interval"`
	// CloudInterval is the poll period for devices on the cloud transport (seconds).
	CloudInterval int `yaml:"cloud_interval"`
	// FailureThreshold is the number of consecutive local failures that
	// forces a device onto the cloud transport.
	FailureThreshold int `yaml:"failure_threshold"`
	// LocalRetryCycles is how many cycles a cloud-demoted device waits
	// before re-attempting its local transport.
	LocalRetryCycles int `yaml:"local_retry_cycles"`
}

// DevicesConfig contains per-device overrides supplied by the installer.
type DevicesConfig struct {
	// LocalIPs maps device ID to a local IP address, overriding the host
	// reported by cloud discovery.
	LocalIPs map[string]string `yaml:"local_ips"`
}

// HumidityConfig contains automatic humidity control settings.
type HumidityConfig struct {
	Controls []HumidityControlConfig `yaml:"controls"`
}

// HumidityControlConfig configures automatic humidity control for one device.
type HumidityControlConfig struct {
	// DeviceID is the controlled ventilation device.
	DeviceID string `yaml:"device_id"`
	// Sensors lists the device IDs of linked humidity sensors. When more
	// than one is configured, the highest reading drives control.
	Sensors []string `yaml:"sensors"`
	// Target is the target relative humidity in percent.
	Target int `yaml:"target"`
	// UpperHysteresis and LowerHysteresis are offsets around Target forming
	// the dead-band. Defaults: 5 each.
	UpperHysteresis int `yaml:"upper_hysteresis"`
	LowerHysteresis int `yaml:"lower_hysteresis"`
	// HighMode and LowMode are the ventilation modes applied above and
	// below the dead-band. Defaults: home_plus / home.
	HighMode string `yaml:"high_mode"`
	LowMode  string `yaml:"low_mode"`
	// Cooldown is the minimum time between automatic mode changes (seconds).
	// Default: 120.
	Cooldown int `yaml:"cooldown"`
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

// Humidity control defaults and bounds. Thresholds are later capped to the
// valid relative-humidity range so a target near the edge plus hysteresis
// can never produce an unreachable threshold.
const (
	MinHumidityPercent = 1
	MaxHumidityPercent = 99

	defaultHysteresis      = 5
	defaultCooldownSeconds = 120
	defaultHighMode        = "home_plus"
	defaultLowMode         = "home"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ALNOR_SECTION_KEY
// For example: ALNOR_CLOUD_PASSWORD, ALNOR_DATABASE_PATH
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

	applyEnvOverrides(cfg)
	applyHumidityDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			BaseURL: "https://api.alnor-cloud.com",
			Timeout: 15,
		},
		Modbus: ModbusConfig{
			Port:    502,
			Timeout: 10,
			UnitID:  1,
		},
		Polling: PollingConfig{
			LocalInterval:    30,
			CloudInterval:    60,
			FailureThreshold: 3,
			LocalRetryCycles: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/alnorcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "alnor-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
// Environment variables follow the pattern: ALNOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud credentials are the values most commonly injected at runtime.
	if v := os.Getenv("ALNOR_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}
	if v := os.Getenv("ALNOR_CLOUD_USERNAME"); v != "" {
		cfg.Cloud.Username = v
	}
	if v := os.Getenv("ALNOR_CLOUD_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}

	// Database
	if v := os.Getenv("ALNOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ALNOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ALNOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ALNOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ALNOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// applyHumidityDefaults fills unset per-device humidity control values.
func applyHumidityDefaults(cfg *Config) {
	for i := range cfg.Humidity.Controls {
		c := &cfg.Humidity.Controls[i]
		if c.UpperHysteresis == 0 {
			c.UpperHysteresis = defaultHysteresis
		}
		if c.LowerHysteresis == 0 {
			c.LowerHysteresis = defaultHysteresis
		}
		if c.HighMode == "" {
			c.HighMode = defaultHighMode
		}
		if c.LowMode == "" {
			c.LowMode = defaultLowMode
		}
		if c.Cooldown == 0 {
			c.Cooldown = defaultCooldownSeconds
		}
	}
}

// Validate checks the configuration for errors.
//
// Humidity control entries are rejected here, before being stored anywhere:
// a broken control configuration must never reach the controller.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Cloud validation
	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.Username == "" {
		errs = append(errs, "cloud.username is required (set ALNOR_CLOUD_USERNAME environment variable)")
	}
	if c.Cloud.Password == "" {
		errs = append(errs, "cloud.password is required (set ALNOR_CLOUD_PASSWORD environment variable)")
	}

	// Modbus validation
	if c.Modbus.Port < 1 || c.Modbus.Port > 65535 {
		errs = append(errs, "modbus.port must be between 1 and 65535")
	}

	// Polling validation
	if c.Polling.LocalInterval <= 0 {
		errs = append(errs, "polling.local_interval must be positive")
	}
	if c.Polling.CloudInterval <= 0 {
		errs = append(errs, "polling.cloud_interval must be positive")
	}
	if c.Polling.FailureThreshold < 1 {
		errs = append(errs, "polling.failure_threshold must be at least 1")
	}
	if c.Polling.LocalRetryCycles < 1 {
		errs = append(errs, "polling.local_retry_cycles must be at least 1")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Humidity control validation
	for i := range c.Humidity.Controls {
		hc := &c.Humidity.Controls[i]
		prefix := fmt.Sprintf("humidity.controls[%d]", i)
		if hc.DeviceID == "" {
			errs = append(errs, prefix+".device_id is required")
		}
		if len(hc.Sensors) == 0 {
			errs = append(errs, prefix+".sensors must list at least one humidity sensor")
		}
		if hc.Target < MinHumidityPercent || hc.Target > MaxHumidityPercent {
			errs = append(errs, fmt.Sprintf("%s.target must be between %d and %d",
				prefix, MinHumidityPercent, MaxHumidityPercent))
		}
		if hc.UpperHysteresis < 0 || hc.LowerHysteresis < 0 {
			errs = append(errs, prefix+": hysteresis offsets must not be negative")
		}
		if hc.HighMode == hc.LowMode {
			errs = append(errs, prefix+": high_mode and low_mode must differ")
		}
		if hc.Cooldown < 0 {
			errs = append(errs, prefix+".cooldown must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCloudTimeout returns the cloud request timeout as a Duration.
func (c *Config) GetCloudTimeout() time.Duration {
	return time.Duration(c.Cloud.Timeout) * time.Second
}

// GetModbusTimeout returns the Modbus call timeout as a Duration.
func (c *Config) GetModbusTimeout() time.Duration {
	return time.Duration(c.Modbus.Timeout) * time.Second
}

// GetLocalInterval returns the local polling cadence as a Duration.
func (c *Config) GetLocalInterval() time.Duration {
	return time.Duration(c.Polling.LocalInterval) * time.Second
}

// GetCloudInterval returns the cloud polling cadence as a Duration.
func (c *Config) GetCloudInterval() time.Duration {
	return time.Duration(c.Polling.CloudInterval) * time.Second
}

// GetCooldown returns the cooldown for one humidity control entry as a Duration.
func (h *HumidityControlConfig) GetCooldown() time.Duration {
	return time.Duration(h.Cooldown) * time.Second
}
