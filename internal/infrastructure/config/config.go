package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend identifiers.
const (
	BackendSQLite   = "sqlite"
	BackendInfluxDB = "influxdb"
)

// Config is the root configuration structure for tempsense.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Cycle   CycleConfig   `yaml:"cycle"`
	Source  SourceConfig  `yaml:"source"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Store   StoreConfig   `yaml:"store"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// DeviceConfig identifies the single device this process reports for.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// CycleConfig controls the acquire/publish/persist loop.
type CycleConfig struct {
	// Interval is the time between the end of one cycle and the start of the next.
	Interval time.Duration `yaml:"interval"`

	// PublishRetry bounds the publish stage of every cycle.
	PublishRetry RetryConfig `yaml:"publish_retry"`

	// WriteTimeout bounds a single store write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetryConfig describes a bounded retry policy with exponential backoff.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// SourceConfig contains settings for the external measurement provider.
type SourceConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	FallbackMin float64       `yaml:"fallback_min"`
	FallbackMax float64       `yaml:"fallback_max"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BreakerConfig contains circuit breaker settings for the provider.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker. 0 disables the breaker.
	ConsecutiveFailures int `yaml:"consecutive_failures"`

	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration `yaml:"cooldown"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig `yaml:"broker"`
	TLS          MQTTTLSConfig    `yaml:"tls"`
	Auth         MQTTAuthConfig   `yaml:"auth"`
	Topic        string           `yaml:"topic"`
	StatusTopic  string           `yaml:"status_topic"`
	QoS          int              `yaml:"qos"`
	ConnectRetry RetryConfig      `yaml:"connect_retry"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ClientID is used verbatim when set. Otherwise a random ID is
	// generated from ClientIDPrefix at startup.
	ClientID       string `yaml:"client_id"`
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTTLSConfig contains mutual TLS credential paths.
type MQTTTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StoreConfig selects and configures the reading store backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// APIConfig contains the optional status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TEMPSENSE_SECTION_KEY
// For example: TEMPSENSE_DEVICE_ID, TEMPSENSE_MQTT_CA_FILE
//
// Parameters:
//   - path: Path to the YAML configuration file (may be empty)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The retry defaults mirror the field-tested sensor loop: three connect
// attempts starting 5s apart, three publish attempts starting 2s apart.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID: "sensor-01",
		},
		Cycle: CycleConfig{
			Interval: 60 * time.Second,
			PublishRetry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 2 * time.Second,
				MaxDelay:     10 * time.Second,
				Multiplier:   2,
			},
			WriteTimeout: 10 * time.Second,
		},
		Source: SourceConfig{
			URL:         "https://opendata-download-metobs.smhi.se/api/version/latest/parameter/1/station/52350/period/latest-hour/data.json",
			Timeout:     10 * time.Second,
			FallbackMin: 10.0,
			FallbackMax: 40.0,
			Breaker: BreakerConfig{
				ConsecutiveFailures: 3,
				Cooldown:            5 * time.Minute,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           8883,
				ClientIDPrefix: "sensor",
			},
			TLS: MQTTTLSConfig{
				Enabled: true,
			},
			Topic: "iot/weather",
			QoS:   1,
			ConnectRetry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 5 * time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2,
			},
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			Database: DatabaseConfig{
				Path:        "./data/tempsense.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			InfluxDB: InfluxDBConfig{
				Measurement: "temperature",
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9108,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
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
// Environment variables follow the pattern: TEMPSENSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"TEMPSENSE_DEVICE_ID":       &cfg.Device.ID,
		"TEMPSENSE_SOURCE_URL":      &cfg.Source.URL,
		"TEMPSENSE_MQTT_HOST":       &cfg.MQTT.Broker.Host,
		"TEMPSENSE_MQTT_CLIENT_ID":  &cfg.MQTT.Broker.ClientID,
		"TEMPSENSE_MQTT_TOPIC":      &cfg.MQTT.Topic,
		"TEMPSENSE_MQTT_USERNAME":   &cfg.MQTT.Auth.Username,
		"TEMPSENSE_MQTT_PASSWORD":   &cfg.MQTT.Auth.Password,
		"TEMPSENSE_MQTT_CA_FILE":    &cfg.MQTT.TLS.CAFile,
		"TEMPSENSE_MQTT_CERT_FILE":  &cfg.MQTT.TLS.CertFile,
		"TEMPSENSE_MQTT_KEY_FILE":   &cfg.MQTT.TLS.KeyFile,
		"TEMPSENSE_STORE_BACKEND":   &cfg.Store.Backend,
		"TEMPSENSE_DATABASE_PATH":   &cfg.Store.Database.Path,
		"TEMPSENSE_INFLUXDB_URL":    &cfg.Store.InfluxDB.URL,
		"TEMPSENSE_INFLUXDB_TOKEN":  &cfg.Store.InfluxDB.Token,
		"TEMPSENSE_INFLUXDB_ORG":    &cfg.Store.InfluxDB.Org,
		"TEMPSENSE_INFLUXDB_BUCKET": &cfg.Store.InfluxDB.Bucket,
		"TEMPSENSE_LOG_LEVEL":       &cfg.Logging.Level,
		"TEMPSENSE_LOG_FORMAT":      &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	var errs []error

	if v := os.Getenv("TEMPSENSE_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TEMPSENSE_MQTT_PORT: %w", err))
		} else {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("TEMPSENSE_MQTT_TLS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TEMPSENSE_MQTT_TLS: %w", err))
		} else {
			cfg.MQTT.TLS.Enabled = enabled
		}
	}
	if v := os.Getenv("TEMPSENSE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TEMPSENSE_INTERVAL: %w", err))
		} else {
			cfg.Cycle.Interval = d
		}
	}
	if v := os.Getenv("TEMPSENSE_API_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TEMPSENSE_API_ENABLED: %w", err))
		} else {
			cfg.API.Enabled = enabled
		}
	}

	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Device.ID) == "" {
		errs = append(errs, "device.id is required")
	}

	if c.Cycle.Interval <= 0 {
		errs = append(errs, "cycle.interval must be positive")
	}
	errs = append(errs, c.Cycle.PublishRetry.validate("cycle.publish_retry")...)

	if c.Source.URL == "" {
		errs = append(errs, "source.url is required")
	}
	if c.Source.FallbackMin >= c.Source.FallbackMax {
		errs = append(errs, "source.fallback_min must be below source.fallback_max")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Topic == "" || strings.ContainsAny(c.MQTT.Topic, "+#") {
		errs = append(errs, "mqtt.topic is required and must not contain wildcards")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TLS.Enabled {
		if c.MQTT.TLS.CAFile == "" || c.MQTT.TLS.CertFile == "" || c.MQTT.TLS.KeyFile == "" {
			errs = append(errs, "mqtt.tls requires ca_file, cert_file and key_file (set TEMPSENSE_MQTT_CA_FILE, TEMPSENSE_MQTT_CERT_FILE, TEMPSENSE_MQTT_KEY_FILE)")
		}
	}
	errs = append(errs, c.MQTT.ConnectRetry.validate("mqtt.connect_retry")...)

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Database.Path == "" {
			errs = append(errs, "store.database.path is required")
		}
	case BackendInfluxDB:
		if c.Store.InfluxDB.URL == "" || c.Store.InfluxDB.Org == "" || c.Store.InfluxDB.Bucket == "" {
			errs = append(errs, "store.influxdb requires url, org and bucket")
		}
		if c.Store.InfluxDB.Measurement == "" {
			errs = append(errs, "store.influxdb.measurement is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be %q or %q", BackendSQLite, BackendInfluxDB))
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (r RetryConfig) validate(prefix string) []string {
	var errs []string
	if r.MaxAttempts < 1 {
		errs = append(errs, prefix+".max_attempts must be at least 1")
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		errs = append(errs, prefix+" delays must not be negative")
	}
	if r.Multiplier != 0 && r.Multiplier < 1 {
		errs = append(errs, prefix+".multiplier must be at least 1")
	}
	return errs
}

// GetReadTimeout returns the read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
