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

// ErrLoad is returned when the configuration cannot be read, parsed, or validated.
// It is always fatal at startup.
var ErrLoad = errors.New("config: load failed")

// DefaultPath is used when neither --config nor MCUCTRL_CONFIG is set.
const DefaultPath = "/etc/mcuctrl/config.yaml"

// Config is the root configuration structure for mcuctrl.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MCU        MCUConfig        `yaml:"mcu"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
}

// MCUConfig identifies the controller on the SMBus and bounds bus operations.
type MCUConfig struct {
	Bus           int     `yaml:"bus"`
	Address       Address `yaml:"address"`
	TimeoutMS     int     `yaml:"timeout_ms"`
	Retries       int     `yaml:"retries"`
	LockTimeoutMS int     `yaml:"lock_timeout_ms"`
}

// Timeout returns the per-transfer bus timeout.
func (m MCUConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMS) * time.Millisecond
}

// LockTimeout returns how long to wait for the advisory bus lock.
func (m MCUConfig) LockTimeout() time.Duration {
	return time.Duration(m.LockTimeoutMS) * time.Millisecond
}

// Address is a 7-bit bus address. In YAML it may be written as an integer
// or as a string in any base strconv understands ("0x34", "52").
type Address uint16

// UnmarshalYAML accepts both integer and string forms.
func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", node.Line)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(node.Value), 0, 8)
	if err != nil {
		return fmt.Errorf("line %d: invalid address %q: %w", node.Line, node.Value, err)
	}
	*a = Address(v)
	return nil
}

// String renders the address in hex.
func (a Address) String() string {
	return fmt.Sprintf("0x%02x", uint16(a))
}

// ThresholdsConfig holds the values the reconciler enforces.
// Values are ints so out-of-range input is reported by Validate instead of
// failing inside the YAML decoder.
type ThresholdsConfig struct {
	MinPWM            int `yaml:"min_pwm"`
	MaxPWM            int `yaml:"max_pwm"`
	DefaultBrightness int `yaml:"default_brightness"`
	CheckInterval     int `yaml:"check_interval"`
}

// Interval returns the check interval as a Duration.
func (t ThresholdsConfig) Interval() time.Duration {
	return time.Duration(t.CheckInterval) * time.Second
}

// DaemonConfig contains lifecycle settings.
type DaemonConfig struct {
	PIDFile      string `yaml:"pidfile"`
	StartTimeout int    `yaml:"start_timeout"`
	StopTimeout  int    `yaml:"stop_timeout"`
	KillTimeout  int    `yaml:"kill_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// MaxSize is in bytes.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int64  `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// DatabaseConfig contains SQLite settings for the correction history.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// APIAuthConfig controls bearer-token protection of mutating routes.
// An empty secret leaves the API unauthenticated.
type APIAuthConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Every failure wraps ErrLoad.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %w", ErrLoad, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config file: %w", ErrLoad, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: validating config: %w", ErrLoad, err)
	}

	return cfg, nil
}

// Default returns the configuration used when the file sets nothing.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		MCU: MCUConfig{
			Bus:           0,
			Address:       0x00,
			TimeoutMS:     250,
			Retries:       1,
			LockTimeoutMS: 5000,
		},
		Thresholds: ThresholdsConfig{
			MinPWM:            0,
			MaxPWM:            100,
			DefaultBrightness: 20,
			CheckInterval:     300,
		},
		Daemon: DaemonConfig{
			PIDFile:      "/var/run/mcuctrl.pid",
			StartTimeout: 5,
			StopTimeout:  10,
			KillTimeout:  5,
		},
		Logging: LoggingConfig{
			Level:  "error",
			Format: "text",
			Output: "file",
			File: FileLoggingConfig{
				Path:       "/var/log/mcuctrl.log",
				MaxSize:    102400,
				MaxBackups: 5,
			},
		},
		Database: DatabaseConfig{
			Path:          "/var/lib/mcuctrl/history.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mcuctrl",
			},
			QoS:         1,
			TopicPrefix: "mcuctrl",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8087,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			Auth: APIAuthConfig{
				TokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MCUCTRL_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MCU
	if v := os.Getenv("MCUCTRL_MCU_BUS"); v != "" {
		bus, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MCUCTRL_MCU_BUS: %w", err)
		}
		cfg.MCU.Bus = bus
	}
	if v := os.Getenv("MCUCTRL_MCU_ADDRESS"); v != "" {
		addr, err := strconv.ParseUint(v, 0, 8)
		if err != nil {
			return fmt.Errorf("MCUCTRL_MCU_ADDRESS: %w", err)
		}
		cfg.MCU.Address = Address(addr)
	}

	// Daemon
	if v := os.Getenv("MCUCTRL_PIDFILE"); v != "" {
		cfg.Daemon.PIDFile = v
	}

	// Logging
	if v := os.Getenv("MCUCTRL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Secrets
	if v := os.Getenv("MCUCTRL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("MCUCTRL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("MCUCTRL_API_SECRET"); v != "" {
		cfg.API.Auth.Secret = v
	}
	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator sees every mistake at once.
func (c *Config) Validate() error {
	var errs []string

	// MCU
	if c.MCU.Bus < 0 {
		errs = append(errs, "mcu.bus must not be negative")
	}
	if c.MCU.Address > 0x7f {
		errs = append(errs, "mcu.address must be a 7-bit address (0x00-0x7f)")
	}
	if c.MCU.TimeoutMS < 0 {
		errs = append(errs, "mcu.timeout_ms must not be negative")
	}
	if c.MCU.LockTimeoutMS <= 0 {
		errs = append(errs, "mcu.lock_timeout_ms must be positive")
	}

	// Thresholds
	if !inByteRange(c.Thresholds.MinPWM) {
		errs = append(errs, "thresholds.min_pwm must be between 0 and 255")
	}
	if !inByteRange(c.Thresholds.MaxPWM) {
		errs = append(errs, "thresholds.max_pwm must be between 0 and 255")
	}
	if c.Thresholds.MinPWM > c.Thresholds.MaxPWM {
		errs = append(errs, "thresholds.min_pwm must not exceed thresholds.max_pwm")
	}
	if !inByteRange(c.Thresholds.DefaultBrightness) {
		errs = append(errs, "thresholds.default_brightness must be between 0 and 255")
	}
	if c.Thresholds.CheckInterval <= 0 {
		errs = append(errs, "thresholds.check_interval must be positive")
	}

	// Daemon
	if c.Daemon.PIDFile == "" {
		errs = append(errs, "daemon.pidfile is required")
	}
	if c.Daemon.StopTimeout <= 0 {
		errs = append(errs, "daemon.stop_timeout must be positive")
	}

	// Logging
	if !validLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warning, error, critical", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Output) {
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
		if c.Logging.File.MaxSize <= 0 {
			errs = append(errs, "logging.file.max_size must be positive")
		}
		if c.Logging.File.MaxBackups < 0 {
			errs = append(errs, "logging.file.max_backups must not be negative")
		}
	case "stdout", "stderr":
	default:
		errs = append(errs, "logging.output must be file, stdout or stderr")
	}

	// Optional integrations
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func inByteRange(v int) bool {
	return v >= 0 && v <= 255
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error", "critical":
		return true
	}
	return false
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
