package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the holter node agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	WiFi      WiFiConfig      `yaml:"wifi"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	LED       LEDConfig       `yaml:"led"`
	Loop      LoopConfig      `yaml:"loop"`
	Restart   RestartConfig   `yaml:"restart"`
	Journal   JournalConfig   `yaml:"journal"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Status    StatusConfig    `yaml:"status"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies this node.
type DeviceConfig struct {
	// ThingName is the broker-side identity. It doubles as the MQTT client ID.
	ThingName string `yaml:"thing_name"`
}

// WiFiConfig contains network association settings.
type WiFiConfig struct {
	// Backend selects the link driver: "nmcli" or "static".
	Backend   string `yaml:"backend"`
	SSID      string `yaml:"ssid"`
	Password  string `yaml:"password"`
	Interface string `yaml:"interface"`

	// RetryDelay is the fixed wait between association checks. Retries are unbounded.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker  MQTTBrokerConfig  `yaml:"broker"`
	Auth    MQTTAuthConfig    `yaml:"auth"`
	TLS     MQTTTLSConfig     `yaml:"tls"`
	Topics  MQTTTopicsConfig  `yaml:"topics"`
	QoS     int               `yaml:"qos"`
	Connect MQTTConnectConfig `yaml:"connect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// Cloud brokers usually authenticate with the client certificate instead.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig holds the certificate material for mutual TLS.
//
// Each item may be given as a file path or as inline PEM. Inline PEM wins
// when both are set.
type MQTTTLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAPEM    string `yaml:"ca_pem"`
	CertPEM  string `yaml:"cert_pem"`
	KeyPEM   string `yaml:"key_pem"`

	// ServerName overrides the name used for certificate verification.
	// Defaults to the broker host.
	ServerName string `yaml:"server_name"`
}

// MQTTTopicsConfig names the topics the node uses.
type MQTTTopicsConfig struct {
	Publish   string `yaml:"publish"`
	Subscribe string `yaml:"subscribe"`

	// Status carries online/offline and the last will. Empty disables it.
	Status string `yaml:"status"`
}

// MQTTConnectConfig contains the bounded broker retry policy.
type MQTTConnectConfig struct {
	// MaxAttempts is the number of failed attempts before a restart is requested.
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	KeepAlive   time.Duration `yaml:"keep_alive"`
}

// HeartbeatConfig controls the periodic publish.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Payload  string        `yaml:"payload"`
}

// LEDConfig contains status LED settings.
type LEDConfig struct {
	// Backend selects the driver: "sysfs", "gpio", "log" or "none".
	Backend string `yaml:"backend"`

	// Name is the LED class device under /sys/class/leds (sysfs backend).
	Name string `yaml:"name"`

	// Pin is the GPIO line number (gpio backend).
	Pin int `yaml:"pin"`

	// SysfsRoot is the sysfs mount point. Tests point it at a temp dir.
	SysfsRoot string `yaml:"sysfs_root"`

	BlinkInterval time.Duration `yaml:"blink_interval"`
}

// LoopConfig controls the polling loop.
type LoopConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	InboundQueue int           `yaml:"inbound_queue"`

	// LinkCheckInterval throttles the WiFi status query in the reconnect
	// check. Zero checks on every poll.
	LinkCheckInterval time.Duration `yaml:"link_check_interval"`
}

// RestartConfig controls what happens when the broker retry budget runs out.
type RestartConfig struct {
	// Mode is "exit" (let the supervisor restart us) or "command".
	Mode    string        `yaml:"mode"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// JournalConfig contains SQLite journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// KeepBoots is how many boots' history survives the prune at startup.
	KeepBoots int `yaml:"keep_boots"`
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

// StatusConfig contains the local HTTP status server settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
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
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOLTER_SECTION_KEY
// For example: HOLTER_WIFI_SSID, HOLTER_MQTT_HOST
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
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// It is used when no config file exists, which is the common case on a fresh node.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	cfg.applyDerived()
	return cfg
}

// defaultConfig returns a Config with the node's factory settings.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ThingName: "esp32_holter",
		},
		WiFi: WiFiConfig{
			Backend:    "nmcli",
			RetryDelay: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port: 8883,
				TLS:  true,
			},
			Topics: MQTTTopicsConfig{
				Publish:   "esp32/pub",
				Subscribe: "esp32/sub",
			},
			QoS: 0,
			Connect: MQTTConnectConfig{
				MaxAttempts: 10,
				RetryDelay:  200 * time.Millisecond,
				Timeout:     10 * time.Second,
				KeepAlive:   60 * time.Second,
			},
		},
		Heartbeat: HeartbeatConfig{
			Interval: 60 * time.Second,
			Payload:  `{"message": "Hello from ESP32"}`,
		},
		LED: LEDConfig{
			Backend:       "log",
			Pin:           2,
			SysfsRoot:     "/sys",
			BlinkInterval: time.Second,
		},
		Loop: LoopConfig{
			PollInterval:      50 * time.Millisecond,
			InboundQueue:      64,
			LinkCheckInterval: time.Second,
		},
		Restart: RestartConfig{
			Mode:    "exit",
			Timeout: 30 * time.Second,
		},
		Journal: JournalConfig{
			Path:        "./data/holter.db",
			WALMode:     true,
			BusyTimeout: 5,
			KeepBoots:   20,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 8081,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets belong here rather than in the YAML file.
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("HOLTER_THING_NAME"); v != "" {
		cfg.Device.ThingName = v
	}

	// WiFi
	if v := os.Getenv("HOLTER_WIFI_SSID"); v != "" {
		cfg.WiFi.SSID = v
	}
	if v := os.Getenv("HOLTER_WIFI_PASSWORD"); v != "" {
		cfg.WiFi.Password = v
	}

	// MQTT
	if v := os.Getenv("HOLTER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOLTER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOLTER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("HOLTER_MQTT_CA_PEM"); v != "" {
		cfg.MQTT.TLS.CAPEM = v
	}
	if v := os.Getenv("HOLTER_MQTT_CERT_PEM"); v != "" {
		cfg.MQTT.TLS.CertPEM = v
	}
	if v := os.Getenv("HOLTER_MQTT_KEY_PEM"); v != "" {
		cfg.MQTT.TLS.KeyPEM = v
	}

	// InfluxDB
	if v := os.Getenv("HOLTER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// applyDerived fills values that default to other settings.
func (c *Config) applyDerived() {
	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = c.Device.ThingName
	}
}

// maxInterval is the longest period a wrapping 32-bit millisecond counter can measure.
const maxInterval = time.Duration(math.MaxUint32) * time.Millisecond

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ThingName == "" {
		errs = append(errs, "device.thing_name is required")
	}

	// WiFi validation
	switch c.WiFi.Backend {
	case "nmcli":
		if c.WiFi.SSID == "" {
			errs = append(errs, "wifi.ssid is required for the nmcli backend (set HOLTER_WIFI_SSID)")
		}
	case "static":
	default:
		errs = append(errs, fmt.Sprintf("wifi.backend %q must be nmcli or static", c.WiFi.Backend))
	}
	if c.WiFi.RetryDelay <= 0 {
		errs = append(errs, "wifi.retry_delay must be positive")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set HOLTER_MQTT_HOST)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Publish == "" {
		errs = append(errs, "mqtt.topics.publish is required")
	}
	if c.MQTT.Topics.Subscribe == "" {
		errs = append(errs, "mqtt.topics.subscribe is required")
	}
	if c.MQTT.Connect.MaxAttempts < 1 {
		errs = append(errs, "mqtt.connect.max_attempts must be at least 1")
	}
	if c.MQTT.Connect.RetryDelay < 0 {
		errs = append(errs, "mqtt.connect.retry_delay must not be negative")
	}
	if c.MQTT.Connect.Timeout <= 0 {
		errs = append(errs, "mqtt.connect.timeout must be positive")
	}

	// Intervals are compared against a wrapping counter, so they must be non-negative.
	if c.Heartbeat.Interval < 0 {
		errs = append(errs, "heartbeat.interval must not be negative")
	}
	if c.LED.BlinkInterval < 0 {
		errs = append(errs, "led.blink_interval must not be negative")
	}
	if c.Heartbeat.Interval > maxInterval || c.LED.BlinkInterval > maxInterval {
		errs = append(errs, fmt.Sprintf("heartbeat.interval and led.blink_interval must not exceed %v", maxInterval))
	}
	if c.Loop.PollInterval <= 0 {
		errs = append(errs, "loop.poll_interval must be positive")
	}
	if c.Loop.InboundQueue < 1 {
		errs = append(errs, "loop.inbound_queue must be at least 1")
	}
	if c.Loop.LinkCheckInterval < 0 || c.Loop.LinkCheckInterval > maxInterval {
		errs = append(errs, "loop.link_check_interval must be between 0 and "+maxInterval.String())
	}

	switch c.LED.Backend {
	case "sysfs":
		if c.LED.Name == "" {
			errs = append(errs, "led.name is required for the sysfs backend")
		}
	case "gpio":
		if c.LED.Pin < 0 {
			errs = append(errs, "led.pin must not be negative")
		}
	case "log", "none":
	default:
		errs = append(errs, fmt.Sprintf("led.backend %q must be sysfs, gpio, log or none", c.LED.Backend))
	}

	switch c.Restart.Mode {
	case "exit":
	case "command":
		if len(c.Restart.Command) == 0 {
			errs = append(errs, "restart.command is required when restart.mode is command")
		}
	default:
		errs = append(errs, fmt.Sprintf("restart.mode %q must be exit or command", c.Restart.Mode))
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.Journal.KeepBoots < 0 {
		errs = append(errs, "journal.keep_boots must not be negative")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Status.Enabled && (c.Status.Port < 0 || c.Status.Port > 65535) {
		errs = append(errs, "status.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerAddress returns host:port for logging.
func (c MQTTConfig) BrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.Broker.Host, c.Broker.Port)
}
