package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	BLE      BLEConfig    `yaml:"ble"`
	GPS      GPSConfig    `yaml:"gps"`
	Relay    RelayConfig  `yaml:"relay"`
	Status   StatusConfig `yaml:"status"`
	Output   OutputConfig `yaml:"output"`
}

// BLEConfig holds the peripheral identity and GATT contract.
type BLEConfig struct {
	NamePrefix        string        `yaml:"name_prefix"`
	ServiceUUID       string        `yaml:"service_uuid"`
	TXUUID            string        `yaml:"tx_uuid"`
	RXUUID            string        `yaml:"rx_uuid"`
	AdvertiseInterval time.Duration `yaml:"advertise_interval"`
	LimitedDiscovery  bool          `yaml:"limited_discovery"`
	BREDR             bool          `yaml:"br_edr"`
}

// GPSConfig selects and configures the position source.
type GPSConfig struct {
	Source          string    `yaml:"source"` // "serial", "sim" or "none"
	Device          string    `yaml:"device"`
	Baud            uint      `yaml:"baud"`
	Buffer          int       `yaml:"buffer"`
	LegacyLongitude bool      `yaml:"legacy_longitude"`
	Sim             SimConfig `yaml:"sim"`
}

// SimConfig holds the simulated receiver position.
type SimConfig struct {
	Latitude  float64       `yaml:"lat"`
	Longitude float64       `yaml:"lon"`
	Interval  time.Duration `yaml:"interval"`
}

// RelayConfig holds main loop timing.
type RelayConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	DefaultFix        *FixConfig    `yaml:"default_fix"` // broadcast until the first real fix; nil disables
}

// FixConfig is a position in decimal degrees.
type FixConfig struct {
	Latitude  float64 `yaml:"lat"`
	Longitude float64 `yaml:"lon"`
}

// StatusConfig holds the connection indicator settings.
type StatusConfig struct {
	LEDPin string `yaml:"led_pin"` // empty logs state changes instead
}

// OutputConfig selects where phone messages and fixes go.
type OutputConfig struct {
	Console bool       `yaml:"console"`
	MQTT    MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig enables the MQTT sink when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Advertised name is "<prefix> AA:BB:CC:DD:EE:FF" and must fit one
// 31-byte advertising record.
const maxNamePrefix = 31 - 2 - 1 - 17

const (
	minAdvertiseInterval = 20 * time.Millisecond
	maxAdvertiseInterval = 10240 * time.Millisecond
)

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bikenav")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		BLE: BLEConfig{
			NamePrefix:        "Pico",
			ServiceUUID:       "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			TXUUID:            "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
			RXUUID:            "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
			AdvertiseInterval: 500 * time.Millisecond,
		},
		GPS: GPSConfig{
			Source: "serial",
			Device: "/dev/serial0",
			Baud:   9600,
			Buffer: 32,
			Sim: SimConfig{
				Latitude:  37.7749,
				Longitude: -122.4194,
				Interval:  2 * time.Second,
			},
		},
		Relay: RelayConfig{
			PollInterval:      100 * time.Millisecond,
			BroadcastInterval: 5 * time.Second,
		},
		Output: OutputConfig{
			Console: true,
			MQTT: MQTTConfig{
				ClientID:    "bikenav",
				TopicPrefix: "bikenav",
			},
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in gps.device is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.GPS.Device = expandTilde(cfg.GPS.Device)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.BLE.NamePrefix == "" {
		return fmt.Errorf("ble.name_prefix must not be empty")
	}
	if len(c.BLE.NamePrefix) > maxNamePrefix {
		return fmt.Errorf("ble.name_prefix must be at most %d bytes, got %d", maxNamePrefix, len(c.BLE.NamePrefix))
	}
	if !isShortUUID(c.BLE.ServiceUUID) {
		if _, err := uuid.Parse(c.BLE.ServiceUUID); err != nil {
			return fmt.Errorf("ble.service_uuid %q: %w", c.BLE.ServiceUUID, err)
		}
	}
	if _, err := uuid.Parse(c.BLE.TXUUID); err != nil {
		return fmt.Errorf("ble.tx_uuid %q: %w", c.BLE.TXUUID, err)
	}
	if _, err := uuid.Parse(c.BLE.RXUUID); err != nil {
		return fmt.Errorf("ble.rx_uuid %q: %w", c.BLE.RXUUID, err)
	}
	if strings.EqualFold(c.BLE.TXUUID, c.BLE.RXUUID) {
		return fmt.Errorf("ble.tx_uuid and ble.rx_uuid must differ")
	}
	if c.BLE.AdvertiseInterval < minAdvertiseInterval || c.BLE.AdvertiseInterval > maxAdvertiseInterval {
		return fmt.Errorf("ble.advertise_interval must be between %s and %s, got %s",
			minAdvertiseInterval, maxAdvertiseInterval, c.BLE.AdvertiseInterval)
	}

	switch c.GPS.Source {
	case "serial":
		if c.GPS.Device == "" {
			return fmt.Errorf("gps.device must not be empty when gps.source is serial")
		}
		if c.GPS.Baud == 0 {
			return fmt.Errorf("gps.baud must be > 0")
		}
	case "sim":
		if err := checkPosition("gps.sim", c.GPS.Sim.Latitude, c.GPS.Sim.Longitude); err != nil {
			return err
		}
		if c.GPS.Sim.Interval <= 0 {
			return fmt.Errorf("gps.sim.interval must be > 0")
		}
	case "none":
	default:
		return fmt.Errorf("gps.source must be \"serial\", \"sim\" or \"none\", got %q", c.GPS.Source)
	}
	if c.GPS.Buffer < 0 {
		return fmt.Errorf("gps.buffer must be >= 0")
	}

	if c.Relay.PollInterval <= 0 {
		return fmt.Errorf("relay.poll_interval must be > 0")
	}
	if c.Relay.BroadcastInterval <= 0 {
		return fmt.Errorf("relay.broadcast_interval must be > 0")
	}
	if f := c.Relay.DefaultFix; f != nil {
		if err := checkPosition("relay.default_fix", f.Latitude, f.Longitude); err != nil {
			return err
		}
	}

	if c.Output.MQTT.Broker != "" {
		if c.Output.MQTT.ClientID == "" {
			return fmt.Errorf("output.mqtt.client_id must not be empty when a broker is set")
		}
		if strings.Contains(c.Output.MQTT.TopicPrefix, "#") || strings.Contains(c.Output.MQTT.TopicPrefix, "+") {
			return fmt.Errorf("output.mqtt.topic_prefix must not contain wildcards, got %q", c.Output.MQTT.TopicPrefix)
		}
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog.Level. Unknown values
// map to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteDefault writes a commented default config to DefaultConfigPath.
// It returns the written path, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

const defaultTemplate = `# bikenav configuration
# Durations use Go syntax: 100ms, 5s, 1m.

log_level: info # debug, info, warn, error

ble:
  name_prefix: Pico # advertised as "<prefix> <MAC>"
  service_uuid: 6e400001-b5a3-f393-e0a9-e50e24dcca9e
  tx_uuid: 6e400003-b5a3-f393-e0a9-e50e24dcca9e # notify, "<lat>,<lon>"
  rx_uuid: 6e400002-b5a3-f393-e0a9-e50e24dcca9e # write, "NAV:street|dist|turn|next"
  advertise_interval: 500ms
  limited_discovery: false
  br_edr: false

gps:
  source: serial # serial, sim or none
  device: /dev/serial0
  baud: 9600
  buffer: 32
  legacy_longitude: false
  sim:
    lat: 37.7749
    lon: -122.4194
    interval: 2s

relay:
  poll_interval: 100ms
  broadcast_interval: 5s
  # default_fix:
  #   lat: 37.7749
  #   lon: -122.4194

status:
  led_pin: "" # e.g. GPIO17; empty logs connection changes

output:
  console: true
  mqtt:
    broker: "" # e.g. tcp://localhost:1883; empty disables
    client_id: bikenav
    topic_prefix: bikenav
`

func checkPosition(field string, lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%s.lat must be within [-90, 90], got %v", field, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%s.lon must be within [-180, 180], got %v", field, lon)
	}
	return nil
}

// isShortUUID reports whether s is a 16-bit assigned number like "180d".
func isShortUUID(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
