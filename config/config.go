// Package config loads and validates the AgroFlow process configuration.
// Defaults apply first, then an optional JSON file, then AGROFLOW_*
// environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c360/agroflow/errors"
)

const envPrefix = "AGROFLOW"

// NATSConfig configures the alert publishing connection.
type NATSConfig struct {
	Enabled       bool     `json:"enabled"`
	URL           string   `json:"url"`
	MaxReconnects int      `json:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait"`
}

// GatewayConfig configures the HTTP/WebSocket API.
type GatewayConfig struct {
	Addr string `json:"addr"`
}

// QueueConfig configures the action queue.
type QueueConfig struct {
	MinLatency          Duration `json:"min_latency"`
	MaxLatency          Duration `json:"max_latency"`
	QueueCapacity       int      `json:"queue_capacity"`
	HistoryCapacity     int      `json:"history_capacity"`
	EnforceSafetyLimits bool     `json:"enforce_safety_limits"`
}

// AutomationConfig configures the rule engine.
type AutomationConfig struct {
	HistoryCapacity int `json:"history_capacity"`
}

// DeviceConfig configures the synthetic reading source.
type DeviceConfig struct {
	Enabled      bool     `json:"enabled"`
	PollInterval Duration `json:"poll_interval"`
}

// Config is the complete process configuration.
type Config struct {
	NATS       NATSConfig       `json:"nats"`
	Gateway    GatewayConfig    `json:"gateway"`
	Queue      QueueConfig      `json:"queue"`
	Automation AutomationConfig `json:"automation"`
	Device     DeviceConfig     `json:"device"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Gateway: GatewayConfig{
			Addr: ":8080",
		},
		Queue: QueueConfig{
			MinLatency:      Duration(1 * time.Second),
			MaxLatency:      Duration(4 * time.Second),
			QueueCapacity:   256,
			HistoryCapacity: 1000,
		},
		Automation: AutomationConfig{
			HistoryCapacity: 1000,
		},
		Device: DeviceConfig{
			Enabled:      true,
			PollInterval: Duration(30 * time.Second),
		},
	}
}

// Load builds the configuration from defaults, the optional file at path,
// and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Gateway.Addr == "" {
		return invalid("gateway.addr must not be empty")
	}
	if c.Queue.MinLatency <= 0 {
		return invalid("queue.min_latency must be positive")
	}
	if c.Queue.MaxLatency <= c.Queue.MinLatency {
		return invalid("queue.max_latency must exceed queue.min_latency")
	}
	if c.Queue.QueueCapacity <= 0 {
		return invalid("queue.queue_capacity must be positive")
	}
	if c.Queue.HistoryCapacity <= 0 {
		return invalid("queue.history_capacity must be positive")
	}
	if c.Automation.HistoryCapacity <= 0 {
		return invalid("automation.history_capacity must be positive")
	}
	if c.Device.Enabled && c.Device.PollInterval <= 0 {
		return invalid("device.poll_interval must be positive")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return invalid("nats.url required when nats.enabled")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
		"config", "Validate", "check fields")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv(envPrefix + "_NATS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NATS.Enabled = b
		}
	}
	if v := os.Getenv(envPrefix + "_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv(envPrefix + "_QUEUE_ENFORCE_SAFETY_LIMITS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Queue.EnforceSafetyLimits = b
		}
	}
	if v := os.Getenv(envPrefix + "_DEVICE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Device.PollInterval = Duration(d)
		}
	}
	if v := os.Getenv(envPrefix + "_DEVICE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Device.Enabled = b
		}
	}
}

// Duration marshals as a Go duration string ("30s") and also accepts plain
// nanosecond numbers.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}
