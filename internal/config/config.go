package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete edgerpcd daemon configuration.
type Config struct {
	Router    RouterConfig    `yaml:"router"`
	FramePool FramePoolConfig `yaml:"frame_pool"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Serial    SerialConfig    `yaml:"serial"`
	BLE       BLEConfig       `yaml:"ble"`
	Logging   LogConfig       `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// RouterConfig bounds the service registry.
type RouterConfig struct {
	MaxServices int `yaml:"max_services"`
}

// FramePoolConfig sizes the deterministic block allocator shared by the
// router's response path and core.Api.StreamEmit.
type FramePoolConfig struct {
	BlockSize int `yaml:"block_size"`
}

// WebSocketConfig controls the single-client WsTransport listener.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// SerialConfig controls the byte-stream transport's marker framing.
type SerialConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Prefix     string `yaml:"prefix"`      // literal or \xNN escapes, parsed via serial.ParseMarker
	Suffix     string `yaml:"suffix"`
	PayloadMax int    `yaml:"payload_max"`
}

// BLEConfig controls the GATT peripheral transport.
type BLEConfig struct {
	Enabled    bool   `yaml:"enabled"`
	FrameMax   int    `yaml:"frame_max"`
	DeviceName string `yaml:"device_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Duration is a time.Duration that supports YAML string unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads config from a YAML file, applying defaults for missing values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Router.MaxServices < 1 {
		return fmt.Errorf("router.max_services must be >= 1, got %d", c.Router.MaxServices)
	}
	if c.Router.MaxServices > 8 {
		return fmt.Errorf("router.max_services must be <= 8 (method_id carries a 3-bit service index), got %d", c.Router.MaxServices)
	}
	if c.FramePool.BlockSize < 5 {
		return fmt.Errorf("frame_pool.block_size must be >= 5 (a block must hold at least a frame header), got %d", c.FramePool.BlockSize)
	}

	if c.WebSocket.Enabled && c.WebSocket.Address == "" {
		return fmt.Errorf("websocket.address is required when websocket is enabled")
	}

	if c.Serial.Enabled && c.Serial.PayloadMax < 1 {
		return fmt.Errorf("serial.payload_max must be >= 1 when serial is enabled, got %d", c.Serial.PayloadMax)
	}

	if c.BLE.Enabled && (c.BLE.FrameMax < 5 || c.BLE.FrameMax > 512) {
		return fmt.Errorf("ble.frame_max must be between 5 and 512, got %d", c.BLE.FrameMax)
	}

	if !c.WebSocket.Enabled && !c.Serial.Enabled && !c.BLE.Enabled {
		return fmt.Errorf("at least one transport (websocket, serial, ble) must be enabled")
	}
	return nil
}
